package events

import (
	"fmt"

	"github.com/fieldcrew/go-push-service/pkg/push"
)

// EventsForChange computes the notification events a document change owes.
// Handlers hold no state; they only decide who hears about what. A change
// that triggers nothing returns an empty slice.
func EventsForChange(ce *ChangeEvent) []push.Event {
	switch ce.Kind {
	case KindTaskCreated:
		return taskCreated(ce.Task)
	case KindTaskUpdated:
		return taskUpdated(ce.TaskBefore, ce.Task)
	case KindAnnouncementCreated:
		return announcementCreated(ce.Announcement)
	default:
		return nil
	}
}

func taskCreated(t *Task) []push.Event {
	if len(t.Assignees) == 0 {
		return nil
	}
	return []push.Event{{
		Recipients: t.Assignees,
		Title:      "New task: " + t.Title,
		Body:       fmt.Sprintf("%s, priority %s", t.Type, t.Priority),
		Data:       taskData(t),
	}}
}

func taskUpdated(before, after *Task) []push.Event {
	var events []push.Event

	// New assignees hear about the task; existing ones already have.
	if added := addedUsers(before.Assignees, after.Assignees); len(added) > 0 {
		events = append(events, push.Event{
			Recipients: added,
			Title:      "You have been assigned: " + after.Title,
			Body:       fmt.Sprintf("%s, priority %s", after.Type, after.Priority),
			Data:       taskData(after),
		})
	}

	// One notification per new non-status comment, to everyone assigned
	// except whoever wrote it.
	for _, comment := range newEntries(len(before.Comments), after.Comments) {
		if comment.IsStatus {
			continue
		}
		recipients := excludeUser(after.Assignees, comment.Author)
		if len(recipients) == 0 {
			continue
		}
		events = append(events, push.Event{
			Recipients: recipients,
			Title:      "New comment on " + after.Title,
			Body:       comment.Text,
			Data:       taskData(after),
		})
	}

	if !before.Arrived && after.Arrived {
		events = append(events, push.Event{
			Recipients: []string{after.Creator},
			Title:      after.Title,
			Body:       "A worker has arrived on site",
			Data:       taskData(after),
		})
	}

	for _, response := range newEntries(len(before.Responses), after.Responses) {
		events = append(events, push.Event{
			Recipients: []string{after.Creator},
			Title:      after.Title,
			Body:       responseBody(response),
			Data:       taskData(after),
		})
	}

	return events
}

func announcementCreated(a *Announcement) []push.Event {
	if len(a.Assignees) == 0 {
		return nil
	}
	return []push.Event{{
		Recipients: a.Assignees,
		Title:      a.Title,
		Body:       a.Body,
		Data:       map[string]any{"announcementId": a.ID},
	}}
}

func responseBody(r Response) string {
	switch r.Kind {
	case ResponseAccepted:
		return "The task has been accepted"
	case ResponseCompleted:
		return "The task has been completed"
	default:
		return "There is a new response to your task"
	}
}

func taskData(t *Task) map[string]any {
	return map[string]any{"taskId": t.ID, "type": t.Type}
}

// addedUsers returns the entries of after that are not in before, preserving
// order.
func addedUsers(before, after []string) []string {
	known := make(map[string]bool, len(before))
	for _, u := range before {
		known[u] = true
	}
	var added []string
	for _, u := range after {
		if !known[u] {
			added = append(added, u)
		}
	}
	return added
}

func excludeUser(users []string, exclude string) []string {
	var out []string
	for _, u := range users {
		if u != exclude {
			out = append(out, u)
		}
	}
	return out
}

// newEntries returns the tail of list past the previously-seen count. The
// thread is append-only upstream, so the prefix length is the diff.
func newEntries[T any](seen int, list []T) []T {
	if seen >= len(list) {
		return nil
	}
	return list[seen:]
}
