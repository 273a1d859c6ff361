// Package events turns document-change envelopes from the trigger
// subscription into notification events and feeds them to the dispatch
// engine.
package events

import (
	"fmt"
)

type Kind string

const (
	KindTaskCreated         Kind = "task.created"
	KindTaskUpdated         Kind = "task.updated"
	KindAnnouncementCreated Kind = "announcement.created"
)

// Comment is one entry in a task's comment thread. Status comments are
// machine-written progress notes and never notified.
type Comment struct {
	Author   string `json:"author"`
	Text     string `json:"text"`
	IsStatus bool   `json:"isStatus,omitempty"`
}

// Response is a worker's reply to a task assignment.
type Response struct {
	Author string `json:"author"`
	Kind   string `json:"kind"` // accepted | completed | anything else
}

const (
	ResponseAccepted  = "accepted"
	ResponseCompleted = "completed"
)

// Task mirrors the fields of the task document this service reads. User
// fields carry user references: document ids or external auth uids.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Type      string     `json:"type,omitempty"`
	Priority  string     `json:"priority,omitempty"`
	Creator   string     `json:"creator"`
	Assignees []string   `json:"assignees,omitempty"`
	Arrived   bool       `json:"arrived,omitempty"`
	Comments  []Comment  `json:"comments,omitempty"`
	Responses []Response `json:"responses,omitempty"`
}

// Announcement mirrors the announcement document.
type Announcement struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees,omitempty"`
}

// ChangeEvent is the envelope the trigger adapter publishes for every
// document change. Updates carry both the new document and its prior state
// so handlers can diff them.
type ChangeEvent struct {
	Kind         Kind          `json:"kind"`
	Task         *Task         `json:"task,omitempty"`
	TaskBefore   *Task         `json:"taskBefore,omitempty"`
	Announcement *Announcement `json:"announcement,omitempty"`
}

func (e *ChangeEvent) Validate() error {
	switch e.Kind {
	case KindTaskCreated:
		if e.Task == nil {
			return fmt.Errorf("%s event is missing its task", e.Kind)
		}
	case KindTaskUpdated:
		if e.Task == nil || e.TaskBefore == nil {
			return fmt.Errorf("%s event needs both task and taskBefore", e.Kind)
		}
	case KindAnnouncementCreated:
		if e.Announcement == nil {
			return fmt.Errorf("%s event is missing its announcement", e.Kind)
		}
	default:
		return fmt.Errorf("unknown change kind %q", e.Kind)
	}
	return nil
}
