package engine

import "github.com/fieldcrew/go-push-service/pkg/push"

// defaultSound is attached to every built message.
const defaultSound = "default"

// BuildMessages merges the event payload into the resolver's message stubs.
// Pure: the input buckets are left untouched and a fresh map is returned.
// Payload validation (a missing title or body) is the event handler's
// responsibility, not the builder's.
func BuildMessages(byScope map[string][]push.Message, ev push.Event) map[string][]push.Message {
	built := make(map[string][]push.Message, len(byScope))
	for scope, stubs := range byScope {
		msgs := make([]push.Message, len(stubs))
		for i, stub := range stubs {
			stub.Title = ev.Title
			stub.Body = ev.Body
			stub.Data = ev.Data
			stub.Sound = defaultSound
			msgs[i] = stub
		}
		built[scope] = msgs
	}
	return built
}
