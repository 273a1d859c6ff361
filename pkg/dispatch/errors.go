package dispatch

import (
	"errors"
	"fmt"
)

// ErrUserNotFound reports that a user reference matched no document, neither
// by id nor by external uid.
var ErrUserNotFound = errors.New("user not found")

// ErrCacheMiss is returned by cache clients when a key is absent. Cache
// misses are not failures; decorators fall through to the real store.
var ErrCacheMiss = errors.New("cache miss")

// MalformedRegistryError reports a user document whose tokens field is not a
// scope-to-token-list mapping. The resolver skips such users; nothing ever
// infers structure from a malformed entry.
type MalformedRegistryError struct {
	UserID string
	Err    error
}

func (e *MalformedRegistryError) Error() string {
	return fmt.Sprintf("malformed token registry for user %s: %v", e.UserID, e.Err)
}

func (e *MalformedRegistryError) Unwrap() error { return e.Err }
