// Package cache provides the scoped key-value cache multi-turn actions use
// to carry state between turns. Entries are keyed per (room, user, action)
// so concurrent action sequences never interfere.
package cache

import (
	"context"
	"fmt"
)

// Scope identifies one multi-turn action sequence.
type Scope struct {
	RoomID string
	UserID string
	Action string
}

func (s Scope) Key() string {
	return fmt.Sprintf("action:%s:%s:%s", s.RoomID, s.UserID, s.Action)
}

// Cache is the boundary both backends implement. The executing handler is
// the only writer for its scope during a sequence.
type Cache interface {
	// Get returns the value under field, with ok=false on a miss.
	Get(ctx context.Context, scope Scope, field string) (string, bool, error)
	// Set stores the value under field.
	Set(ctx context.Context, scope Scope, field, value string) error
	// Clear drops every field in the scope, ending the sequence.
	Clear(ctx context.Context, scope Scope) error
}
