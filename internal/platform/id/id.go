// Package id generates session fencing tokens.
//
// A token is derived from the slot name, the wall clock, and a random suffix,
// so every activation gets a unique value without any coordinated counter.
// Uniqueness is the only requirement; tokens carry no ordering.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionToken returns a fresh fencing token scoped to the given slot
// name.
func NewSessionToken(slot string) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s-%d-%s", slot, time.Now().UnixNano(), suffix)
}
