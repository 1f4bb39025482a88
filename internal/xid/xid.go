package xid

import (
	"github.com/google/uuid"
)

// New returns a time-ordered uuid (v7) so ids sort roughly by creation.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s looks like an id produced by New.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
