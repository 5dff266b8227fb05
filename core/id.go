package core

import "github.com/google/uuid"

// NewID returns a new random identifier for runs, tool calls and records.
func NewID() string { return uuid.NewString() }
