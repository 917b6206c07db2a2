package utils

import "github.com/google/uuid"

// NewID returns a random identifier for connections and other short-lived
// handles.
func NewID() string {
	return uuid.NewString()
}
