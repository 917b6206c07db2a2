package core

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")
	ErrHubStopped         = errors.New("hub stopped")
)
