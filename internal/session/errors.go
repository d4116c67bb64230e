package session

import "errors"

var (
	// ErrDuplicateSession is returned by Registry.Create when the id is taken.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrSessionNotFound is returned when an operation references an id with
	// no active registry entry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when an operation is not legal from the
	// session's current status. The session is left unchanged.
	ErrInvalidState = errors.New("invalid session state")
)
