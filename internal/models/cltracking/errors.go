package cltracking

import "errors"

var (
	// ErrTokenGeneration is returned when no unused visitor token was found
	// within MaxTokenAttempts draws.
	ErrTokenGeneration = errors.New("couldn't generate a unique visitor token")

	// ErrNoSession is returned when a sighting carries no session.
	ErrNoSession = errors.New("visitor tracking requires a session")
)
