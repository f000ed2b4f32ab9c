package registry

import "errors"

var (
	// ErrNotInitialized is returned for operations before Start.
	ErrNotInitialized = errors.New("engine not started")
	// ErrNotRegistered is returned when an operation requires a tracked key.
	ErrNotRegistered = errors.New("key not registered")
	// ErrAlreadyRegistered is returned when registering an existing key
	// with conflicting options.
	ErrAlreadyRegistered = errors.New("key already registered with different options")
	// ErrNoConflict is returned when resolving a key with no open conflict.
	ErrNoConflict = errors.New("no open conflict for key")
)
