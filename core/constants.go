package core

import "errors"

// Defaults applied by NewEngine to zero Options fields
const (
	DefaultMaxConnections = 65536
	DefaultRoot           = "./resources"

	listenBacklog = 1024
)

// Error definitions
var (
	ErrInvalidPort    = errors.New("port must be 0 or between 1024 and 65535")
	ErrNotListening   = errors.New("engine is not listening")
	ErrAlreadyServing = errors.New("engine is already serving")
	ErrEngineClosed   = errors.New("engine closed")
)
