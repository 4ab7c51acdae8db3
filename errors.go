package tarpit

import "errors"

var (
	// ErrConfig marks configuration validation failures returned by New,
	// matchable via errors.Is.
	ErrConfig = errors.New(`tarpit: invalid config`)

	// ErrAlreadyListening is returned by Server.Listen when called more
	// than once.
	ErrAlreadyListening = errors.New(`tarpit: already listening`)

	// ErrNotListening is returned by Server.Run before a successful
	// Server.Listen.
	ErrNotListening = errors.New(`tarpit: not listening`)

	// ErrAlreadyRunning is returned by Server.Run when called more than
	// once.
	ErrAlreadyRunning = errors.New(`tarpit: already running`)

	// errTimedOut is the eviction cause for connections that exhaust the
	// consecutive-backpressure budget; its text feeds the disconnect log.
	errTimedOut = errors.New(`timed out`)
)
