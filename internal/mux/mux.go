// Package mux waits on the output pipes and exits of every active session at
// once. The scheduler is its only caller and calls it from one goroutine.
package mux

import (
	"os"
	"time"

	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/session"
)

// EventKind distinguishes the events Poll returns.
type EventKind int

const (
	// DataReady carries bytes read from one of a session's streams.
	DataReady EventKind = iota
	// Exited reports that a session was reaped. Every DataReady for that
	// session precedes it.
	Exited
	// Woken reports that Wake was called.
	Woken
)

func (k EventKind) String() string {
	switch k {
	case DataReady:
		return "data"
	case Exited:
		return "exited"
	case Woken:
		return "woken"
	}
	return "unknown"
}

// Event is one readiness notification.
type Event struct {
	Kind    EventKind
	Session *session.Session
	Stream  session.Stream
	Data    []byte
	Outcome session.Outcome
}

// Multiplexer surfaces output and exit events for registered sessions.
type Multiplexer interface {
	// NewPipe creates a pipe suitable for a session output stream.
	NewPipe() (r, w *os.File, err error)
	// Register starts watching a running session.
	Register(s *session.Session) error
	// Poll blocks until at least one event is available or timeout elapses.
	// A negative timeout blocks indefinitely. An empty result is not an error.
	Poll(timeout time.Duration) ([]Event, error)
	// Wake makes a blocked Poll return a Woken event. Safe from any goroutine.
	Wake() error
	// Len returns the number of registered sessions not yet reported Exited.
	Len() int
	// Close releases the multiplexer's resources.
	Close() error
}

// New returns the best multiplexer for this platform: epoll on Linux, the
// goroutine multiplexer elsewhere or when epoll can't be set up.
func New(log logger.Logger) Multiplexer {
	if log == nil {
		log = logger.Noop()
	}
	m, err := newPlatform(log)
	if err != nil {
		log.Warn("readiness polling unavailable, falling back to reader goroutines: %v", err)
		return NewGoroutine(log)
	}
	return m
}

// readSize is the buffer used per read call.
const readSize = 32 * 1024
