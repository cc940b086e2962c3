package mux

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/session"
)

// GoroutineMux runs two blocking readers per session and reaps the child
// once both streams hit EOF. Everything funnels through one channel, so Poll
// still hands the scheduler a single ordered stream of events.
//
// A child that exits while something it spawned keeps its pipes open is only
// reported once those pipes close.
type GoroutineMux struct {
	log    logger.Logger
	events chan Event
	wake   chan struct{}
	done   chan struct{}
	wg     conc.WaitGroup
	live   int
	once   sync.Once
}

// NewGoroutine creates a goroutine-backed multiplexer.
func NewGoroutine(log logger.Logger) *GoroutineMux {
	if log == nil {
		log = logger.Noop()
	}
	return &GoroutineMux{
		log:    log,
		events: make(chan Event, 256),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *GoroutineMux) NewPipe() (*os.File, *os.File, error) {
	return os.Pipe()
}

func (m *GoroutineMux) Register(s *session.Session) error {
	m.live++
	m.wg.Go(func() {
		var readers conc.WaitGroup
		readers.Go(func() { m.pump(s, session.Stdout) })
		readers.Go(func() { m.pump(s, session.Stderr) })
		readers.Wait()

		s.Reap()
		m.send(Event{Kind: Exited, Session: s})
	})
	return nil
}

func (m *GoroutineMux) pump(s *session.Session, stream session.Stream) {
	f := s.Output(stream)
	for {
		buf := make([]byte, readSize)
		n, err := f.Read(buf)
		if n > 0 {
			if !m.send(Event{Kind: DataReady, Session: s, Stream: stream, Data: buf[:n]}) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Debug("read %s of %s: %v", stream, s.Host.Name, err)
			}
			return
		}
	}
}

func (m *GoroutineMux) send(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *GoroutineMux) Poll(timeout time.Duration) ([]Event, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var out []Event
	select {
	case ev := <-m.events:
		out = m.collect(out, ev)
	case <-m.wake:
		out = append(out, Event{Kind: Woken})
	case <-timer:
		return nil, nil
	}

drain:
	for {
		select {
		case ev := <-m.events:
			out = m.collect(out, ev)
		case <-m.wake:
			out = append(out, Event{Kind: Woken})
		default:
			break drain
		}
	}
	return out, nil
}

func (m *GoroutineMux) collect(out []Event, ev Event) []Event {
	if ev.Kind == Exited {
		ev.Outcome = ev.Session.Finish()
		m.live--
	}
	return append(out, ev)
}

func (m *GoroutineMux) Wake() error {
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *GoroutineMux) Len() int { return m.live }

// Close stops delivery and waits for every reader to return. Readers only
// return at EOF, so callers terminate sessions first.
func (m *GoroutineMux) Close() error {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
	return nil
}
