package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/mux"
	"github.com/rileyhilliard/sshp/internal/output"
	"github.com/rileyhilliard/sshp/internal/session"
)

// Scheduler runs one command across many hosts with at most MaxJobs
// sessions alive at a time. All of its state is owned by the goroutine that
// calls Run; the only cross-goroutine entry point is RequestStatus.
type Scheduler struct {
	cfg      Config
	build    CommandBuilder
	mux      mux.Multiplexer
	renderer *output.Renderer
	sink     Sink
	log      logger.Logger

	statusRequested atomic.Bool

	// per-run state
	hosts     []host.Descriptor
	next      int
	active    []*session.Session
	agg       *Aggregator
	coalescer *output.Coalescer
	joiner    *output.Joiner
	stopping  bool
	fault     error
	maxActive int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSink persists every record to s.
func WithSink(s Sink) Option {
	return func(sc *Scheduler) { sc.sink = s }
}

// WithLogger sets the internal trace logger.
func WithLogger(l logger.Logger) Option {
	return func(sc *Scheduler) { sc.log = l }
}

// NewScheduler creates a scheduler. The multiplexer is used for exactly one
// Run and is not closed by it.
func NewScheduler(cfg Config, build CommandBuilder, m mux.Multiplexer, r *output.Renderer, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		build:    build,
		mux:      m,
		renderer: r,
		log:      logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestStatus asks the running loop to print a status snapshot. Safe to
// call from a signal-handling goroutine.
func (s *Scheduler) RequestStatus() {
	s.statusRequested.Store(true)
	_ = s.mux.Wake()
}

// MaxActive returns the largest number of sessions that were alive at once.
func (s *Scheduler) MaxActive() int { return s.maxActive }

// Run executes the command on every host and returns once each admitted
// host is terminal.
//
// When ctx is cancelled, every active session is terminated and reaped, hosts
// still queued are never started, and Run returns the partial result with an
// INTERRUPTED error. A multiplexer fault or an output write failure ends the
// run the same way with the fault as the error.
func (s *Scheduler) Run(ctx context.Context, hosts []host.Descriptor) (*Result, error) {
	if s.cfg.MaxJobs <= 0 {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Concurrency must be at least 1, got %d", s.cfg.MaxJobs),
			"Pass a positive value to -m/--max-jobs.")
	}

	s.hosts = hosts
	s.next = 0
	s.active = s.active[:0]
	s.agg = NewAggregator(hosts)
	s.coalescer = output.NewCoalescer(s.cfg.Mode, s.cfg.Order)
	if s.cfg.Join {
		s.joiner = output.NewJoiner(s.cfg.MaxOutput)
	}

	if len(hosts) == 0 {
		return s.agg.Finalize()
	}

	stop := context.AfterFunc(ctx, func() { _ = s.mux.Wake() })
	defer stop()

	start := time.Now()
	if s.cfg.Join && s.cfg.Progress {
		s.emit(s.renderer.Progress(0, len(hosts)))
	}

	for {
		if ctx.Err() != nil && !s.stopping {
			s.log.Debug("cancelled with %d active, %d queued", len(s.active), len(hosts)-s.next)
			s.stopAll()
		}

		if !s.stopping {
			s.fill()
		}

		if len(s.active) == 0 && (s.stopping || s.next >= len(hosts)) {
			break
		}

		events, err := s.mux.Poll(s.pollTimeout(time.Now()))
		if err != nil {
			s.abort(err)
			break
		}

		for _, ev := range events {
			s.handle(ev)
		}

		if s.statusRequested.Swap(false) {
			s.emit(s.renderer.Status(s.status()))
		}

		s.checkDeadlines(time.Now())
	}

	if s.cfg.Join && s.cfg.Progress {
		s.emit(s.renderer.EndProgress())
	}
	if s.cfg.Join && !s.stopping {
		s.emit(s.renderer.Join(s.joiner.Groups(), len(hosts)))
	}
	_ = s.renderer.Finished(time.Since(start))

	switch {
	case s.fault != nil:
		return s.agg.Partial(), s.fault
	case ctx.Err() != nil && !s.agg.Complete():
		return s.agg.Partial(), errors.New(errors.ErrInterrupted,
			fmt.Sprintf("Interrupted with %d of %d hosts finished", s.agg.Recorded(), len(hosts)),
			"Active sessions were terminated; queued hosts were not started.")
	}
	return s.agg.Finalize()
}

// fill admits queued hosts until the concurrency ceiling is reached. A host
// that fails to spawn is terminal immediately and frees its slot.
func (s *Scheduler) fill() {
	for s.next < len(s.hosts) && len(s.active) < s.cfg.MaxJobs && !s.stopping {
		d := s.hosts[s.next]
		s.next++

		s.coalescer.Admit(d)
		if s.joiner != nil {
			s.joiner.Include(d)
		}

		sess := session.Start(d, s.build(d), s.mux.NewPipe)
		if sess.State() == session.SpawnFailed {
			s.log.Debug("spawn failed for %s: %v", d.Name, sess.Outcome().Err)
			s.finish(sess.Outcome())
			continue
		}

		if err := s.mux.Register(sess); err != nil {
			_ = sess.Kill()
			s.finish(sess.Wait())
			s.abort(err)
			return
		}

		if s.cfg.Timeout > 0 {
			sess.SetDeadline(sess.StartedAt().Add(s.cfg.Timeout))
		}
		s.active = append(s.active, sess)
		if len(s.active) > s.maxActive {
			s.maxActive = len(s.active)
		}
		s.log.Debug("spawned %s pid %d (%d active)", d.Name, sess.Pid(), len(s.active))
		s.emit(s.renderer.Spawned(sess))
	}
}

func (s *Scheduler) handle(ev mux.Event) {
	switch ev.Kind {
	case mux.DataReady:
		d := ev.Session.Host
		s.agg.AddBytes(ev.Stream, len(ev.Data))
		recs := s.coalescer.Write(d, ev.Stream, ev.Data)
		s.persist(recs)
		switch {
		case s.joiner != nil:
			s.joiner.Add(d, ev.Data)
		case s.cfg.Mode == output.Streaming:
			s.emit(s.renderer.Records(recs))
		}

	case mux.Exited:
		s.remove(ev.Session)
		s.finish(ev.Outcome)
	}
}

// finish records a terminal outcome and releases whatever output it unblocks.
func (s *Scheduler) finish(o session.Outcome) {
	s.agg.Record(o)

	tail, blocks := s.coalescer.Finish(o)
	s.persist(tail)
	if s.sink != nil {
		s.emit(s.sink.Finish(o))
	}

	if o.State == session.SpawnFailed {
		s.emit(s.renderer.SpawnFailed(o))
	}

	switch {
	case s.joiner != nil:
		if s.cfg.Progress {
			s.emit(s.renderer.Progress(s.agg.Recorded(), len(s.hosts)))
		}
	case s.cfg.Mode == output.Grouped:
		for _, b := range blocks {
			s.emit(s.renderer.Block(b))
		}
	default:
		s.emit(s.renderer.Records(tail))
		s.emit(s.renderer.Exit(o))
	}
}

func (s *Scheduler) persist(recs []output.Record) {
	if s.sink == nil || len(recs) == 0 {
		return
	}
	s.emit(s.sink.Write(recs))
}

// emit turns the first write failure into a fault that stops the run.
func (s *Scheduler) emit(err error) {
	if err == nil || s.fault != nil {
		return
	}
	s.fault = errors.WrapWithCode(err, errors.ErrExec, "Writing output failed", "Check the output destination.")
	s.stopAll()
}

func (s *Scheduler) remove(sess *session.Session) {
	for i, a := range s.active {
		if a == sess {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

// stopAll terminates every active session; the loop keeps polling until
// each one is reaped.
func (s *Scheduler) stopAll() {
	s.stopping = true
	for _, sess := range s.active {
		if err := sess.Terminate(s.cfg.KillGrace); err != nil {
			s.log.Warn("terminate %s: %v", sess.Host.Name, err)
		}
	}
}

// abort handles a multiplexer fault. Active sessions can no longer be
// watched, so they are killed and reaped directly.
func (s *Scheduler) abort(err error) {
	if s.fault == nil {
		s.fault = errors.WrapWithCode(err, errors.ErrMux, "Session multiplexer failed", "")
	}
	s.stopping = true
	for _, sess := range s.active {
		_ = sess.Kill()
	}
	for _, sess := range s.active {
		o := sess.Wait()
		s.agg.Record(o)
	}
	s.active = s.active[:0]
}

func (s *Scheduler) checkDeadlines(now time.Time) {
	for _, sess := range s.active {
		if deadline, ok := sess.Deadline(); ok && !now.Before(deadline) {
			s.log.Debug("%s timed out after %s", sess.Host.Name, s.cfg.Timeout)
			sess.MarkTimedOut()
			sess.SetDeadline(time.Time{})
			if err := sess.Terminate(s.cfg.KillGrace); err != nil {
				s.log.Warn("terminate %s: %v", sess.Host.Name, err)
			}
		}
		if killAt, ok := sess.KillAt(); ok && !now.Before(killAt) {
			s.log.Debug("%s ignored SIGTERM, killing", sess.Host.Name)
			if err := sess.Kill(); err != nil {
				s.log.Warn("kill %s: %v", sess.Host.Name, err)
			}
		}
	}
}

// pollTimeout is the time until the nearest deadline or kill escalation,
// or -1 to block until I/O.
func (s *Scheduler) pollTimeout(now time.Time) time.Duration {
	var nearest time.Time
	consider := func(t time.Time, ok bool) {
		if ok && (nearest.IsZero() || t.Before(nearest)) {
			nearest = t
		}
	}
	for _, sess := range s.active {
		consider(sess.Deadline())
		consider(sess.KillAt())
	}
	if nearest.IsZero() {
		return -1
	}
	if d := nearest.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) status() output.Status {
	st := output.Status{
		Finished:  s.agg.Recorded(),
		Remaining: len(s.hosts) - s.next,
		Total:     len(s.hosts),
	}
	for _, sess := range s.active {
		st.Running = append(st.Running, output.RunningHost{Pid: sess.Pid(), Host: sess.Host})
	}
	return st
}
