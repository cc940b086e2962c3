package parallel

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/session"
)

// Aggregator collects exactly one terminal outcome per host.
type Aggregator struct {
	hosts    []host.Descriptor
	outcomes []session.Outcome
	recorded []bool
	count    int
	bytes    [2]uint64
	started  time.Time
	result   *Result
}

// NewAggregator expects hosts indexed 0..len-1, as the host parser produces.
func NewAggregator(hosts []host.Descriptor) *Aggregator {
	return &Aggregator{
		hosts:    hosts,
		outcomes: make([]session.Outcome, len(hosts)),
		recorded: make([]bool, len(hosts)),
		started:  time.Now(),
	}
}

// Record stores o for its host. Recording a host twice, or a host the
// aggregator doesn't know, is a programming error and panics.
func (a *Aggregator) Record(o session.Outcome) {
	idx := o.Host.Index
	if idx < 0 || idx >= len(a.hosts) {
		panic(fmt.Sprintf("parallel: outcome for unknown host index %d", idx))
	}
	if a.recorded[idx] {
		panic(fmt.Sprintf("parallel: host %s (index %d) recorded twice", o.Host.Name, idx))
	}
	if !o.State.Terminal() {
		panic(fmt.Sprintf("parallel: host %s recorded in non-terminal state %s", o.Host.Name, o.State))
	}
	a.recorded[idx] = true
	a.outcomes[idx] = o
	a.count++
}

// AddBytes counts output received on stream.
func (a *Aggregator) AddBytes(stream session.Stream, n int) {
	a.bytes[stream] += uint64(n)
}

// Recorded returns how many hosts have an outcome.
func (a *Aggregator) Recorded() int { return a.count }

// Complete reports whether every host has been recorded.
func (a *Aggregator) Complete() bool { return a.count == len(a.hosts) }

// Finalize builds the result. It fails until every host is recorded and
// returns the same result on every later call.
func (a *Aggregator) Finalize() (*Result, error) {
	if a.result != nil {
		return a.result, nil
	}
	if !a.Complete() {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("Run finalized with %d of %d hosts recorded", a.count, len(a.hosts)),
			"This is a bug in sshp.")
	}
	a.result = a.build()
	return a.result, nil
}

// Partial builds a result from whatever has been recorded so far, for runs
// that were interrupted. Unrecorded hosts are omitted from PerHost.
func (a *Aggregator) Partial() *Result {
	return a.build()
}

func (a *Aggregator) build() *Result {
	r := &Result{
		Total:       len(a.hosts),
		PerHost:     make([]session.Outcome, 0, a.count),
		Duration:    time.Since(a.started),
		StdoutBytes: a.bytes[session.Stdout],
		StderrBytes: a.bytes[session.Stderr],
	}
	for i, o := range a.outcomes {
		if !a.recorded[i] {
			continue
		}
		r.PerHost = append(r.PerHost, o)
		switch {
		case o.Succeeded():
			r.Succeeded++
		case o.State == session.Exited:
			r.Failed++
		case o.State == session.Signaled:
			r.Signaled++
		case o.State == session.TimedOut:
			r.TimedOut++
		case o.State == session.SpawnFailed:
			r.SpawnFailed++
		}
	}
	return r
}
