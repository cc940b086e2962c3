package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/session"
)

func descriptors(names ...string) []host.Descriptor {
	out := make([]host.Descriptor, len(names))
	for i, n := range names {
		out[i] = host.Descriptor{Index: i, Name: n}
	}
	return out
}

func TestAggregator_Categories(t *testing.T) {
	h := descriptors("ok", "fail", "sig", "slow", "gone")
	a := NewAggregator(h)

	// Recorded out of order; PerHost comes back in input order.
	a.Record(session.Outcome{Host: h[3], State: session.TimedOut, ExitCode: -1})
	a.Record(session.Outcome{Host: h[0], State: session.Exited, ExitCode: 0})
	a.Record(session.Outcome{Host: h[4], State: session.SpawnFailed, ExitCode: -1})
	a.Record(session.Outcome{Host: h[1], State: session.Exited, ExitCode: 2})
	assert.False(t, a.Complete())

	_, err := a.Finalize()
	require.Error(t, err)

	a.Record(session.Outcome{Host: h[2], State: session.Signaled, Signal: 9, ExitCode: -1})
	assert.True(t, a.Complete())

	r, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 5, r.Total)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Signaled)
	assert.Equal(t, 1, r.TimedOut)
	assert.Equal(t, 1, r.SpawnFailed)
	assert.Equal(t, errors.ExitHostFailure, r.ExitCode())

	require.Len(t, r.PerHost, 5)
	for i, o := range r.PerHost {
		assert.Equal(t, i, o.Host.Index)
	}

	again, err := a.Finalize()
	require.NoError(t, err)
	assert.Same(t, r, again)
}

func TestAggregator_DuplicatePanics(t *testing.T) {
	h := descriptors("a")
	a := NewAggregator(h)
	a.Record(session.Outcome{Host: h[0], State: session.Exited})

	assert.Panics(t, func() {
		a.Record(session.Outcome{Host: h[0], State: session.Exited})
	})
}

func TestAggregator_RejectsBadRecords(t *testing.T) {
	h := descriptors("a")
	a := NewAggregator(h)

	assert.Panics(t, func() {
		a.Record(session.Outcome{Host: host.Descriptor{Index: 5}, State: session.Exited})
	})
	assert.Panics(t, func() {
		a.Record(session.Outcome{Host: h[0], State: session.Running})
	})
}

func TestAggregator_Empty(t *testing.T) {
	r, err := NewAggregator(nil).Finalize()
	require.NoError(t, err)
	assert.Equal(t, 0, r.Total)
	assert.True(t, r.Success())
	assert.Equal(t, errors.ExitOK, r.ExitCode())
}

func TestAggregator_Partial(t *testing.T) {
	h := descriptors("a", "b", "c")
	a := NewAggregator(h)
	a.Record(session.Outcome{Host: h[1], State: session.Exited})
	a.AddBytes(session.Stdout, 10)
	a.AddBytes(session.Stderr, 3)

	r := a.Partial()
	assert.Equal(t, 3, r.Total)
	require.Len(t, r.PerHost, 1)
	assert.Equal(t, "b", r.PerHost[0].Host.Name)
	assert.False(t, r.Success())
	assert.Equal(t, uint64(10), r.StdoutBytes)
	assert.Equal(t, uint64(3), r.StderrBytes)
}
