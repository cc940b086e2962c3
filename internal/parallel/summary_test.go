package parallel

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/session"
)

func TestRenderSummaryTo_NilResult(t *testing.T) {
	var buf bytes.Buffer
	RenderSummaryTo(&buf, nil, nil)
	assert.Empty(t, buf.String())
}

func TestRenderSummaryTo(t *testing.T) {
	start := time.Now()
	result := &Result{
		Total:       3,
		Succeeded:   1,
		Failed:      1,
		SpawnFailed: 1,
		StdoutBytes: 2048,
		StderrBytes: 12,
		Duration:    1500 * time.Millisecond,
		PerHost: []session.Outcome{
			{Host: host.Descriptor{Name: "ok1"}, State: session.Exited, ExitCode: 0},
			{Host: host.Descriptor{Name: "bad1"}, State: session.Exited, ExitCode: 3, StartedAt: start, EndedAt: start.Add(250 * time.Millisecond)},
			{Host: host.Descriptor{Name: "gone1"}, State: session.SpawnFailed, ExitCode: -1, Err: errors.New("nope")},
		},
	}

	var buf bytes.Buffer
	RenderSummaryTo(&buf, result, nil)
	out := buf.String()

	assert.NotContains(t, out, "ok1")
	assert.Contains(t, out, "bad1 exited 3 (250ms)")
	assert.Contains(t, out, "gone1 spawn failed")
	assert.Contains(t, out, "1 succeeded")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "1 spawn failed")
	assert.Contains(t, out, "3 hosts, 2.0 kB stdout, 12 B stderr (1.5s)")
}

func TestFormatBriefSummary(t *testing.T) {
	ok := &Result{Total: 2, Succeeded: 2, PerHost: make([]session.Outcome, 2)}
	assert.Equal(t, "2/2 hosts succeeded", FormatBriefSummary(ok))

	partial := &Result{Total: 5, Succeeded: 1, PerHost: make([]session.Outcome, 3)}
	assert.Equal(t, "3/5 finished, 1 succeeded, 2 did not", FormatBriefSummary(partial))

	assert.Empty(t, FormatBriefSummary(nil))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 500 * time.Millisecond, want: "500ms"},
		{d: 2500 * time.Millisecond, want: "2.5s"},
		{d: 90 * time.Second, want: "1m30s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}
