package logger

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		forced bool
		want   bool
	}{
		{name: "off by default", want: false},
		{name: "env turns it on", env: "1", want: true},
		{name: "flag turns it on", forced: true, want: true},
		{name: "flag and env", env: "yes", forced: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SSHP_DEBUG", tt.env)
			EnableDebug(tt.forced)
			t.Cleanup(func() { EnableDebug(false) })

			buf := captureLog(t)
			Default().Debug("spawned %d", 4)

			assert.Equal(t, tt.want, DebugEnabled())
			if tt.want {
				assert.Contains(t, buf.String(), "[sshp] spawned 4")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestEnableDebug_Toggles(t *testing.T) {
	t.Setenv("SSHP_DEBUG", "")
	t.Cleanup(func() { EnableDebug(false) })

	EnableDebug(true)
	assert.True(t, DebugEnabled())
	EnableDebug(false)
	assert.False(t, DebugEnabled())
}

func TestEnvLogger_LevelsAlwaysPrint(t *testing.T) {
	t.Setenv("SSHP_DEBUG", "")
	buf := captureLog(t)

	l := NewEnvLogger("[mux]")
	l.Warn("slot %d full", 2)
	l.Error("epoll: %s", "closed")

	assert.Contains(t, buf.String(), "[mux] WARN: slot 2 full")
	assert.Contains(t, buf.String(), "[mux] ERROR: epoll: closed")
}

func TestNoopLogger(t *testing.T) {
	t.Setenv("SSHP_DEBUG", "1")
	buf := captureLog(t)

	l := Noop()
	l.Debug("x")
	l.Error("y")
	assert.Empty(t, buf.String())
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()

	const workers, each = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if i%2 == 0 {
					l.Debug("w%d %d", w, i)
				} else {
					l.Warn("w%d %d", w, i)
				}
				_ = l.HasLevel("error")
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, l.Messages, workers*each)
	assert.True(t, l.HasLevel("debug"))
	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))

	seen := map[string]bool{}
	for _, m := range l.Messages {
		seen[m.Message] = true
	}
	assert.Len(t, seen, workers*each)
	assert.True(t, seen[fmt.Sprintf("w%d %d", workers-1, each-1)])

	l.Clear()
	assert.Empty(t, l.Messages)
	assert.False(t, l.HasLevel("debug"))
}
