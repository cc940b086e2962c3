package parallel

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/mux"
	"github.com/rileyhilliard/sshp/internal/output"
	"github.com/rileyhilliard/sshp/internal/session"
)

// scripts maps host names to the shell snippet that stands in for ssh.
func scripts(m map[string]string) CommandBuilder {
	return func(d host.Descriptor) []string {
		return []string{"/bin/sh", "-c", m[d.Name]}
	}
}

// syncBuffer lets the test read output while a status request goroutine runs.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	sched *Scheduler
	out   *syncBuffer
	diag  *syncBuffer
	mux   mux.Multiplexer
}

// multiplexers lists the platform default and the portable fallback so the
// scheduler's paths run over both.
func multiplexers() map[string]func() mux.Multiplexer {
	return map[string]func() mux.Multiplexer{
		"default":   func() mux.Multiplexer { return mux.New(logger.Noop()) },
		"goroutine": func() mux.Multiplexer { return mux.NewGoroutine(logger.Noop()) },
	}
}

func newHarness(t *testing.T, cfg Config, build CommandBuilder, ropts output.RenderOptions, opts ...Option) *harness {
	t.Helper()
	return newHarnessWith(t, mux.New(logger.Noop()), cfg, build, ropts, opts...)
}

func newHarnessWith(t *testing.T, m mux.Multiplexer, cfg Config, build CommandBuilder, ropts output.RenderOptions, opts ...Option) *harness {
	t.Helper()
	out, diag := &syncBuffer{}, &syncBuffer{}
	t.Cleanup(func() { m.Close() })
	r := output.NewRenderer(out, diag, nil, ropts)
	return &harness{sched: NewScheduler(cfg, build, m, r, opts...), out: out, diag: diag, mux: m}
}

func testConfig(maxJobs int) Config {
	cfg := DefaultConfig()
	cfg.MaxJobs = maxJobs
	cfg.KillGrace = 200 * time.Millisecond
	return cfg
}

func TestScheduler_PartialFailure(t *testing.T) {
	h := descriptors("a", "b", "c")
	hr := newHarness(t, testConfig(2), scripts(map[string]string{
		"a": "echo alpha",
		"b": "echo broken >&2; exit 1",
		"c": "echo gamma",
	}), output.RenderOptions{})

	r, err := hr.sched.Run(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, errors.ExitHostFailure, r.ExitCode())
	assert.LessOrEqual(t, hr.sched.MaxActive(), 2)

	require.Len(t, r.PerHost, 3)
	assert.Equal(t, "b", r.PerHost[1].Host.Name)
	assert.Equal(t, 1, r.PerHost[1].ExitCode)

	out := hr.out.String()
	assert.Contains(t, out, "[a] alpha\n")
	assert.Contains(t, out, "[b] broken\n")
	assert.Contains(t, out, "[c] gamma\n")
}

func TestScheduler_ConcurrencyCeiling(t *testing.T) {
	names := []string{"h0", "h1", "h2", "h3", "h4", "h5"}
	m := map[string]string{}
	for _, n := range names {
		m[n] = "sleep 0.1"
	}

	for name, newMux := range multiplexers() {
		t.Run(name, func(t *testing.T) {
			hr := newHarnessWith(t, newMux(), testConfig(2), scripts(m), output.RenderOptions{})
			r, err := hr.sched.Run(context.Background(), descriptors(names...))
			require.NoError(t, err)

			assert.Equal(t, 6, r.Succeeded)
			assert.Equal(t, 2, hr.sched.MaxActive())
		})
	}
}

func TestScheduler_FullParallelism(t *testing.T) {
	hr := newHarness(t, testConfig(10), scripts(map[string]string{
		"a": "sleep 0.3", "b": "sleep 0.3", "c": "sleep 0.3",
	}), output.RenderOptions{})

	begin := time.Now()
	r, err := hr.sched.Run(context.Background(), descriptors("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Succeeded)
	assert.Equal(t, 3, hr.sched.MaxActive())
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestScheduler_SameOutcomesAtAnyConcurrency(t *testing.T) {
	m := map[string]string{
		"a": "exit 0", "b": "exit 3", "c": "kill -9 $$", "d": "echo x; exit 0",
	}
	h := descriptors("a", "b", "c", "d")

	var results []*Result
	for _, jobs := range []int{1, 4} {
		hr := newHarness(t, testConfig(jobs), scripts(m), output.RenderOptions{})
		r, err := hr.sched.Run(context.Background(), h)
		require.NoError(t, err)
		results = append(results, r)
	}

	require.Len(t, results[0].PerHost, 4)
	for i := range h {
		assert.Equal(t, results[0].PerHost[i].State, results[1].PerHost[i].State)
		assert.Equal(t, results[0].PerHost[i].Code(), results[1].PerHost[i].Code())
	}
	assert.Equal(t, session.Signaled, results[0].PerHost[2].State)
	assert.Equal(t, results[0].Succeeded, results[1].Succeeded)
}

func TestScheduler_Timeout(t *testing.T) {
	cfg := testConfig(5)
	cfg.Timeout = 200 * time.Millisecond

	for name, newMux := range multiplexers() {
		t.Run(name, func(t *testing.T) {
			hr := newHarnessWith(t, newMux(), cfg, scripts(map[string]string{
				"fast": "echo done",
				"slow": "sleep 10",
			}), output.RenderOptions{ExitCodes: true})

			begin := time.Now()
			r, err := hr.sched.Run(context.Background(), descriptors("fast", "slow"))
			require.NoError(t, err)
			assert.Less(t, time.Since(begin), 5*time.Second)

			assert.Equal(t, 1, r.Succeeded)
			assert.Equal(t, 1, r.TimedOut)
			assert.Equal(t, session.TimedOut, r.PerHost[1].State)
			assert.Contains(t, hr.out.String(), "[slow] timed out:")
		})
	}
}

func TestScheduler_MixedOutcomesUnderCeilingAndTimeout(t *testing.T) {
	cfg := testConfig(2)
	cfg.Timeout = 500 * time.Millisecond

	for name, newMux := range multiplexers() {
		t.Run(name, func(t *testing.T) {
			hr := newHarnessWith(t, newMux(), cfg, scripts(map[string]string{
				"ok":   "echo fine",
				"bad":  "exit 2",
				"hung": "sleep 10",
			}), output.RenderOptions{})

			r, err := hr.sched.Run(context.Background(), descriptors("ok", "bad", "hung"))
			require.NoError(t, err)

			assert.Equal(t, 1, r.Succeeded)
			assert.Equal(t, 1, r.Failed)
			assert.Equal(t, 1, r.TimedOut)
			assert.Equal(t, 2, hr.sched.MaxActive())
			assert.Equal(t, errors.ExitHostFailure, r.ExitCode())
		})
	}
}

func TestScheduler_TimeoutEscalatesToKill(t *testing.T) {
	cfg := testConfig(1)
	cfg.Timeout = 100 * time.Millisecond
	cfg.KillGrace = 100 * time.Millisecond

	hr := newHarness(t, cfg, scripts(map[string]string{
		"stubborn": "trap '' TERM; sleep 10",
	}), output.RenderOptions{})

	begin := time.Now()
	r, err := hr.sched.Run(context.Background(), descriptors("stubborn"))
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second)
	assert.Equal(t, session.TimedOut, r.PerHost[0].State)
}

func TestScheduler_EmptyHostList(t *testing.T) {
	hr := newHarness(t, testConfig(3), scripts(nil), output.RenderOptions{})
	r, err := hr.sched.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Total)
	assert.Empty(t, r.PerHost)
	assert.Equal(t, errors.ExitOK, r.ExitCode())
}

func TestScheduler_ZeroConcurrency(t *testing.T) {
	spawned := false
	build := func(d host.Descriptor) []string {
		spawned = true
		return []string{"/bin/true"}
	}
	hr := newHarness(t, testConfig(0), build, output.RenderOptions{})

	_, err := hr.sched.Run(context.Background(), descriptors("a"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.False(t, spawned)
}

func TestScheduler_SpawnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-ssh")
	build := func(d host.Descriptor) []string {
		if d.Name == "bad" {
			return []string{missing}
		}
		return []string{"/bin/sh", "-c", "echo fine"}
	}
	hr := newHarness(t, testConfig(1), build, output.RenderOptions{})

	r, err := hr.sched.Run(context.Background(), descriptors("bad", "good"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.SpawnFailed)
	assert.Equal(t, 1, r.Succeeded)
	assert.Contains(t, hr.diag.String(), "[bad] spawn failed")
	assert.Contains(t, hr.out.String(), "[good] fine")
}

func TestScheduler_GroupedBlocksAreContiguous(t *testing.T) {
	cfg := testConfig(3)
	cfg.Mode = output.Grouped

	for name, newMux := range multiplexers() {
		t.Run(name, func(t *testing.T) {
			hr := newHarnessWith(t, newMux(), cfg, scripts(map[string]string{
				"a": "echo a1; sleep 0.2; echo a2",
				"b": "echo b1; sleep 0.1; echo b2",
				"c": "echo c1; echo c2",
			}), output.RenderOptions{})

			_, err := hr.sched.Run(context.Background(), descriptors("a", "b", "c"))
			require.NoError(t, err)
			assert.Equal(t, "[a]\na1\na2\n[b]\nb1\nb2\n[c]\nc1\nc2\n", hr.out.String())
		})
	}
}

func TestScheduler_GroupedCompletionOrder(t *testing.T) {
	cfg := testConfig(3)
	cfg.Mode = output.Grouped
	cfg.Order = output.CompletionOrder

	hr := newHarness(t, cfg, scripts(map[string]string{
		"slow": "sleep 0.4; echo s",
		"fast": "echo f",
	}), output.RenderOptions{})

	_, err := hr.sched.Run(context.Background(), descriptors("slow", "fast"))
	require.NoError(t, err)
	assert.Equal(t, "[fast]\nf\n[slow]\ns\n", hr.out.String())
}

func TestScheduler_StreamingKeepsPerHostOrder(t *testing.T) {
	hr := newHarness(t, testConfig(2), scripts(map[string]string{
		"a": "for i in 1 2 3 4 5; do echo a$i; done",
		"b": "for i in 1 2 3 4 5; do echo b$i >&2; done",
	}), output.RenderOptions{Anonymous: true})

	_, err := hr.sched.Run(context.Background(), descriptors("a", "b"))
	require.NoError(t, err)

	var aLines, bLines []string
	for _, line := range strings.Split(strings.TrimSpace(hr.out.String()), "\n") {
		switch line[0] {
		case 'a':
			aLines = append(aLines, line)
		case 'b':
			bLines = append(bLines, line)
		}
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, aLines)
	assert.Equal(t, []string{"b1", "b2", "b3", "b4", "b5"}, bLines)
}

func TestScheduler_Join(t *testing.T) {
	cfg := testConfig(3)
	cfg.Join = true

	hr := newHarness(t, cfg, scripts(map[string]string{
		"a": "echo same",
		"b": "echo different",
		"c": "echo same",
	}), output.RenderOptions{})

	_, err := hr.sched.Run(context.Background(), descriptors("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "finished with 2 unique results\n\n"+
		"hosts (2/3): a c\nsame\n\n"+
		"hosts (1/3): b\ndifferent\n\n", hr.out.String())
}

func TestScheduler_Cancellation(t *testing.T) {
	m := map[string]string{}
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		m[n] = "sleep 10"
	}

	for name, newMux := range multiplexers() {
		t.Run(name, func(t *testing.T) {
			hr := newHarnessWith(t, newMux(), testConfig(2), scripts(m), output.RenderOptions{})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(200*time.Millisecond, cancel)

			begin := time.Now()
			r, err := hr.sched.Run(ctx, descriptors(names...))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrInterrupted))
			assert.Equal(t, errors.ExitInterrupted, errors.ExitCode(err))
			assert.Less(t, time.Since(begin), 5*time.Second)

			require.NotNil(t, r)
			assert.Equal(t, 4, r.Total)
			assert.Len(t, r.PerHost, 2, "queued hosts are never started")
			for _, o := range r.PerHost {
				assert.Equal(t, session.Signaled, o.State)
			}
		})
	}
}

func TestScheduler_StatusRequest(t *testing.T) {
	hr := newHarness(t, testConfig(1), scripts(map[string]string{
		"a": "sleep 0.5", "b": "true",
	}), output.RenderOptions{})

	time.AfterFunc(150*time.Millisecond, hr.sched.RequestStatus)

	_, err := hr.sched.Run(context.Background(), descriptors("a", "b"))
	require.NoError(t, err)
	out := hr.out.String()
	assert.Contains(t, out, "status: 1 running, 0 finished, 1 remaining (2 total)")
	assert.Contains(t, out, "--> pid ")
}

type recordingSink struct {
	records  []output.Record
	finished []string
}

func (s *recordingSink) Write(recs []output.Record) error {
	s.records = append(s.records, recs...)
	return nil
}

func (s *recordingSink) Finish(o session.Outcome) error {
	s.finished = append(s.finished, o.Host.Name)
	return nil
}

func TestScheduler_SinkSeesEveryRecord(t *testing.T) {
	cfg := testConfig(2)
	cfg.Mode = output.Grouped
	sink := &recordingSink{}

	hr := newHarness(t, cfg, scripts(map[string]string{
		"a": "echo out; echo err >&2; printf tail",
	}), output.RenderOptions{Silent: true}, WithSink(sink))

	_, err := hr.sched.Run(context.Background(), descriptors("a"))
	require.NoError(t, err)
	assert.Empty(t, hr.out.String())

	var got []string
	for _, r := range sink.records {
		got = append(got, r.Stream.String()+":"+string(r.Content))
	}
	assert.ElementsMatch(t, []string{"stdout:out", "stderr:err", "stdout:tail"}, got)
	assert.Equal(t, []string{"a"}, sink.finished)
}
