package parallel

import (
	"time"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/output"
	"github.com/rileyhilliard/sshp/internal/session"
)

// Config holds configuration for a fan-out run.
type Config struct {
	MaxJobs   int           // Concurrency ceiling; must be positive
	Timeout   time.Duration // Per-host timeout (0 = no timeout)
	KillGrace time.Duration // SIGTERM to SIGKILL escalation delay
	Mode      output.Mode   // Streaming or grouped rendering
	Order     output.Order  // Grouped block order
	Join      bool          // Collect output and group identical results
	MaxOutput int           // Per-host byte cap in join mode
	Progress  bool          // Show the join-mode progress line
}

// Default values shared with the config layer.
const (
	DefaultMaxJobs   = 50
	DefaultKillGrace = 2 * time.Second
	DefaultMaxOutput = 8192
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxJobs:   DefaultMaxJobs,
		KillGrace: DefaultKillGrace,
		Mode:      output.Streaming,
		Order:     output.AdmissionOrder,
		MaxOutput: DefaultMaxOutput,
	}
}

// Result is the finalized outcome of a run.
type Result struct {
	PerHost     []session.Outcome // Input order; only recorded hosts when interrupted
	Total       int               // Hosts in the input
	Succeeded   int
	Failed      int
	Signaled    int
	TimedOut    int
	SpawnFailed int
	StdoutBytes uint64
	StderrBytes uint64
	Duration    time.Duration
}

// Success returns true if every host succeeded.
func (r *Result) Success() bool {
	return r.Succeeded == r.Total
}

// ExitCode maps the result to the process exit status: 0 when every host
// succeeded (including an empty host list), 1 otherwise.
func (r *Result) ExitCode() int {
	if r.Success() {
		return errors.ExitOK
	}
	return errors.ExitHostFailure
}

// CommandBuilder returns the argument vector to run for a host.
type CommandBuilder func(d host.Descriptor) []string

// Sink persists raw records. It sees every record regardless of rendering.
type Sink interface {
	Write(recs []output.Record) error
	Finish(o session.Outcome) error
}
