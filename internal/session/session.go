// Package session runs one ssh subprocess and tracks it to a terminal state.
package session

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
)

// State is a session's position in its lifecycle. Exited, Signaled, TimedOut
// and SpawnFailed are terminal; a session reaches exactly one of them.
type State int

const (
	Starting State = iota
	Running
	Exited
	Signaled
	TimedOut
	SpawnFailed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case TimedOut:
		return "timed out"
	case SpawnFailed:
		return "spawn failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= Exited
}

// Stream names one of a session's two output channels.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Outcome is the terminal result of one host.
type Outcome struct {
	Host      host.Descriptor
	State     State
	ExitCode  int            // Exit status for Exited, -1 otherwise
	Signal    syscall.Signal // Delivered signal for Signaled, and TimedOut when it died of one
	Err       error          // Spawn error for SpawnFailed
	Pid       int
	StartedAt time.Time
	EndedAt   time.Time
}

// Succeeded is true only for a clean zero exit.
func (o Outcome) Succeeded() bool {
	return o.State == Exited && o.ExitCode == 0
}

// Duration is the wall time from spawn to reap.
func (o Outcome) Duration() time.Duration {
	if o.EndedAt.IsZero() || o.StartedAt.IsZero() {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// Code is the status shown to users: the exit code, or 128+signal when the
// process was killed, or -1 when it never ran.
func (o Outcome) Code() int {
	switch {
	case o.State == SpawnFailed:
		return -1
	case o.Signal != 0:
		return 128 + int(o.Signal)
	default:
		return o.ExitCode
	}
}

// PipeFunc creates one pipe for a child's output stream.
type PipeFunc func() (r, w *os.File, err error)

// Session owns one subprocess and the read ends of its stdout and stderr.
type Session struct {
	Host host.Descriptor
	Argv []string

	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	state     State
	reaped    atomic.Bool
	waitErr   error
	timedOut  bool
	termSent  bool
	deadline  time.Time
	killAt    time.Time
	startedAt time.Time
	outcome   Outcome
}

// Start spawns argv for d with stdin on /dev/null and each output stream on
// its own pipe. The child leads a new process group so termination reaches
// anything it forks. Start never returns nil: on failure the session is
// already terminal in SpawnFailed.
func Start(d host.Descriptor, argv []string, newPipe PipeFunc) *Session {
	s := &Session{Host: d, Argv: argv, state: Starting, startedAt: time.Now()}

	if len(argv) == 0 {
		s.fail(errors.New(errors.ErrSpawn, "Empty command for "+d.Name, "Pass a command to run."))
		return s
	}

	outR, outW, err := newPipe()
	if err != nil {
		s.fail(errors.WrapWithCode(err, errors.ErrSpawn, "Can't create stdout pipe for "+d.Name, "Check the open file limit (ulimit -n)."))
		return s
	}
	errR, errW, err := newPipe()
	if err != nil {
		outR.Close()
		outW.Close()
		s.fail(errors.WrapWithCode(err, errors.ErrSpawn, "Can't create stderr pipe for "+d.Name, "Check the open file limit (ulimit -n)."))
		return s
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = newProcAttr()

	err = cmd.Start()
	// The child has its own copies now; ours must go so EOF can arrive.
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		s.fail(errors.WrapWithCode(err, errors.ErrSpawn,
			fmt.Sprintf("Can't start %s for %s", argv[0], d.Name),
			"Check that the ssh client (or the -x program) is installed and on PATH."))
		return s
	}

	s.cmd = cmd
	s.stdout = outR
	s.stderr = errR
	s.state = Running
	return s
}

func (s *Session) fail(err error) {
	now := time.Now()
	s.state = SpawnFailed
	s.outcome = Outcome{
		Host:      s.Host,
		State:     SpawnFailed,
		ExitCode:  -1,
		Err:       err,
		StartedAt: s.startedAt,
		EndedAt:   now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Pid returns the child's process id, or 0 if it never started.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// StartedAt is when Start was called.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Output returns the read end for stream.
func (s *Session) Output(stream Stream) *os.File {
	if stream == Stderr {
		return s.stderr
	}
	return s.stdout
}

// SetDeadline arms the per-host timeout.
func (s *Session) SetDeadline(t time.Time) { s.deadline = t }

// Deadline returns the per-host timeout, if one is armed.
func (s *Session) Deadline() (time.Time, bool) {
	return s.deadline, !s.deadline.IsZero()
}

// KillAt returns when a terminated session escalates to SIGKILL.
func (s *Session) KillAt() (time.Time, bool) {
	return s.killAt, !s.killAt.IsZero()
}

// MarkTimedOut records that the deadline passed. It must be called before the
// termination signal is sent so the outcome reads TimedOut, not Signaled.
func (s *Session) MarkTimedOut() {
	if s.state == Running && !s.reaped.Load() {
		s.timedOut = true
	}
}

// TimedOut reports whether MarkTimedOut was called.
func (s *Session) TimedOut() bool { return s.timedOut }

// Terminate sends SIGTERM to the session's process group once and schedules
// SIGKILL after grace. Repeated calls are no-ops.
func (s *Session) Terminate(grace time.Duration) error {
	if s.state != Running || s.termSent || s.reaped.Load() {
		return nil
	}
	s.termSent = true
	s.killAt = time.Now().Add(grace)
	return signalGroup(s.cmd.Process, syscall.SIGTERM)
}

// Kill sends SIGKILL to the session's process group.
func (s *Session) Kill() error {
	s.killAt = time.Time{}
	if s.state != Running || s.reaped.Load() {
		return nil
	}
	return signalGroup(s.cmd.Process, syscall.SIGKILL)
}

// Reap blocks until the child exits. It only touches process state the
// coordinator never reads, so it may run on another goroutine; Finish must
// follow on the coordinator.
func (s *Session) Reap() {
	if s.cmd == nil || s.reaped.Load() {
		return
	}
	s.waitErr = s.cmd.Wait()
	s.reaped.Store(true)
}

// Finish closes the read ends and moves a reaped session to its terminal
// state. Callers drain both pipes first.
func (s *Session) Finish() Outcome {
	if s.state.Terminal() {
		return s.outcome
	}
	s.closeOutputs()

	o := Outcome{
		Host:      s.Host,
		ExitCode:  -1,
		Pid:       s.Pid(),
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}

	ps := s.cmd.ProcessState
	switch {
	case ps == nil:
		o.State = Exited
		o.Err = s.waitErr
	case exitSignal(ps) != 0:
		o.State = Signaled
		o.Signal = exitSignal(ps)
	default:
		o.State = Exited
		o.ExitCode = ps.ExitCode()
	}

	if s.timedOut {
		o.State = TimedOut
	}

	s.state = o.State
	s.outcome = o
	return o
}

// Wait reaps and finishes in one step on the calling goroutine.
func (s *Session) Wait() Outcome {
	if s.state.Terminal() {
		return s.outcome
	}
	s.Reap()
	return s.Finish()
}

// Outcome returns the terminal result. Only meaningful once State is terminal.
func (s *Session) Outcome() Outcome { return s.outcome }

func (s *Session) closeOutputs() {
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.stderr != nil {
		s.stderr.Close()
	}
}
