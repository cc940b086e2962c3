package output

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/session"
	"github.com/rileyhilliard/sshp/internal/ui"
	"github.com/rileyhilliard/sshp/internal/util"
)

// ProgName prefixes sshp's own diagnostic lines.
const ProgName = "sshp"

// RenderOptions controls how output is decorated.
type RenderOptions struct {
	Anonymous     bool // No [host] prefix or header
	Trim          bool // Host names up to the first dot
	Silent        bool // Drop host output entirely
	ExitCodes     bool // Print a line per host when it finishes
	Debug         bool // Spawn/exit diagnostics with pids
	MaxLineLength int  // Streaming lines are cut at this many bytes; 0 disables
}

// Renderer writes records, blocks and diagnostics. Each call issues a single
// Write so a block is never split by a concurrent writer on the same stream.
type Renderer struct {
	w     io.Writer
	diag  io.Writer
	theme *ui.Theme
	opts  RenderOptions
}

// NewRenderer writes host output to w and spawn errors to diag.
func NewRenderer(w, diag io.Writer, theme *ui.Theme, opts RenderOptions) *Renderer {
	if theme == nil {
		theme = ui.Plain(w)
	}
	return &Renderer{w: w, diag: diag, theme: theme, opts: opts}
}

func (r *Renderer) name(d host.Descriptor) string {
	return r.theme.Host(d.DisplayName(r.opts.Trim))
}

func (r *Renderer) prog() string {
	return "[" + r.theme.Host(ProgName) + "]"
}

func (r *Renderer) line(buf *bytes.Buffer, rec Record) {
	text := string(rec.Content)
	if rec.Stream == session.Stderr {
		text = r.theme.Stderr(text)
	} else {
		text = r.theme.Stdout(text)
	}
	buf.WriteString(text)
	buf.WriteByte('\n')
}

func (r *Renderer) flush(w io.Writer, buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		return nil
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec, "Can't write output", "")
	}
	return nil
}

// Records renders streaming lines as "[host] line".
func (r *Renderer) Records(recs []Record) error {
	if r.opts.Silent || len(recs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		if !r.opts.Anonymous {
			buf.WriteString("[" + r.name(rec.Host) + "] ")
		}
		rec.Content = truncate(rec.Content, r.opts.MaxLineLength)
		r.line(&buf, rec)
	}
	return r.flush(r.w, &buf)
}

// Block renders one host's output under a "[host]" header, followed by its
// exit line when exit codes are on.
func (r *Renderer) Block(b Block) error {
	var buf bytes.Buffer

	if !r.opts.Silent && len(b.Records) > 0 {
		if !r.opts.Anonymous {
			buf.WriteString("[" + r.name(b.Host) + "]\n")
		}
		for _, rec := range b.Records {
			r.line(&buf, rec)
		}
	}
	r.exitLine(&buf, b.Outcome)

	return r.flush(r.w, &buf)
}

// Exit renders the exit line for o in streaming and join modes.
func (r *Renderer) Exit(o session.Outcome) error {
	var buf bytes.Buffer
	r.exitLine(&buf, o)
	return r.flush(r.w, &buf)
}

func (r *Renderer) exitLine(buf *bytes.Buffer, o session.Outcome) {
	if !r.opts.ExitCodes && !r.opts.Debug {
		return
	}

	code := strconv.Itoa(o.Code())
	if o.Succeeded() {
		code = r.theme.Success(code)
	} else {
		code = r.theme.Failure(code)
	}

	verb := "exited"
	if o.State != session.Exited {
		verb = o.State.String()
	}

	if r.opts.Debug {
		fmt.Fprintf(buf, "%s %s %s %s: %s ", r.prog(), r.theme.Numberf("%d", o.Pid), r.name(o.Host), verb, code)
	} else {
		fmt.Fprintf(buf, "[%s] %s: %s ", r.name(o.Host), verb, code)
	}
	fmt.Fprintf(buf, "(%s ms)\n", r.theme.Numberf("%d", o.Duration().Milliseconds()))
}

// SpawnFailed reports a host whose client could not be started.
func (r *Renderer) SpawnFailed(o session.Outcome) error {
	msg := "unknown error"
	if o.Err != nil {
		msg = describe(o.Err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] %s\n", r.name(o.Host), r.theme.Failure("spawn failed: "+msg))
	return r.flush(r.diag, &buf)
}

// Spawned is the debug line printed after each successful spawn.
func (r *Renderer) Spawned(s *session.Session) error {
	if !r.opts.Debug {
		return nil
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s spawned\n", r.prog(), r.theme.Numberf("%d", s.Pid()), r.name(s.Host))
	return r.flush(r.w, &buf)
}

// Finished is the debug line printed once the run is over.
func (r *Renderer) Finished(elapsed time.Duration) error {
	if !r.opts.Debug {
		return nil
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s finished (%s ms)\n", r.prog(), r.theme.Numberf("%d", elapsed.Milliseconds()))
	return r.flush(r.w, &buf)
}

// RunningHost is one entry of a status report.
type RunningHost struct {
	Pid  int
	Host host.Descriptor
}

// Status is a snapshot of the run, printed on SIGUSR1.
type Status struct {
	Running   []RunningHost
	Finished  int
	Remaining int
	Total     int
}

// Status prints a run snapshot.
func (r *Renderer) Status(st Status) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "status: %s running, %s finished, %s remaining (%s total)\n",
		r.theme.Numberf("%d", len(st.Running)),
		r.theme.Numberf("%d", st.Finished),
		r.theme.Numberf("%d", st.Remaining),
		r.theme.Numberf("%d", st.Total))
	if len(st.Running) > 0 {
		buf.WriteString("running processes:\n")
		for _, rh := range st.Running {
			fmt.Fprintf(&buf, "--> pid %s %s\n", r.theme.Numberf("%d", rh.Pid), r.name(rh.Host))
		}
	}
	return r.flush(r.w, &buf)
}

// Progress rewrites the join-mode progress line in place.
func (r *Renderer) Progress(done, total int) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s finished %s/%s\r", r.prog(),
		r.theme.Numberf("%d", done), r.theme.Numberf("%d", total))
	return r.flush(r.w, &buf)
}

// EndProgress moves past the progress line once the run is over.
func (r *Renderer) EndProgress() error {
	var buf bytes.Buffer
	buf.WriteString("\n\n")
	return r.flush(r.w, &buf)
}

// Join prints the grouped results of a join-mode run.
func (r *Renderer) Join(groups []JoinGroup, total int) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "finished with %s unique %s\n\n",
		r.theme.Numberf("%d", len(groups)), util.Pluralize(len(groups), "result", "results"))

	for _, g := range groups {
		fmt.Fprintf(&buf, "hosts (%s/%s):",
			r.theme.Numberf("%d", len(g.Hosts)), r.theme.Numberf("%d", total))
		for _, d := range g.Hosts {
			buf.WriteString(" " + r.name(d))
		}
		buf.WriteByte('\n')

		if len(g.Output) == 0 {
			buf.WriteString(r.theme.Number("- no output -"))
			buf.WriteByte('\n')
		} else {
			buf.Write(g.Output)
			if g.Output[len(g.Output)-1] != '\n' {
				buf.WriteByte('\n')
			}
		}
		if g.Truncated {
			buf.WriteString(r.theme.Number("- output truncated -"))
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return r.flush(r.w, &buf)
}

// DryRun prints the command that would run for one host.
func (r *Renderer) DryRun(d host.Descriptor, argv []string) error {
	var buf bytes.Buffer
	if !r.opts.Anonymous {
		buf.WriteString("[" + r.name(d) + "] ")
	}
	buf.WriteString(r.theme.Stdout(util.QuoteArgs(argv)))
	buf.WriteByte('\n')
	return r.flush(r.w, &buf)
}

// truncate cuts line to at most max bytes without splitting a UTF-8 sequence.
func truncate(line []byte, max int) []byte {
	if max <= 0 || len(line) <= max {
		return line
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}

// describe flattens a structured error to one line.
func describe(err error) string {
	var sErr *errors.Error
	if errors.As(err, &sErr) {
		if sErr.Cause != nil {
			return sErr.Message + ": " + sErr.Cause.Error()
		}
		return sErr.Message
	}
	return err.Error()
}
