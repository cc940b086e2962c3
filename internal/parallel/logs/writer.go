// Package logs persists per-host output under a directory, one file per
// host, plus a summary.json describing the run.
package logs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/output"
	"github.com/rileyhilliard/sshp/internal/parallel"
	"github.com/rileyhilliard/sshp/internal/session"
	"github.com/rileyhilliard/sshp/internal/util"
)

// SummaryFile is the name of the run summary inside the output directory.
const SummaryFile = "summary.json"

// Writer writes each host's output to <dir>/<host>. Files are staged and
// renamed into place when the host finishes, so a file that exists is
// always complete.
type Writer struct {
	dir           string
	includeStderr bool
	started       time.Time

	pending map[int]*pendingHost
	names   map[int]string  // host index -> file name
	taken   map[string]bool // file names already handed out
	closed  bool
}

type pendingHost struct {
	file *renameio.PendingFile
	path string
}

// SummaryJSON is the structure written to summary.json.
type SummaryJSON struct {
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    string           `json:"duration"`
	Total       int              `json:"total"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Signaled    int              `json:"signaled"`
	TimedOut    int              `json:"timed_out"`
	SpawnFailed int              `json:"spawn_failed"`
	Hosts       []HostResultJSON `json:"hosts"`
}

// HostResultJSON is the per-host result in summary.json.
type HostResultJSON struct {
	Host       string    `json:"host"`
	Index      int       `json:"index"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exit_code"`
	Signal     string    `json:"signal,omitempty"`
	Duration   string    `json:"duration"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	OutputFile string    `json:"output_file,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewWriter creates dir if needed. With includeStderr, stderr lines are
// written to the host file too, interleaved in arrival order.
func NewWriter(dir string, includeStderr bool) (*Writer, error) {
	if len(dir) > 0 && dir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Can't determine home directory",
				"Check your environment configuration.")
		}
		dir = filepath.Join(home, dir[1:])
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't create output directory "+dir,
			"Check your permissions for "+filepath.Dir(dir)+".")
	}

	return &Writer{
		dir:           dir,
		includeStderr: includeStderr,
		started:       time.Now(),
		pending:       make(map[int]*pendingHost),
		names:         make(map[int]string),
		taken:         map[string]bool{SummaryFile: true},
	}, nil
}

// Write appends records to their hosts' files.
func (w *Writer) Write(recs []output.Record) error {
	if w.closed {
		return errors.New(errors.ErrExec,
			"Output writer is closed",
			"This is unexpected - create a new Writer.")
	}

	for _, r := range recs {
		if r.Stream == session.Stderr && !w.includeStderr {
			continue
		}
		ph, err := w.open(r.Host)
		if err != nil {
			return err
		}
		line := r.Content
		if !r.Partial {
			line = append(line[:len(line):len(line)], '\n')
		}
		if _, err := ph.file.Write(line); err != nil {
			return errors.WrapWithCode(err, errors.ErrExec,
				"Can't write output for "+r.Host.Name+" to "+ph.path,
				"Check free space and permissions.")
		}
	}
	return nil
}

// Finish moves a host's file into place. Hosts that printed nothing still
// get an empty file.
func (w *Writer) Finish(o session.Outcome) error {
	if w.closed {
		return nil
	}
	ph, err := w.open(o.Host)
	if err != nil {
		return err
	}
	delete(w.pending, o.Host.Index)

	if err := ph.file.CloseAtomicallyReplace(); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Can't save output file "+ph.path,
			"Check free space and permissions.")
	}
	return nil
}

// WriteSummary writes summary.json with all results.
func (w *Writer) WriteSummary(result *parallel.Result) error {
	if result == nil {
		return nil
	}

	end := time.Now()
	summary := SummaryJSON{
		StartTime:   w.started,
		EndTime:     end,
		Duration:    result.Duration.String(),
		Total:       result.Total,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Signaled:    result.Signaled,
		TimedOut:    result.TimedOut,
		SpawnFailed: result.SpawnFailed,
		Hosts:       make([]HostResultJSON, len(result.PerHost)),
	}

	for i, o := range result.PerHost {
		hr := HostResultJSON{
			Host:       o.Host.Name,
			Index:      o.Host.Index,
			State:      o.State.String(),
			ExitCode:   o.Code(),
			Duration:   o.Duration().String(),
			StartTime:  o.StartedAt,
			EndTime:    o.EndedAt,
			OutputFile: w.names[o.Host.Index],
		}
		if o.Signal != 0 {
			hr.Signal = o.Signal.String()
		}
		if o.Err != nil {
			hr.Error = o.Err.Error()
		}
		summary.Hosts[i] = hr
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Can't encode summary JSON",
			"This is unexpected - check the result data.")
	}

	summaryPath := filepath.Join(w.dir, SummaryFile)
	if err := renameio.WriteFile(summaryPath, append(data, '\n'), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Can't write summary file "+summaryPath,
			"Check your permissions.")
	}

	return nil
}

// Dir returns the output directory with ~ expanded.
func (w *Writer) Dir() string {
	return w.dir
}

// fileName returns the file name assigned to d, if it has one yet.
func (w *Writer) fileName(d host.Descriptor) (string, bool) {
	name, ok := w.names[d.Index]
	return name, ok
}

// Close discards files of hosts that never finished, such as after an
// interrupt, so no partial file is left under a host's name.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for idx, ph := range w.pending {
		_ = ph.file.Cleanup()
		delete(w.pending, idx)
	}
	return nil
}

func (w *Writer) open(d host.Descriptor) (*pendingHost, error) {
	if ph, ok := w.pending[d.Index]; ok {
		return ph, nil
	}

	name := w.assignName(d)
	path := filepath.Join(w.dir, name)
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0644))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Can't create output file %s", path),
			"Check your permissions for "+w.dir+".")
	}

	ph := &pendingHost{file: f, path: path}
	w.pending[d.Index] = ph
	return ph, nil
}

// assignName derives a file name from the host name. A host listed more
// than once gets a numeric suffix so no file is shared.
func (w *Writer) assignName(d host.Descriptor) string {
	if name, ok := w.names[d.Index]; ok {
		return name
	}

	base := util.SanitizeFilename(d.Name)
	name := base
	for n := 2; w.taken[name]; n++ {
		name = base + "." + strconv.Itoa(n)
	}

	w.taken[name] = true
	w.names[d.Index] = name
	return name
}
