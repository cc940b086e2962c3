package output

import (
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/session"
)

// Mode selects how records become rendered output.
type Mode int

const (
	// Streaming emits each complete line as soon as it arrives.
	Streaming Mode = iota
	// Grouped holds a host's lines until it is terminal and emits them as
	// one contiguous block.
	Grouped
)

// Order selects the host-to-host order of grouped blocks.
type Order int

const (
	AdmissionOrder Order = iota
	CompletionOrder
)

// Record is one line of output from one host.
type Record struct {
	Host    host.Descriptor
	Stream  session.Stream
	Content []byte // Without the trailing newline
	Seq     uint64 // Global arrival counter, so increasing per host per stream
	Partial bool   // No trailing newline: the line was cut at MaxPendingLine or the stream ended
}

// Block is a host's complete output, released once the host is terminal.
type Block struct {
	Host    host.Descriptor
	Seq     int // Position among released blocks
	Records []Record
	Outcome session.Outcome
}

type hostState struct {
	lines   [2]lineSplitter
	records []Record
}

// Coalescer orders session output. It is not safe for concurrent use; the
// scheduler's coordinating goroutine owns it.
type Coalescer struct {
	mode  Mode
	order Order
	seq   uint64

	hosts    map[int]*hostState
	admitted []int         // host indexes in admission order, grouped admission mode
	finished map[int]Block // terminal blocks waiting for an earlier host
	released int
}

// NewCoalescer creates a coalescer for the given policy.
func NewCoalescer(mode Mode, order Order) *Coalescer {
	return &Coalescer{
		mode:     mode,
		order:    order,
		hosts:    make(map[int]*hostState),
		finished: make(map[int]Block),
	}
}

// Admit records that d was taken off the queue. Admission order is the block
// order in grouped mode unless completion order was chosen.
func (c *Coalescer) Admit(d host.Descriptor) {
	if _, ok := c.hosts[d.Index]; ok {
		return
	}
	c.hosts[d.Index] = &hostState{}
	if c.mode == Grouped && c.order == AdmissionOrder {
		c.admitted = append(c.admitted, d.Index)
	}
}

// Write splits data into lines and returns them as records. Every mode
// returns the records so they can be persisted; grouped mode also keeps
// them for the host's block.
func (c *Coalescer) Write(d host.Descriptor, stream session.Stream, data []byte) []Record {
	hs := c.state(d)

	var out []Record
	for _, ch := range hs.lines[stream].push(data) {
		out = append(out, c.record(hs, d, stream, ch.data, ch.partial))
	}
	return out
}

// Finish flushes d's partial lines and marks it terminal. It returns the
// flushed records and, in grouped mode, every block now ready for release.
func (c *Coalescer) Finish(o session.Outcome) ([]Record, []Block) {
	d := o.Host
	hs := c.state(d)

	var tail []Record
	for _, stream := range []session.Stream{session.Stdout, session.Stderr} {
		if rest, ok := hs.lines[stream].flush(); ok {
			tail = append(tail, c.record(hs, d, stream, rest, true))
		}
	}

	if c.mode != Grouped {
		delete(c.hosts, d.Index)
		return tail, nil
	}

	block := Block{Host: d, Records: hs.records, Outcome: o}
	delete(c.hosts, d.Index)

	if c.order == CompletionOrder {
		block.Seq = c.released
		c.released++
		return tail, []Block{block}
	}

	c.finished[d.Index] = block
	var ready []Block
	for len(c.admitted) > 0 {
		b, ok := c.finished[c.admitted[0]]
		if !ok {
			break
		}
		delete(c.finished, c.admitted[0])
		c.admitted = c.admitted[1:]
		b.Seq = c.released
		c.released++
		ready = append(ready, b)
	}
	return tail, ready
}

// held returns how many terminal blocks are waiting on an earlier host.
func (c *Coalescer) held() int { return len(c.finished) }

func (c *Coalescer) state(d host.Descriptor) *hostState {
	hs, ok := c.hosts[d.Index]
	if !ok {
		c.Admit(d)
		hs = c.hosts[d.Index]
	}
	return hs
}

func (c *Coalescer) record(hs *hostState, d host.Descriptor, stream session.Stream, line []byte, partial bool) Record {
	c.seq++
	r := Record{Host: d, Stream: stream, Content: line, Seq: c.seq, Partial: partial}
	if c.mode == Grouped {
		hs.records = append(hs.records, r)
	}
	return r
}
