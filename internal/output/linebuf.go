package output

import "bytes"

// MaxPendingLine caps how much of an unterminated line is held per stream.
// Past it the pending bytes go out as a Partial record and the line carries
// on in the next one.
const MaxPendingLine = 64 << 10

// chunk is one piece of output handed back by the splitter. A partial chunk
// had no newline: either the line continues or the stream ended.
type chunk struct {
	data    []byte
	partial bool
}

// lineSplitter buffers a byte stream and hands back complete lines.
type lineSplitter struct {
	buf     []byte
	scanned int // leading bytes of buf already known to hold no newline
	limit   int // MaxPendingLine when zero
}

// push appends p and returns every complete line, newline stripped, plus a
// partial chunk when the pending line outgrows the limit.
func (l *lineSplitter) push(p []byte) []chunk {
	l.buf = append(l.buf, p...)

	var out []chunk
	for {
		idx := bytes.IndexByte(l.buf[l.scanned:], '\n')
		if idx < 0 {
			break
		}
		idx += l.scanned
		out = append(out, chunk{data: bytes.Clone(l.buf[:idx])})
		l.buf = l.buf[idx+1:]
		l.scanned = 0
	}
	l.scanned = len(l.buf)

	if len(l.buf) >= l.max() {
		out = append(out, chunk{data: bytes.Clone(l.buf), partial: true})
		l.buf = l.buf[:0]
		l.scanned = 0
	}

	// Reclaim the backing array once it has been fully consumed.
	if len(l.buf) == 0 {
		l.buf = nil
	}
	return out
}

// flush returns the trailing partial line, if any.
func (l *lineSplitter) flush() ([]byte, bool) {
	l.scanned = 0
	if len(l.buf) == 0 {
		return nil, false
	}
	rest := l.buf
	l.buf = nil
	return rest, true
}

// pending is the number of bytes held for an unterminated line.
func (l *lineSplitter) pending() int { return len(l.buf) }

func (l *lineSplitter) max() int {
	if l.limit > 0 {
		return l.limit
	}
	return MaxPendingLine
}
