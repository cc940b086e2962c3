package output

import (
	"bytes"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/rileyhilliard/sshp/internal/host"
)

// JoinGroup is a set of hosts that produced byte-identical output. Truncated
// means Output stops at the per-host cap; a cut host never shares a group
// with one whose output fit.
type JoinGroup struct {
	Hosts     []host.Descriptor
	Output    []byte
	Truncated bool
}

type joinEntry struct {
	host      host.Descriptor
	buf       []byte
	truncated bool
}

// Joiner collects each host's combined stdout and stderr, capped at a fixed
// size, and groups hosts whose output matches.
type Joiner struct {
	max     int
	entries map[int]*joinEntry
}

// NewJoiner keeps at most max bytes per host.
func NewJoiner(max int) *Joiner {
	return &Joiner{max: max, entries: make(map[int]*joinEntry)}
}

// Add appends raw output for d. Bytes past the cap are dropped.
func (j *Joiner) Add(d host.Descriptor, data []byte) {
	e := j.entry(d)
	room := j.max - len(e.buf)
	if room <= 0 {
		e.truncated = len(data) > 0 || e.truncated
		return
	}
	if len(data) > room {
		data = data[:room]
		e.truncated = true
	}
	e.buf = append(e.buf, data...)
}

// Include makes sure d takes part in grouping even if it printed nothing.
func (j *Joiner) Include(d host.Descriptor) {
	j.entry(d)
}

// Groups returns hosts bucketed by identical output. Groups are ordered by
// their lowest host index, hosts within a group by index.
func (j *Joiner) Groups() []JoinGroup {
	indexes := make([]int, 0, len(j.entries))
	for idx := range j.entries {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	buckets := make(map[uint64][]int) // hash -> positions in groups
	var groups []JoinGroup

	for _, idx := range indexes {
		e := j.entries[idx]
		sum := xxhash.Sum64(e.buf)

		placed := false
		for _, gi := range buckets[sum] {
			g := groups[gi]
			if g.Truncated == e.truncated && bytes.Equal(g.Output, e.buf) {
				groups[gi].Hosts = append(groups[gi].Hosts, e.host)
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		buckets[sum] = append(buckets[sum], len(groups))
		groups = append(groups, JoinGroup{
			Hosts:     []host.Descriptor{e.host},
			Output:    e.buf,
			Truncated: e.truncated,
		})
	}
	return groups
}

func (j *Joiner) entry(d host.Descriptor) *joinEntry {
	e, ok := j.entries[d.Index]
	if !ok {
		e = &joinEntry{host: d}
		j.entries[d.Index] = e
	}
	return e
}
