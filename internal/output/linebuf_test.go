package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkStrings(cs []chunk) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c.data)
		if c.partial {
			out[i] += "…"
		}
	}
	return out
}

func TestLineSplitter(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		pushes  []string
		want    []string
		pending int
	}{
		{name: "complete lines", pushes: []string{"a\nb\n"}, want: []string{"a", "b"}},
		{name: "line across pushes", pushes: []string{"he", "ll", "o\n"}, want: []string{"hello"}},
		{name: "empty lines", pushes: []string{"\n\n"}, want: []string{"", ""}},
		{name: "held partial", pushes: []string{"a\nbc"}, want: []string{"a"}, pending: 2},
		{name: "cut at limit", limit: 4, pushes: []string{"ab", "cdef"}, want: []string{"abcdef…"}},
		{name: "cut after newline", limit: 4, pushes: []string{"x\nabcd"}, want: []string{"x", "abcd…"}},
		{name: "newline after cut", limit: 4, pushes: []string{"abcd", "e\n"}, want: []string{"abcd…", "e"}},
		{name: "under limit kept", limit: 4, pushes: []string{"ab", "c"}, want: []string{}, pending: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &lineSplitter{limit: tt.limit}
			got := []string{}
			for _, p := range tt.pushes {
				got = append(got, chunkStrings(l.push([]byte(p)))...)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.pending, l.pending())
		})
	}
}

func TestLineSplitter_ScanResumesAfterPartial(t *testing.T) {
	l := &lineSplitter{limit: 1 << 20}

	assert.Empty(t, l.push(bytes.Repeat([]byte("z"), 1000)))
	assert.Equal(t, 1000, l.scanned)

	out := l.push([]byte("z\nrest"))
	require.Len(t, out, 1)
	assert.Len(t, out[0].data, 1001)
	assert.Equal(t, 4, l.scanned)

	rest, ok := l.flush()
	assert.True(t, ok)
	assert.Equal(t, "rest", string(rest))
	assert.Zero(t, l.scanned)
	assert.Zero(t, l.pending())
}
