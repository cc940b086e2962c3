package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "simple", want: "'simple'"},
		{in: "with space", want: "'with space'"},
		{in: "it's", want: `'it'\''s'`},
		{in: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellQuote(tt.in))
		})
	}
}

func TestQuoteArgs(t *testing.T) {
	got := QuoteArgs([]string{"ssh", "-o", "BatchMode=yes", "deploy@web1", "uname -a", ""})
	assert.Equal(t, "ssh -o BatchMode=yes deploy@web1 'uname -a' ''", got)
}
