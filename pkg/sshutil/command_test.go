package sshutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsArgv(t *testing.T) {
	remote := []string{"uname", "-a"}

	tests := []struct {
		name   string
		opts   Options
		target Target
		want   []string
	}{
		{
			name:   "bare",
			target: Target{Host: "web1"},
			want:   []string{"ssh", "web1", "uname", "-a"},
		},
		{
			name:   "all run-wide options",
			opts:   Options{User: "deploy", Port: 2222, Identity: "/k/id", Quiet: true, Extra: []string{"BatchMode=yes", "ConnectTimeout=5"}},
			target: Target{Host: "web1"},
			want: []string{"ssh", "-i", "/k/id", "-l", "deploy", "-p", "2222", "-q",
				"-o", "BatchMode=yes", "-o", "ConnectTimeout=5", "web1", "uname", "-a"},
		},
		{
			name:   "per-host overrides win",
			opts:   Options{User: "deploy", Port: 2222},
			target: Target{Host: "db1", User: "postgres", Port: 22},
			want:   []string{"ssh", "-l", "postgres", "-p", "22", "db1", "uname", "-a"},
		},
		{
			name:   "custom program",
			opts:   Options{Program: "/usr/local/bin/fake-ssh"},
			target: Target{Host: "web1"},
			want:   []string{"/usr/local/bin/fake-ssh", "web1", "uname", "-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Argv(tt.target, remote))
		})
	}
}

func TestOptionsArgv_RemoteIsNotReparsed(t *testing.T) {
	argv := Options{}.Argv(Target{Host: "h"}, []string{"echo", "-n", "a b"})
	assert.Equal(t, []string{"ssh", "h", "echo", "-n", "a b"}, argv)
}
