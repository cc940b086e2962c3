package sshutil

import "strconv"

// DefaultProgram is the client spawned for each host unless -x overrides it.
const DefaultProgram = "ssh"

// Target is the per-host part of an ssh invocation.
type Target struct {
	Host string
	User string // Overrides Options.User when set
	Port int    // Overrides Options.Port when non-zero
}

// Options are the run-wide ssh settings applied to every host.
type Options struct {
	Program  string   // Binary to exec, "ssh" when empty
	User     string   // -l
	Port     int      // -p
	Identity string   // -i
	Quiet    bool     // -q
	Extra    []string // each becomes -o <value>
}

// Argv builds the argument vector for one host:
//
//	ssh [-i id] [-l user] [-p port] [-q] [-o opt]... host remote...
//
// The remote command words are appended verbatim; ssh joins them with spaces
// for the remote shell.
func (o Options) Argv(t Target, remote []string) []string {
	prog := o.Program
	if prog == "" {
		prog = DefaultProgram
	}

	argv := []string{prog}

	if o.Identity != "" {
		argv = append(argv, "-i", o.Identity)
	}

	user := o.User
	if t.User != "" {
		user = t.User
	}
	if user != "" {
		argv = append(argv, "-l", user)
	}

	port := o.Port
	if t.Port != 0 {
		port = t.Port
	}
	if port != 0 {
		argv = append(argv, "-p", strconv.Itoa(port))
	}

	if o.Quiet {
		argv = append(argv, "-q")
	}

	for _, opt := range o.Extra {
		argv = append(argv, "-o", opt)
	}

	argv = append(argv, t.Host)
	argv = append(argv, remote...)
	return argv
}
