// Package host parses host lists into ordered host descriptors.
package host

import (
	"net"
	"strconv"
	"strings"
)

// Descriptor identifies one target. It is immutable once parsed; Index is the
// position in the input sequence and is the host's identity for ordering.
type Descriptor struct {
	Index int    // Position in the parsed host list
	Name  string // Hostname, IP address, or ssh_config alias
	User  string // Per-host user override (from user@host), may be empty
	Port  int    // Per-host port override (from host:port), 0 if unset
	Raw   string // The line as it appeared in the host list
}

// Target returns the host part as handed to ssh, with the user override
// prepended when present.
func (d Descriptor) Target() string {
	if d.User != "" {
		return d.User + "@" + d.Name
	}
	return d.Name
}

// Address returns host:port, or just the host when no port override is set.
func (d Descriptor) Address() string {
	if d.Port == 0 {
		return d.Name
	}
	return net.JoinHostPort(d.Name, strconv.Itoa(d.Port))
}

// DisplayName returns the name used in rendered output. With trim, a
// fully-qualified name is cut at its first dot; IP addresses are left alone.
func (d Descriptor) DisplayName(trim bool) string {
	if !trim || net.ParseIP(d.Name) != nil {
		return d.Name
	}
	if i := strings.IndexByte(d.Name, '.'); i > 0 {
		return d.Name[:i]
	}
	return d.Name
}
