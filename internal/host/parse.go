package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rileyhilliard/sshp/internal/errors"
)

// MaxHostnameLength mirrors _POSIX_HOST_NAME_MAX; longer lines are rejected.
const MaxHostnameLength = 255

// StdinPath selects standard input as the host list source.
const StdinPath = "-"

// ParseFile reads a host list from path, or from stdin when path is "-" or empty.
// A terminal on stdin is rejected since nothing would ever arrive.
func ParseFile(path string, stdin *os.File, isTerminal func(*os.File) bool) ([]Descriptor, error) {
	if path == "" || path == StdinPath {
		if isTerminal != nil && isTerminal(stdin) {
			return nil, errors.New(errors.ErrConfig,
				"No hosts provided on stdin",
				"Pipe a host list into sshp or pass one with -f <file>.")
		}
		return Parse(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read host file %s", path),
			"Check the path passed to -f and its permissions.")
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads one host per line. Blank lines and lines starting with '#' are
// skipped; "user@host", "host:port" and "[v6addr]:port" are understood.
func Parse(r io.Reader) ([]Descriptor, error) {
	scanner := bufio.NewScanner(r)
	var hosts []Descriptor
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !utf8.ValidString(line) {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Host file line %d is not valid UTF-8", lineNum),
				"Host files must be plain UTF-8 text.")
		}

		if len(line) >= MaxHostnameLength {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Host file line %d too long (>= %d chars)", lineNum, MaxHostnameLength),
				line)
		}

		d, err := ParseSpec(line)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Host file format error on line %d", lineNum),
				"Ensure each host is newline separated, as host, user@host or user@host:port.")
		}
		d.Index = len(hosts)
		d.Raw = raw
		hosts = append(hosts, d)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read the host list",
			"Check that the file is readable.")
	}

	return hosts, nil
}

// ParseSpec parses a single "[user@]host[:port]" specification.
func ParseSpec(spec string) (Descriptor, error) {
	d := Descriptor{Raw: spec}

	if strings.ContainsAny(spec, " \t") {
		return d, fmt.Errorf("unexpected whitespace in %q", spec)
	}

	rest := spec
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		d.User = rest[:i]
		rest = rest[i+1:]
		if d.User == "" {
			return d, fmt.Errorf("empty user in %q", spec)
		}
	}

	var portStr string
	switch {
	case strings.HasPrefix(rest, "["):
		end := strings.Index(rest, "]")
		if end < 0 {
			return d, fmt.Errorf("missing closing bracket in %q", spec)
		}
		d.Name = rest[1:end]
		remainder := rest[end+1:]
		if remainder != "" {
			if !strings.HasPrefix(remainder, ":") {
				return d, fmt.Errorf("unexpected %q after address", remainder)
			}
			portStr = remainder[1:]
		}
	case strings.Count(rest, ":") == 1:
		parts := strings.SplitN(rest, ":", 2)
		d.Name, portStr = parts[0], parts[1]
	default:
		// Bare IPv6 addresses have several colons and no port.
		d.Name = rest
	}

	if d.Name == "" {
		return d, fmt.Errorf("empty host in %q", spec)
	}
	// ssh would read the name as an option.
	if strings.HasPrefix(d.Name, "-") {
		return d, fmt.Errorf("host can't start with '-' in %q", spec)
	}

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return d, fmt.Errorf("invalid port %q: %w", portStr, err)
		}
		if port < 1 || port > 65535 {
			return d, fmt.Errorf("port %d out of range (1-65535)", port)
		}
		d.Port = port
	}

	return d, nil
}
