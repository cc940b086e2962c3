package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// HostSettings is what ~/.ssh/config says about one host alias.
type HostSettings struct {
	Alias        string // The name given on the command line
	Hostname     string // The HostName value (actual host to connect to)
	User         string // The User value
	Port         int    // The Port value, 0 if unset
	IdentityFile string // The IdentityFile value, ~ expanded
}

// Config is a parsed ssh client config used to show what ssh will actually
// connect to. It never influences the argv handed to ssh; ssh reads its own
// config.
type Config struct {
	cfg       *ssh_config.Config
	path      string
	matchLine int
}

// DefaultConfigPath returns ~/.ssh/config.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

// LoadConfig parses the ssh config at path. A missing file yields an empty
// config rather than an error.
func LoadConfig(path string) (*Config, error) {
	content, matchLine, err := preprocessSSHConfig(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{path: path}, nil
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	return &Config{cfg: cfg, path: path, matchLine: matchLine}, nil
}

// MatchLine returns the line of the first Match directive, after which the
// config was not read. Zero when the whole file was parsed.
func (c *Config) MatchLine() int {
	return c.matchLine
}

// Lookup resolves an alias against the config. Fields the config does not set
// are left empty, except Hostname which falls back to the alias itself.
func (c *Config) Lookup(alias string) HostSettings {
	s := HostSettings{Alias: alias, Hostname: alias}
	if c == nil || c.cfg == nil {
		return s
	}

	if hostname, _ := c.cfg.Get(alias, "HostName"); hostname != "" {
		s.Hostname = strings.ReplaceAll(hostname, "%h", alias)
	}

	if user, _ := c.cfg.Get(alias, "User"); user != "" {
		s.User = user
	}

	if port, _ := c.cfg.Get(alias, "Port"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			s.Port = p
		}
	}

	if identity, _ := c.cfg.Get(alias, "IdentityFile"); identity != "" {
		s.IdentityFile = expandPath(identity)
	}

	return s
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
