package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Defaults shared by the loader and the flag definitions.
const (
	DefaultMaxJobs         = 50
	DefaultMaxLineLength   = 1024
	DefaultMaxOutputLength = 8192
	DefaultKillGrace       = 2 * time.Second
	DefaultColor           = "auto"
	DefaultProgram         = "ssh"
)

// Config is the resolved configuration for one run. Every field can come
// from the config file, an SSHP_ environment variable or a flag.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// File is the host list path; empty or "-" reads stdin.
	File    string `yaml:"file" mapstructure:"file"`
	MaxJobs int    `yaml:"max_jobs" mapstructure:"max_jobs"`
	User    string `yaml:"user" mapstructure:"user"`

	// Timeout is per host; zero means none.
	Timeout time.Duration `yaml:"-" mapstructure:"-"`
	// KillGrace is how long a terminated session gets before SIGKILL.
	KillGrace time.Duration `yaml:"-" mapstructure:"-"`

	Output OutputConfig `yaml:"output" mapstructure:"output"`
	SSH    SSHConfig    `yaml:"ssh" mapstructure:"ssh"`

	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
	Debug  bool `yaml:"debug" mapstructure:"debug"`

	// Command is the remote command, taken from the positional arguments.
	Command []string `yaml:"command" mapstructure:"-"`
	// Source is the config file that was read, if any.
	Source string `yaml:"-" mapstructure:"-"`
}

// OutputConfig controls rendering and per-host files.
type OutputConfig struct {
	Group           bool   `yaml:"group" mapstructure:"group"`
	CompletionOrder bool   `yaml:"completion_order" mapstructure:"completion_order"`
	Join            bool   `yaml:"join" mapstructure:"join"`
	Silent          bool   `yaml:"silent" mapstructure:"silent"`
	Anonymous       bool   `yaml:"anonymous" mapstructure:"anonymous"`
	ExitCodes       bool   `yaml:"exit_codes" mapstructure:"exit_codes"`
	Trim            bool   `yaml:"trim" mapstructure:"trim"`
	Color           string `yaml:"color" mapstructure:"color"`
	MaxLineLength   int    `yaml:"max_line_length" mapstructure:"max_line_length"`
	MaxOutputLength int    `yaml:"max_output_length" mapstructure:"max_output_length"`

	// Dir receives one file per host when set.
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Stderr bool   `yaml:"stderr" mapstructure:"stderr"`
}

// SSHConfig is what gets passed to each ssh invocation.
type SSHConfig struct {
	Program  string   `yaml:"program" mapstructure:"program"`
	Identity string   `yaml:"identity" mapstructure:"identity"`
	Port     int      `yaml:"port" mapstructure:"port"`
	Quiet    bool     `yaml:"quiet" mapstructure:"quiet"`
	Options  []string `yaml:"options" mapstructure:"options"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:   CurrentConfigVersion,
		MaxJobs:   DefaultMaxJobs,
		KillGrace: DefaultKillGrace,
		Output: OutputConfig{
			Color:           DefaultColor,
			MaxLineLength:   DefaultMaxLineLength,
			MaxOutputLength: DefaultMaxOutputLength,
		},
		SSH: SSHConfig{
			Program: DefaultProgram,
		},
	}
}
