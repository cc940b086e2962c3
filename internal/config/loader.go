package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rileyhilliard/sshp/internal/errors"
)

const (
	// EnvPrefix is prepended to every environment override, e.g. SSHP_MAX_JOBS.
	EnvPrefix = "SSHP"
	// GlobalConfigDir is the directory for the user config.
	GlobalConfigDir = ".config/sshp"
	// GlobalConfigFile is the user config file name.
	GlobalConfigFile = "config.yaml"
)

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"file":              "file",
	"max-jobs":          "max_jobs",
	"user":              "user",
	"timeout":           "timeout",
	"group":             "output.group",
	"completion-order":  "output.completion_order",
	"join":              "output.join",
	"silent":            "output.silent",
	"anonymous":         "output.anonymous",
	"exit-codes":        "output.exit_codes",
	"trim":              "output.trim",
	"color":             "output.color",
	"max-line-length":   "output.max_line_length",
	"max-output-length": "output.max_output_length",
	"output-dir":        "output.dir",
	"output-stderr":     "output.stderr",
	"exec":              "ssh.program",
	"identity":          "ssh.identity",
	"port":              "ssh.port",
	"quiet":             "ssh.quiet",
	"option":            "ssh.options",
	"dry-run":           "dry_run",
	"debug":             "debug",
}

// Load resolves the run configuration. Precedence, lowest first: defaults,
// the config file, SSHP_ environment variables, then flags that were set.
// flags may be nil.
func Load(explicit string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file "+path,
				"Check the file is valid YAML")
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the value types in "+describeSource(path))
	}
	cfg.Source = path

	if cfg.Timeout, err = ParseTimeout(v.GetString("timeout")); err != nil {
		return nil, err
	}
	if cfg.KillGrace, err = parseDuration("kill_grace", v.GetString("kill_grace")); err != nil {
		return nil, err
	}

	// viper splits array flags as CSV, which would break options like
	// "ProxyCommand=ssh -W %h:%p,bastion".
	if flags != nil {
		if f := flags.Lookup("option"); f != nil && f.Changed {
			if opts, err := flags.GetStringArray("option"); err == nil {
				cfg.SSH.Options = opts
			}
		}
	}

	return cfg, nil
}

// Find returns the config file to read: the explicit path, which must
// exist, else ~/.config/sshp/config.yaml when present, else "".
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", nil
	}
	global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return "", nil
}

// maxTimeoutSeconds is the largest timeout a time.Duration can hold.
var maxTimeoutSeconds = time.Duration(math.MaxInt64).Seconds()

// ParseTimeout accepts whole or fractional seconds ("30", "1.5") or a Go
// duration ("90s", "2m"). Empty means no timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > maxTimeoutSeconds {
			return 0, errors.New(errors.ErrConfig,
				"Invalid timeout '"+s+"'",
				"Use a finite number of seconds (30) or a duration like 90s or 2m.")
		}
		if secs < 0 {
			return 0, negative("timeout", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return parseDuration("timeout", s)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid "+key+" '"+s+"'",
			"Use seconds (30) or a duration like 90s or 2m.")
	}
	if d < 0 {
		return 0, negative(key, s)
	}
	return d, nil
}

func negative(key, s string) error {
	return errors.New(errors.ErrConfig,
		"The "+key+" can't be negative (got "+s+")",
		"Use 0 to disable it.")
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("file", "")
	v.SetDefault("max_jobs", d.MaxJobs)
	v.SetDefault("user", "")
	v.SetDefault("timeout", "0")
	v.SetDefault("kill_grace", d.KillGrace.String())
	v.SetDefault("output.group", false)
	v.SetDefault("output.completion_order", false)
	v.SetDefault("output.join", false)
	v.SetDefault("output.silent", false)
	v.SetDefault("output.anonymous", false)
	v.SetDefault("output.exit_codes", false)
	v.SetDefault("output.trim", false)
	v.SetDefault("output.color", d.Output.Color)
	v.SetDefault("output.max_line_length", d.Output.MaxLineLength)
	v.SetDefault("output.max_output_length", d.Output.MaxOutputLength)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.stderr", false)
	v.SetDefault("ssh.program", d.SSH.Program)
	v.SetDefault("ssh.identity", "")
	v.SetDefault("ssh.port", 0)
	v.SetDefault("ssh.quiet", false)
	v.SetDefault("ssh.options", []string{})
	v.SetDefault("dry_run", false)
	v.SetDefault("debug", false)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Can't bind flag --"+name,
				"This is unexpected - please report it.")
		}
	}
	return nil
}

func describeSource(path string) string {
	if path == "" {
		return "your SSHP_ environment variables"
	}
	return path
}
