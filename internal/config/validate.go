package config

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/ui"
)

// Validate checks a resolved config before any host runs. Every failure is
// an ErrConfig, which exits 2.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but sshp only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade sshp or lower the version in "+describeSource(cfg.Source)+".")
	}

	if len(cfg.Command) == 0 || strings.TrimSpace(strings.Join(cfg.Command, "")) == "" {
		return errors.New(errors.ErrConfig,
			"No command given",
			"Usage: sshp [flags] command [args...]")
	}

	if cfg.MaxJobs <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("max jobs must be at least 1 (got %d)", cfg.MaxJobs),
			"Pass -m 1 or higher.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return err
	}

	if cfg.Timeout < 0 {
		return negative("timeout", cfg.Timeout.String())
	}
	if cfg.KillGrace < 0 {
		return negative("kill_grace", cfg.KillGrace.String())
	}

	if cfg.SSH.Port < 0 || cfg.SSH.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Port %d is out of range", cfg.SSH.Port),
			"Use a port between 1 and 65535.")
	}
	if strings.TrimSpace(cfg.SSH.Program) == "" {
		return errors.New(errors.ErrConfig,
			"The ssh program can't be empty",
			"Drop -x to use ssh, or name a program.")
	}

	return nil
}

func validateOutput(out OutputConfig) error {
	if _, err := ui.ParseColorMode(out.Color); err != nil {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Invalid color mode '%s'", out.Color),
			"Use one of: auto, on, off.")
	}

	if out.MaxLineLength <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("max line length must be at least 1 (got %d)", out.MaxLineLength),
			"Pass --max-line-length 1 or higher.")
	}
	if out.MaxOutputLength <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("max output length must be at least 1 (got %d)", out.MaxOutputLength),
			"Pass --max-output-length 1 or higher.")
	}

	exclusive := []struct {
		a, b   string
		ok     bool
		reason string
	}{
		{"-g", "-j", !(out.Group && out.Join), "grouping and joining output"},
		{"-a", "-j", !(out.Anonymous && out.Join), "join mode always names hosts"},
		{"-j", "-s", !(out.Join && out.Silent), "join mode exists to print output"},
	}
	for _, x := range exclusive {
		if !x.ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s and %s can't be used together (%s)", x.a, x.b, x.reason),
				"Drop one of them.")
		}
	}

	if out.Stderr && out.Dir == "" {
		return errors.New(errors.ErrConfig,
			"--output-stderr only applies with an output directory",
			"Add -o <dir>.")
	}

	return nil
}
