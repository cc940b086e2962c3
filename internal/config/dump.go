package config

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/sshp/internal/errors"
)

// dumpView puts the durations back in as readable strings.
type dumpView struct {
	Config    `yaml:",inline"`
	Timeout   string `yaml:"timeout"`
	KillGrace string `yaml:"kill_grace"`
	Source    string `yaml:"source,omitempty"`
}

// Dump writes cfg to w as YAML, the same shape the config file accepts.
func Dump(w io.Writer, cfg *Config) error {
	view := dumpView{
		Config:    *cfg,
		Timeout:   cfg.Timeout.String(),
		KillGrace: cfg.KillGrace.String(),
		Source:    cfg.Source,
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Can't encode configuration",
			"This is unexpected - please report it.")
	}
	return enc.Close()
}
