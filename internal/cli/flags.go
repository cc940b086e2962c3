package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rileyhilliard/sshp/internal/config"
	"github.com/rileyhilliard/sshp/internal/errors"
)

// addRunFlags registers every run flag on cmd. Names must match
// config.FlagKeys so viper can bind them.
func addRunFlags(cmd *cobra.Command, configPath *string) {
	f := cmd.Flags()

	f.StringP("file", "f", "", "host list file, one host per line (default: stdin)")
	f.IntP("max-jobs", "m", config.DefaultMaxJobs, "maximum number of concurrent ssh processes")
	f.StringP("user", "u", "", "default remote user")
	f.StringP("timeout", "t", "0", "per-host timeout in seconds or as a duration (0 = none)")

	f.BoolP("group", "g", false, "print each host's output as one block when it finishes")
	f.Bool("completion-order", false, "with -g, print blocks in the order hosts finish")
	f.BoolP("join", "j", false, "collect output and print hosts grouped by identical output")
	f.BoolP("silent", "s", false, "don't print host output")
	f.BoolP("anonymous", "a", false, "don't prefix output with host names")
	f.BoolP("exit-codes", "e", false, "print each host's exit code when it finishes")
	f.Bool("trim", false, "show host names up to the first dot")
	f.StringP("color", "c", config.DefaultColor, "color output: auto, on, off")
	f.Int("max-line-length", config.DefaultMaxLineLength, "truncate printed lines longer than this")
	f.Int("max-output-length", config.DefaultMaxOutputLength, "bytes of output kept per host in join mode")

	f.StringP("output-dir", "o", "", "write each host's output to a file in this directory")
	f.Bool("output-stderr", false, "include stderr in the per-host output files")

	f.StringP("exec", "x", config.DefaultProgram, "program to run instead of ssh")
	f.StringP("identity", "i", "", "ssh identity file")
	f.IntP("port", "p", 0, "ssh port")
	f.BoolP("quiet", "q", false, "pass -q to ssh")
	f.StringArray("option", nil, "ssh -o option, may be repeated")

	f.BoolP("dry-run", "n", false, "print the ssh commands without running them")
	f.BoolP("debug", "d", false, "print configuration, spawns and timing")

	f.StringVar(configPath, "config", "", "config file (default: ~/.config/sshp/config.yaml)")

	// Everything after the first positional is the remote command.
	f.SetInterspersed(false)
	f.SortFlags = false
}

// flagError turns pflag parse failures into usage errors.
func flagError(_ *cobra.Command, err error) error {
	return errors.WrapWithCode(err, errors.ErrConfig,
		"Invalid arguments",
		"Run 'sshp --help' for usage.")
}

// changedFlags lists the flags set on the command line, for --debug.
func changedFlags(fs *pflag.FlagSet) string {
	var names []string
	fs.Visit(func(f *pflag.Flag) {
		names = append(names, "--"+f.Name)
	})
	return strings.Join(names, " ")
}
