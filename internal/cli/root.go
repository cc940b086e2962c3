package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sshp/internal/errors"
)

// IOStreams are the standard streams a run reads and writes.
type IOStreams struct {
	In  *os.File // host list when no -f is given
	Out io.Writer
	Err io.Writer
}

// newRootCmd builds the sshp command bound to streams.
func newRootCmd(streams IOStreams) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sshp [flags] command [args...]",
		Short: "Run a command on many hosts over ssh in parallel",
		Long: `Run a command on many hosts at once over ssh.

Hosts are read one per line from a file (-f) or stdin. Up to --max-jobs ssh
processes run at a time; output is printed as it arrives, grouped per host
(-g), or joined by identical output (-j).

Exit status: 0 all hosts succeeded, 1 at least one host failed, 2 usage or
config error, 3 internal failure, 4 interrupted.

Examples:
  sshp -f hosts.txt uptime
  cat hosts.txt | sshp -m 10 -g 'df -h /'
  sshp -f hosts.txt -j -t 30 cat /etc/os-release`,
		Version:       formatVersion(version),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, configPath, args, streams)
		},
	}

	cmd.SetVersionTemplate(versionText())
	cmd.SetIn(streams.In)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)
	cmd.SetFlagErrorFunc(flagError)
	cmd.CompletionOptions.DisableDefaultCmd = true

	addRunFlags(cmd, &configPath)
	return cmd
}

// Execute runs sshp with the process arguments and exits.
func Execute() {
	os.Exit(run(os.Args[1:], IOStreams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}))
}

// run executes one invocation and returns the process exit code.
func run(args []string, streams IOStreams) int {
	cmd := newRootCmd(streams)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return errors.ExitOK
	}

	// Host failures were already reported line by line.
	if _, ok := errors.GetExitCode(err); !ok {
		var sErr *errors.Error
		if errors.As(err, &sErr) {
			fmt.Fprint(streams.Err, sErr.Error())
		} else {
			fmt.Fprintf(streams.Err, "sshp: %v\n", err)
		}
	}
	return errors.ExitCode(err)
}
