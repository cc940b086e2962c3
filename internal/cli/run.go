package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"vawter.tech/stopper"

	"github.com/rileyhilliard/sshp/internal/config"
	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/host"
	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/mux"
	"github.com/rileyhilliard/sshp/internal/output"
	"github.com/rileyhilliard/sshp/internal/parallel"
	"github.com/rileyhilliard/sshp/internal/parallel/logs"
	"github.com/rileyhilliard/sshp/internal/ui"
	"github.com/rileyhilliard/sshp/pkg/sshutil"
)

// signalGrace bounds how long the signal watcher gets to exit after a run.
const signalGrace = 100 * time.Millisecond

func runCommand(cmd *cobra.Command, configPath string, args []string, streams IOStreams) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	cfg.Command = args

	logger.EnableDebug(cfg.Debug)
	log := logger.Default()

	if err := config.Validate(cfg); err != nil {
		return err
	}

	mode, _ := ui.ParseColorMode(cfg.Output.Color)
	theme := ui.NewTheme(streams.Out, mode)
	renderer := output.NewRenderer(streams.Out, streams.Err, theme, output.RenderOptions{
		Anonymous:     cfg.Output.Anonymous,
		Trim:          cfg.Output.Trim,
		Silent:        cfg.Output.Silent,
		ExitCodes:     cfg.Output.ExitCodes,
		Debug:         cfg.Debug,
		MaxLineLength: cfg.Output.MaxLineLength,
	})

	hosts, err := host.ParseFile(cfg.File, streams.In, isTerminalFile)
	if err != nil {
		return err
	}

	if cfg.SSH.Identity != "" {
		if err := sshutil.ValidateIdentity(cfg.SSH.Identity); err != nil {
			return err
		}
	}

	build := commandBuilder(cfg)

	if cfg.Debug {
		if err := debugReport(streams.Err, cmd, cfg, hosts); err != nil {
			return err
		}
	}

	if cfg.DryRun {
		for _, d := range hosts {
			if err := renderer.DryRun(d, build(d)); err != nil {
				return errors.WrapWithCode(err, errors.ErrExec,
					"Can't write to stdout",
					"Check where the output is going.")
			}
		}
		return nil
	}

	return execute(cmd.Context(), cfg, hosts, build, renderer, theme, streams, log)
}

// execute runs the scheduler under signal handling and turns the result
// into the command's error.
func execute(parent context.Context, cfg *config.Config, hosts []host.Descriptor, build parallel.CommandBuilder,
	renderer *output.Renderer, theme *ui.Theme, streams IOStreams, log logger.Logger) error {
	if parent == nil {
		parent = context.Background()
	}

	opts := []parallel.Option{parallel.WithLogger(log)}

	var writer *logs.Writer
	if cfg.Output.Dir != "" {
		w, err := logs.NewWriter(cfg.Output.Dir, cfg.Output.Stderr)
		if err != nil {
			return err
		}
		writer = w
		defer writer.Close()
		log.Debug("writing per-host output to %s", writer.Dir())
		opts = append(opts, parallel.WithSink(writer))
	}

	m := mux.New(log)
	defer m.Close()

	sched := parallel.NewScheduler(schedulerConfig(cfg, streams.Out), build, m, renderer, opts...)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	watcher := watchSignals(ctx, cancel, sched)
	result, runErr := sched.Run(ctx, hosts)
	watcher.Stop(signalGrace)
	_ = watcher.Wait()

	if writer != nil && result != nil {
		if err := writer.WriteSummary(result); err != nil && runErr == nil {
			runErr = err
		}
	}

	if cfg.Debug && result != nil {
		parallel.RenderSummaryTo(streams.Err, result, theme)
	}

	if runErr != nil {
		return runErr
	}
	if code := result.ExitCode(); code != errors.ExitOK {
		return errors.NewExitError(code)
	}
	return nil
}

// watchSignals cancels the run on SIGINT/SIGTERM and asks for a status
// report on the status signal. The returned context owns the watcher.
func watchSignals(ctx context.Context, cancel context.CancelFunc, sched *parallel.Scheduler) *stopper.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, append([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, statusSignals...)...)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		signal.Stop(sigs)
	})

	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case <-sctx.Stopping():
				return nil
			case sig := <-sigs:
				if isStatusSignal(sig) {
					sched.RequestStatus()
					continue
				}
				cancel()
			}
		}
	})

	return sctx
}

func schedulerConfig(cfg *config.Config, out io.Writer) parallel.Config {
	pc := parallel.DefaultConfig()
	pc.MaxJobs = cfg.MaxJobs
	pc.Timeout = cfg.Timeout
	pc.KillGrace = cfg.KillGrace
	pc.Join = cfg.Output.Join
	pc.MaxOutput = cfg.Output.MaxOutputLength
	pc.Progress = cfg.Output.Join && ui.IsTerminal(out)

	if cfg.Output.Group {
		pc.Mode = output.Grouped
	}
	if cfg.Output.CompletionOrder {
		pc.Order = output.CompletionOrder
	}
	return pc
}

// commandBuilder returns the ssh argv builder for every host in the run.
func commandBuilder(cfg *config.Config) parallel.CommandBuilder {
	opts := sshutil.Options{
		Program:  cfg.SSH.Program,
		User:     cfg.User,
		Port:     cfg.SSH.Port,
		Identity: cfg.SSH.Identity,
		Quiet:    cfg.SSH.Quiet,
		Extra:    cfg.SSH.Options,
	}
	return func(d host.Descriptor) []string {
		return opts.Argv(sshutil.Target{Host: d.Name, User: d.User, Port: d.Port}, cfg.Command)
	}
}

// debugReport prints the resolved configuration and what ~/.ssh/config says
// about each host.
func debugReport(w io.Writer, cmd *cobra.Command, cfg *config.Config, hosts []host.Descriptor) error {
	fmt.Fprintf(w, "[sshp] flags: %s\n", changedFlags(cmd.Flags()))
	if err := config.Dump(w, cfg); err != nil {
		return err
	}

	sshCfg, err := sshutil.LoadConfig(sshutil.DefaultConfigPath())
	if err != nil {
		fmt.Fprintf(w, "[sshp] can't read %s: %v\n", sshutil.DefaultConfigPath(), err)
		return nil
	}
	if line := sshCfg.MatchLine(); line > 0 {
		fmt.Fprintf(w, "[sshp] ssh config read up to the Match block on line %d\n", line)
	}

	fmt.Fprintf(w, "[sshp] %d host(s):\n", len(hosts))
	for _, d := range hosts {
		s := sshCfg.Lookup(d.Name)
		user := d.User
		if user == "" {
			user = cfg.User
		}
		if user == "" {
			user = s.User
		}
		port := d.Port
		if port == 0 {
			port = cfg.SSH.Port
		}
		if port == 0 {
			port = s.Port
		}

		target := s.Hostname
		if user != "" {
			target = user + "@" + target
		}
		if port != 0 {
			target = fmt.Sprintf("%s port %d", target, port)
		}
		if s.IdentityFile != "" && cfg.SSH.Identity == "" {
			target += " key " + s.IdentityFile
		}
		fmt.Fprintf(w, "  %s -> %s\n", d.Name, target)
	}
	return nil
}

func isTerminalFile(f *os.File) bool {
	return f != nil && ui.IsTerminal(f)
}
