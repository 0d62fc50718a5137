package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/driver"
	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/runtime"
)

type runFlags struct {
	app        string
	platform   string
	entry      string
	mode       string
	budget     uint64
	iterations int
	tick       time.Duration
	tui        bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [app.wasm]",
		Short: "Call an entry point repeatedly under a per-call budget",
		Long: `Run loads the application module, optionally composes it with a platform
module whose exports are offered to it as "env" imports, and calls the entry
export the configured number of times. Every call gets a fresh budget; memory
and globals carry over between calls. An iteration count of 0 runs until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Run.App = args[0]
			}
			f.apply(cmd.Flags(), &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Run.App == "" {
				return errors.InvalidInput(errors.PhaseConfig, "no application module: pass a path or set run.app")
			}

			log, err := cfg.Log.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			setLoggers(log)

			if cfg.Run.TUI {
				if isTerminal(opts.out) {
					return runInteractive(cmd.Context(), cfg, opts.out)
				}
				log.Warn("output is not a terminal, falling back to plain output")
			}
			return runPlain(cmd.Context(), cfg, opts.out)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.app, "app", "", "application module, same as the positional argument")
	fs.StringVar(&f.platform, "platform", "", "platform module composed under the application")
	fs.StringVar(&f.entry, "entry", "", "exported function to call")
	fs.StringVar(&f.mode, "mode", "", "execution mode: compiler, interpreter or auto")
	fs.Uint64Var(&f.budget, "budget", 0, "ticks allowed per call")
	fs.IntVarP(&f.iterations, "iterations", "n", 0, "number of calls, 0 until interrupted")
	fs.DurationVar(&f.tick, "tick", 0, "epoch tick interval")
	fs.BoolVar(&f.tui, "tui", false, "show an interactive progress view")
	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("app") {
		cfg.Run.App = f.app
	}
	if fs.Changed("platform") {
		cfg.Run.Platform = f.platform
	}
	if fs.Changed("entry") {
		cfg.Run.Entry = f.entry
	}
	if fs.Changed("mode") {
		cfg.Engine.Mode = f.mode
	}
	if fs.Changed("budget") {
		cfg.Run.Budget = f.budget
	}
	if fs.Changed("iterations") {
		cfg.Run.Iterations = f.iterations
	}
	if fs.Changed("tick") {
		cfg.Run.Tick = f.tick
	}
	if fs.Changed("tui") {
		cfg.Run.TUI = f.tui
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runPlain(ctx context.Context, cfg config.Config, out io.Writer) error {
	rep, err := execute(ctx, cfg, func(line string) { fmt.Fprintln(out, line) })
	fmt.Fprintln(out, summary(cfg.Run, rep))
	return err
}

func summary(run config.RunConfig, rep driver.Report) string {
	return fmt.Sprintf("%s: %d calls in %s (%s per call, budget %d ticks)",
		run.Entry, rep.Iterations, rep.Elapsed.Round(time.Microsecond),
		rep.PerCall().Round(time.Microsecond), run.Budget)
}

// execute builds a runtime for cfg, runs the entry point and tears
// everything down again. Guest console lines go to sink.
func execute(ctx context.Context, cfg config.Config, sink func(string), opts ...driver.Option) (driver.Report, error) {
	clock := epoch.Process()
	rt, err := runtime.New(ctx, cfg.EngineConfig(clock))
	if err != nil {
		return driver.Report{}, err
	}
	defer rt.Close(ctx)

	console := hostlib.NewConsole(sink)
	defer console.Flush()
	table, err := buildTable(cfg.Host, console)
	if err != nil {
		return driver.Report{}, err
	}

	store := rt.NewStore()
	defer store.Close(ctx)
	inst, err := instantiate(ctx, rt, store, cfg.Run, table)
	if err != nil {
		return driver.Report{}, err
	}

	opts = append([]driver.Option{driver.WithTicks(cfg.Run.Budget)}, opts...)
	d, err := driver.New(inst, cfg.Run.Entry, opts...)
	if err != nil {
		return driver.Report{}, err
	}

	ticker := epoch.NewTicker(clock, cfg.Run.Tick)
	defer ticker.Stop()

	rep, err := d.Run(ctx, cfg.Run.Iterations)
	if err != nil {
		runtime.Logger().Warn("run ended with error",
			zap.Int("completed", rep.Iterations), zap.Error(err))
	}
	return rep, err
}

func instantiate(ctx context.Context, rt *runtime.Runtime, store *runtime.Store, run config.RunConfig, table *imports.Table) (*runtime.Instance, error) {
	app, err := rt.LoadFile(ctx, run.App)
	if err != nil {
		return nil, err
	}
	if run.Platform == "" {
		return store.Instantiate(ctx, app, table)
	}
	platform, err := rt.LoadFile(ctx, run.Platform)
	if err != nil {
		return nil, err
	}
	comp, err := store.Compose(ctx, platform, app, table)
	if err != nil {
		return nil, err
	}
	return comp.App, nil
}
