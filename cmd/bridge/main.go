// Command bridge runs wasm guests under a cooperative execution budget.
//
//	bridge run app.wasm --platform platform.wasm --entry run --budget 1000 --iterations 60
//	bridge inspect app.wasm --output yaml
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/driver"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.LookupEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	lookup     config.LookupFunc
	out        io.Writer
}

func newRootCmd(out io.Writer, lookup config.LookupFunc) *cobra.Command {
	opts := &rootOptions{lookup: lookup, out: out}
	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Run wasm guests under a cooperative execution budget",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.AddCommand(newRunCmd(opts), newInspectCmd(opts))
	return root
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath, o.lookup)
}

func setLoggers(l *zap.Logger) {
	engine.SetLogger(l.Named("engine"))
	linker.SetLogger(l.Named("linker"))
	runtime.SetLogger(l.Named("runtime"))
	driver.SetLogger(l.Named("driver"))
	imports.SetLogger(l.Named("imports"))
	hostlib.SetLogger(l.Named("hostlib"))
}
