// Command cleandns is CleanDNS's entrypoint: a DNS listener driven by a
// declarative plugin graph, plus a small offline tool for compiling
// geosite bundles. CLI parsing uses github.com/spf13/cobra.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"

	"github.com/cleandns/cleandns/config"
	"github.com/cleandns/cleandns/geositecompiler"
	"github.com/cleandns/cleandns/listener"
	"github.com/cleandns/cleandns/statsapi"
)

// logLevels maps the config file's `log.level` string to a zlog level.
// Unrecognized or empty values fall back to LevelInfo.
var logLevels = map[string]zlog.Level{
	"debug": zlog.LevelDebug,
	"info":  zlog.LevelInfo,
	"warn":  zlog.LevelWarn,
	"error": zlog.LevelError,
}

func initLogging(level string) {
	lvl, ok := logLevels[level]
	if !ok {
		lvl = zlog.LevelInfo
	}
	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())
	logger.SetLevel(lvl)
	zlog.SetDefault(logger)
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if isUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// isUsageError reports whether err marks a bad invocation (a flag that
// fails to parse, or a missing required flag) rather than a failure of
// the command's own work, so main can tell the two apart (exit 2 versus
// exit 1).
func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

type usageError struct{ error }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cleandns",
		Short:         "CleanDNS: a plugin-graph DNS resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.AddCommand(newRunCmd(), newMakeGeositeCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the DNS listener from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return usageError{fmt.Errorf("run: -c/--config is required")}
			}
			return runServer(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml")
	return cmd
}

func newMakeGeositeCmd() *cobra.Command {
	var srcDir, out string

	cmd := &cobra.Command{
		Use:   "make-geosite",
		Short: "Compile a v2fly geosite source tree into a geosite bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if srcDir == "" || out == "" {
				return usageError{fmt.Errorf("make-geosite: -s/--src and -o/--out are required")}
			}
			return geositecompiler.Compile(srcDir, out)
		},
	}
	cmd.Flags().StringVarP(&srcDir, "src", "s", "", "source directory (one file per category)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output geosite bundle path")
	return cmd
}

func runServer(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cleandns: %w", err)
	}
	initLogging(cfg.Log.Level)

	graph, agg, err := cfg.BuildGraph()
	if err != nil {
		return fmt.Errorf("cleandns: %w", err)
	}

	l := listener.New(cfg.Bind, graph.Entry(), agg)

	apiAddr := fmt.Sprintf(":%d", cfg.APIPort)
	apiServer := &http.Server{Addr: apiAddr, Handler: statsapi.NewHandler(agg).Mux()}

	errs := make(chan error, 2)
	go func() {
		if err := l.ListenAndServe(); err != nil {
			errs <- fmt.Errorf("listener: %w", err)
		}
	}()
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("statsapi: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		_ = sig
	case err := <-errs:
		_ = l.Shutdown()
		_ = apiServer.Close()
		return err
	}

	_ = apiServer.Close()
	return l.Shutdown()
}
