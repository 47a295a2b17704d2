package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/bulkship/internal/app"
	"github.com/bft-labs/bulkship/internal/cliconfig"
	"github.com/bft-labs/bulkship/internal/spool"
	"github.com/bft-labs/bulkship/internal/telemetry"
	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/observe"
	"github.com/bft-labs/bulkship/pkg/transport"
)

const helpDescription = `
Ship NDJSON documents to a bulk indexing API in batches.

Highlights:
  - Batches by action count and by time, with a bounded number of requests in flight.
  - Reads files, stdin, or a spool directory that is watched for new files.
  - Optionally re-submits actions the service rejected.
  - Configure via file (TOML or YAML), .env, BULKSHIP_* environment, or flags.
`

var exampleUsage = strings.TrimSpace(`
  bulkship --index logs events.ndjson
  cat docs.ndjson | bulkship --index users --id-field uid --operation update
  bulkship --format actions --concurrency 4 actions.ndjson
  bulkship --watch --spool-dir /var/spool/bulkship --metrics-addr :9100
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return bulk.Version
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	bootLog := log.NewZerologAdapter(os.Stderr, log.LevelInfo)

	root := &cobra.Command{
		Use:           "bulkship [files...]",
		Short:         "Ship NDJSON documents to a bulk indexing API",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Variables from the env file only fill gaps in the real environment.
			if err := cliconfig.LoadEnvFile(cfg.EnvFile); err != nil {
				return err
			}
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := cliconfig.NewLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			if z, ok := logger.(*log.ZapAdapter); ok {
				defer func() { _ = z.Sync() }()
			}
			logger.Info("configuration", log.Any("config", cfg.Redacted()))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, args, logger)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file, .toml or .yaml (default: $HOME/.bulkship/config.toml)")
	f.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "load environment variables from this .env file")

	f.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base URL of the index service")
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "bulk endpoint path (default "+bulk.DefaultEndpoint+")")
	f.StringVar(&cfg.Index, "index", cfg.Index, "target index for actions that do not name one")
	f.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	f.StringVar(&cfg.Username, "username", cfg.Username, "basic auth user")
	f.StringVar(&cfg.Password, "password", cfg.Password, "basic auth password")

	f.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "maximum bulk requests in flight")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "flush pending actions this often (0 disables)")
	f.IntVar(&cfg.MaxActions, "max-actions", cfg.MaxActions, "flush once this many actions are pending (0 disables)")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP client timeout")
	f.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "per-request deadline (0 disables)")
	f.BoolVar(&cfg.Requeue, "requeue", cfg.Requeue, "re-submit actions the service reports as failed")

	f.StringVar(&cfg.Format, "format", cfg.Format, "input format: docs or actions")
	f.StringVar(&cfg.Operation, "operation", cfg.Operation, "operation for docs input: index, create, update or delete")
	f.StringVar(&cfg.IDField, "id-field", cfg.IDField, "top-level document field used as _id")

	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "keep running and ship files dropped into --spool-dir")
	f.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory watched for *.ndjson files")

	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve /metrics and /healthz on this address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")

	if err := root.Execute(); err != nil {
		bootLog.Error("bulkship", log.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliconfig.Config, args []string, logger log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observe.NewMetricsLifecycle(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	tracker := app.NewDeliveryTracker()
	hooks := []bulk.Lifecycle{observe.NewLoggingLifecycle(logger), metrics, tracker}
	if cfg.Requeue {
		hooks = append(hooks, bulk.NewRequeueLifecycle(logger))
	}

	tr := transport.NewHTTPTransport(&http.Client{Timeout: cfg.HTTPTimeout}, transport.Config{
		BaseURL:  cfg.ServiceURL,
		APIKey:   cfg.AuthKey,
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger)

	op := bulk.New(tr,
		bulk.WithConcurrency(cfg.Concurrency),
		bulk.WithInterval(cfg.Interval),
		bulk.WithMaxActions(cfg.MaxActions),
		bulk.WithEndpoint(cfg.Endpoint),
		bulk.WithDispatchTimeout(cfg.DispatchTimeout),
		bulk.WithLifecycle(bulk.Chain(hooks...)),
		bulk.WithLogger(logger),
	)
	logger.Info("operator created", log.String("operator", op.Name()))

	var decoder app.LineDecoder = app.DocsDecoder{
		Operation: cfg.Operation,
		Index:     cfg.Index,
		IDField:   cfg.IDField,
	}
	if cfg.Format == cliconfig.FormatActions {
		decoder = app.ActionsDecoder{Index: cfg.Index}
	}

	runner := app.NewRunner(op, app.NewShipper(op, decoder, logger), tracker, logger, app.DefaultDrainTimeout)

	if cfg.MetricsAddr != "" {
		health := func() error {
			if cfg.Watch && runner.State() != app.StateRunning {
				return fmt.Errorf("runner %s", strings.ToLower(runner.State().String()))
			}
			return nil
		}
		srv := telemetry.NewServer(cfg.MetricsAddr, reg, health, logger)
		if err := srv.Start(); err != nil {
			_ = op.Close()
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", log.Err(err))
			}
		}()
	}

	if !cfg.Watch {
		st, err := runner.ShipAll(ctx, args, os.Stdin)
		logger.Info("done",
			log.Int("lines", st.Lines),
			log.Int("actions", st.Actions),
			log.Int("skipped", st.Skipped),
		)
		return err
	}

	if len(args) > 0 {
		logger.Warn("input files are ignored in watch mode", log.Int("files", len(args)))
	}

	w := spool.New(cfg.SpoolDir, spool.WithLogger(logger))
	if err := runner.Start(ctx, w); err != nil {
		_ = op.Close()
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("received signal, stopping")
	case <-runner.Done():
		logger.Error("spool watcher exited")
	}

	if err := runner.Stop(); err != nil && !errors.Is(err, app.ErrNotRunning) {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}
