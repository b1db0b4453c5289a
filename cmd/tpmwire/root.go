package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tpmwire/go-tpmwire/internal/config"
	"github.com/tpmwire/go-tpmwire/internal/logging"
	"github.com/tpmwire/go-tpmwire/tpm2"
	"github.com/tpmwire/go-tpmwire/tpm2/metrics"
	"github.com/tpmwire/go-tpmwire/tpm2/transport"
)

// annotationNoTPM marks commands that run without a TPM connection.
const annotationNoTPM = "tpmwire/no-tpm"

// app is the state shared by the subcommands of one invocation.
type app struct {
	configPath string
	timeout    time.Duration
	overrides  config.Config

	cfg     config.Config
	log     *zap.Logger
	tpm     transport.TPMCloser
	d       *tpm2.Dispatcher
	metrics *http.Server
}

// run executes the command line args and releases whatever the subcommand
// opened, even when it failed.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	a := &app{}
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	err := cmd.ExecuteContext(ctx)
	if cleanup := a.teardown(); cleanup != nil {
		if err == nil {
			return cleanup
		}
		return multierror.Append(err, cleanup)
	}
	return err
}

func (a *app) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tpmwire",
		Short:         "Talk to a TPM 2.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoTPM] != "" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to a TOML configuration file.")
	f.DurationVar(&a.timeout, "timeout", time.Minute, "Deadline for the whole command.")
	f.StringVar(&a.overrides.Transport.Kind, "transport", "", "Transport kind: device, socket, tcp or simulator.")
	f.StringVar(&a.overrides.Transport.Device, "tpm-path", "", "Path to the TPM character device.")
	f.StringVar(&a.overrides.Transport.Socket, "socket", "", "Path to a TPM emulator's Unix socket.")
	f.StringVar(&a.overrides.Transport.CommandAddress, "cmd-addr", "", "Command port of a TCP TPM simulator.")
	f.StringVar(&a.overrides.Transport.PlatformAddress, "plat-addr", "", "Platform port of a TCP TPM simulator.")
	f.Uint64Var(&a.overrides.Retry.MaxRetries, "retries", 0, "Retries after a TPM warning.")
	f.StringVar(&a.overrides.Log.Level, "log-level", "", "Log level: debug, info, warn or error.")
	f.BoolVar(&a.overrides.Log.Development, "dev-log", false, "Human-readable log output.")
	f.StringVar(&a.overrides.Metrics.Listen, "metrics-listen", "", "Serve Prometheus metrics on this address.")

	cmd.AddCommand(
		newPCRReadCmd(a),
		newPCRExtendCmd(a),
		newGetRandomCmd(a),
		newCapsCmd(a),
		newRCCmd(),
		newMonitorCmd(a),
	)
	return cmd
}

// loadConfig reads the configuration file, if any, and applies the flags
// the user set.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return config.Config{}, err
		}
	}
	f := cmd.Flags()
	o := a.overrides
	if f.Changed("transport") {
		cfg.Transport.Kind = o.Transport.Kind
	}
	if f.Changed("tpm-path") {
		cfg.Transport.Device = o.Transport.Device
	}
	if f.Changed("socket") {
		cfg.Transport.Socket = o.Transport.Socket
	}
	if f.Changed("cmd-addr") {
		cfg.Transport.CommandAddress = o.Transport.CommandAddress
	}
	if f.Changed("plat-addr") {
		cfg.Transport.PlatformAddress = o.Transport.PlatformAddress
	}
	if f.Changed("retries") {
		cfg.Retry.MaxRetries = o.Retry.MaxRetries
	}
	if f.Changed("log-level") {
		cfg.Log.Level = o.Log.Level
	}
	if f.Changed("dev-log") {
		cfg.Log.Development = o.Log.Development
	}
	if f.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.Metrics.Listen
	}
	return cfg, cfg.Validate()
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.log, err = logging.New(cfg.Log); err != nil {
		return err
	}

	opts := []tpm2.DispatcherOption{
		tpm2.WithLogger(a.log.Named("dispatch")),
		tpm2.WithRetry(cfg.Retry),
	}
	if cfg.Metrics.Listen != "" {
		collector := metrics.NewCollector()
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector, collectors.NewGoCollector())
		a.serveMetrics(reg)
		opts = append(opts, tpm2.WithObserver(collector))
	}

	if a.tpm, err = openTransport(cfg.Transport, a.log.Named("transport")); err != nil {
		return fmt.Errorf("can't open TPM: %w", err)
	}
	a.log.Debug("opened TPM", zap.String("transport", cfg.Transport.Kind))
	a.d = tpm2.NewDispatcher(a.tpm, opts...)
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.metrics = &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func(srv *http.Server, log *zap.Logger) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}(a.metrics, a.log)
	a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Listen))
}

func (a *app) teardown() error {
	var result *multierror.Error
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("stopping metrics server: %w", err))
		}
	}
	if a.tpm != nil {
		if err := a.tpm.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to close connection to TPM: %w", err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return result.ErrorOrNil()
}

// context returns the deadline-bound context for a subcommand.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}
