// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/config"
	"github.com/bureau-foundation/splicebridge/lib/export"
	"github.com/bureau-foundation/splicebridge/lib/logfile"
	"github.com/bureau-foundation/splicebridge/lib/metrics"
	"github.com/bureau-foundation/splicebridge/lib/opcua"
	"github.com/bureau-foundation/splicebridge/lib/pairing"
	"github.com/bureau-foundation/splicebridge/lib/process"
	"github.com/bureau-foundation/splicebridge/lib/resync"
	"github.com/bureau-foundation/splicebridge/lib/sqlitepool"
	"github.com/bureau-foundation/splicebridge/lib/supervisor"
	"github.com/bureau-foundation/splicebridge/lib/tag"
	"github.com/bureau-foundation/splicebridge/lib/version"
)

// stopTimeout bounds closing the session after the run ends.
const stopTimeout = 5 * time.Second

func main() {
	options, err := parseCommandLine(os.Args[1:], os.Stderr)
	if err != nil {
		process.Exit(err)
	}
	if options.showVersion {
		fmt.Printf("splice-bridge %s\n", version.Info())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	process.Exit(run(ctx, options, os.Stderr))
}

// commandLine is the parsed CLI.
type commandLine struct {
	configPath     string
	endpoint       string
	autoAccept     bool
	timeoutSeconds int
	showVersion    bool
}

// parseCommandLine parses args. Help, parse errors, and more than one
// positional argument print usage to stderr and return an
// ExitInvalidCommandLine error.
func parseCommandLine(args []string, stderr io.Writer) (commandLine, error) {
	var options commandLine
	var help bool

	flagSet := pflag.NewFlagSet("splice-bridge", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVarP(&help, "help", "h", false, "show this help and exit")
	flagSet.BoolVarP(&options.autoAccept, "autoaccept", "a", false, "accept untrusted server certificates")
	flagSet.IntVarP(&options.timeoutSeconds, "timeout", "t", 0, "stop after this many `seconds` (0 runs until interrupted)")
	flagSet.StringVarP(&options.configPath, "config", "c", "", "configuration file (default $SPLICE_BRIDGE_CONFIG or ./appsettings.json)")
	flagSet.BoolVar(&options.showVersion, "version", false, "print the version and exit")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
			printUsage(stderr, flagSet)
		}
		return commandLine{}, &process.ExitError{Code: process.ExitInvalidCommandLine}
	}
	if help {
		printUsage(stderr, flagSet)
		return commandLine{}, &process.ExitError{Code: process.ExitInvalidCommandLine}
	}
	positional := flagSet.Args()
	if len(positional) > 1 {
		fmt.Fprintf(stderr, "error: unexpected argument: %s\n", positional[1])
		printUsage(stderr, flagSet)
		return commandLine{}, &process.ExitError{Code: process.ExitInvalidCommandLine}
	}
	if len(positional) == 1 {
		options.endpoint = positional[0]
	}
	if options.timeoutSeconds < 0 {
		fmt.Fprintf(stderr, "error: --timeout must not be negative\n")
		printUsage(stderr, flagSet)
		return commandLine{}, &process.ExitError{Code: process.ExitInvalidCommandLine}
	}
	return options, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `splice-bridge pairs OPC UA splice tags and exports them to a database and/or an HTTP API.

Usage:
  splice-bridge [OPTIONS] [ENDPOINTURL]

ENDPOINTURL overrides opc.url from the configuration file.

Options:
`)
	fmt.Fprint(w, flagSet.FlagUsages())
}

// run loads the configuration, wires the pipeline and holds it until
// ctx ends or the run timeout elapses. The returned error carries the
// exit status.
func run(ctx context.Context, options commandLine, stderr io.Writer) error {
	path, err := config.ResolvePath(options.configPath)
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}
	settings, err := config.LoadFile(path)
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}
	applyCommandLine(settings, options)
	if err := settings.Validate(); err != nil {
		return process.Errorf(process.ExitLoadConfig, "invalid configuration %s: %w", path, err)
	}

	definitions, err := settings.TagDefinitions()
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}
	tags, err := tag.New(definitions)
	if errors.Is(err, tag.ErrNoTags) {
		return process.Errorf(process.ExitNoTags, "%s: %w", path, err)
	}
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}
	location, err := settings.Location()
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}

	realClock := clock.Real()
	logManager, err := logfile.Open(logfile.Config{
		Enabled:    settings.Log.Enabled,
		Directory:  settings.Log.Folder,
		SplitHours: settings.Log.SplitHours,
		Retention:  settings.LogRetention(),
		Clock:      realClock,
		Stderr:     stderr,
	})
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "opening log: %w", err)
	}
	logger := logfile.NewLogger(logManager, stderr, slog.LevelInfo)
	logger.Info("splice-bridge starting",
		"version", version.Info(),
		"config", path,
		"endpoint", settings.OPC.URL,
		"tags", tags.Len(),
		"log", logManager.Path(),
	)

	registry := metrics.NewRegistry()

	sinks, closeSinks, err := buildSinks(settings, realClock, logger)
	if err != nil {
		return process.Errorf(process.ExitLoadConfig, "%w", err)
	}
	defer closeSinks()

	fanOut, err := export.NewFanOut(export.FanOutConfig{
		Sinks:       sinks,
		Workers:     settings.Export.Workers,
		QueueSize:   settings.Export.QueueSize,
		SinkTimeout: settings.SinkTimeout(),
		Logger:      logger.With("component", "export"),
		Registerer:  registry,
	})
	if err != nil {
		return err
	}
	engine, err := pairing.New(pairing.Config{
		StationID:  settings.OPC.StationID,
		Dispatcher: fanOut,
		Clock:      realClock,
		Logger:     logger.With("component", "pairing"),
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	scheduler, err := resync.New(resync.Config{
		Interval:    settings.ResyncInterval(),
		Source:      engine,
		Redeliverer: fanOut,
		Clock:       realClock,
		Logger:      logger.With("component", "resync"),
	})
	if err != nil {
		return err
	}

	var readings readingExporter
	if settings.Export.Readings {
		readings = fanOut
	}
	handler := newBridge(bridgeConfig{
		Registry:   tags,
		Engine:     engine,
		Readings:   readings,
		Resync:     scheduler,
		Location:   location,
		Logger:     logger.With("component", "bridge"),
		Registerer: registry,
	})

	transport, err := opcua.New(opcua.Config{
		ApplicationName: settings.OPC.ApplicationName,
		Clock:           realClock,
		Logger:          logger.With("component", "opcua"),
	})
	if err != nil {
		return err
	}
	items := make([]supervisor.MonitoredItem, 0, tags.Len())
	for _, definition := range tags.Definitions() {
		items = append(items, supervisor.MonitoredItem{
			DisplayName: definition.DisplayName,
			NodeID:      definition.NodeID,
		})
	}
	connection, err := supervisor.New(supervisor.Config{
		Endpoint:  settings.OPC.URL,
		Transport: transport,
		Policy: supervisor.CertificatePolicy{
			AutoAccept: settings.OPC.AutoAccept,
			Logger:     logger.With("component", "certificate"),
		},
		Subscription: supervisor.Subscription{
			PublishingInterval: settings.PublishingInterval(),
			Items:              items,
			Handler:            handler.handle,
		},
		ReconnectPeriod: settings.ReconnectPeriod(),
		Clock:           realClock,
		Logger:          logger.With("component", "supervisor"),
		Registerer:      registry,
	})
	if err != nil {
		return err
	}

	var metricsServer *metrics.Server
	metricsLogger := logger.With("component", "metrics")
	if settings.Metrics.Address != "" {
		metricsServer, err = metrics.NewServer(metrics.ServerConfig{
			Address:  settings.Metrics.Address,
			Gatherer: registry,
			Logger:   metricsLogger,
		})
		if err != nil {
			return process.Errorf(process.ExitLoadConfig, "%w", err)
		}
	}

	runCtx := ctx
	if timeout := settings.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return fanOut.Run(groupCtx) })
	group.Go(func() error { return scheduler.Run(groupCtx) })
	if metricsServer != nil {
		group.Go(func() error { return serveMetrics(groupCtx, metricsServer, metricsLogger) })
	}
	group.Go(func() error { return connection.Run(groupCtx) })

	runErr := group.Wait()
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		logger.Info("run timeout elapsed")
	case ctx.Err() != nil:
		logger.Info("interrupted")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	code := connection.Stop(stopCtx)
	if runErr != nil {
		logger.Error("splice-bridge stopped", "stage", connection.Stage().String(), "error", runErr)
		return runErr
	}
	logger.Info("splice-bridge stopped", "status", code.String())
	if code != process.ExitOK {
		return &process.ExitError{Code: code}
	}
	return nil
}

// serveMetrics runs server until ctx ends. A listen failure is logged
// and leaves the bridge running without /metrics.
func serveMetrics(ctx context.Context, server *metrics.Server, logger *slog.Logger) error {
	if err := server.Serve(ctx); err != nil {
		logger.Error("metrics server failed, continuing without metrics", "error", err)
	}
	return nil
}

// applyCommandLine lets the CLI override the file.
func applyCommandLine(settings *config.Config, options commandLine) {
	if options.endpoint != "" {
		settings.OPC.URL = options.endpoint
	}
	if options.autoAccept {
		settings.OPC.AutoAccept = true
	}
	if options.timeoutSeconds > 0 {
		settings.RunTimeoutSeconds = options.timeoutSeconds
	}
}

// buildSinks constructs the enabled sinks. The returned function
// releases their resources.
func buildSinks(settings *config.Config, clk clock.Clock, logger *slog.Logger) ([]export.Sink, func(), error) {
	var sinks []export.Sink
	closers := []func(){}
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	if settings.Export.DB.Enabled {
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:   settings.Export.DB.ConnectionString,
			Logger: logger.With("component", "sqlite"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		closers = append(closers, func() {
			if err := pool.Close(); err != nil {
				logger.Warn("closing store", "error", err)
			}
		})
		store, err := export.NewStoreSink(export.StoreConfig{
			Pool:       pool,
			ClearEvery: settings.ClearEvery(),
			Clock:      clk,
			Logger:     logger.With("component", "store"),
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
	}

	if settings.Export.API.Enabled {
		api, err := export.NewHTTPSink(export.HTTPConfig{
			TargetURL: settings.Export.API.TargetURL,
			Logger:    logger.With("component", "api"),
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, api)
	}

	if len(sinks) == 0 {
		logger.Warn("no export sinks enabled; pairs are logged only")
	}
	return sinks, closeAll, nil
}
