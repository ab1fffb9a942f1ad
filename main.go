package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/broker"
	"github.com/luki/farmdash/internal/chart"
	"github.com/luki/farmdash/internal/config"
	"github.com/luki/farmdash/internal/logger"
	"github.com/luki/farmdash/internal/metrics"
	"github.com/luki/farmdash/internal/monitor"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/refresh"
	"github.com/luki/farmdash/internal/server"
	"github.com/luki/farmdash/internal/source"
	"github.com/luki/farmdash/internal/store"
	"github.com/luki/farmdash/internal/viewer"
)

func main() {
	mode := "monitor"
	var args []string
	if len(os.Args) > 1 {
		mode, args = strings.ToLower(os.Args[1]), os.Args[2:]
	}

	switch mode {
	case "help", "-h", "--help":
		printHelp()
		return
	case "monitor", "history", "serve", "once", "simulate":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", mode)
		printHelp()
		os.Exit(2)
	}

	if err := run(mode, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(mode string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The TUIs own the terminal; everything else logs to stderr unless told
	// otherwise.
	headless := mode == "serve" || mode == "once" || mode == "simulate"
	if headless && os.Getenv("LOG_OUTPUT") == "" {
		cfg.Logging.Output = "stderr"
	}
	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "history":
		return viewer.Run(cfg.DataDir, cfg.Thresholds)
	case "simulate":
		return runSimulate(ctx, cfg, args, log)
	}

	fetcher, cleanup, err := buildFetcher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New(cfg.SourceLabel())
	opts := refresh.Options{
		Timeout:    cfg.Refresh.Timeout,
		Limit:      cfg.Refresh.FetchLimit,
		Thresholds: cfg.Thresholds,
		Metrics:    m,
		Log:        logger.Component(log, "refresh"),
	}

	var recordDir string
	if cfg.Record && mode != "once" {
		rec, err := store.New(cfg.DataDir)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts.Sinks = append(opts.Sinks, recorder(rec, logger.Component(log, "recorder")))
		recordDir = rec.Dir()
	}

	r := refresh.New(fetcher, opts)

	switch mode {
	case "serve":
		srv := server.New(cfg.Server, m, logger.Component(log, "server"))
		return srv.Run(ctx, r, cfg.Refresh.Interval)
	case "once":
		return printOnce(os.Stdout, r.Once(ctx), args)
	}

	return monitor.Run(ctx, r, monitor.Options{
		Interval:    cfg.Refresh.Interval,
		Thresholds:  cfg.Thresholds,
		HistoryRows: cfg.Refresh.HistoryRows,
		RecordDir:   recordDir,
	})
}

// buildFetcher connects the configured source. cleanup releases whatever
// client it opened.
func buildFetcher(ctx context.Context, cfg *config.Config, log zerolog.Logger) (source.Fetcher, func(), error) {
	slog := logger.Component(log, "source")
	limit := cfg.Refresh.FetchLimit
	noop := func() {}

	switch cfg.Source {
	case config.SourceDynamoDB:
		f, err := source.NewDynamoDBFromConfig(ctx, cfg.DynamoDB, limit, slog)
		return f, noop, err
	case config.SourceHTTP:
		return source.NewHTTP(cfg.HTTP, slog), noop, nil
	case config.SourceInflux:
		client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		return source.NewInflux(client, cfg.Influx, limit, slog), client.Close, nil
	case config.SourceMongo:
		f, client, err := source.ConnectMongo(ctx, cfg.Mongo, limit, slog)
		if err != nil {
			return nil, noop, err
		}
		return f, func() { client.Disconnect(context.Background()) }, nil
	case config.SourceMQTT:
		client, err := broker.Connect(ctx, cfg.MQTT, broker.ClientID(cfg.MQTT, "farmdash"), logger.Component(log, "broker"))
		if err != nil {
			return nil, noop, err
		}
		f := source.NewMQTT(client, cfg.MQTT.Topic, limit, slog)
		if err := f.Start(ctx); err != nil {
			broker.Close(client)
			return nil, noop, err
		}
		return f, func() { broker.Close(client) }, nil
	}
	return nil, noop, fmt.Errorf("unknown source %q", cfg.Source)
}

func recorder(rec *store.DiskStore, log zerolog.Logger) refresh.Sink {
	return refresh.SinkFunc(func(s refresh.Snapshot) {
		if s.State != refresh.Ready {
			return
		}
		n, err := rec.Write(s.Readings, s.Time)
		if err != nil {
			log.Error().Err(err).Msg("record failed")
			return
		}
		if n > 0 {
			log.Debug().Int("rows", n).Msg("recorded")
		}
	})
}

// printOnce writes one snapshot as text, or as JSON with --json.
func printOnce(w io.Writer, s refresh.Snapshot, args []string) error {
	for _, a := range args {
		if a == "--json" || a == "-j" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(server.NewSnapshotView(s))
		}
	}

	fmt.Fprintf(w, "Source:  %s\n", s.Source)
	fmt.Fprintf(w, "State:   %s (%d readings, %d skipped, %s)\n", s.State, len(s.Readings), s.Skipped, s.Took.Round(time.Millisecond))
	switch s.State {
	case refresh.Error:
		fmt.Fprintln(w, monitor.ErrorText(s))
		return s.Err
	case refresh.NoData:
		fmt.Fprintln(w, monitor.Placeholder)
		return nil
	}

	l := s.Latest
	fmt.Fprintf(w, "Latest:  %s @ %s\n", l.DeviceID, l.RawTimestamp)
	for _, m := range reading.Metrics {
		fmt.Fprintf(w, "  %-14s %s\n", m.Label(), chart.FormatValue(m, l.Value(m)))
	}
	if s.Alerts.Irrigation {
		fmt.Fprintln(w, "Irrigation Needed! Start irrigation immediately.")
	} else {
		fmt.Fprintln(w, "No irrigation needed")
	}
	for _, a := range s.Alerts.Active {
		fmt.Fprintf(w, "  ! %s\n", a.Message)
	}
	return nil
}

func printHelp() {
	fmt.Println("Usage: farmdash [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  monitor              Live dashboard (default)")
	fmt.Println("  history              Browse recorded readings")
	fmt.Println("  serve                HTTP API, WebSocket stream and /metrics")
	fmt.Println("  once [--json]        Fetch once and print the result")
	fmt.Println("  simulate [dur] [ivl] Publish synthetic readings over MQTT")
	fmt.Println("  help                 Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from the environment and an optional .env file.")
	fmt.Println("FARMDASH_SOURCE selects dynamodb, http, influx, mongo or mqtt.")
}
