// Package main implements the gazestream command: it connects to an
// eye-tracking stream source, smooths the samples, and republishes them to
// NATS and WebSocket viewers while serving metrics and health.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/c360/gazestream/client"
	"github.com/c360/gazestream/config"
	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/input/tcp"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/natsclient"
	natsout "github.com/c360/gazestream/output/nats"
	wsout "github.com/c360/gazestream/output/websocket"
	"github.com/c360/gazestream/tracking"
	"golang.org/x/sync/errgroup"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "gazestream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run parses args, wires the pipeline and blocks until ctx is done or the
// source gives up.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		fs.SetOutput(stdout)
		printDetailedHelp(fs)
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting gazestream",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"source", fmt.Sprintf("%s:%d", cfg.Source.Host, cfg.Source.Port))

	a := &app{cfg: cfg, logger: logger, monitor: health.NewMonitor()}
	defer a.shutdown(cliCfg.ShutdownTimeout)

	if err := a.setup(ctx); err != nil {
		return err
	}
	return a.run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app holds the running pipeline.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	monitor *health.Monitor

	registry      *metric.MetricsRegistry
	metricsServer *metric.Server
	natsClient    *natsclient.Client
	natsOutput    *natsout.Output
	wsOutput      *wsout.Output
	client        *client.Client
	tracker       *tracking.Tracker

	givenUp     chan struct{}
	givenUpOnce sync.Once
}

func (a *app) setup(ctx context.Context) error {
	a.registry = metric.NewMetricsRegistry()
	a.givenUp = make(chan struct{})

	var (
		sinks     []client.Sink
		listeners []func(tracking.State)
	)

	if a.cfg.NATS.Enabled {
		if err := a.setupNATS(ctx); err != nil {
			return err
		}
		sinks = append(sinks, a.natsOutput)
		listeners = append(listeners, a.natsOutput.PublishState)
	}

	if a.cfg.WebSocket.Enabled {
		out, err := wsout.NewOutput(wsout.Deps{
			Config: wsout.Config{
				Port:         a.cfg.WebSocket.Port,
				Path:         a.cfg.WebSocket.Path,
				MaxStateRate: a.cfg.WebSocket.MaxStateRate,
			},
			MetricsRegistry: a.registry,
			Logger:          a.logger,
		})
		if err != nil {
			return fmt.Errorf("create websocket output: %w", err)
		}
		if err := out.Start(ctx); err != nil {
			return fmt.Errorf("start websocket output: %w", err)
		}
		a.wsOutput = out
		a.monitor.Register("websocket", out)
		listeners = append(listeners, out.PublishState)
	}

	onUpdate := func(s tracking.State) {
		for _, fn := range listeners {
			fn(s)
		}
	}

	if err := a.setupPipeline(sinks, onUpdate); err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path,
			a.registry, a.monitor.Handler(appName))
	}

	return nil
}

func (a *app) setupNATS(ctx context.Context) error {
	nc, err := natsclient.NewClient(strings.Join(a.cfg.NATS.URLs, ","),
		natsclient.WithName(appName),
		natsclient.WithLogger(a.logger.With("component", "nats")),
		natsclient.WithMetrics(a.registry),
		natsclient.WithMaxReconnects(a.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(a.cfg.NATS.ReconnectWait),
		natsclient.WithCredentials(a.cfg.NATS.Username, a.cfg.NATS.Password),
		natsclient.WithToken(a.cfg.NATS.Token),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.logger.Info("Connecting to NATS", "urls", a.cfg.NATS.URLs)
	if err := nc.Connect(connCtx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.natsClient = nc
	a.monitor.Register("nats", nc)

	out, err := natsout.NewOutput(natsout.Deps{
		Config: natsout.Config{
			Subject:      a.cfg.NATS.Subject,
			StateSubject: a.cfg.NATS.StateSubject,
		},
		Publisher:       nc,
		MetricsRegistry: a.registry,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("create NATS output: %w", err)
	}
	a.natsOutput = out
	a.monitor.Register("nats_output", out)
	return nil
}

// setupPipeline builds the client and tracker. In pull mode the tracker
// drains the client queue on its own ticker; in push mode every record is
// applied on the network goroutine.
func (a *app) setupPipeline(sinks []client.Sink, onUpdate func(tracking.State)) error {
	delivery := client.Delivery(a.cfg.Consumer.Delivery)

	trackerDeps := tracking.Deps{
		Config:          a.cfg.TrackerConfig(),
		MetricsRegistry: a.registry,
		Logger:          a.logger.With("component", "tracker"),
		OnUpdate:        onUpdate,
	}
	clientDeps := client.Deps{
		Connection:      a.cfg.TCPConfig(),
		Delivery:        delivery,
		Sinks:           sinks,
		MetricsRegistry: a.registry,
		Logger:          a.logger.With("component", "client"),
		OnStateChange:   a.stateChanged,
	}

	var err error
	if delivery == client.DeliveryPush {
		if a.tracker, err = tracking.NewTracker(trackerDeps); err != nil {
			return fmt.Errorf("create tracker: %w", err)
		}
		tracker := a.tracker
		clientDeps.OnRecord = func(r message.Record) { tracker.Apply(r) }
		if a.client, err = client.New(clientDeps); err != nil {
			return fmt.Errorf("create client: %w", err)
		}
	} else {
		if a.client, err = client.New(clientDeps); err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		trackerDeps.Source = a.client
		if a.tracker, err = tracking.NewTracker(trackerDeps); err != nil {
			return fmt.Errorf("create tracker: %w", err)
		}
	}

	a.monitor.Register("source", a.client)
	return nil
}

func (a *app) stateChanged(from, to tcp.State) {
	if to == tcp.StateGivenUp {
		a.logger.Error("Stream source gave up", "from", from.String())
		a.givenUpOnce.Do(func() { close(a.givenUp) })
	}
}

func (a *app) run(ctx context.Context) error {
	if !a.client.Connect(a.cfg.Source.Host, a.cfg.Source.Port) {
		return fmt.Errorf("connect to %s:%d refused", a.cfg.Source.Host, a.cfg.Source.Port)
	}

	g, gctx := errgroup.WithContext(ctx)

	if client.Delivery(a.cfg.Consumer.Delivery) != client.DeliveryPush {
		g.Go(func() error { return a.tracker.Run(gctx) })
	}

	if a.metricsServer != nil {
		g.Go(func() error {
			return a.metricsServer.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.metricsServer.Stop()
		})
		a.logger.Info("Metrics server started", "address", a.metricsServer.Address())
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-a.givenUp:
			return errors.WrapFatal(errors.ErrReconnectExhausted, "gazestream", "run", "stream source")
		}
	})

	a.logger.Info("gazestream started")
	<-gctx.Done()
	if ctx.Err() != nil {
		a.logger.Info("Received shutdown signal")
	}

	return g.Wait()
}

// shutdown releases everything setup created, in reverse order.
func (a *app) shutdown(timeout time.Duration) {
	if a.client != nil {
		a.client.Dispose()
	}
	if a.wsOutput != nil {
		if err := a.wsOutput.Stop(timeout); err != nil {
			a.logger.Warn("WebSocket output stop failed", "error", err)
		}
	}
	if a.natsClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.natsClient.Close(ctx); err != nil {
			a.logger.Warn("NATS close failed", "error", err)
		}
		cancel()
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			a.logger.Warn("Metrics server stop failed", "error", err)
		}
	}
	a.logger.Info("gazestream shutdown complete")
}
