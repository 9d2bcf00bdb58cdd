package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"signalRelay/config"
	"signalRelay/internal/adapters/binanceclient"
	"signalRelay/internal/adapters/grpchealth"
	"signalRelay/internal/adapters/httpapi"
	"signalRelay/internal/adapters/logger"
	"signalRelay/internal/adapters/sinks"
	"signalRelay/internal/app"
	"signalRelay/internal/feed"
	"signalRelay/internal/ports"
	"signalRelay/internal/relay"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel, "signal-relay")
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Wire and run the relay until SIGINT/SIGTERM
	fx.New(
		fx.Supply(cfg, appLogger),
		fx.Provide(
			func(l *logger.ZapLogger) ports.Logger { return l },
			newBinanceClient,
			newStreamDialer,
			newHub,
			newBoard,
			newSinks,
			newHealthServer,
			newRelayService,
			newHTTPServer,
		),
		fx.WithLogger(func(l *logger.ZapLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap()}
		}),
		fx.StopTimeout(15*time.Second),
		fx.Invoke(registerLifecycle),
	).Run()

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func newBinanceClient(cfg *config.Config, l ports.Logger) (*binanceclient.Client, error) {
	c, err := binanceclient.New(binanceclient.Config{
		BaseURL:     cfg.BinanceRESTURL,
		HTTPTimeout: cfg.BinanceHTTPTimeout,
		Logger:      l,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	return c, nil
}

func newStreamDialer(cfg *config.Config, l ports.Logger) (*binanceclient.Dialer, error) {
	d, err := binanceclient.NewDialer(binanceclient.DialerConfig{
		BaseURL:     cfg.BinanceWSURL,
		ReadTimeout: cfg.StreamReadTimeout,
		Logger:      l,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance stream dialer: %w", err)
	}
	return d, nil
}

func newHub(cfg *config.Config, dialer *binanceclient.Dialer, l ports.Logger) (*relay.Hub, error) {
	newBackoff := func() feed.Backoff { return feed.NewBackoff(cfg.ReconnectDelay, cfg.ReconnectMaxDelay) }
	return relay.NewHub(relay.Config{
		NewFeed:   app.NewFeedFactory(dialer, binanceclient.ParseKlineFrame, newBackoff, l),
		Logger:    l,
		QueueSize: cfg.SubscriberQueueSize,
	})
}

func newBoard(cfg *config.Config, client *binanceclient.Client, l ports.Logger) (*app.Board, error) {
	return app.NewBoard(client, l, app.Query{
		Symbol:   cfg.Stream.Symbol,
		Interval: cfg.Stream.Interval.String(),
		Limit:    cfg.BatchLimit,
	})
}

// newSinks connects the configured brokers. A broker that cannot be reached at
// startup fails the process rather than silently dropping the relay.
func newSinks(cfg *config.Config, l ports.Logger) ([]ports.EventSink, error) {
	var out []ports.EventSink
	if cfg.NATSURL != "" {
		s, err := sinks.NewNATSSink(sinks.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Logger:        l,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.RedisAddr != "" {
		s, err := sinks.NewRedisSink(context.Background(), sinks.RedisConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.RedisChannelPrefix,
			Logger:        l,
		})
		if err != nil {
			for _, prev := range out {
				_ = prev.Close()
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// newHealthServer returns nil when GRPC_HEALTH_ADDR is unset.
func newHealthServer(cfg *config.Config, l ports.Logger) (*grpchealth.Server, error) {
	if cfg.GRPCHealthAddr == "" {
		return nil, nil
	}
	return grpchealth.New(l)
}

func newRelayService(cfg *config.Config, hub *relay.Hub, board *app.Board, sinkList []ports.EventSink, health *grpchealth.Server, l ports.Logger) (*app.RelayService, error) {
	c := app.Config{
		Stream: cfg.Stream,
		Hub:    hub,
		Board:  board,
		Sinks:  sinkList,
		Logger: l,
	}
	if health != nil {
		c.Health = health
	}
	return app.NewRelayService(c)
}

func newHTTPServer(cfg *config.Config, svc *app.RelayService, l ports.Logger) (*httpapi.Server, error) {
	return httpapi.NewServer(httpapi.Config{
		Addr:   fmt.Sprintf(":%d", cfg.HTTPPort),
		Relay:  svc,
		Logger: l,
	})
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, svc *app.RelayService, srv *httpapi.Server, health *grpchealth.Server, l ports.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.Start(ctx); err != nil {
				return err
			}
			l.Info(ctx, "Relay service started", map[string]interface{}{"stream": cfg.Stream.String()})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	if health != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return health.ListenAndServe(cfg.GRPCHealthAddr)
			},
			OnStop: func(ctx context.Context) error {
				return health.Stop(ctx)
			},
		})
	}
}
