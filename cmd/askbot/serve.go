package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/askbot/internal/channel"
	"github.com/memohai/askbot/internal/channel/inbound"
	"github.com/memohai/askbot/internal/config"
	"github.com/memohai/askbot/internal/dispatch"
	"github.com/memohai/askbot/internal/handlers"
	"github.com/memohai/askbot/internal/healthcheck"
	channelchecker "github.com/memohai/askbot/internal/healthcheck/checkers/channel"
	memorychecker "github.com/memohai/askbot/internal/healthcheck/checkers/memory"
	providerchecker "github.com/memohai/askbot/internal/healthcheck/checkers/provider"
	"github.com/memohai/askbot/internal/logger"
	"github.com/memohai/askbot/internal/memory"
	"github.com/memohai/askbot/internal/server"
	"github.com/memohai/askbot/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat gateways and serve the keepalive endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath(cmd))
		},
	}
}

func runServe(cfgPath string) error {
	app := fx.New(serveOptions(cfgPath))
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func serveOptions(cfgPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (config.Config, error) { return provideConfig(cfgPath) },
			provideLogger,
			provideStore,
			provideProviders,
			provideDispatcher,
			provideChannelRegistry,
			provideDeliverer,
			provideInboundProcessor,
			provideChannelManager,
			provideHealth,
			provideServerHandler(providePingHandler),
			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideStore fails startup on an unreadable history file rather than
// silently starting over with an empty one.
func provideStore(log *slog.Logger, cfg config.Config) (*memory.Store, error) {
	return openStore(log, cfg)
}

func provideProviders(log *slog.Logger, cfg config.Config) providerSet {
	return buildProviders(log, cfg.Providers)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, store *memory.Store, set providerSet) *dispatch.Dispatcher {
	return newDispatcher(log, cfg, store, set)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	return buildRegistry(log, cfg)
}

func provideDeliverer(log *slog.Logger) *channel.Deliverer {
	return channel.NewDeliverer(log, channel.OutboundPolicy{}, "")
}

func provideInboundProcessor(log *slog.Logger, cfg config.Config, dispatcher *dispatch.Dispatcher, deliverer *channel.Deliverer) *inbound.Processor {
	return inbound.NewProcessor(log, dispatcher, deliverer, inbound.Options{
		Prefix:          cfg.Bot.Prefix,
		ThinkingMessage: cfg.Bot.ThinkingMessage,
		ErrorMessage:    cfg.Bot.ErrorMessage,
	})
}

func provideChannelManager(log *slog.Logger, registry *channel.Registry, processor *inbound.Processor) *channel.Manager {
	manager := channel.NewManager(log, registry, processor)
	manager.Use(channel.IgnoreBots(log))
	return manager
}

func provideHealth(log *slog.Logger, store *memory.Store, set providerSet, manager *channel.Manager) *healthcheck.Aggregator {
	checkers := []healthcheck.Checker{
		memorychecker.NewChecker(store),
		channelchecker.NewChecker(log, manager),
	}
	var items []providerchecker.Provider
	for _, p := range set.all() {
		if hp, ok := p.(providerchecker.Provider); ok {
			items = append(items, hp)
		}
	}
	checkers = append(checkers, providerchecker.NewChecker(items...))
	return healthcheck.NewAggregator(checkers...)
}

func providePingHandler(log *slog.Logger, cfg config.Config, health *healthcheck.Aggregator) *handlers.PingHandler {
	return handlers.NewPingHandler(log, cfg.Server.Banner, health)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startChannelManager(lc fx.Lifecycle, channelManager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return channelManager.Start(ctx) },
		OnStop:  func(stopCtx context.Context) error { cancel(); return channelManager.Shutdown(stopCtx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	log.Info("starting askbot", slog.String("version", version.String()))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
