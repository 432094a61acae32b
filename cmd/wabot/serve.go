package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/crmlat/wabot/internal/assistant"
	"github.com/crmlat/wabot/internal/broadcast"
	"github.com/crmlat/wabot/internal/config"
	"github.com/crmlat/wabot/internal/contacts"
	"github.com/crmlat/wabot/internal/db"
	"github.com/crmlat/wabot/internal/dispatch"
	"github.com/crmlat/wabot/internal/event"
	"github.com/crmlat/wabot/internal/handlers"
	"github.com/crmlat/wabot/internal/logger"
	"github.com/crmlat/wabot/internal/media"
	"github.com/crmlat/wabot/internal/messages"
	"github.com/crmlat/wabot/internal/numbers"
	"github.com/crmlat/wabot/internal/server"
	"github.com/crmlat/wabot/internal/threads"
	"github.com/crmlat/wabot/internal/webhook"
	"github.com/crmlat/wabot/internal/whatsapp"
)

func runServe(configPath string) {
	fx.New(
		fx.Supply(configPathValue(configPath)),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			event.NewHub,
			messages.NewStore,
			provideMessageService,
			contacts.NewStore,
			provideContactService,
			threads.NewStore,
			numbers.NewStore,
			provideWhatsAppClient,
			provideAssistantClient,
			provideOrchestrator,
			provideStorage,
			provideMediaFetcher,
			media.NewFailureStore,
			provideRetrier,
			provideQueue,
			provideSender,
			provideDispatcher,
			provideRouter,
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideStorageHandler),
			provideServerHandler(provideBroadcastHandler),
			fx.Annotate(provideServer, fx.ParamTags("", "", `group:"server_handlers"`)),
		),
		fx.Invoke(
			startQueue,
			startRetrier,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

type configPathValue string

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(path configPathValue) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideMessageService(log *slog.Logger, store *messages.Store, hub *event.Hub) *messages.Service {
	return messages.NewService(log, store, hub)
}

func provideContactService(log *slog.Logger, store *contacts.Store) *contacts.Service {
	return contacts.NewService(log, store)
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.WhatsApp.BaseURL, time.Duration(cfg.WhatsApp.TimeoutSecs)*time.Second)
}

func provideAssistantClient(log *slog.Logger, cfg config.Config) *assistant.Client {
	return assistant.NewClient(log, cfg.Assistant.BaseURL, cfg.Assistant.APIKey, 30*time.Second)
}

func provideOrchestrator(log *slog.Logger, client *assistant.Client, store *threads.Store, cfg config.Config) *assistant.Orchestrator {
	return assistant.NewOrchestrator(log, client, store, cfg.Assistant.AssistantID, assistant.Options{
		PollInitial:  time.Duration(cfg.Assistant.PollInitialMs) * time.Millisecond,
		PollMax:      time.Duration(cfg.Assistant.PollMaxMs) * time.Millisecond,
		PollDeadline: time.Duration(cfg.Assistant.PollDeadlineSec) * time.Second,
	})
}

func provideStorage(cfg config.Config) (*media.DiskStorage, error) {
	return media.NewDiskStorage(cfg.Media.DataRoot)
}

func provideMediaFetcher(log *slog.Logger, client *whatsapp.Client, storage *media.DiskStorage, cfg config.Config) *media.Fetcher {
	return media.NewFetcher(log, client, storage, cfg.Server.PublicBaseURL)
}

func provideRetrier(log *slog.Logger, fetcher *media.Fetcher, nums *numbers.Store, msgs *messages.Service, failures *media.FailureStore, cfg config.Config) *media.Retrier {
	return media.NewRetrier(log, fetcher, nums, msgs, failures, cfg.Media.RetrySchedule)
}

func provideQueue(log *slog.Logger, cfg config.Config) *dispatch.Queue {
	return dispatch.NewQueue(log, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
}

func provideSender(log *slog.Logger, client *whatsapp.Client, msgs *messages.Service, cfg config.Config) *dispatch.Sender {
	return dispatch.NewSender(log, client, msgs, cfg.Dispatch.RetryMax)
}

func provideDispatcher(log *slog.Logger, msgs *messages.Service, fetcher *media.Fetcher, nums *numbers.Store, failures *media.FailureStore, bot *assistant.Orchestrator, sender *dispatch.Sender, queue *dispatch.Queue) *webhook.Dispatcher {
	return webhook.NewDispatcher(log, msgs, fetcher, nums, failures, bot, sender, queue)
}

func provideRouter(log *slog.Logger, msgs *messages.Service, contactSvc *contacts.Service, dispatcher *webhook.Dispatcher) *webhook.Router {
	return webhook.NewRouter(log, msgs, contactSvc, dispatcher)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, router *webhook.Router) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, cfg.WhatsApp.VerifyToken, router)
}

func provideStorageHandler(storage *media.DiskStorage) *handlers.StorageHandler {
	return handlers.NewStorageHandler(storage.Dir())
}

func provideBroadcastHandler(log *slog.Logger, hub *event.Hub) *broadcast.Handler {
	return broadcast.NewHandler(log, hub)
}

func provideServer(log *slog.Logger, cfg config.Config, routeHandlers []server.Handler) *server.Server {
	return server.New(log, cfg.Server.Addr, routeHandlers)
}

func startQueue(lc fx.Lifecycle, queue *dispatch.Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { queue.Start(); return nil },
		OnStop:  func(ctx context.Context) error { queue.Stop(); return nil },
	})
}

func startRetrier(lc fx.Lifecycle, retrier *media.Retrier) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return retrier.Start() },
		OnStop:  func(ctx context.Context) error { retrier.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
