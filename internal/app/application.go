package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"chatrelay/internal/ai"
	"chatrelay/internal/api"
	"chatrelay/internal/broadcast"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/database"
	"chatrelay/internal/hub"
	"chatrelay/internal/presence"
	"chatrelay/internal/session"
	"chatrelay/internal/typing"
	"chatrelay/internal/websocket"
	dbconfig "chatrelay/pkg/database"
	"chatrelay/pkg/interfaces"
)

// Observability carries the process-wide logger, tracer and meter; nil
// fields fall back to slog.Default and no-op instruments
type Observability struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Application coordinates all system components
// ARCHITECTURAL DISCOVERY: Initialization follows strict dependency order:
// Database → Message store → Session → Presence → Typing → AI → Chat → Hub → HTTP
type Application struct {
	config     *config.Config
	db         *database.Manager
	badger     *database.BadgerMessageStore
	sessions   *session.Manager
	registry   *presence.Registry
	typing     *typing.Coordinator
	hub        *hub.Hub
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(ctx context.Context, cfg *config.Config, obs Observability) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := obs.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path
	if cfg.Database.Timeout > 0 {
		dbCfg.WriteTimeout = cfg.Database.Timeout
	}
	db, err := database.NewManager(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	var (
		messages interfaces.MessageStore = db
		badger   *database.BadgerMessageStore
	)
	if cfg.Store.Backend == config.StoreBadger {
		badger, err = database.OpenBadgerMessageStore(cfg.Store.BadgerPath, logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open message store: %w", err)
		}
		messages = badger
	}

	inst, err := ai.NewInstruments(obs.Tracer, obs.Meter)
	if err != nil {
		if badger != nil {
			_ = badger.Close()
		}
		_ = db.Close()
		return nil, fmt.Errorf("failed to create AI instruments: %w", err)
	}

	sessions := session.NewManager(db, logger)
	registry := presence.NewRegistry(logger)
	broadcaster := broadcast.NewBroadcaster(registry, logger)
	coordinator := typing.NewCoordinator(registry, broadcaster, cfg.Chat.TypingExpiry, logger)
	factory := ai.NewFactory(cfg.AI, nil, inst, logger)

	service := chat.NewService(chat.Dependencies{
		Users:       db,
		Sessions:    sessions,
		Messages:    messages,
		Broadcaster: broadcaster,
		Typing:      coordinator,
		Gateway:     factory,
	}, chat.Options{
		DefaultProvider:    cfg.AI.DefaultProvider,
		MaxContextMessages: cfg.AI.MaxContextMessages,
	}, logger)

	messageHub := hub.NewHub(service, sessions, registry, coordinator, broadcaster, hub.Options{
		RateLimit:  cfg.Chat.RateLimit,
		RateWindow: cfg.Chat.RateWindow,
	}, logger)

	wsHandler := websocket.NewHandler(messageHub, websocket.Options{
		BufferSize:   cfg.WebSocket.BufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	}, logger)

	apiServer := api.NewServer(api.Dependencies{
		Chat:      service,
		Sessions:  sessions,
		Users:     db,
		Presence:  registry,
		Typing:    coordinator,
		Stats:     messageHub,
		Providers: factory,
		Database:  db,
		WebSocket: wsHandler,
		Tracer:    obs.Tracer,
	}, logger)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		db:         db,
		badger:     badger,
		sessions:   sessions,
		registry:   registry,
		typing:     coordinator,
		hub:        messageHub,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger.With(slog.String("component", "app")),
	}, nil
}

// Start begins application execution
// Hub starts first to handle frames, then the listener accepts connections
func (app *Application) Start(ctx context.Context) error {
	// The hub outlives the startup context; Stop ends it
	if err := app.hub.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", slog.Any("error", err))
		}
	}()

	app.logger.Info("chatrelay started",
		slog.String("addr", listener.Addr().String()),
		slog.String("store", app.config.Store.Backend),
		slog.String("default_provider", app.config.AI.DefaultProvider.String()))
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSocket → Hub → Typing → Stores
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down chatrelay")
	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if n := app.wsHandler.CloseAll(); n > 0 {
		app.logger.Info("closed websocket connections", slog.Int("count", n))
	}

	if app.hub.Running() {
		if err := app.hub.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
		}
	}

	app.typing.StopAll()

	if app.badger != nil {
		if err := app.badger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("message store shutdown: %w", err))
		}
	}

	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("shutdown finished with errors", slog.Any("error", err))
		return err
	}
	app.logger.Info("chatrelay shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections; after Start
// it is the bound listener address
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
