package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/a-essam23/collab-dispatch/internal/dispatch"
	"github.com/a-essam23/collab-dispatch/internal/metrics"
	"github.com/a-essam23/collab-dispatch/internal/presence"
	"github.com/a-essam23/collab-dispatch/internal/router"
	"github.com/a-essam23/collab-dispatch/internal/server/middleware"
	"github.com/a-essam23/collab-dispatch/pkg/auth"
	"github.com/a-essam23/collab-dispatch/pkg/config"
	"github.com/a-essam23/collab-dispatch/pkg/ephemeral"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/ratelimit"
	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/state/statemanager"
	"github.com/a-essam23/collab-dispatch/pkg/store"
	"github.com/a-essam23/collab-dispatch/pkg/transport"
)

var errShutdown = websocket.CloseError{Code: websocket.StatusGoingAway, Reason: "server shutting down"}

// Options carries the collaborators that are not built from configuration.
type Options struct {
	Store store.Store
	// Verifier defaults to an HMAC JWT verifier built from server.auth.
	Verifier auth.Verifier
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type App struct {
	logger       *slog.Logger
	config       *config.Config
	stateManager state.Manager
	store        store.Store
	metrics      *metrics.Metrics
	dispatcher   *dispatch.Dispatcher
	presence     *presence.Publisher
	typing       *ephemeral.Tracker
	limiter      *ratelimit.SlidingWindow
	eventRouter  *router.EventRouter
	wg           sync.WaitGroup
	http         *http.Server
	handler      http.Handler

	ctx          context.Context
	shutdownOnce sync.Once
	shutdownErr  error
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("a store is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = auth.NewJWTVerifier(cfg.Server.Auth.JWTSecret, auth.WithIssuer(cfg.Server.Auth.Issuer))
	}

	stateManager := statemanager.NewInMemoryManager(logger)
	m := metrics.New()
	dispatcher := dispatch.New(stateManager, m, logger)
	publisher, err := presence.New(opts.Store, stateManager, dispatcher, clk, presence.Config{
		CacheSize:    cfg.Presence.CacheSize,
		WriteTimeout: cfg.Presence.WriteTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	tracker := ephemeral.NewTracker(cfg.Typing.TTL, clk, router.NewTypingBroadcaster(dispatcher))
	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Budget, clk)

	app := &App{
		logger:       logger,
		config:       cfg,
		stateManager: stateManager,
		store:        opts.Store,
		metrics:      m,
		dispatcher:   dispatcher,
		presence:     publisher,
		typing:       tracker,
		limiter:      limiter,
		ctx:          rootCtx,
	}
	app.eventRouter = router.NewEventRouter(logger, router.Deps{
		State:      stateManager,
		Store:      opts.Store,
		Dispatcher: dispatcher,
		Presence:   publisher,
		Typing:     tracker,
		Limiter:    limiter,
		Metrics:    m,
		Clock:      clk,
	})

	mux := http.NewServeMux()
	connCounter := middleware.UserConnectionCounter(stateManager.GetUserConnectionCount)
	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(userID string) {
		oldest, found := stateManager.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(websocket.CloseError{Code: websocket.StatusPolicyViolation, Reason: "connection cycled by new connection"})
		}
	}

	mux.Handle("GET /ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, verifier),
			middleware.NewConnectionLimiter(
				logger,
				connCounter,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.Handle("GET /metrics", m.Handler())
	app.handler = mux

	app.http = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app, nil
}

// Handler exposes the HTTP routes, for embedding and tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until the root context is done or the listener fails, then shuts down.
func (a *App) Run() error {
	g, gctx := errgroup.WithContext(a.ctx)

	g.Go(func() error {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.limiter.Run(gctx, a.config.RateLimit.SweepInterval, a.isRegistered, func(removed int) {
			if removed > 0 {
				a.logger.Debug("Rate limiter swept idle connections", slog.Int("removed", removed))
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})
	return g.Wait()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.Server.AllowedOrigins,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		a.ctx,
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.eventRouter.HandleMessage,
		a.closeSession,
		connLogger,
	)
	// register new connection
	stateConn, first, err := a.stateManager.Register(conn, reqMeta.UserID, reqMeta.IP)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	a.updateGauges()

	a.presence.Connected(r.Context(), stateConn, first)
	if err := a.dispatcher.Send(stateConn, protocol.Connected{User: a.profile(r.Context(), reqMeta.UserID)}); err != nil {
		connLogger.Warn("Failed to greet connection", slog.Any("error", err))
	}

	connLogger.Info("User connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// closeSession is the single cleanup path of every connection, whatever ended it.
func (a *App) closeSession(connID uuid.UUID, reason error) {
	conn, rooms, last, found := a.stateManager.Deregister(connID)
	if !found {
		return
	}
	cleared := a.typing.ClearConnection(connID)
	a.presence.Disconnected(conn, rooms, last)
	a.updateGauges()

	a.logger.Info("Connection closed",
		slog.String("connID", connID.String()),
		slog.String("userID", conn.UserID),
		slog.Int("rooms", len(rooms)),
		slog.Int("typingCleared", cleared),
		slog.Bool("lastConnection", last),
		slog.Any("reason", reason),
	)
}

// profile loads the user shown in the connected greeting. The id alone is
// enough for a client to proceed, so store failures are not fatal.
func (a *App) profile(ctx context.Context, userID string) store.User {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		a.logger.Warn("Failed to load user profile", slog.String("userID", userID), slog.Any("error", err))
		return store.User{ID: userID}
	}
	return *user
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": a.stateManager.ConnectionCount(),
		"rooms":       a.stateManager.RoomCount(),
	})
}

func (a *App) isRegistered(connID uuid.UUID) bool {
	_, ok := a.stateManager.GetConnection(connID)
	return ok
}

func (a *App) updateGauges() {
	a.metrics.Connections.Set(float64(a.stateManager.ConnectionCount()))
	a.metrics.Rooms.Set(float64(a.stateManager.RoomCount()))
}

// graceful shutdown sequence. Safe to call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *App) shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	var errs error
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...", slog.Int("count", a.stateManager.ConnectionCount()))
	for _, conn := range a.stateManager.AllConnections() {
		conn.Transport.Close(errShutdown)
	}

	// wait for all connection goroutines to finish their cleanup.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		errs = multierr.Append(errs, errors.New("timed out waiting for connections to close"))
	}

	a.typing.StopAll()
	a.presence.Wait()
	if err := a.store.Close(shutdownCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("store close: %w", err))
	}

	if errs == nil {
		a.logger.Info("Server shut down gracefully.")
	}
	return errs
}
