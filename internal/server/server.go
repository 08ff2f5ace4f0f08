package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/emberfn/uplink/internal/auth"
	"github.com/emberfn/uplink/internal/matchmaker"
	"github.com/emberfn/uplink/internal/presence"
	"github.com/emberfn/uplink/internal/server/middleware"
	"github.com/emberfn/uplink/internal/store"
	"github.com/emberfn/uplink/internal/ticket"
	"github.com/emberfn/uplink/internal/xmpp"
	"github.com/emberfn/uplink/pkg/config"
	"github.com/emberfn/uplink/pkg/state"
	"github.com/emberfn/uplink/pkg/state/statemanager"
	"github.com/emberfn/uplink/pkg/transport"
)

// Stores are the external collaborators the relay reads from.
type Stores struct {
	Accounts store.Accounts
	Friends  store.Friends
	Servers  store.Servers
}

type App struct {
	logger      *slog.Logger
	manager     state.Manager
	scheduler   *matchmaker.Scheduler
	sessionDeps xmpp.Deps
	wg          sync.WaitGroup
	relayHTTP   *http.Server
	mmHTTP      *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, stores Stores) *App {
	manager := statemanager.NewInMemoryManager(logger)
	verifier := auth.NewVerifier(cfg.Auth.UplinkKey, stores.Accounts)
	propagator := presence.NewPropagator(stores.Friends, manager, logger)
	scheduler := matchmaker.NewScheduler(stores.Servers, cfg.Matchmaker.PollInterval, cfg.Matchmaker.JoinDelaySec, logger)
	signer := ticket.NewSigner(cfg.Auth.UplinkKey)

	app := &App{
		logger:    logger,
		manager:   manager,
		scheduler: scheduler,
		sessionDeps: xmpp.Deps{
			Domain:   cfg.Relay.Domain,
			Manager:  manager,
			Verifier: verifier,
			Presence: propagator,
			Logger:   logger,
		},
		config: cfg,
		ctx:    rootCtx,
	}

	relayMux := http.NewServeMux()
	relayMux.Handle("/", middleware.Chain(
		http.HandlerFunc(app.relayUpgradeHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
	))
	relayMux.HandleFunc("/clients", app.clientsHandler)

	mmMux := http.NewServeMux()
	mmMux.Handle("/", middleware.Chain(
		http.HandlerFunc(app.matchmakerUpgradeHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewTicketAuthMiddleware(logger, signer),
	))

	baseCtx := func(l net.Listener) context.Context { return app.ctx }
	app.relayHTTP = &http.Server{Addr: cfg.Relay.Address, Handler: relayMux, BaseContext: baseCtx}
	app.mmHTTP = &http.Server{Addr: cfg.Matchmaker.Address, Handler: mmMux, BaseContext: baseCtx}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Relay starting", slog.String("addr", a.relayHTTP.Addr))
		if err := a.relayHTTP.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("Relay HTTP server failed", slog.Any("error", err))
		}
	}()
	go func() {
		a.logger.Info("Matchmaker starting", slog.String("addr", a.mmHTTP.Addr))
		if err := a.mmHTTP.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("Matchmaker HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) relayUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	session := xmpp.NewSession(a.sessionDeps, conn)
	conn.SetOnMessageHandler(func(ctx context.Context, connID uuid.UUID, msg []byte) {
		session.HandleFrame(msg)
	})
	conn.SetOnCloseHandler(func(connID uuid.UUID, err error) {
		session.HandleClose()
	})

	conn.Run()
	<-conn.Done()
}

func (a *App) matchmakerUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.Ticket == nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	claims := reqMeta.Ticket

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	conn.SetOnMessageHandler(func(ctx context.Context, connID uuid.UUID, msg []byte) {
		// the status protocol is outbound-only; inbound traffic is ignored
		a.logger.Debug("Matchmaker received message", slog.String("connID", connID.String()))
	})
	conn.SetOnCloseHandler(func(connID uuid.UUID, err error) {
		a.scheduler.HandleDisconnect(conn)
	})

	// enqueue before the pumps start so a racing disconnect cannot observe
	// a connection without a ticket
	a.scheduler.Enqueue(conn, claims.MatchID, claims.Playlist, claims.Region)
	conn.Run()
	<-conn.Done()
}

// clientsHandler is the read-only admin view of the connection registry.
func (a *App) clientsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"amount":  a.manager.ClientCount(),
		"clients": a.manager.Usernames(),
	})
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.relayHTTP.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.mmHTTP.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, c := range a.manager.Clients() {
		c.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
