// Package api provides the HTTP server and service wiring for Review
// Bridge.
//
// It exposes the messaging platform webhooks, a health endpoint, and a
// session inspection endpoint, and runs the dispatch loop that feeds
// inbound events into the conversation engine.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/obenan/reviewbridge/internal/analytics"
	"github.com/obenan/reviewbridge/internal/catalog"
	"github.com/obenan/reviewbridge/internal/flow"
	"github.com/obenan/reviewbridge/internal/messaging"
	"github.com/obenan/reviewbridge/internal/store"
	"github.com/obenan/reviewbridge/internal/whatsapp"
)

// Server defaults.
const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":3000"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Messaging backend names accepted by Run.
const (
	BackendCloudAPI = "cloudapi"
	BackendTwilio   = "twilio"
	BackendWhatsApp = "whatsapp"
)

// WebhookProvider is implemented by messaging backends that receive
// inbound events over HTTP.
type WebhookProvider interface {
	RegisterWebhooks(r chi.Router)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the HTTP endpoints and the event dispatch loop.
type Server struct {
	store      store.Store
	engine     *flow.Engine
	msgService messaging.Service
	addr       string
}

// NewServer creates an API server over the given collaborators.
func NewServer(st store.Store, engine *flow.Engine, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{store: st, engine: engine, msgService: msgService, addr: cfg.Addr}
}

// Router builds the chi router with all endpoints registered.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/sessions/{userID}", s.sessionHandler)

	if provider, ok := s.msgService.(WebhookProvider); ok {
		provider.RegisterWebhooks(r)
	} else {
		slog.Debug("Messaging backend registers no webhooks")
	}
	return r
}

// Serve runs the HTTP server and the dispatch loop until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.msgService.Start(ctx); err != nil {
		return err
	}

	go s.dispatchLoop(ctx)

	httpServer := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Review Bridge API listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down Review Bridge API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := s.msgService.Stop(); err != nil {
		slog.Error("Messaging service stop failed", "error", err)
	}
	return nil
}

// dispatchLoop feeds inbound platform events into the conversation engine.
// Each event is processed independently so one slow analytics call cannot
// stall other users.
func (s *Server) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.msgService.Responses():
			if !ok {
				return
			}
			go func() {
				if err := s.engine.HandleMessage(ctx, event); err != nil {
					slog.Error("Dispatch failed to handle event", "error", err, "from", event.From)
				}
			}()
		}
	}
}

// Run wires all modules from option slices and serves until interrupted.
// The backend argument selects the messaging delivery service.
func Run(backend string, waOpts []whatsapp.Option, storeOpts []store.Option, analyticsOpts []analytics.Option, engineOpts []flow.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	cat := catalog.Default()
	client := analytics.NewClient(cat, analyticsOpts...)

	msgService, err := buildMessagingService(backend, waOpts)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(st, client, cat, msgService, engineOpts...)
	server := NewServer(st, engine, msgService, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx)
}

// buildStore selects the session store backend from the configured DSNs.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Info("Using PostgreSQL session store")
		return store.NewPostgresStore(opts...)
	case cfg.SQLiteDSN != "":
		slog.Info("Using SQLite session store", "path", cfg.SQLiteDSN)
		return store.NewSQLiteStore(opts...)
	default:
		slog.Info("No database DSN provided, using in-memory session store")
		return store.NewInMemoryStore(), nil
	}
}

// buildMessagingService constructs the selected delivery backend.
// Credentials come from backend-specific environment variables.
func buildMessagingService(backend string, waOpts []whatsapp.Option) (messaging.Service, error) {
	switch backend {
	case BackendTwilio:
		slog.Info("Using Twilio messaging backend")
		return messaging.NewTwilioService()
	case BackendWhatsApp:
		slog.Info("Using linked-device WhatsApp messaging backend")
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	case BackendCloudAPI, "":
		slog.Info("Using WhatsApp Cloud API messaging backend")
		return messaging.NewCloudAPIService()
	default:
		return nil, errors.New("unknown messaging backend: " + backend)
	}
}
