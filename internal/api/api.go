package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/replyflow/replyflow/internal/models"
)

// FlowEngine is the orchestrator surface the HTTP handlers call.
type FlowEngine interface {
	HandleInboundMessage(ctx context.Context, msg models.InboundMessage) (*models.InboundResult, error)
	CancelFlow(ctx context.Context, conversationID string) error
	ActiveFlow(conversationID string) (*models.ConversationFlow, error)
}

// ScenarioAdmin is the registry surface for scenario administration.
type ScenarioAdmin interface {
	Register(sc *models.Scenario) error
	ListActive(companyID string) []*models.Scenario
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the HTTP API on top of the flow engine and scenario registry.
type Server struct {
	engine    FlowEngine
	scenarios ScenarioAdmin
	addr      string
	httpSrv   *http.Server
}

// NewServer creates the API server.
func NewServer(engine FlowEngine, scenarios ScenarioAdmin, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{engine: engine, scenarios: scenarios, addr: cfg.Addr}
}

// Router builds the chi router with all routes mounted. Exposed separately
// from Start for httptest use.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.healthHandler)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.messagesHandler)
		r.Post("/scenarios", s.registerScenarioHandler)
		r.Get("/scenarios", s.listScenariosHandler)
		r.Get("/flows/{conversationID}", s.activeFlowHandler)
		r.Delete("/flows/{conversationID}", s.cancelFlowHandler)
	})
	return r
}

// Start runs the HTTP server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server shutting down")
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
