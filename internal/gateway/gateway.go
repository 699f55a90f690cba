// ABOUTME: Gateway orchestrator wiring config, ledger, bridges, and the MCP server
// ABOUTME: Manages the HTTP server lifecycle and graceful shutdown ordering

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/bemfa-bridge/internal/bemfa"
	"github.com/2389/bemfa-bridge/internal/config"
	"github.com/2389/bemfa-bridge/internal/dedupe"
	"github.com/2389/bemfa-bridge/internal/mcp"
	"github.com/2389/bemfa-bridge/internal/session"
	"github.com/2389/bemfa-bridge/internal/store"
)

// Gateway orchestrates the bemfa-bridge server components.
// It owns the HTTP server for the MCP transport and the per-session broker bridges.
type Gateway struct {
	config     *config.Config
	sessions   *session.Store
	bridges    *bemfa.Manager
	ledger     store.Store
	httpServer *http.Server
	logger     *slog.Logger

	// dedupe guards against replayed JSON-RPC request IDs
	dedupe *dedupe.Cache

	// mcpServer handles the SSE stream and message dispatch
	mcpServer *mcp.Server

	// startedAt feeds the uptime field of /health
	startedAt time.Time

	version string
}

// initLedger creates the call ledger from config and environment.
func initLedger(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("BEMFA_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Gateway, error) {
	ledger, err := initLedger(cfg)
	if err != nil {
		return nil, err
	}

	dedupeCache := dedupe.New(5*time.Minute, 100_000) // TTL 5min, max 100k entries

	bridges := bemfa.NewManager(bemfa.ManagerConfig{
		DefaultHost: cfg.Bemfa.DefaultHost,
		DefaultPort: cfg.Bemfa.DefaultPort,
		Timeouts: bemfa.Timeouts{
			Connect: cfg.Bemfa.ConnectTimeout,
			Publish: cfg.Bemfa.PublishTimeout,
		},
		Logger: logger.With("component", "bemfa"),
	})

	sessions := session.NewStore(logger.With("component", "session"))

	gw := &Gateway{
		config:    cfg,
		sessions:  sessions,
		bridges:   bridges,
		ledger:    ledger,
		dedupe:    dedupeCache,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
		version:   version,
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Sessions:  sessions,
		Bridges:   bridges,
		Ledger:    ledger,
		Dedupe:    dedupeCache,
		Logger:    logger.With("component", "mcp"),
		Version:   version,
		KeepAlive: cfg.Server.KeepAliveInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer

	mux := http.NewServeMux()

	// Health and history endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/api/history", gw.handleHistory)

	// MCP transport endpoints (/sse and /messages)
	gw.mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the gateway and releases resources.
// Sessions close first so their SSE handlers return and the HTTP server can drain.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.sessions.CloseAll()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.dedupe != nil {
		g.dedupe.Close()
	}
	errs = appendCloseError(errs, "ledger close", g.ledger.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
