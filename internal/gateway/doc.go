// Package gateway orchestrates the bemfa-bridge server components.
//
// # Overview
//
// The gateway package is the central coordinator of the bemfa-bridge server.
// It owns and manages all major components: HTTP server, session store,
// broker bridge manager, call ledger, and the MCP transport.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config     *config.Config
//	    sessions   *session.Store
//	    bridges    *bemfa.Manager
//	    ledger     store.Store
//	    dedupe     *dedupe.Cache
//	    mcpServer  *mcp.Server
//	    httpServer *http.Server
//	    // ... and more
//	}
//
// # HTTP API
//
// The gateway exposes HTTP endpoints:
//
//   - GET /sse - Open an MCP session (SSE stream, handled by internal/mcp)
//   - POST /messages - Submit a JSON-RPC request for a session
//   - GET /health - Liveness check with version, uptime, and session count
//   - GET /api/history - Recent ledger entries (?session_id=X&limit=N)
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, version, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run blocks until the context is canceled, then shuts down in order:
// sessions first (ending their SSE streams and closing broker connections),
// then the HTTP server, the dedupe cache, and finally the ledger.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: Health and history HTTP handlers
package gateway
