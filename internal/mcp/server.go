// ABOUTME: MCP-compatible HTTP server for clients like Claude Desktop.
// ABOUTME: Implements the SSE transport with one broker bridge per session.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/bemfa-bridge/internal/bemfa"
	"github.com/2389/bemfa-bridge/internal/dedupe"
	"github.com/2389/bemfa-bridge/internal/session"
	"github.com/2389/bemfa-bridge/internal/store"
)

// protocolVersion is the MCP protocol version advertised in initialize
// responses. The SSE transport belongs to this protocol generation.
const protocolVersion = "2024-11-05"

// serverName identifies this server in the initialize handshake.
const serverName = "bemfa-bridge"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Endpoint paths of the SSE transport.
const (
	SSEPath      = "/sse"
	MessagesPath = "/messages"
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCNotification represents a JSON-RPC 2.0 notification (no ID).
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Application error codes for broker-side failures
const (
	CodeNotConfigured   = -32002
	CodeNotConnected    = -32003
	CodeConnectionError = -32004
	CodePublishError    = -32005
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// brokerMessageParams is the payload of a notifications/message push.
type brokerMessageParams struct {
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Sessions  *session.Store
	Bridges   *bemfa.Manager
	Ledger    store.Store   // optional traffic ledger
	Dedupe    *dedupe.Cache // optional request-replay guard
	Logger    *slog.Logger
	Version   string
	KeepAlive time.Duration // SSE keep-alive comment interval
}

// Server implements the MCP SSE transport. Each GET /sse stream is one
// session with its own broker bridge; POST /messages carries the JSON-RPC
// requests, whose results flow back over the stream.
type Server struct {
	sessions  *session.Store
	bridges   *bemfa.Manager
	ledger    store.Store
	dedupe    *dedupe.Cache
	logger    *slog.Logger
	version   string
	keepAlive time.Duration
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Bridges == nil {
		return nil, errors.New("bridge manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		sessions:  cfg.Sessions,
		bridges:   cfg.Bridges,
		ledger:    cfg.Ledger,
		dedupe:    cfg.Dedupe,
		logger:    logger,
		version:   version,
		keepAlive: keepAlive,
	}, nil
}

// RegisterRoutes registers the SSE and message endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(SSEPath, s.handleSSE)
	mux.HandleFunc(MessagesPath, s.handleMessages)
}

// handleSSE opens the event stream for a new session. The first event names
// the message endpoint for this session; the stream then carries responses
// and broker notifications until the client disconnects.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sess := s.sessions.Create()
	sess.Bridge = s.bridges.NewBridge(sess.ID, func(msg bemfa.Message) {
		s.pushBrokerMessage(sess, msg)
	})
	defer s.sessions.Remove(sess.ID)

	// Tell the client where to POST its requests
	endpointURL := fmt.Sprintf("%s://%s%s?session_id=%s", requestScheme(r), r.Host, MessagesPath, sess.ID)
	writeSSEEvent(w, "endpoint", []byte(endpointURL))
	flusher.Flush()

	s.logger.Debug("SSE stream opened", "session_id", sess.ID, "remote_addr", r.RemoteAddr)

	keepAliveTicker := time.NewTicker(s.keepAlive)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case ev := <-sess.Events():
			writeSSEEvent(w, ev.Name, ev.Data)
			flusher.Flush()
		case <-keepAliveTicker.C:
			// Send SSE comment as keep-alive
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleMessages accepts one JSON-RPC request per POST, acknowledges it
// synchronously, and dispatches it in the background. The result arrives on
// the session's event stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Bad Request: session_id is required", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		// Stream closed or never existed - client must reconnect
		http.Error(w, "Not Found: unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil, http.StatusBadRequest)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil, http.StatusBadRequest)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil, http.StatusBadRequest)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil, http.StatusBadRequest)
		return
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sess.ID,
	)

	// Handle notifications: accept and return HTTP 202 with no body
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// A replayed request ID must not trigger a second tool call
	if s.dedupe != nil && s.dedupe.CheckAndMark(dedupe.Key(sess.ID, string(req.ID))) {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "duplicate request ID", nil, http.StatusBadRequest)
		return
	}

	s.sendJSONRPCResult(w, req.ID, map[string]any{"ack": true})

	// The POST completes with the ack; the handler outcome must not depend
	// on the request context staying alive.
	go s.dispatch(context.WithoutCancel(r.Context()), sess, req)
}

// dispatch routes one request to its handler and pushes the response onto
// the session's stream.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, req JSONRPCRequest) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = s.handleInitialize(sess)
	case "tools/list":
		resp.Result = MCPListToolsResult{Tools: toolCatalog()}
	case "tools/call":
		result, rpcErr := s.handleToolCall(ctx, sess, req)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &JSONRPCError{Code: JSONRPCMethodNotFound, Message: "method not found"}
	}

	s.pushResponse(sess, resp)
}

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(sess *session.Session) map[string]any {
	s.logger.Info("MCP session initialized",
		"session_id", sess.ID,
		"protocol_version", protocolVersion,
	)

	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": s.version,
		},
	}
}

// pushResponse queues a response as a message event on the session stream.
func (s *Server) pushResponse(sess *session.Session, resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
		return
	}
	if !sess.Push("message", data) {
		s.logger.Debug("dropped response for closed session", "session_id", sess.ID)
	}
}

// pushBrokerMessage forwards an inbound broker message to the client as a
// notifications/message event. Called from the broker delivery goroutine in
// arrival order.
func (s *Server) pushBrokerMessage(sess *session.Session, msg bemfa.Message) {
	notif := JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  "notifications/message",
		Params: brokerMessageParams{
			Topic:     msg.Topic,
			Payload:   msg.Payload,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}

	data, err := json.Marshal(notif)
	if err != nil {
		s.logger.Warn("failed to encode broker notification", "error", err)
		return
	}
	if !sess.Push("message", data) {
		s.logger.Debug("dropped broker message for closed session", "session_id", sess.ID)
		return
	}

	s.recordLedger(context.Background(), &store.Entry{
		SessionID: sess.ID,
		Kind:      store.KindInbound,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
	})
}

// recordLedger writes a traffic ledger entry when a ledger is configured.
// Persistence failures are logged, never surfaced to the client.
func (s *Server) recordLedger(ctx context.Context, entry *store.Entry) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordEntry(ctx, entry); err != nil {
		s.logger.Warn("failed to record ledger entry", "kind", entry.Kind, "error", err)
	}
}

// writeSSEEvent writes one event in SSE wire format.
func writeSSEEvent(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	// Split by newlines to ensure proper framing
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// requestScheme determines the externally visible scheme for endpoint URLs.
func requestScheme(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwardedProto := r.Header.Get("X-Forwarded-Proto"); forwardedProto != "" {
		scheme = forwardedProto
	}
	return scheme
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendJSONRPCError sends a JSON-RPC error response with the given HTTP status.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any, status int) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
