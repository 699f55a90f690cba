// ABOUTME: Tool catalog and tool-call handlers for the Bemfa bridge.
// ABOUTME: Maps the five MCP tools onto the session's broker bridge.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/bemfa-bridge/internal/bemfa"
	"github.com/2389/bemfa-bridge/internal/session"
	"github.com/2389/bemfa-bridge/internal/store"
)

// Tool names exposed over tools/list.
const (
	ToolConfigure  = "configureBemfa"
	ToolConnect    = "connectBemfa"
	ToolControl    = "controlLight"
	ToolDisconnect = "disconnectBemfa"
	ToolGetConfig  = "getConfig"
)

// toolCatalog returns the fixed tool set. Every session sees the same five
// tools regardless of its connection state.
func toolCatalog() []MCPToolInfo {
	return []MCPToolInfo{
		{
			Name:        ToolConfigure,
			Description: "Store the Bemfa broker settings for this session",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"host":{"type":"string"},"port":{"type":"integer"},"clientId":{"type":"string"},"topic":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"}},"required":["clientId","topic"]}`),
		},
		{
			Name:        ToolConnect,
			Description: "Connect to the Bemfa broker and subscribe to the configured topic",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolControl,
			Description: "Send a light control command on the configured topic",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","enum":["on","off","toggle","status"]}},"required":["command"]}`),
		},
		{
			Name:        ToolDisconnect,
			Description: "Disconnect from the Bemfa broker, keeping the stored settings",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolGetConfig,
			Description: "Show the stored broker settings with credentials masked",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

// configureArgs are the arguments of the configureBemfa tool.
type configureArgs struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// controlArgs are the arguments of the controlLight tool.
type controlArgs struct {
	Command string `json:"command"`
}

// handleToolCall parses a tools/call request and routes it to the named
// tool. Returns either a result or a JSON-RPC error, never both.
func (s *Server) handleToolCall(ctx context.Context, sess *session.Session, req JSONRPCRequest) (any, *JSONRPCError) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}

	if params.Name == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "tool name is required"}
	}

	args := string(params.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}

	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"session_id", sess.ID,
	)

	var text string
	var err error

	switch params.Name {
	case ToolConfigure:
		text, err = s.callConfigure(ctx, sess, []byte(args))
	case ToolConnect:
		text, err = s.callConnect(ctx, sess)
	case ToolControl:
		text, err = s.callControl(ctx, sess, []byte(args))
	case ToolDisconnect:
		text, err = s.callDisconnect(ctx, sess)
	case ToolGetConfig:
		text, err = s.callGetConfig(sess)
	default:
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "tool not found", Data: map[string]any{"tool": params.Name}}
	}

	if err != nil {
		return nil, s.toolError(params.Name, err)
	}

	return MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
	}, nil
}

// toolError maps a bridge error onto its JSON-RPC error code.
func (s *Server) toolError(tool string, err error) *JSONRPCError {
	s.logger.Warn("tool call failed", "tool_name", tool, "error", err)

	code := JSONRPCInternalError
	switch {
	case errors.Is(err, bemfa.ErrValidation), errors.Is(err, bemfa.ErrUnsupportedCommand):
		code = JSONRPCInvalidParams
	case errors.Is(err, bemfa.ErrNotConfigured):
		code = CodeNotConfigured
	case errors.Is(err, bemfa.ErrNotConnected):
		code = CodeNotConnected
	case errors.Is(err, bemfa.ErrConnection):
		code = CodeConnectionError
	case errors.Is(err, bemfa.ErrPublish):
		code = CodePublishError
	}

	return &JSONRPCError{
		Code:    code,
		Message: err.Error(),
		Data:    map[string]any{"tool": tool},
	}
}

func (s *Server) callConfigure(ctx context.Context, sess *session.Session, args []byte) (string, error) {
	var a configureArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("%w: invalid arguments: %v", bemfa.ErrValidation, err)
	}

	err := sess.Bridge.Configure(bemfa.ConfigureArgs{
		Host:     a.Host,
		Port:     a.Port,
		ClientID: a.ClientID,
		Topic:    a.Topic,
		Username: a.Username,
		Password: a.Password,
	})
	if err != nil {
		return "", err
	}

	cfg := sess.Bridge.Config()
	s.recordLedger(ctx, &store.Entry{
		SessionID: sess.ID,
		Kind:      store.KindCall,
		Tool:      ToolConfigure,
		Topic:     cfg.Topic,
	})

	return fmt.Sprintf("Configuration saved. Broker %s:%d, topic %s.", cfg.Host, cfg.Port, cfg.Topic), nil
}

func (s *Server) callConnect(ctx context.Context, sess *session.Session) (string, error) {
	if err := sess.Bridge.Connect(ctx); err != nil {
		return "", err
	}

	cfg := sess.Bridge.Config()
	s.recordLedger(ctx, &store.Entry{
		SessionID: sess.ID,
		Kind:      store.KindCall,
		Tool:      ToolConnect,
		Topic:     cfg.Topic,
	})

	return fmt.Sprintf("Connected to %s:%d, subscribing to topic %s.", cfg.Host, cfg.Port, cfg.Topic), nil
}

func (s *Server) callControl(ctx context.Context, sess *session.Session, args []byte) (string, error) {
	var a controlArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("%w: invalid arguments: %v", bemfa.ErrValidation, err)
	}

	if err := sess.Bridge.Publish(ctx, a.Command); err != nil {
		return "", err
	}

	cfg := sess.Bridge.Config()
	s.recordLedger(ctx, &store.Entry{
		SessionID: sess.ID,
		Kind:      store.KindCall,
		Tool:      ToolControl,
		Topic:     cfg.Topic,
		Payload:   a.Command,
	})

	return fmt.Sprintf("Sent %q to topic %s.", a.Command, cfg.Topic), nil
}

func (s *Server) callDisconnect(ctx context.Context, sess *session.Session) (string, error) {
	if err := sess.Bridge.Disconnect(); err != nil {
		return "", err
	}

	s.recordLedger(ctx, &store.Entry{
		SessionID: sess.ID,
		Kind:      store.KindCall,
		Tool:      ToolDisconnect,
	})

	return "Disconnected from broker. Configuration retained.", nil
}

func (s *Server) callGetConfig(sess *session.Session) (string, error) {
	cfg := sess.Bridge.Config()
	if cfg == nil {
		return "", bemfa.ErrNotConfigured
	}

	masked := cfg.Masked()
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding configuration: %w", err)
	}

	return string(data), nil
}
