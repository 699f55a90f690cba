// ABOUTME: CLI client for controlling lights through a bemfa-bridge gateway.
// ABOUTME: Opens an MCP session over SSE and drives the bridge tools.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

// jsonrpcRequest is the JSON body sent to the messages endpoint.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a response or notification read from the SSE stream.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolResult is the result shape of a tools/call response.
type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// toolInfo is one entry of a tools/list response.
type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// brokerMessage is the params shape of a notifications/message push.
type brokerMessage struct {
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to config file")
	server := flag.String("server", "", "Gateway server URL (overrides config)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: bemfa-ctl [flags] <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  on       Turn the light on")
		fmt.Println("  off      Turn the light off")
		fmt.Println("  toggle   Toggle the light")
		fmt.Println("  status   Query the light state")
		fmt.Println("  watch    Stream device messages until interrupted")
		fmt.Println("  tools    List tools exposed by the gateway")
		fmt.Println("  health   Check gateway health")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Gateway.URL = *server
	}

	switch cmd := args[0]; cmd {
	case "on", "off", "toggle", "status":
		err = runControl(ctx, cfg, cmd)
	case "watch":
		err = runWatch(ctx, cfg)
	case "tools":
		err = runTools(ctx, cfg)
	case "health":
		err = runHealth(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bridgeClient is one MCP session against the gateway.
type bridgeClient struct {
	messagesURL string
	body        io.ReadCloser
	scanner     *bufio.Scanner
	nextID      int
}

// dial opens the SSE stream and waits for the endpoint event that
// carries the session-scoped messages URL.
func dial(ctx context.Context, gatewayURL string) (*bridgeClient, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL+"/sse", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	c := &bridgeClient{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}

	name, data, err := c.nextEvent()
	if err != nil {
		c.close()
		return nil, fmt.Errorf("reading endpoint event: %w", err)
	}
	if name != "endpoint" {
		c.close()
		return nil, fmt.Errorf("expected endpoint event, got %q", name)
	}
	c.messagesURL = data

	return c, nil
}

func (c *bridgeClient) close() {
	c.body.Close()
}

// nextEvent reads one SSE event from the stream, skipping keep-alive comments.
func (c *bridgeClient) nextEvent() (string, string, error) {
	var eventType string
	var dataLines []string

	for c.scanner.Scan() {
		line := c.scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" {
				return eventType, strings.TrimSpace(strings.Join(dataLines, "\n")), nil
			}
			dataLines = nil
			continue
		}

		// Keep-alive comment
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data:"))
			continue
		}
	}

	if err := c.scanner.Err(); err != nil {
		return "", "", err
	}
	return "", "", io.EOF
}

// call submits a JSON-RPC request and waits on the stream for its response.
// Notifications that arrive in between are ignored.
func (c *bridgeClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := c.nextID

	bodyBytes, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, method)
	}

	for {
		name, data, err := c.nextEvent()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if name != "message" {
			continue
		}

		var rpcResp jsonrpcResponse
		if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		if rpcResp.Method != "" {
			continue // server-initiated notification
		}
		if string(rpcResp.ID) != strconv.Itoa(id) {
			continue
		}
		if rpcResp.Error != nil {
			return nil, fmt.Errorf("%s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
		}
		return rpcResp.Result, nil
	}
}

// callTool invokes one tool and returns its text content.
func (c *bridgeClient) callTool(ctx context.Context, name string, args any) (string, error) {
	result, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var tr toolResult
	if err := json.Unmarshal(result, &tr); err != nil {
		return "", fmt.Errorf("parsing tool result: %w", err)
	}
	if len(tr.Content) == 0 {
		return "", nil
	}
	return tr.Content[0].Text, nil
}

// connect dials the gateway and walks the session through
// initialize, configureBemfa, and connectBemfa.
func connect(ctx context.Context, cfg *Config) (*bridgeClient, error) {
	if err := cfg.requireDevice(); err != nil {
		return nil, err
	}

	c, err := dial(ctx, cfg.Gateway.URL)
	if err != nil {
		return nil, err
	}

	if _, err := c.call(ctx, "initialize", map[string]any{}); err != nil {
		c.close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if _, err := c.callTool(ctx, "configureBemfa", cfg.deviceArgs()); err != nil {
		c.close()
		return nil, fmt.Errorf("configureBemfa: %w", err)
	}
	text, err := c.callTool(ctx, "connectBemfa", map[string]any{})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("connectBemfa: %w", err)
	}
	fmt.Println(text)

	return c, nil
}

func runControl(ctx context.Context, cfg *Config, command string) error {
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	text, err := c.callTool(ctx, "controlLight", map[string]string{"command": command})
	if err != nil {
		return fmt.Errorf("controlLight: %w", err)
	}
	fmt.Println(text)

	if _, err := c.callTool(ctx, "disconnectBemfa", map[string]any{}); err != nil {
		return fmt.Errorf("disconnectBemfa: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, cfg *Config) error {
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	// Close the stream when interrupted so the read loop ends
	go func() {
		<-ctx.Done()
		c.close()
	}()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.Device.Topic)

	for {
		name, data, err := c.nextEvent()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading stream: %w", err)
		}
		if name != "message" {
			continue
		}

		var rpcResp jsonrpcResponse
		if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
			continue
		}
		if rpcResp.Method != "notifications/message" {
			continue
		}

		var msg brokerMessage
		if err := json.Unmarshal(rpcResp.Params, &msg); err != nil {
			continue
		}
		fmt.Printf("%s  %s  %s\n", msg.Timestamp, msg.Topic, msg.Payload)
	}
}

func runTools(ctx context.Context, cfg *Config) error {
	c, err := dial(ctx, cfg.Gateway.URL)
	if err != nil {
		return err
	}
	defer c.close()

	if _, err := c.call(ctx, "initialize", map[string]any{}); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var list struct {
		Tools []toolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return fmt.Errorf("parsing tool list: %w", err)
	}

	for _, tool := range list.Tools {
		fmt.Printf("%-16s %s\n", tool.Name, tool.Description)
	}
	return nil
}

func runHealth(ctx context.Context, cfg *Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Gateway.URL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health struct {
		Status         string `json:"status"`
		Version        string `json:"version"`
		UptimeSeconds  int64  `json:"uptime_seconds"`
		ActiveSessions int    `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("status:   %s\n", health.Status)
	fmt.Printf("version:  %s\n", health.Version)
	fmt.Printf("uptime:   %ds\n", health.UptimeSeconds)
	fmt.Printf("sessions: %d\n", health.ActiveSessions)
	return nil
}
