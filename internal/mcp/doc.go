// Package mcp implements the Model Context Protocol server for Bemfa light control.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This package
// provides an MCP-compatible HTTP server that exposes Bemfa broker tools to external
// AI clients (like Claude Desktop, other LLMs, or custom applications).
//
// # Protocol
//
// The server uses JSON-RPC 2.0 over the SSE transport. Key endpoints:
//
//   - GET /sse - opens the session stream; the first event names the message endpoint
//   - POST /messages?session_id=<id> - JSON-RPC requests (initialize, tools/list, tools/call)
//
// Each POST is acknowledged synchronously with {"ack": true}; the actual
// result arrives on the session's SSE stream as a message event. Broker
// messages arrive the same way as notifications/message notifications.
//
// # Sessions
//
// Every SSE stream is one session with its own independent broker
// connection. Closing the stream tears down the session and its connection.
// Session IDs are unguessable UUIDs and scope all request IDs.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "controlLight",
//	    "arguments": {"command": "on"}
//	  },
//	  "id": 2
//	}
//
// The five tools are configureBemfa, connectBemfa, controlLight,
// disconnectBemfa, and getConfig.
//
// # Error Codes
//
// Broker failures map onto JSON-RPC error codes:
//
//	-32602  validation failure or unsupported command
//	-32002  session not configured
//	-32003  not connected to broker
//	-32004  broker connection failed
//	-32005  publish failed
//
// # Usage
//
// Create the server and register its routes:
//
//	server, err := mcp.NewServer(mcp.Config{Sessions: sessions, Bridges: bridges})
//	server.RegisterRoutes(mux)
//
// # Integration with Claude Desktop
//
// Add to Claude Desktop's MCP configuration:
//
//	{
//	  "mcpServers": {
//	    "bemfa": {
//	      "url": "http://localhost:8080/sse"
//	    }
//	  }
//	}
package mcp
