package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/SteelMorgan/vpngate-harvester/internal/handlers"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/rs/zerolog/log"
)

const protocolVersion = "2024-11-05"

// MCPProtocol implements Model Context Protocol over stdio (JSON-RPC)
type MCPProtocol struct {
	server  *Server
	version string
	stdin   *bufio.Scanner
	stdout  io.Writer
}

// MCPRequest represents a JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents a JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ServerInfo names this server in the initialize response
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResponse represents MCP initialize response
type InitializeResponse struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolsListResponse represents tools/list response
type ToolsListResponse struct {
	Tools []Tool `json:"tools"`
}

// ToolCallRequest represents tools/call request
type ToolCallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// NewMCPProtocol creates a new MCP protocol handler on stdin/stdout
func NewMCPProtocol(server *Server, version string) *MCPProtocol {
	return newMCPProtocol(server, version, os.Stdin, os.Stdout)
}

func newMCPProtocol(server *Server, version string, in io.Reader, out io.Writer) *MCPProtocol {
	return &MCPProtocol{
		server:  server,
		version: version,
		stdin:   bufio.NewScanner(in),
		stdout:  out,
	}
}

// Start processes requests until stdin is closed
func (m *MCPProtocol) Start(ctx context.Context) error {
	log.Info().Msg("MCP stdio protocol server starting...")

	if err := m.sendInitialized(); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	for m.stdin.Scan() {
		line := m.stdin.Text()
		if line == "" {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Error().Err(err).Str("line", line).Msg("Failed to parse JSON-RPC request")
			m.sendError(nil, -32700, "Parse error", err.Error())
			continue
		}

		if err := m.handleRequest(ctx, &req); err != nil {
			log.Error().Err(err).Str("method", req.Method).Msg("Failed to handle request")
		}
	}

	if err := m.stdin.Err(); err != nil {
		return fmt.Errorf("stdin scanner error: %w", err)
	}

	return nil
}

// sendInitialized sends the initialized notification
func (m *MCPProtocol) sendInitialized() error {
	notification := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "initialized",
	}
	return m.writeJSON(notification)
}

// handleRequest handles a JSON-RPC request
func (m *MCPProtocol) handleRequest(ctx context.Context, req *MCPRequest) error {
	switch req.Method {
	case "initialize":
		return m.handleInitialize(req)
	case "tools/list":
		return m.handleToolsList(req)
	case "tools/call":
		return m.handleToolCall(ctx, req)
	default:
		return m.sendError(req.ID, -32601, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (m *MCPProtocol) handleInitialize(req *MCPRequest) error {
	response := MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResponse{
			ProtocolVersion: protocolVersion,
			Capabilities: map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			ServerInfo: ServerInfo{
				Name:    observability.ServiceName,
				Version: m.version,
			},
		},
	}
	return m.writeJSON(response)
}

func (m *MCPProtocol) handleToolsList(req *MCPRequest) error {
	tools := []Tool{
		{
			Name:        "list_servers",
			Description: "List stored VPN relay servers with their latest metrics, ordered by name",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"country_code": map[string]interface{}{"type": "string"},
					"limit":        map[string]interface{}{"type": "integer"},
				},
			},
		},
		{
			Name:        "get_server_history",
			Description: "Get one server's identity and its metric and test samples in a time range",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{"type": "string"},
					"from": map[string]interface{}{"type": "string", "format": "date-time"},
					"to":   map[string]interface{}{"type": "string", "format": "date-time"},
					"mode": map[string]interface{}{"type": "string", "enum": []string{handlers.ModeMinimal, handlers.ModeFull}},
				},
				"required": []string{"name"},
			},
		},
	}

	response := MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolsListResponse{Tools: tools},
	}
	return m.writeJSON(response)
}

func (m *MCPProtocol) handleToolCall(ctx context.Context, req *MCPRequest) error {
	var callReq ToolCallRequest
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		m.sendError(req.ID, -32602, "Invalid params", err.Error())
		return err
	}

	var (
		result string
		err    error
	)
	switch callReq.Name {
	case "list_servers":
		result, err = m.server.listServersHandler.ListServers(ctx, handlers.ListServersParams{
			CountryCode: stringArg(callReq.Arguments, "country_code"),
			Limit:       intArg(callReq.Arguments, "limit"),
		})
	case "get_server_history":
		var params handlers.ServerHistoryParams
		params, err = historyParams(
			stringArg(callReq.Arguments, "name"),
			stringArg(callReq.Arguments, "from"),
			stringArg(callReq.Arguments, "to"),
			stringArg(callReq.Arguments, "mode"),
		)
		if err == nil {
			result, err = m.server.serverHistoryHandler.GetServerHistory(ctx, params)
		}
	default:
		return m.sendError(req.ID, -32601, "Method not found", fmt.Sprintf("Unknown tool: %s", callReq.Name))
	}

	if err != nil {
		var valErr *handlers.ValidationError
		if errors.As(err, &valErr) {
			return m.sendError(req.ID, -32602, "Invalid params", valErr)
		}
		m.sendError(req.ID, -32603, "Internal error", err.Error())
		return err
	}

	response := MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
	return m.writeJSON(response)
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg reads a JSON number; encoding/json decodes them as float64
func intArg(args map[string]interface{}, key string) int {
	v, _ := args[key].(float64)
	return int(v)
}

// sendError sends a JSON-RPC error response
func (m *MCPProtocol) sendError(id interface{}, code int, message string, data interface{}) error {
	response := MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	return m.writeJSON(response)
}

// writeJSON writes one JSON object per line to stdout
func (m *MCPProtocol) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = m.stdout.Write(data)
	return err
}
