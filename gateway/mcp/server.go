package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alimaamoun/DM-Agent/gateway"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "content-automation"
	serverVersion   = "1.0.0"
)

// Server answers MCP requests with a gateway Service.
type Server struct {
	svc    *gateway.Service
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to the protocol stream.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer creates a Server.
func NewServer(svc *gateway.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads newline-delimited requests from r and writes responses to w
// until r is exhausted or ctx is done. Notifications get no response.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			if !errors.As(err, &syntaxErr) {
				return fmt.Errorf("mcp: read request: %w", err)
			}
			// The stream cannot be resynchronized after a syntax error.
			_ = enc.Encode(&Response{
				JSONRPC: "2.0",
				ID:      0,
				Error:   &ErrorObject{Code: ParseError, Message: "Failed to parse request"},
			})
			return fmt.Errorf("mcp: parse request: %w", err)
		}

		resp := s.HandleRequest(ctx, &req)
		if resp == nil || req.ID == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("mcp: write response: %w", err)
		}
	}
}

// HandleRequest processes one request. It returns nil for notifications of
// unknown methods.
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req.ID, InvalidRequest, "jsonrpc must be 2.0")
	}
	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, map[string]any{"tools": allTools()})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, InvalidParams, "Invalid parameters")
		}
		return s.callTool(ctx, req.ID, params.Name, params.Arguments)
	case "ping":
		return result(req.ID, map[string]any{})
	}

	if req.ID == nil {
		return nil
	}
	return errorResponse(req.ID, MethodNotFound, "Method not found: "+req.Method)
}

func (s *Server) callTool(ctx context.Context, id any, name string, args json.RawMessage) *Response {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	h, ok := s.handlers()[name]
	if !ok {
		return errorResponse(id, MethodNotFound, "Unknown tool: "+name)
	}

	out, err := h(ctx, args)
	var argErr *argumentError
	switch {
	case errors.As(err, &argErr):
		return errorResponse(id, InvalidParams, argErr.Error())
	case err != nil:
		s.logger.Warn("tool call failed",
			slog.String("tool", name),
			slog.String("error", err.Error()),
		)
		return toolResult(id, toolError(err), true)
	}
	s.logger.Debug("tool call", slog.String("tool", name))
	return toolResult(id, out, false)
}

func result(id any, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(id, InternalError, fmt.Sprintf("Failed to marshal result: %v", err))
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: data}
}

func toolResult(id any, v any, isError bool) *Response {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(id, InternalError, fmt.Sprintf("Failed to marshal result: %v", err))
	}
	return result(id, ToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		IsError: isError,
	})
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
}
