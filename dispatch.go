package httpmcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/httpmcp/httpmcp-go/internal/jsonrpc"
	"github.com/httpmcp/httpmcp-go/internal/logctx"
	"github.com/httpmcp/httpmcp-go/mcp"
)

// dispatch routes a structurally validated JSON-RPC message to its handler
// and produces the response. The caller decides what to do with the result:
// write it directly, publish it to the streaming channel, or (for
// notifications) drop it entirely.
func (s *Server) dispatch(ctx context.Context, req *jsonrpc.Request, rc *RequestContext) (*jsonrpc.Response, *Error) {
	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   msgType,
	})

	s.log.DebugContext(ctx, "dispatching message")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req)
	case "ping":
		return s.handlePing(ctx, req)

	case "notifications/initialized":
		return s.handleInitialized(ctx, req)

	case "resources/list":
		return s.handleResourcesList(ctx, req, rc)
	case "resources/read":
		return s.handleResourcesRead(ctx, req, rc)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(ctx, req)
	case "resources/subscribe":
		return s.handleResourcesSubscribe(ctx, req)

	case "tools/list":
		return s.handleToolsList(ctx, req)
	case "tools/call":
		return s.handleToolsCall(ctx, req, rc)

	case "prompts/list":
		return s.handlePromptsList(ctx, req)
	case "prompts/get":
		return s.handlePromptsGet(ctx, req, rc)

	case "logging/setLevel":
		return s.handleSetLevel(ctx, req)

	default:
		return nil, NewMethodNotFound(req.Method)
	}
}

// decodeParams unmarshals params into v. A missing params object decodes as
// null, leaving v zeroed; methods with mandatory fields check those
// explicitly afterwards.
func decodeParams(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewInvalidParams("Invalid params: " + err.Error())
	}
	return nil
}

func (s *Server) result(id *jsonrpc.RequestID, v any) (*jsonrpc.Response, *Error) {
	res, err := jsonrpc.NewResultResponse(id, v)
	if err != nil {
		return nil, NewSerializationError(err)
	}
	return res, nil
}

// handleInitialize validates the client's declared protocol version and
// returns the frozen capability set plus server identity. Only versions from
// the two supported year generations are accepted; the client's version is
// echoed back. Note that initialize is not a precondition for any other
// method: ping, tools/call and the rest work without a handshake.
func (s *Server) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	var params mcp.InitializeParams
	if derr := decodeParams(req.Params, &params); derr != nil {
		return nil, derr
	}
	if params.ProtocolVersion == "" {
		return nil, NewInvalidParams("Invalid initialize params: missing protocolVersion")
	}

	if !strings.HasPrefix(params.ProtocolVersion, "2024-") && !strings.HasPrefix(params.ProtocolVersion, "2025-") {
		return nil, NewInvalidRequest("Unsupported protocol version: " + params.ProtocolVersion)
	}

	s.log.InfoContext(ctx, "client initialized",
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("protocol_version", params.ProtocolVersion),
	)

	return s.result(req.ID, mcp.InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
	})
}

func (s *Server) handlePing(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	return s.result(req.ID, struct{}{})
}

func (s *Server) handleInitialized(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	s.log.DebugContext(ctx, "client initialized notification received")
	return s.result(req.ID, struct{}{})
}

// handleResourcesList fans out to every registered provider with the same
// cursor and concatenates the results in registration order, without
// deduplication. Aggregated pagination is not implemented: nextCursor is
// always absent.
func (s *Server) handleResourcesList(ctx context.Context, req *jsonrpc.Request, rc *RequestContext) (*jsonrpc.Response, *Error) {
	var params mcp.ListResourcesParams
	// Tolerant decode: a malformed cursor degrades to a first-page listing.
	_ = decodeParams(req.Params, &params)

	all := make([]mcp.Resource, 0)
	for _, provider := range s.resources.values() {
		resources, _, err := provider.list(ctx, params.Cursor, rc)
		if err != nil {
			return nil, asError(err)
		}
		all = append(all, resources...)
	}

	return s.result(req.ID, mcp.ListResourcesResult{Resources: all})
}

// handleResourcesRead asks every provider for the URI and concatenates the
// non-empty answers. An empty aggregate means nobody recognized the URI.
func (s *Server) handleResourcesRead(ctx context.Context, req *jsonrpc.Request, rc *RequestContext) (*jsonrpc.Response, *Error) {
	var params mcp.ReadResourceParams
	if derr := decodeParams(req.Params, &params); derr != nil {
		return nil, derr
	}
	if params.URI == "" {
		return nil, NewInvalidParams("Invalid params: missing uri")
	}

	contents := make([]mcp.ResourceContents, 0)
	for _, provider := range s.resources.values() {
		result, err := provider.read(ctx, params.URI, rc)
		if err != nil {
			return nil, asError(err)
		}
		contents = append(contents, result...)
	}

	if len(contents) == 0 {
		return nil, NewResourceNotFound(params.URI)
	}

	return s.result(req.ID, mcp.ReadResourceResult{Contents: contents})
}

// Resource templates are not supported by the provider registration surface;
// the listing is statically empty.
func (s *Server) handleResourceTemplatesList(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	return s.result(req.ID, mcp.ListResourceTemplatesResult{ResourceTemplates: []mcp.ResourceTemplate{}})
}

// Resource subscriptions are accepted and ignored; real subscription
// tracking is out of scope.
func (s *Server) handleResourcesSubscribe(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	return s.result(req.ID, nil)
}

func (s *Server) handleToolsList(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	tools := make([]mcp.Tool, 0, s.tools.len())
	for _, registered := range s.tools.values() {
		tools = append(tools, registered.tool)
	}
	return s.result(req.ID, mcp.ListToolsResult{Tools: tools})
}

// handleToolsCall invokes the named tool with its argument map (empty when
// absent) and wraps the returned value as a single stringified text content
// item. There is no isError path at this layer: a tool signals failure by
// returning an error, which surfaces as a JSON-RPC error response.
func (s *Server) handleToolsCall(ctx context.Context, req *jsonrpc.Request, rc *RequestContext) (*jsonrpc.Response, *Error) {
	var params mcp.CallToolParams
	if derr := decodeParams(req.Params, &params); derr != nil {
		return nil, derr
	}
	if params.Name == "" {
		return nil, NewInvalidParams("Invalid params: missing tool name")
	}

	registered, ok := s.tools.get(params.Name)
	if !ok {
		return nil, NewToolNotFound(params.Name)
	}

	args := params.Arguments
	if args == nil {
		args = make(map[string]any)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	s.log.DebugContext(ctx, "invoking tool")

	value, err := registered.handler(ctx, args, rc)
	if err != nil {
		return nil, asError(err)
	}

	text, err := json.Marshal(value)
	if err != nil {
		return nil, NewSerializationError(err)
	}

	return s.result(req.ID, mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(text))},
	})
}

func (s *Server) handlePromptsList(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	prompts := make([]mcp.Prompt, 0, s.prompts.len())
	for _, registered := range s.prompts.values() {
		prompts = append(prompts, registered.prompt)
	}
	return s.result(req.ID, mcp.ListPromptsResult{Prompts: prompts})
}

func (s *Server) handlePromptsGet(ctx context.Context, req *jsonrpc.Request, rc *RequestContext) (*jsonrpc.Response, *Error) {
	var params mcp.GetPromptParams
	if derr := decodeParams(req.Params, &params); derr != nil {
		return nil, derr
	}
	if params.Name == "" {
		return nil, NewInvalidParams("Invalid params: missing prompt name")
	}

	registered, ok := s.prompts.get(params.Name)
	if !ok {
		return nil, NewPromptNotFound(params.Name)
	}

	description, messages, err := registered.handler(ctx, params.Name, params.Arguments, rc)
	if err != nil {
		return nil, asError(err)
	}

	return s.result(req.ID, mcp.GetPromptResult{
		Description: description,
		Messages:    messages,
	})
}

// handleSetLevel parses and validates the requested level but does not apply
// it; log verbosity is fixed by the logger the server was built with.
func (s *Server) handleSetLevel(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *Error) {
	var params mcp.SetLevelParams
	if derr := decodeParams(req.Params, &params); derr != nil {
		return nil, derr
	}
	if !mcp.IsValidLoggingLevel(params.Level) {
		return nil, NewInvalidParams("Invalid params: unknown logging level " + string(params.Level))
	}

	s.log.DebugContext(ctx, "logging/setLevel accepted", slog.String("level", string(params.Level)))
	return s.result(req.ID, struct{}{})
}
