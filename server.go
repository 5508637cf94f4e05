package httpmcp

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/httpmcp/httpmcp-go/broker"
	"github.com/httpmcp/httpmcp-go/broker/memory"
	"github.com/httpmcp/httpmcp-go/internal/logctx"
	"github.com/httpmcp/httpmcp-go/mcp"
)

// mcpPath is the route serving the protocol endpoint: POST for messages, GET
// for the SSE stream.
const mcpPath = "/mcp"

// Server is a frozen MCP gateway. All registries, the capability set and the
// streaming delivery channel are fixed at Build time; the value is safe for
// unsynchronized concurrent use and implements http.Handler.
type Server struct {
	info         mcp.ImplementationInfo
	capabilities mcp.ServerCapabilities

	tools     *registry[*registeredTool]
	resources *registry[*registeredResource]
	prompts   *registry[*registeredPrompt]

	endpoints          []registeredEndpoint
	multipartEndpoints []registeredMultipartEndpoint

	oauth      *OAuthConfig
	enableCORS bool

	responses broker.Broker
	ownBroker bool

	log *slog.Logger
	mux *http.ServeMux
}

// Builder accumulates server configuration. Each method returns the builder
// for chaining; Build finalizes the accumulated state into an immutable
// Server and no partially built state is ever exposed to request handling.
type Builder struct {
	name    string
	version string

	tools     *registry[*registeredTool]
	resources *registry[*registeredResource]
	prompts   *registry[*registeredPrompt]

	endpoints          []registeredEndpoint
	multipartEndpoints []registeredMultipartEndpoint

	oauth      *OAuthConfig
	enableCORS bool

	responses broker.Broker
	log       *slog.Logger
}

// NewBuilder starts a server configuration with defaults: CORS enabled, no
// auth check, an in-memory broadcast channel, and discarded logs.
func NewBuilder() *Builder {
	return &Builder{
		name:       "httpmcp-server",
		version:    "1.0.0",
		tools:      newRegistry[*registeredTool](),
		resources:  newRegistry[*registeredResource](),
		prompts:    newRegistry[*registeredPrompt](),
		enableCORS: true,
	}
}

// Name sets the server name advertised in the initialize result.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Version sets the server version advertised in the initialize result.
func (b *Builder) Version(version string) *Builder {
	b.version = version
	return b
}

// Tool registers a tool handler. Re-registering a name replaces the prior
// entry while keeping its position in listing order.
func (b *Builder) Tool(name string, meta ToolMeta, handler ToolHandler) *Builder {
	b.tools.put(name, &registeredTool{tool: meta.toTool(name), handler: handler})
	return b
}

// Resource registers an independent resource provider keyed by uri, with its
// own list and read handlers. Listing and reading fan out across every
// registered provider.
func (b *Builder) Resource(uri string, meta ResourceMeta, list ResourceListHandler, read ResourceReadHandler) *Builder {
	b.resources.put(uri, &registeredResource{resource: meta.toResource(uri), list: list, read: read})
	return b
}

// Prompt registers a prompt handler. Re-registering a name replaces the
// prior entry while keeping its position in listing order.
func (b *Builder) Prompt(name string, meta PromptMeta, handler PromptHandler) *Builder {
	b.prompts.put(name, &registeredPrompt{prompt: meta.toPrompt(name), handler: handler})
	return b
}

// Endpoint registers a custom HTTP endpoint served alongside the protocol
// endpoint.
func (b *Builder) Endpoint(meta EndpointMeta, handler EndpointHandler) *Builder {
	b.endpoints = append(b.endpoints, registeredEndpoint{meta: meta, handler: handler})
	return b
}

// MultipartEndpoint registers a custom file-upload endpoint.
func (b *Builder) MultipartEndpoint(meta EndpointMeta, handler MultipartHandler) *Builder {
	b.multipartEndpoints = append(b.multipartEndpoints, registeredMultipartEndpoint{meta: meta, handler: handler})
	return b
}

// WithOAuth enables the presence-only bearer check on every endpoint. See
// OAuthConfig for the (lack of) guarantees.
func (b *Builder) WithOAuth(clientID, clientSecret string) *Builder {
	b.oauth = &OAuthConfig{ClientID: clientID, ClientSecret: clientSecret}
	return b
}

// EnableCORS toggles permissive CORS headers on protocol responses. Enabled
// by default.
func (b *Builder) EnableCORS(enable bool) *Builder {
	b.enableCORS = enable
	return b
}

// WithBroker replaces the default in-memory streaming delivery channel, e.g.
// with a redisbroker for multi-instance deployments. The caller retains
// ownership: Server.Close will not close a caller-provided broker.
func (b *Builder) WithBroker(br broker.Broker) *Builder {
	b.responses = br
	return b
}

// WithLogger sets the slog logger. Request, RPC and tool attributes are
// folded into every record via the context.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build freezes the configuration into a Server. The capability set is
// computed here, once: logging is always advertised, while the prompt,
// resource and tool capabilities are present iff the respective registry is
// non-empty at this moment.
func (b *Builder) Build() (*Server, error) {
	caps := mcp.ServerCapabilities{
		Logging: &mcp.LoggingCapability{},
	}
	if b.prompts.len() > 0 {
		caps.Prompts = &mcp.PromptsCapability{}
	}
	if b.resources.len() > 0 {
		caps.Resources = &mcp.ResourcesCapability{}
	}
	if b.tools.len() > 0 {
		caps.Tools = &mcp.ToolsCapability{}
	}

	responses := b.responses
	ownBroker := false
	if responses == nil {
		responses = memory.New(memory.WithCapacity(broker.DefaultCapacity))
		ownBroker = true
	}

	log := b.log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = slog.New(logctx.Handler{Handler: log.Handler()})

	s := &Server{
		info:               mcp.ImplementationInfo{Name: b.name, Version: b.version},
		capabilities:       caps,
		tools:              b.tools,
		resources:          b.resources,
		prompts:            b.prompts,
		endpoints:          b.endpoints,
		multipartEndpoints: b.multipartEndpoints,
		oauth:              b.oauth,
		enableCORS:         b.enableCORS,
		responses:          responses,
		ownBroker:          ownBroker,
		log:                log,
	}
	s.mux = s.buildMux()

	return s, nil
}

// Run serves the gateway on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("mcp server listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeBroker()
		return err
	}
}

// Close releases the server's own resources. A broker supplied via
// WithBroker is left open.
func (s *Server) Close() error {
	s.closeBroker()
	return nil
}

func (s *Server) closeBroker() {
	if s.ownBroker {
		_ = s.responses.Close()
	}
}
