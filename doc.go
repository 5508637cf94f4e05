// Package httpmcp implements an HTTP gateway for the Model Context Protocol
// (MCP): a single JSON-RPC 2.0 endpoint exposing tools, resources and prompts
// to MCP clients, with an optional server-sent-events channel for streaming
// response delivery.
//
// Servers are assembled with a Builder and frozen by Build. Everything the
// gateway advertises, including the capability set returned by initialize, is
// fixed at that point; the resulting Server is an http.Handler that is safe
// for concurrent use without further synchronization.
//
//	srv, err := httpmcp.NewBuilder().
//		Name("calculator").
//		Version("0.1.0").
//		Tool("add",
//			httpmcp.NewToolMeta().
//				Description("Adds two numbers").
//				Param("a", "number", "first operand").
//				Param("b", "number", "second operand").
//				Required("a", "b"),
//			func(ctx context.Context, args map[string]any, rc *httpmcp.RequestContext) (any, error) {
//				a, _ := args["a"].(float64)
//				b, _ := args["b"].(float64)
//				return map[string]any{"result": a + b}, nil
//			}).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(srv.Run(ctx, ":8080"))
//
// Clients POST JSON-RPC messages to /mcp. A request whose Accept header
// admits text/event-stream is answered with 202 Accepted and its response is
// published to the streaming channel, where any connection opened with GET
// /mcp receives it; when no stream is connected the response comes back
// directly on the POST. Notifications always yield 204 No Content and never
// a body, whatever the processing outcome.
//
// The streaming channel is a bounded broadcast: publishers never block, and
// a consumer that falls behind is told how many events it missed via a "gap"
// frame before delivery resumes. Multi-instance deployments can share one
// channel by wiring a redisbroker through Builder.WithBroker.
package httpmcp
