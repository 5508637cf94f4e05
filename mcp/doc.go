// Package mcp contains the wire-level value types exchanged over the MCP
// JSON-RPC surface: capability advertisements, tool and prompt descriptors,
// resource listings and contents, and the parameter/result shapes of every
// protocol method this gateway dispatches.
//
// The types here are plain data. They carry no behavior beyond JSON mapping
// and a few small constructors; all protocol semantics live in the root
// httpmcp package.
package mcp
