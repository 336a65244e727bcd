// Package mcpserver exposes the nudge call surface as MCP tools over stdio.
//
// Each tool is named after its JSON-RPC method and takes the same
// arguments, so a call made here and one forwarded over the loopback
// endpoint go through the same rpc.Dispatch path. Failed calls come back as
// tool results with IsError set and a structured error:
//
//	{"error": {"code": 40401, "message": "...", "data": {"code": "NOT_FOUND", ...}}}
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/rpc"
)

const serverName = "nudge"

const instructions = `nudge keeps short-lived hints about the current workspace: how to build,
test or run a component, where things live, which command to use on which
branch. Call nudge.query with your working context before guessing a command,
nudge.bump when a hint helped, and nudge.set_hint when you learn something
worth telling the next agent.`

// Options configures the MCP server.
type Options struct {
	Version string
	Logger  zerolog.Logger
}

type setHintInput struct {
	Component       string         `json:"component" jsonschema:"component the hint belongs to, e.g. a service name"`
	Key             string         `json:"key" jsonschema:"hint key within the component, e.g. build or test"`
	Value           any            `json:"value" jsonschema:"a plain string or a typed object with type command, path, template or json"`
	Meta            map[string]any `json:"meta,omitempty" jsonschema:"reason, tags, priority 1-10, confidence 0-1, ttl (ISO-8601 or session), sensitivity, scope, source"`
	ExpectedVersion *int64         `json:"expected_version,omitempty" jsonschema:"fail unless the stored version equals this; 0 means the hint must not exist"`
	AllowSecret     bool           `json:"allow_secret,omitempty" jsonschema:"store a secret-looking value marked sensitivity=secret"`
}

type getHintInput struct {
	Component string        `json:"component" jsonschema:"component name"`
	Key       string        `json:"key" jsonschema:"hint key"`
	Context   *hint.Context `json:"context,omitempty" jsonschema:"caller context used to evaluate scope"`
}

type queryInput struct {
	Component string        `json:"component,omitempty" jsonschema:"restrict to one component"`
	Keys      []string      `json:"keys,omitempty" jsonschema:"restrict to these keys"`
	Tags      []string      `json:"tags,omitempty" jsonschema:"keep hints carrying any of these tags"`
	Pattern   string        `json:"pattern,omitempty" jsonschema:"regular expression matched against the value text"`
	Regex     string        `json:"regex,omitempty" jsonschema:"alias of pattern"`
	Context   *hint.Context `json:"context,omitempty" jsonschema:"caller context used to evaluate scope"`
	Limit     int           `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type keyInput struct {
	Component string `json:"component" jsonschema:"component name"`
	Key       string `json:"key" jsonschema:"hint key"`
}

type bumpInput struct {
	Component string `json:"component" jsonschema:"component name"`
	Key       string `json:"key" jsonschema:"hint key"`
	Delta     *int64 `json:"delta,omitempty" jsonschema:"uses to add, default 1"`
}

type exportInput struct {
	Format    string   `json:"format,omitempty" jsonschema:"only json is supported"`
	Component string   `json:"component,omitempty" jsonschema:"export one component"`
	Tags      []string `json:"tags,omitempty" jsonschema:"export hints carrying any of these tags"`
}

type importInput struct {
	Payload   map[string]any `json:"payload" jsonschema:"an export payload with schema_version and components"`
	Mode      string         `json:"mode,omitempty" jsonschema:"merge (default) or replace"`
	Component string         `json:"component,omitempty" jsonschema:"restrict import and replace to one component"`
}

type noInput struct{}

// New builds an MCP server whose tools call h.
func New(h rpc.Handler, opts Options) *mcp.Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
	})
	log := opts.Logger.With().Str("component", "mcp").Logger()

	addTool[setHintInput](s, h, log, rpc.MethodSetHint,
		"Create or replace a hint. Returns the stored hint with its new version.")
	addTool[getHintInput](s, h, log, rpc.MethodGetHint,
		"Fetch one hint and explain whether it matches the given context.")
	addTool[queryInput](s, h, log, rpc.MethodQuery,
		"Search hints that match the given context, best first.")
	addTool[keyInput](s, h, log, rpc.MethodDeleteHint,
		"Delete a hint and return what was stored.")
	addTool[noInput](s, h, log, rpc.MethodListComponents,
		"List components with their live hint counts.")
	addTool[bumpInput](s, h, log, rpc.MethodBump,
		"Record that a hint was used so it ranks higher next time.")
	addTool[exportInput](s, h, log, rpc.MethodExport,
		"Export hints as a versioned JSON payload.")
	addTool[importInput](s, h, log, rpc.MethodImport,
		"Import an export payload, skipping invalid entries.")
	return s
}

// addTool registers method as a tool taking In. The input is re-encoded and
// dispatched exactly as a JSON-RPC call would be.
func addTool[In any](s *mcp.Server, h rpc.Handler, log zerolog.Logger, method, description string) {
	tool := &mcp.Tool{Name: method, Description: description}
	mcp.AddTool(s, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		params, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s arguments: %w", method, err)
		}
		out, err := rpc.Dispatch(ctx, h, method, params)
		if err != nil {
			log.Debug().Err(err).Str("tool", method).Msg("tool call failed")
			return errorResult(err), nil, nil
		}
		return nil, out, nil
	})
}

func errorResult(err error) *mcp.CallToolResult {
	obj := rpc.NewErrorObject(err)
	text := obj.Message
	if obj.Data != nil {
		text = fmt.Sprintf("%s: %s", obj.Data.Code, obj.Message)
	}
	return &mcp.CallToolResult{
		IsError:           true,
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: map[string]any{"error": obj},
	}
}

// Serve runs s on transport until the client disconnects or ctx ends.
func Serve(ctx context.Context, s *mcp.Server, transport mcp.Transport) error {
	err := s.Run(ctx, transport)
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeStdio runs s on the process's stdin and stdout.
func ServeStdio(ctx context.Context, s *mcp.Server) error {
	return Serve(ctx, s, &mcp.StdioTransport{})
}
