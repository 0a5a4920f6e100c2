// Package ide exposes the debug controller to an IDE as a Model Context
// Protocol server over stdio. Tool calls map onto controller operations and
// controller events are pushed to every client as notifications.
package ide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/debug"
)

// EventMethod is the notification method carrying controller events.
const EventMethod = "notifications/mcudbg/event"

// Config contains configuration for the MCP server.
type Config struct {
	// Name and Version identify the server to clients.
	Name    string
	Version string

	// EnabledTools optionally restricts which tools are available. Entries may
	// end in '*' to match a prefix. If empty, all tools are enabled.
	EnabledTools []string
}

// Server serves one debug controller to MCP clients.
type Server struct {
	ctrl   *debug.Controller
	mcp    *server.MCPServer
	config Config
	logger zerolog.Logger

	handlers map[string]toolHandler
}

// New creates a server and registers its tools.
func New(ctrl *debug.Controller, config Config, logger zerolog.Logger) *Server {
	if config.Name == "" {
		config.Name = "mcudbg"
	}
	if config.Version == "" {
		config.Version = "dev"
	}

	s := &Server{
		ctrl:     ctrl,
		config:   config,
		logger:   logger.With().Str("component", "ide").Logger(),
		handlers: map[string]toolHandler{},
		mcp: server.NewMCPServer(
			config.Name,
			config.Version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()

	s.logger.Debug().Int("tool_count", len(s.handlers)).Msg("MCP server initialized")
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ToolNames returns the registered tool names, sorted.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serve speaks the protocol on in and out until ctx is done or in is closed.
// The debug session, if any, is stopped on return.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.forwardEvents(ctx)

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))

	s.logger.Info().Msg("Serving MCP on stdio")
	err := stdio.Listen(ctx, in, out)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if stopErr := s.ctrl.Stop(stopCtx); stopErr != nil {
		s.logger.Warn().Err(stopErr).Msg("Failed to stop debug session")
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// forwardEvents relays controller events to clients until ctx is done.
func (s *Server) forwardEvents(ctx context.Context) {
	events, unsubscribe := s.ctrl.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mcp.SendNotificationToAllClients(EventMethod, eventParams(ev))
		}
	}
}

func eventParams(ev debug.Event) map[string]any {
	params := map[string]any{
		"kind":       ev.Kind.String(),
		"session_id": ev.SessionID,
		"time":       ev.Time.Format(time.RFC3339Nano),
	}
	if ev.Reason != "" {
		params["reason"] = ev.Reason
	}
	return params
}

// generateInputSchema reflects an inline JSON schema for a tool input type.
func generateInputSchema(inputType any) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputType)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	// MCP clients expect a plain object schema.
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")
	if _, ok := schemaMap["properties"]; !ok {
		schemaMap["properties"] = map[string]any{}
	}

	return json.Marshal(schemaMap)
}

type toolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// registerTool adds a tool whose input schema is reflected from inputType.
func (s *Server) registerTool(name, description string, inputType any, handler toolHandler) {
	if !s.isToolEnabled(name) {
		return
	}

	schema, err := generateInputSchema(inputType)
	if err != nil {
		s.logger.Error().Err(err).Str("tool", name).Msg("Failed to generate input schema")
		return
	}

	s.mcp.AddTool(mcp.NewToolWithRawSchema(name, description, schema), handler)
	s.handlers[name] = handler
}

func (s *Server) isToolEnabled(name string) bool {
	if len(s.config.EnabledTools) == 0 {
		return true
	}
	for _, pattern := range s.config.EnabledTools {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if pattern == name {
			return true
		}
	}
	return false
}

// bindArguments decodes the call arguments into input.
func bindArguments(request mcp.CallToolRequest, input any) error {
	if request.Params.Arguments == nil {
		return nil
	}
	argBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(argBytes, input); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(action string, err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err)), nil
}
