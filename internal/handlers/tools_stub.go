package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/flowengine/internal/llm"
)

// NoToolsCatalog is a ToolCatalog with no entries, for deployments
// that run agent nodes without any tools configured. Real tool
// catalogs (schema registries, MCP servers, etc.) are out of this
// engine's scope (§4.4.3 step 2 is explicitly an external interface).
type NoToolsCatalog struct{}

func (NoToolsCatalog) Lookup(toolID string) (llm.ToolSpec, error) {
	return llm.ToolSpec{}, fmt.Errorf("no tool catalog configured: unknown tool %q", toolID)
}

// UnimplementedToolExecutor rejects every tool call. Wiring a real
// executor (HTTP call-out, MCP client, etc.) is the embedding
// application's responsibility.
type UnimplementedToolExecutor struct{}

func (UnimplementedToolExecutor) Execute(ctx context.Context, toolID string, arguments map[string]interface{}) (json.RawMessage, error) {
	return nil, fmt.Errorf("tool execution not configured: %q", toolID)
}
