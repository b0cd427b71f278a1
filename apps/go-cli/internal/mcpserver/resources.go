package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (g *BridgeMCPServer) registerResources() {
	g.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "Bridge Status",
		Description: "Runtime lifecycle state, pending deliveries, taps and the last token fetch",
		MIMEType:    "application/json",
	}, g.handleStatusResource)

	g.server.AddResource(&mcp.Resource{
		URI:         eventsURI,
		Name:        "Runtime Events",
		Description: "Most recent events emitted into the application runtime, oldest first",
		MIMEType:    "application/json",
	}, g.handleEventsResource)
}

func (g *BridgeMCPServer) handleStatusResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	g.mu.RLock()
	status := map[string]any{
		"taps":       g.taps,
		"has_token":  g.lastToken != "",
		"last_error": g.lastError,
	}
	g.mu.RUnlock()

	status["runtime_state"] = g.runtime.State().String()
	status["boot_count"] = g.runtime.BootCount()
	status["pending_deliveries"] = g.runtime.ListenerCount()
	status["launches"] = len(g.device.Started())
	status["package"] = g.device.PackageName()

	return jsonResource(req.Params.URI, status)
}

func (g *BridgeMCPServer) handleEventsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, g.runtime.Events())
}

// jsonResource marshals v to JSON and wraps it in a ReadResourceResult.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
