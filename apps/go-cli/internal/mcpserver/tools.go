package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	pb "github.com/slush-dev/pushbridge"
)

func (g *BridgeMCPServer) registerTools() {
	g.server.AddTool(getTokenTool(), g.handleGetToken)
	g.server.AddTool(notificationTappedTool(), g.handleNotificationTapped)
	g.server.AddTool(startRuntimeTool(), g.handleStartRuntime)
}

func getTokenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_token",
		Description: "Fetch the current push registration token from the backend. Every call asks the backend again.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *BridgeMCPServer) handleGetToken(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := g.tokens.Token(ctx)

	g.mu.Lock()
	if err != nil {
		g.lastError = err.Error()
	} else {
		g.lastToken = token
		g.lastError = ""
	}
	g.mu.Unlock()

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})

	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"token": token})
}

func notificationTappedTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "notification_tapped",
		Description: "Deliver a notification-tap signal. The payload reaches the runtime as a notification-opened event, now if the runtime is ready or once it becomes ready, and the app is brought to the foreground.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"payload": {"type": "object", "description": "Notification payload carried under the intent's \"notification\" extra"},
				"action": {"type": "string", "description": "Intent action (optional)"}
			}
		}`),
	}
}

func (g *BridgeMCPServer) handleNotificationTapped(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Payload map[string]any `json:"payload"`
		Action  string         `json:"action"`
	}
	if req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}

	before := len(g.device.Started())
	stateAtTap := g.runtime.State()

	var intent *pb.Intent
	if args.Payload != nil {
		intent = pb.NewNotificationIntent(args.Action, args.Payload)
	} else {
		intent = &pb.Intent{Action: args.Action}
	}
	g.relay.OnNotificationTapped(ctx, g.device, intent)

	g.mu.Lock()
	g.taps++
	g.mu.Unlock()

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})

	return jsonResult(map[string]any{
		"runtime_state_at_tap": stateAtTap.String(),
		"runtime_state":        g.runtime.State().String(),
		"emitted_now":          stateAtTap == pb.RuntimeReady,
		"launched":             len(g.device.Started()) > before,
	})
}

func startRuntimeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "start_runtime",
		Description: "Start creating the application runtime if it has not started. Optionally wait for it to become ready.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"wait_seconds": {"type": "integer", "description": "Seconds to wait for readiness (default: 0, return immediately)"}
			}
		}`),
	}
}

func (g *BridgeMCPServer) handleStartRuntime(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		WaitSeconds int `json:"wait_seconds"`
	}
	if req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}

	g.runtime.CreateContextInBackground()

	if args.WaitSeconds > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(args.WaitSeconds)*time.Second)
		defer cancel()
		if err := g.runtime.WaitReady(waitCtx); err != nil {
			return errorResult(fmt.Sprintf("runtime not ready: %v", err)), nil
		}
	}

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})

	return jsonResult(map[string]any{
		"runtime_state": g.runtime.State().String(),
		"boot_count":    g.runtime.BootCount(),
	})
}
