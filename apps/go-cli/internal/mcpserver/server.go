package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	pb "github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apphost"
)

const (
	statusURI = "pushbridge://status"
	eventsURI = "pushbridge://events"
)

// Deps are the bridge components exposed over MCP.
type Deps struct {
	Tokens    *pb.TokenProvider
	Runtime   *apphost.Runtime
	Device    *apphost.Device
	EventName string
}

// BridgeMCPServer exposes the push bridge as MCP tools and resources.
type BridgeMCPServer struct {
	server  *mcp.Server
	tokens  *pb.TokenProvider
	runtime *apphost.Runtime
	device  *apphost.Device
	relay   *pb.NotificationOpenRelay
	logger  *slog.Logger

	mu        sync.RWMutex
	lastToken string
	lastError string
	taps      int

	events    apphost.Subscription
	watchDone chan struct{}
	closeOnce sync.Once
}

// New creates a BridgeMCPServer and starts forwarding runtime events as
// resource updates.
func New(deps Deps, version string, logger *slog.Logger) *BridgeMCPServer {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "pushbridge",
		Version: version,
	}, &mcp.ServerOptions{
		SubscribeHandler:   func(context.Context, *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(context.Context, *mcp.UnsubscribeRequest) error { return nil },
	})

	relayOpts := []pb.RelayOption{pb.WithRelayLogger(logger)}
	if deps.EventName != "" {
		relayOpts = append(relayOpts, pb.WithEventName(deps.EventName))
	}

	g := &BridgeMCPServer{
		server:    s,
		tokens:    deps.Tokens,
		runtime:   deps.Runtime,
		device:    deps.Device,
		relay:     pb.NewNotificationOpenRelay(deps.Runtime, relayOpts...),
		logger:    logger,
		events:    deps.Runtime.Subscribe(apphost.AllEvents),
		watchDone: make(chan struct{}),
	}

	g.registerResources()
	g.registerTools()
	go g.watchEvents()

	return g
}

// Run starts the MCP server on stdio and blocks until done.
func (g *BridgeMCPServer) Run(ctx context.Context) error {
	defer g.Close()
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// RunWithTransport starts the MCP server on a custom transport (for testing).
func (g *BridgeMCPServer) RunWithTransport(ctx context.Context, t mcp.Transport) error {
	_, err := g.server.Connect(ctx, t, nil)
	return err
}

// Close stops forwarding runtime events.
func (g *BridgeMCPServer) Close() {
	g.closeOnce.Do(func() {
		go g.runtime.Unsubscribe(g.events)
		<-g.watchDone
	})
}

// watchEvents turns every emitted runtime event into a resource update. It
// ends when the subscription channel is closed.
func (g *BridgeMCPServer) watchEvents() {
	defer close(g.watchDone)
	for msg := range g.events {
		ev, ok := msg.(apphost.Event)
		if !ok {
			continue
		}
		g.logger.Debug("runtime event", "event", ev.Name, "id", ev.ID.String())

		meta := mcp.Meta{"type": "event", "name": ev.Name}
		if evJSON, err := json.Marshal(ev); err == nil {
			meta["event"] = json.RawMessage(evJSON)
		}
		ctx := context.Background()
		g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: eventsURI, Meta: meta})
		g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
	}
}

// jsonResult marshals v to JSON and returns it as a text CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError=true.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
