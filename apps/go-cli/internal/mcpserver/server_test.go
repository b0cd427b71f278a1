package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	pb "github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apphost"
)

const testPackage = "com.example.app"

type testEnv struct {
	cs      *mcp.ClientSession
	g       *BridgeMCPServer
	runtime *apphost.Runtime
	device  *apphost.Device
	release chan struct{}
}

// testServer wires a server over in-memory transports. The runtime boots only
// once release is closed.
func testServer(t *testing.T, src pb.TokenSource) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	release := make(chan struct{})
	rt := apphost.NewRuntime(apphost.WithLogger(logger), apphost.WithBootFunc(func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	dev := apphost.NewDevice(testPackage,
		apphost.WithLauncherActivity(testPackage+".MainActivity"),
		apphost.WithDeviceLogger(logger),
	)

	g := New(Deps{
		Tokens:  pb.NewTokenProvider(src, pb.WithTokenLogger(logger)),
		Runtime: rt,
		Device:  dev,
	}, "test", logger)
	t.Cleanup(func() {
		g.Close()
		rt.Close()
	})

	t1, t2 := mcp.NewInMemoryTransports()
	ctx := context.Background()

	if err := g.RunWithTransport(ctx, t1); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil)
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	return &testEnv{cs: cs, g: g, runtime: rt, device: dev, release: release}
}

func staticToken(token string, err error) pb.TokenSource {
	return pb.TokenSourceFunc(func(context.Context) (string, error) { return token, err })
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call tool %s: %v", name, err)
	}
	text := result.Content[0].(*mcp.TextContent).Text
	if result.IsError {
		return result, map[string]any{"error": text}
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		t.Fatalf("unmarshal %s result: %v", name, err)
	}
	return result, data
}

func readJSON(t *testing.T, cs *mcp.ClientSession, uri string, v any) {
	t.Helper()
	result, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	if err := json.Unmarshal([]byte(result.Contents[0].Text), v); err != nil {
		t.Fatalf("unmarshal %s: %v", uri, err)
	}
}

func waitForEvents(t *testing.T, rt *apphost.Runtime, n int) []apphost.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := rt.Events(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(rt.Events()))
	return nil
}

func TestToolsRegistered(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	expectedTools := map[string]bool{
		"get_token":           false,
		"notification_tapped": false,
		"start_runtime":       false,
	}
	for tool, err := range env.cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing tools: %v", err)
		}
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestResourcesRegistered(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	expectedResources := map[string]bool{statusURI: false, eventsURI: false}
	for res, err := range env.cs.Resources(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing resources: %v", err)
		}
		if _, ok := expectedResources[res.URI]; ok {
			expectedResources[res.URI] = true
		}
	}
	for uri, found := range expectedResources {
		if !found {
			t.Errorf("resource %q not registered", uri)
		}
	}
}

func TestStatusResource_Initial(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	var status map[string]any
	readJSON(t, env.cs, statusURI, &status)

	if status["runtime_state"] != "NOT_STARTED" {
		t.Errorf("expected runtime_state=NOT_STARTED, got %v", status["runtime_state"])
	}
	if status["has_token"] != false {
		t.Errorf("expected has_token=false, got %v", status["has_token"])
	}
	if status["package"] != testPackage {
		t.Errorf("expected package=%s, got %v", testPackage, status["package"])
	}
}

func TestGetTokenTool(t *testing.T) {
	env := testServer(t, staticToken("abc123", nil))

	result, data := callTool(t, env.cs, "get_token", nil)
	if result.IsError {
		t.Fatalf("unexpected error: %v", data["error"])
	}
	if data["token"] != "abc123" {
		t.Errorf("expected token=abc123, got %v", data["token"])
	}

	var status map[string]any
	readJSON(t, env.cs, statusURI, &status)
	if status["has_token"] != true {
		t.Errorf("expected has_token=true, got %v", status["has_token"])
	}
}

func TestGetTokenTool_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"with message", errors.New("network unavailable"), "network unavailable"},
		{"without message", nil, pb.ErrTokenUnavailable.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, staticToken("", tt.err))

			result, data := callTool(t, env.cs, "get_token", nil)
			if !result.IsError {
				t.Fatal("expected IsError=true")
			}
			if data["error"] != tt.want {
				t.Errorf("expected error %q, got %v", tt.want, data["error"])
			}

			var status map[string]any
			readJSON(t, env.cs, statusURI, &status)
			if status["last_error"] != tt.want {
				t.Errorf("expected last_error=%q, got %v", tt.want, status["last_error"])
			}
		})
	}
}

func TestNotificationTapped_NotStartedDefersUntilReady(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	result, data := callTool(t, env.cs, "notification_tapped", map[string]any{
		"payload": map[string]any{"id": "n1"},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %v", data["error"])
	}
	if data["emitted_now"] != false {
		t.Errorf("expected emitted_now=false, got %v", data["emitted_now"])
	}
	if data["launched"] != true {
		t.Errorf("expected launched=true, got %v", data["launched"])
	}
	if got := env.runtime.BootCount(); got != 1 {
		t.Errorf("expected one boot request, got %d", got)
	}
	if len(env.runtime.Events()) != 0 {
		t.Fatal("no event expected before the runtime is ready")
	}

	close(env.release)
	events := waitForEvents(t, env.runtime, 1)
	if events[0].Name != pb.DefaultNotificationOpenedEvent {
		t.Errorf("expected event %s, got %s", pb.DefaultNotificationOpenedEvent, events[0].Name)
	}
	if events[0].Payload["id"] != "n1" {
		t.Errorf("expected payload id=n1, got %v", events[0].Payload)
	}

	var listed []apphost.Event
	readJSON(t, env.cs, eventsURI, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 event in resource, got %d", len(listed))
	}
}

func TestNotificationTapped_ReadyEmitsImmediately(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))
	close(env.release)

	result, data := callTool(t, env.cs, "start_runtime", map[string]any{"wait_seconds": 2})
	if result.IsError {
		t.Fatalf("start_runtime: %v", data["error"])
	}
	if data["runtime_state"] != "READY" {
		t.Fatalf("expected READY, got %v", data["runtime_state"])
	}

	_, data = callTool(t, env.cs, "notification_tapped", map[string]any{
		"payload": map[string]any{"id": "n2"},
	})
	if data["emitted_now"] != true {
		t.Errorf("expected emitted_now=true, got %v", data["emitted_now"])
	}
	if len(env.runtime.Events()) != 1 {
		t.Errorf("expected the event to be emitted synchronously")
	}
	if started := env.device.Started(); len(started) != 1 || !started[0].Flags.Has(pb.FlagActivityNewTask|pb.FlagActivityResetTaskIfNeeded) {
		t.Errorf("expected one launch with task flags, got %+v", started)
	}
}

func TestNotificationTapped_BackToBackRequestsOneBoot(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	callTool(t, env.cs, "notification_tapped", map[string]any{"payload": map[string]any{"id": "a"}})
	callTool(t, env.cs, "notification_tapped", map[string]any{"payload": map[string]any{"id": "b"}})

	if got := env.runtime.BootCount(); got != 1 {
		t.Errorf("expected one boot request, got %d", got)
	}

	var status map[string]any
	readJSON(t, env.cs, statusURI, &status)
	if status["pending_deliveries"] != float64(2) {
		t.Errorf("expected 2 pending deliveries, got %v", status["pending_deliveries"])
	}
	if status["taps"] != float64(2) {
		t.Errorf("expected 2 taps, got %v", status["taps"])
	}

	close(env.release)
	events := waitForEvents(t, env.runtime, 2)
	if len(events) != 2 {
		t.Errorf("expected both taps delivered, got %d events", len(events))
	}
}

func TestNotificationTapped_InvalidArguments(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	result, _ := callTool(t, env.cs, "notification_tapped", map[string]any{"payload": "not-an-object"})
	if !result.IsError {
		t.Error("expected IsError=true for a non-object payload")
	}
	if env.runtime.BootCount() != 0 {
		t.Error("invalid call should not start the runtime")
	}
}

func TestStartRuntime_WaitTimeout(t *testing.T) {
	env := testServer(t, staticToken("tok", nil))

	result, data := callTool(t, env.cs, "start_runtime", map[string]any{"wait_seconds": 1})
	if !result.IsError {
		t.Fatalf("expected timeout error, got %v", data)
	}
	if env.runtime.State() != pb.RuntimeInitializing {
		t.Errorf("expected INITIALIZING, got %s", env.runtime.State())
	}
}
