package bridge_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	bridge "github.com/tmc/modelbridge"
	"github.com/tmc/modelbridge/internal/bridgetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(extra ...bridge.Option) []bridge.Option {
	opts := []bridge.Option{
		bridge.WithLogger(testLogger()),
		bridge.WithPollWait(5 * time.Millisecond),
		bridge.WithTickInterval(10 * time.Millisecond),
	}
	return append(opts, extra...)
}

func startServer(t *testing.T, reg *bridge.Registry, extra ...bridge.Option) (*bridge.Server, string) {
	t.Helper()
	if reg == nil {
		reg = bridge.NewRegistry()
	}
	srv := bridge.NewServer("model-host", "1.0.0", reg, testOptions(extra...)...)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	bridgetest.StartTicker(t, srv, 10*time.Millisecond)
	return srv, srv.Addr().String()
}

func dial(t *testing.T, addr string) *bridge.Client {
	t.Helper()
	c, err := bridge.Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func mustHello(t *testing.T, c *bridge.Client) *bridge.HelloReply {
	t.Helper()
	reply, err := c.Hello(bridge.HelloParams{Name: "test", Version: "1.0", Agent: "go-test", PID: 4242})
	if err != nil {
		t.Fatalf("Hello failed: %v", err)
	}
	return reply
}

func TestHelloThenCall(t *testing.T) {
	_, addr := startServer(t, nil)
	c := dial(t, addr)

	reply := mustHello(t, c)
	if !reply.Success {
		t.Error("hello reply not successful")
	}
	want := bridge.Implementation{Name: "model-host", Version: "1.0.0"}
	if diff := cmp.Diff(want, reply.Server); diff != "" {
		t.Errorf("server info mismatch (-want +got):\n%s", diff)
	}

	// The connection survives hello for exactly one more request.
	ping, err := c.Ping()
	if err != nil {
		t.Fatalf("Ping after hello failed: %v", err)
	}
	if ping.Status != "ok" {
		t.Errorf("ping status = %q, want ok", ping.Status)
	}

	// After that request the bridge closes the connection.
	if _, err := c.Ping(); err == nil {
		t.Error("second request on a served connection succeeded, want closed socket")
	}
}

func TestMethodBeforeHello(t *testing.T) {
	_, addr := startServer(t, nil)
	c := dial(t, addr)

	_, err := c.Ping()
	var perr *bridge.Error
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want protocol error", err)
	}
	if perr.Code != bridge.CodeInvalidRequest {
		t.Errorf("code = %d, want %d", perr.Code, bridge.CodeInvalidRequest)
	}
	hint, _ := perr.Data.(map[string]any)
	if hint["hint"] != "send hello first" {
		t.Errorf("missing hint, data = %v", perr.Data)
	}
}

func TestTokenAuth(t *testing.T) {
	_, addr := startServer(t, nil, bridge.WithToken("s3cret"))

	// Wrong token.
	c := dial(t, addr)
	_, err := c.Hello(bridge.HelloParams{Name: "t", Version: "1", Agent: "a", PID: 1, Token: "wrong"})
	var perr *bridge.Error
	if !errors.As(err, &perr) || perr.Code != bridge.CodeAuthFailed {
		t.Fatalf("got %v, want auth failure %d", err, bridge.CodeAuthFailed)
	}

	// Missing token.
	c = dial(t, addr)
	_, err = c.Hello(bridge.HelloParams{Name: "t", Version: "1", Agent: "a", PID: 1})
	if !errors.As(err, &perr) || perr.Code != bridge.CodeAuthFailed {
		t.Fatalf("got %v, want auth failure %d", err, bridge.CodeAuthFailed)
	}

	// Correct token.
	c = dial(t, addr)
	reply, err := c.Hello(bridge.HelloParams{Name: "t", Version: "1", Agent: "a", PID: 1, Token: "s3cret"})
	if err != nil {
		t.Fatalf("Hello with correct token failed: %v", err)
	}
	if !reply.Success {
		t.Error("hello with correct token not successful")
	}
}

func TestOversizedMessageAbortsOnlyThatConnection(t *testing.T) {
	_, addr := startServer(t, nil, bridge.WithMaxMessageSize(1024))

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	// 4 KiB with no delimiter: a fatal framing violation.
	if _, err := nc.Write(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}

	// The server closes without attempting a response.
	nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := nc.Read(buf); err == nil {
		t.Error("read got data, want closed socket with no response")
	}

	// The server keeps accepting fresh connections.
	c := dial(t, addr)
	mustHello(t, c)
	if _, err := c.Ping(); err != nil {
		t.Errorf("server unhealthy after framing abort: %v", err)
	}
}

func TestUnknownToolDoesNotCrashServer(t *testing.T) {
	_, addr := startServer(t, nil)

	c := dial(t, addr)
	mustHello(t, c)
	_, err := c.CallTool("no_such_tool", nil)
	var perr *bridge.Error
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want protocol error", err)
	}
	if !strings.Contains(perr.Message, "no_such_tool") {
		t.Errorf("error %q does not name the tool", perr.Message)
	}

	c = dial(t, addr)
	mustHello(t, c)
	if _, err := c.Ping(); err != nil {
		t.Errorf("ping after tool failure: %v", err)
	}
}

func TestLegacyCommandEquivalence(t *testing.T) {
	reg := bridge.NewRegistry()
	reg.MustRegister("ping", func(ctx context.Context, args map[string]any, workspace string) (any, error) {
		return map[string]any{"pong": true}, nil
	})
	_, addr := startServer(t, reg)

	c := dial(t, addr)
	mustHello(t, c)
	legacy, err := c.Command("ping", map[string]any{})
	if err != nil {
		t.Fatalf("legacy command failed: %v", err)
	}

	c = dial(t, addr)
	mustHello(t, c)
	modern, err := c.CallTool("ping", map[string]any{})
	if err != nil {
		t.Fatalf("tools/call failed: %v", err)
	}

	if diff := cmp.Diff(string(modern), string(legacy)); diff != "" {
		t.Errorf("legacy result differs from modern (-modern +legacy):\n%s", diff)
	}
}

func TestPingIdempotent(t *testing.T) {
	_, addr := startServer(t, nil)

	pingOnce := func() *bridge.PingReply {
		c := dial(t, addr)
		mustHello(t, c)
		reply, err := c.Ping()
		if err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
		return reply
	}

	first, second := pingOnce(), pingOnce()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ping not idempotent (-first +second):\n%s", diff)
	}
}

func TestResourcesList(t *testing.T) {
	resources := []bridge.Resource{{URI: "model://current", Name: "current model"}}
	_, addr := startServer(t, nil, bridge.WithResourceLister(staticResources(resources)))

	c := dial(t, addr)
	mustHello(t, c)
	reply, err := c.ListResources()
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if !reply.Success {
		t.Error("resources/list not successful")
	}
	if diff := cmp.Diff(resources, reply.Resources); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
}

type staticResources []bridge.Resource

func (s staticResources) ListResources(ctx context.Context) ([]bridge.Resource, error) {
	return s, nil
}

func TestStopStopsTicking(t *testing.T) {
	srv, addr := startServer(t, nil)
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := srv.Tick(); !errors.Is(err, bridge.ErrServerClosed) {
		t.Errorf("Tick after Stop = %v, want ErrServerClosed", err)
	}
	if _, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		t.Error("listener still accepting after Stop")
	}
}

func TestWorkspacePassedToTools(t *testing.T) {
	got := make(chan string, 1)
	reg := bridge.NewRegistry()
	reg.MustRegister("probe", func(ctx context.Context, args map[string]any, workspace string) (any, error) {
		got <- workspace
		return map[string]any{}, nil
	})
	_, addr := startServer(t, reg)

	c := dial(t, addr)
	if _, err := c.Hello(bridge.HelloParams{
		Name: "t", Version: "1", Agent: "a", PID: 1, Workspace: "/projects/house",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CallTool("probe", nil); err != nil {
		t.Fatal(err)
	}

	select {
	case ws := <-got:
		if ws != "/projects/house" {
			t.Errorf("workspace = %q, want /projects/house", ws)
		}
	case <-time.After(time.Second):
		t.Fatal("tool never invoked")
	}
}
