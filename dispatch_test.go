package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func identifiedState() connState {
	return connState{identified: true, client: ClientInfo{Name: "t", Version: "1", Agent: "test", PID: 1}}
}

func TestDispatchRequiresIdentification(t *testing.T) {
	d := newDispatcher("host", "1.0.0", NewRegistry())

	for _, method := range []string{MethodPing, MethodCallTool, MethodListResources, "anything"} {
		t.Run(method, func(t *testing.T) {
			_, perr := d.dispatch(context.Background(), connState{}, &Request{Method: method})
			if perr == nil {
				t.Fatal("dispatch allowed unidentified connection")
			}
			if perr.Code != CodeInvalidRequest {
				t.Errorf("code = %d, want %d", perr.Code, CodeInvalidRequest)
			}
			hint, _ := perr.Data.(map[string]any)
			if hint["hint"] != "send hello first" {
				t.Errorf("missing hello hint, data = %v", perr.Data)
			}
		})
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newDispatcher("host", "1.0.0", NewRegistry())
	_, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: "no/such"})
	if perr == nil || perr.Code != CodeMethodNotFound {
		t.Errorf("got %v, want method-not-found", perr)
	}
}

func TestDispatchPing(t *testing.T) {
	d := newDispatcher("host", "2.1.0", NewRegistry())

	first, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodPing})
	if perr != nil {
		t.Fatalf("ping failed: %v", perr)
	}
	second, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodPing})
	if perr != nil {
		t.Fatalf("second ping failed: %v", perr)
	}

	want := &PingReply{Status: "ok", Version: "2.1.0", Message: "host is running"}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("ping reply mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ping is not idempotent (-first +second):\n%s", diff)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newDispatcher("host", "1.0.0", NewRegistry())

	params, _ := json.Marshal(CallToolParams{Name: "does_not_exist"})
	_, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodCallTool, Params: params})
	if perr == nil {
		t.Fatal("unknown tool succeeded")
	}
	if perr.Code != CodeInternalError {
		t.Errorf("code = %d, want %d", perr.Code, CodeInternalError)
	}
	if !strings.Contains(perr.Message, "does_not_exist") {
		t.Errorf("error message %q does not name the tool", perr.Message)
	}
}

func TestDispatchToolResultVerbatim(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("echo", func(ctx context.Context, args map[string]any, workspace string) (any, error) {
		return map[string]any{"args": args, "workspace": workspace}, nil
	})
	d := newDispatcher("host", "1.0.0", reg)

	st := identifiedState()
	st.client.Workspace = "/work"
	params, _ := json.Marshal(CallToolParams{Name: "echo", Arguments: map[string]any{"k": "v"}})

	result, perr := d.dispatch(context.Background(), st, &Request{Method: MethodCallTool, Params: params})
	if perr != nil {
		t.Fatalf("tool call failed: %v", perr)
	}
	want := map[string]any{"args": map[string]any{"k": "v"}, "workspace": "/work"}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchToolPanicContained(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("boom", func(ctx context.Context, args map[string]any, workspace string) (any, error) {
		panic("tool exploded")
	})
	d := newDispatcher("host", "1.0.0", reg)

	params, _ := json.Marshal(CallToolParams{Name: "boom"})
	_, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodCallTool, Params: params})
	if perr == nil || perr.Code != CodeInternalError {
		t.Fatalf("got %v, want internal error", perr)
	}

	// The dispatcher survives; the next call works.
	result, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodPing})
	if perr != nil || result == nil {
		t.Errorf("dispatcher broken after panic: %v", perr)
	}
}

func TestDispatchMissingToolName(t *testing.T) {
	d := newDispatcher("host", "1.0.0", NewRegistry())
	_, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodCallTool, Params: json.RawMessage(`{}`)})
	if perr == nil || perr.Code != CodeInvalidParams {
		t.Errorf("got %v, want invalid-params", perr)
	}
}

func TestDispatchCustomHandlerRegistration(t *testing.T) {
	d := newDispatcher("host", "1.0.0", nil)

	if err := d.handle("custom/op", func(ctx context.Context, req *Request) (any, error) {
		return "done", nil
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if err := d.handle("custom/op", func(ctx context.Context, req *Request) (any, error) { return nil, nil }); err == nil {
		t.Error("duplicate registration accepted")
	}
	for _, builtin := range []string{MethodHello, MethodPing, MethodCallTool, MethodListResources} {
		if err := d.handle(builtin, func(ctx context.Context, req *Request) (any, error) { return nil, nil }); err == nil {
			t.Errorf("registration over built-in %q accepted", builtin)
		}
	}

	result, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: "custom/op"})
	if perr != nil || result != "done" {
		t.Errorf("custom handler: got %v, %v", result, perr)
	}
}

func TestParseRequestLegacyRewrite(t *testing.T) {
	legacy, perr := parseRequest([]byte(`{"id":7,"command":"create_box","parameters":{"size":2}}`))
	if perr != nil {
		t.Fatalf("parse legacy failed: %v", perr)
	}
	modern, perr := parseRequest([]byte(`{"id":7,"method":"tools/call","params":{"name":"create_box","arguments":{"size":2}}}`))
	if perr != nil {
		t.Fatalf("parse modern failed: %v", perr)
	}

	if legacy.Method != MethodCallTool {
		t.Errorf("legacy method = %q, want %q", legacy.Method, MethodCallTool)
	}

	// Both shapes must decode to identical tools/call params.
	var lp, mp CallToolParams
	if err := json.Unmarshal(legacy.Params, &lp); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(modern.Params, &mp); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(mp, lp); diff != "" {
		t.Errorf("legacy params differ from modern (-modern +legacy):\n%s", diff)
	}
}

func TestParseRequestErrors(t *testing.T) {
	if _, perr := parseRequest([]byte(`{not json`)); perr == nil || perr.Code != CodeParseError {
		t.Errorf("malformed JSON: got %v, want parse error", perr)
	}
	if _, perr := parseRequest([]byte(`{"id":1}`)); perr == nil || perr.Code != CodeInvalidRequest {
		t.Errorf("missing method: got %v, want invalid request", perr)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	d := newDispatcher("host", "1.0.0", NewRegistry())
	d.limiter = NewRateLimiter(RateLimitConfig{
		GlobalRPS:   1,
		GlobalBurst: 1,
	})

	if _, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodPing}); perr != nil {
		t.Fatalf("first request limited: %v", perr)
	}
	_, perr := d.dispatch(context.Background(), identifiedState(), &Request{Method: MethodPing})
	if perr == nil || perr.Code != CodeRateLimited {
		t.Errorf("got %v, want rate-limited error", perr)
	}
}
