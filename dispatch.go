package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fixed protocol methods.
const (
	MethodHello         = "hello"
	MethodPing          = "ping"
	MethodCallTool      = "tools/call"
	MethodListResources = "resources/list"
	MethodEval          = "eval"
)

// HandlerFunc handles a custom method on an identified connection.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// dispatcher routes parsed requests by method name. hello is not routed
// here: the handshake is owned by the server variants, which differ in
// what a successful hello produces.
type dispatcher struct {
	name    string
	version string

	executor  Executor
	resources ResourceLister
	limiter   *RateLimiter

	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

func newDispatcher(name, version string, executor Executor) *dispatcher {
	return &dispatcher{
		name:     name,
		version:  version,
		executor: executor,
		methods:  make(map[string]HandlerFunc),
	}
}

// handle registers a custom method. Registration happens at startup;
// conflicts with built-in methods are rejected then, not at call time.
func (d *dispatcher) handle(method string, h HandlerFunc) error {
	switch method {
	case "":
		return fmt.Errorf("method name required")
	case MethodHello, MethodPing, MethodCallTool, MethodListResources:
		return fmt.Errorf("method %q is built in", method)
	}
	if h == nil {
		return fmt.Errorf("handler required for %q", method)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.methods[method]; exists {
		return fmt.Errorf("method %q already registered", method)
	}
	d.methods[method] = h
	return nil
}

// parseRequest decodes one framed message, rewriting the legacy
// {command, parameters} shape into its tools/call equivalent so both
// shapes dispatch identically.
func parseRequest(msg []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil, Errorf(CodeParseError, "parse error: %v", err)
	}

	if req.Method == "" && req.Command != "" {
		params, err := json.Marshal(struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments,omitempty"`
		}{Name: req.Command, Arguments: req.Parameters})
		if err != nil {
			return nil, Errorf(CodeInvalidRequest, "invalid legacy command: %v", err)
		}
		req.Method = MethodCallTool
		req.Params = params
		req.Command = ""
		req.Parameters = nil
	}

	if req.Method == "" {
		return nil, Errorf(CodeInvalidRequest, "missing method")
	}
	return &req, nil
}

// dispatch routes a non-hello request on an identified connection and
// returns the result to place in the response envelope. Tool failures
// and handler panics become protocol errors; they never tear down the
// connection.
func (d *dispatcher) dispatch(ctx context.Context, st connState, req *Request) (result any, perr *Error) {
	if !st.identified {
		return nil, errIdentificationRequired(req.Method)
	}
	if d.limiter != nil && !d.limiter.Allow(req.Method) {
		return nil, Errorf(CodeRateLimited, "rate limit exceeded for %q", req.Method)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			perr = Errorf(CodeInternalError, "internal error in %q: %v", req.Method, r)
		}
	}()

	switch req.Method {
	case MethodPing:
		return &PingReply{
			Status:  "ok",
			Version: d.version,
			Message: fmt.Sprintf("%s is running", d.name),
		}, nil

	case MethodListResources:
		reply := &ListResourcesReply{Resources: []Resource{}, Success: true}
		if d.resources != nil {
			list, err := d.resources.ListResources(ctx)
			if err != nil {
				return nil, asProtocolError(err)
			}
			if list != nil {
				reply.Resources = list
			}
		}
		return reply, nil

	case MethodCallTool:
		return d.callTool(ctx, st, req)
	}

	d.mu.RLock()
	h, ok := d.methods[req.Method]
	d.mu.RUnlock()
	if !ok {
		return nil, Errorf(CodeMethodNotFound, "method %q not found", req.Method)
	}

	out, err := h(ctx, req)
	if err != nil {
		return nil, asProtocolError(err)
	}
	return out, nil
}

func (d *dispatcher) callTool(ctx context.Context, st connState, req *Request) (any, *Error) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, Errorf(CodeInvalidParams, "invalid tools/call params: %v", err)
		}
	}
	if params.Name == "" {
		return nil, Errorf(CodeInvalidParams, "tools/call requires a tool name")
	}
	if d.executor == nil {
		return nil, Errorf(CodeInternalError, "no tool executor configured")
	}
	if d.limiter != nil && !d.limiter.AllowTool(params.Name) {
		return nil, Errorf(CodeRateLimited, "rate limit exceeded for tool %q", params.Name)
	}

	result, err := d.executor.Execute(ctx, params.Name, params.Arguments, st.client.Workspace)
	if err != nil {
		return nil, asProtocolError(err)
	}
	return result, nil
}
