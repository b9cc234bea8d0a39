package bridge

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"time"
)

// maxErrorOutput caps the error text returned from a failed evaluation,
// keeping long host backtraces out of the wire envelope.
const maxErrorOutput = 2000

// ReplServer is the interactive eval variant of the reactor. Unlike the
// bridge variant it keeps every identified connection alive, services
// at most one message per client per tick so no client can starve the
// others, and records each submitted snippet in a per-client on-disk
// session trail.
type ReplServer struct {
	name    string
	version string

	reactor   *reactor
	dispatch  *dispatcher
	evaluator Evaluator
}

// NewReplServer creates an eval server around the host-supplied script
// evaluator. The eval variant has no tool executor; hosts that want
// extra methods on this port register them with Handle.
func NewReplServer(name, version string, evaluator Evaluator, opts ...Option) *ReplServer {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	if st.sessionRoot == "" {
		st.sessionRoot = filepath.Join(os.TempDir(), "modelbridge-sessions")
	}

	s := &ReplServer{
		name:      name,
		version:   version,
		reactor:   newReactor(st),
		evaluator: evaluator,
	}
	s.dispatch = newDispatcher(name, version, nil)
	s.dispatch.resources = st.resources
	s.dispatch.limiter = st.limiter
	s.reactor.handle = s.handleMessage
	return s
}

// Handle registers a custom method handler, as on the bridge variant.
func (s *ReplServer) Handle(method string, h HandlerFunc) error {
	return s.dispatch.handle(method, h)
}

// Start binds the listening socket after the binding guard approves the
// address.
func (s *ReplServer) Start(addr string) error {
	if err := s.reactor.start(addr); err != nil {
		return err
	}
	s.reactor.settings.logger.Info("eval server listening",
		"addr", s.reactor.addr().String(), "server", s.name,
		"sessions", s.reactor.settings.sessionRoot)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *ReplServer) Addr() net.Addr { return s.reactor.addr() }

// Tick runs one reactor cycle; see (*Server).Tick.
func (s *ReplServer) Tick() error { return s.reactor.tick() }

// Run drives Tick on the configured interval.
func (s *ReplServer) Run(ctx context.Context) error { return s.reactor.run(ctx) }

// Stop closes the listener and all live connections.
func (s *ReplServer) Stop() error { return s.reactor.stop() }

// handleMessage processes one framed message on a persistent
// connection. Protocol-level failures answer and keep the connection;
// only framing and socket errors (handled in the reactor) are fatal.
func (s *ReplServer) handleMessage(c *conn, msg []byte) (keep bool) {
	log := s.reactor.settings.logger

	req, perr := parseRequest(msg)
	if perr != nil {
		s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: nil, Error: perr})
		return true
	}

	switch req.Method {
	case MethodHello:
		next, _, herr := handshake(c.st, req.Params, s.reactor.settings.token)
		if herr != nil {
			logHandshakeFailure(log, c, herr)
			// The eval variant leaves the connection open for a retry.
			return s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Error: herr})
		}

		session, err := newEvalSession(
			s.reactor.settings.sessionRoot, s.reactor.settings.snippetSuffix, next.client, time.Now())
		if err != nil {
			log.Error("session setup failed", "conn", c.id, "err", err)
			return s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: Errorf(CodeInternalError, "session setup failed: %v", err)})
		}

		c.st = next
		c.session = session
		log.Info("eval client identified",
			"conn", c.id, "client", next.client.Name, "pid", next.client.PID, "session", session.Dir)
		return s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: &HelloReply{
			Success: true,
			Message: helloMessage(s.name, next.client),
			Session: session.Dir,
			Server:  Implementation{Name: s.name, Version: s.version},
		}})

	case MethodEval:
		if !c.st.identified {
			return s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: errIdentificationRequired(req.Method)})
		}
		if lim := s.reactor.settings.limiter; lim != nil && !lim.Allow(MethodEval) {
			return s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: Errorf(CodeRateLimited, "rate limit exceeded for %q", MethodEval)})
		}
		reply, perr := s.evalSnippet(c, req)
		resp := &Response{JSONRPC: JSONRPCVersion, ID: req.ID}
		if perr != nil {
			resp.Error = perr
		} else {
			resp.Result = reply
		}
		return s.reactor.respond(c, resp)
	}

	result, derr := s.dispatch.dispatch(context.Background(), c.st, req)
	resp := &Response{JSONRPC: JSONRPCVersion, ID: req.ID}
	if derr != nil {
		resp.Error = derr
	} else {
		resp.Result = result
	}
	return s.reactor.respond(c, resp)
}

// evalSnippet records the snippet, evaluates it with the file path as
// the logical source location, and folds captured output plus result or
// error text into a single reply string. Console capture is restored on
// every path, including evaluator panics.
func (s *ReplServer) evalSnippet(c *conn, req *Request) (*EvalReply, *Error) {
	var params EvalParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, Errorf(CodeInvalidParams, "invalid eval params: %v", err)
		}
	}
	if params.Code == "" {
		return nil, Errorf(CodeInvalidParams, "eval requires code")
	}
	if s.evaluator == nil {
		return nil, Errorf(CodeInternalError, "no evaluator configured")
	}

	path, seq, err := c.session.record(params.Code)
	if err != nil {
		return nil, Errorf(CodeInternalError, "%v", err)
	}

	var captured string
	out, evalErr := func() (string, error) {
		if capture := s.reactor.settings.capture; capture != nil {
			capture.Start()
			capture.AddMarker(filepath.Base(path))
			defer func() { captured = capture.Stop() }()
		}
		return s.evaluator.Evaluate(params.Code, path)
	}()

	if evalErr != nil {
		s.reactor.settings.logger.Debug("eval failed", "conn", c.id, "snippet", seq, "err", evalErr)
		return &EvalReply{Output: captured + truncate(evalErr.Error(), maxErrorOutput), Success: false}, nil
	}
	return &EvalReply{Output: captured + out, Success: true}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
