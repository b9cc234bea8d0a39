package bridge

import (
	"context"
	"net"
)

// Server is the bridge variant of the protocol reactor. The host
// application owns it and drives it by calling Tick on its own
// scheduler; nothing here starts an independent thread of execution.
//
// Bridge connection lifecycle: a connection is served one request and
// closed, except that a successful hello keeps it open so the client
// can send the call it identified for.
type Server struct {
	name    string
	version string

	reactor  *reactor
	dispatch *dispatcher
}

// NewServer creates a bridge server around the given tool executor.
// The executor is typically a *Registry, but any Executor works.
func NewServer(name, version string, executor Executor, opts ...Option) *Server {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}

	s := &Server{
		name:    name,
		version: version,
		reactor: newReactor(st),
	}
	s.dispatch = newDispatcher(name, version, executor)
	s.dispatch.resources = st.resources
	s.dispatch.limiter = st.limiter
	s.reactor.handle = s.handleMessage
	return s
}

// Handle registers a custom method handler. Register before traffic
// arrives; the table is validated here, not at call time.
func (s *Server) Handle(method string, h HandlerFunc) error {
	return s.dispatch.handle(method, h)
}

// Start binds the listening socket after the binding guard approves the
// address. It does not accept connections; that happens in Tick.
func (s *Server) Start(addr string) error {
	if err := s.reactor.start(addr); err != nil {
		return err
	}
	s.reactor.settings.logger.Info("bridge server listening",
		"addr", s.reactor.addr().String(), "server", s.name)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr { return s.reactor.addr() }

// Tick runs one reactor cycle: accept pending connections, advance
// in-flight reads, dispatch at most one completed request per
// connection. It never blocks beyond the configured poll window.
func (s *Server) Tick() error { return s.reactor.tick() }

// Run drives Tick on the configured interval until ctx is cancelled or
// the server is stopped. Hosts with their own scheduling primitive call
// Tick directly instead.
func (s *Server) Run(ctx context.Context) error { return s.reactor.run(ctx) }

// Stop closes the listener and all live connections. Tick returns
// ErrServerClosed afterwards.
func (s *Server) Stop() error { return s.reactor.stop() }

// handleMessage dispatches one framed message and applies the bridge
// close-after-one-request policy.
func (s *Server) handleMessage(c *conn, msg []byte) (keep bool) {
	log := s.reactor.settings.logger

	req, perr := parseRequest(msg)
	if perr != nil {
		s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: nil, Error: perr})
		return false
	}

	if req.Method == MethodHello {
		next, _, herr := handshake(c.st, req.Params, s.reactor.settings.token)
		if herr != nil {
			logHandshakeFailure(log, c, herr)
			s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Error: herr})
			return false
		}
		c.st = next
		if !s.reactor.respond(c, &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: &HelloReply{
			Success: true,
			Message: helloMessage(s.name, next.client),
			Server:  Implementation{Name: s.name, Version: s.version},
		}}) {
			return false
		}
		log.Info("client identified",
			"conn", c.id, "client", next.client.Name, "agent", next.client.Agent, "pid", next.client.PID)
		// Stay open for exactly the request the client identified for.
		return true
	}

	result, derr := s.dispatch.dispatch(context.Background(), c.st, req)
	resp := &Response{JSONRPC: JSONRPCVersion, ID: req.ID}
	if derr != nil {
		resp.Error = derr
	} else {
		resp.Result = result
	}
	s.reactor.respond(c, resp)
	return false
}
