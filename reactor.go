package bridge

import (
	"context"
	"net"
	"sync"
	"time"
)

// reactor is the shared non-blocking core of both server variants: the
// listener, the live connection list, and the tick loop. A variant
// plugs in its message handler; everything socket-facing lives here.
//
// The scheduling model is single-threaded and cooperative. The mutex
// only serializes Tick against Stop; ticks themselves are expected to
// arrive from one host scheduler.
type reactor struct {
	settings settings

	// handle processes one complete framed message and reports whether
	// the connection stays open.
	handle func(c *conn, msg []byte) (keep bool)

	// closeConn optionally observes a connection teardown.
	closeConn func(c *conn)

	mu     sync.Mutex
	ln     *net.TCPListener
	conns  []*conn
	closed bool

	readBuf []byte
}

func newReactor(s settings) *reactor {
	return &reactor{settings: s, readBuf: make([]byte, 4096)}
}

// start binds the listening socket after the binding guard approves the
// address. Accepting happens in tick, never here.
func (r *reactor) start(addr string) error {
	if err := checkBind(addr, r.settings.allowRemote, r.settings.token, r.settings.logger); err != nil {
		r.settings.logger.Error("bind refused", "err", err)
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.ln = ln.(*net.TCPListener)
	r.closed = false
	r.mu.Unlock()
	return nil
}

func (r *reactor) addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// tick accepts pending connections, then advances each live connection
// by at most one framed message. Per-connection failures are contained
// here; nothing escapes to the host's scheduler.
func (r *reactor) tick() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.ln == nil {
		return ErrServerClosed
	}

	r.acceptPending()

	keep := r.conns[:0]
	for _, c := range r.conns {
		if r.serviceConn(c) {
			keep = append(keep, c)
		}
	}
	r.conns = keep
	return nil
}

// run drives tick on the configured interval, for hosts without their
// own scheduling primitive.
func (r *reactor) run(ctx context.Context) error {
	ticker := time.NewTicker(r.settings.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.tick(); err != nil {
				return err
			}
		}
	}
}

// stop closes the listener and all live connections.
func (r *reactor) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.ln != nil {
		err = r.ln.Close()
	}
	for _, c := range r.conns {
		r.drop(c)
	}
	r.conns = nil
	return err
}

// acceptPending accepts the connections currently queued on the
// listener. The deadline makes each check non-blocking: an empty queue
// costs one poll window, a non-empty one returns immediately.
func (r *reactor) acceptPending() {
	for {
		r.ln.SetDeadline(time.Now().Add(r.settings.pollWait))
		nc, err := r.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			r.settings.logger.Debug("accept failed", "err", err)
			return
		}
		c := newConn(nc, r.settings.maxMsgSize)
		r.conns = append(r.conns, c)
		r.settings.logger.Debug("accepted connection", "conn", c.id, "remote", nc.RemoteAddr().String())
	}
}

// serviceConn advances one connection and reports whether to keep it.
func (r *reactor) serviceConn(c *conn) (keep bool) {
	defer func() {
		if p := recover(); p != nil {
			r.settings.logger.Error("panic servicing connection", "conn", c.id, "panic", p)
			r.drop(c)
			keep = false
		}
	}()

	msg, ok, err := c.poll(r.settings.pollWait, r.readBuf)
	if err != nil {
		// Framing violations and socket errors are fatal for the
		// connection; no response is attempted.
		r.settings.logger.Debug("closing connection", "conn", c.id, "err", err)
		r.drop(c)
		return false
	}
	if !ok {
		if c.idleFor(time.Now()) > r.settings.idleTimeout {
			r.settings.logger.Debug("dropping idle connection", "conn", c.id)
			r.drop(c)
			return false
		}
		return true
	}

	if keep := r.handle(c, msg); !keep {
		r.drop(c)
		return false
	}
	return true
}

func (r *reactor) drop(c *conn) {
	c.close()
	if r.closeConn != nil {
		r.closeConn(c)
	}
}

// respond writes one envelope and reports success; the caller decides
// connection fate on failure.
func (r *reactor) respond(c *conn, resp *Response) bool {
	if err := c.writeResponse(resp); err != nil {
		r.settings.logger.Debug("write failed", "conn", c.id, "err", err)
		return false
	}
	return true
}
