package bridge

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/modelbridge/internal/wire"
)

// writeWait bounds a response flush. Writes of one-line envelopes to a
// local peer complete immediately in practice; a stuck peer gets the
// connection torn down instead of stalling the host.
const writeWait = 2 * time.Second

// conn is the state of one accepted socket: its handshake state, frame
// assembler, and activity clock. It is exclusively owned by the tick
// that services it and is never shared.
type conn struct {
	id         string
	nc         net.Conn
	asm        *wire.Assembler
	st         connState
	session    *EvalSession
	lastActive time.Time
}

func newConn(nc net.Conn, maxMsgSize int) *conn {
	return &conn{
		id:         uuid.NewString(),
		nc:         nc,
		asm:        wire.NewAssembler(maxMsgSize),
		lastActive: time.Now(),
	}
}

// poll performs at most one bounded read and returns the next complete
// message if one is available. A nil error with ok=false means no data
// is ready; a non-nil error (oversized message, EOF, socket failure) is
// fatal for the connection and no response is attempted.
func (c *conn) poll(wait time.Duration, buf []byte) (msg []byte, ok bool, err error) {
	if msg, ok := c.asm.Next(); ok {
		return msg, true, nil
	}

	c.nc.SetReadDeadline(time.Now().Add(wait))
	n, err := c.nc.Read(buf)
	if n > 0 {
		c.lastActive = time.Now()
		if ferr := c.asm.Feed(buf[:n]); ferr != nil {
			return nil, false, ferr
		}
	}
	if err != nil {
		if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
			// No data ready this tick.
		} else {
			return nil, false, err
		}
	}

	if msg, ok := c.asm.Next(); ok {
		return msg, true, nil
	}
	return nil, false, nil
}

// writeResponse serializes resp and flushes it as a single frame. The
// envelope is fully marshaled before any bytes hit the socket, so a
// failed marshal degrades to an internal-error envelope and a failed
// write leaves the peer with a closed connection, never a torn message.
func (c *conn) writeResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		fallback := &Response{
			JSONRPC: JSONRPCVersion,
			ID:      resp.ID,
			Error:   Errorf(CodeInternalError, "failed to encode result: %v", err),
		}
		if data, err = json.Marshal(fallback); err != nil {
			return err
		}
	}

	c.nc.SetWriteDeadline(time.Now().Add(writeWait))
	_, err = c.nc.Write(wire.AppendFrame(nil, data))
	return err
}

func (c *conn) idleFor(now time.Time) time.Duration {
	return now.Sub(c.lastActive)
}

// close tears down the socket. The session trail, if any, stays on
// disk; it is the whole point of the trail.
func (c *conn) close() {
	c.nc.Close()
}
