// Package wire implements the line framing layer of the bridge protocol:
// newline-delimited messages with a hard byte ceiling, assembled from
// partial non-blocking reads.
package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxMessageSize is the per-message byte ceiling applied when the
// caller does not override it.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

// ErrMessageTooLarge reports that buffered bytes exceeded the configured
// ceiling before a delimiter was seen. It is fatal for the connection:
// no response is attempted.
var ErrMessageTooLarge = errors.New("wire: message exceeds size limit")

// Assembler accumulates bytes from successive non-blocking reads and
// yields complete newline-delimited messages. The zero value is not
// usable; call NewAssembler.
type Assembler struct {
	buf []byte
	max int
}

// NewAssembler returns an Assembler enforcing the given byte ceiling.
// A non-positive max falls back to DefaultMaxMessageSize.
func NewAssembler(max int) *Assembler {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &Assembler{max: max}
}

// Feed appends bytes read from the socket. It returns ErrMessageTooLarge
// when any single message, complete or still being assembled, exceeds
// the ceiling. The limit applies per message, not to the whole buffer.
func (a *Assembler) Feed(p []byte) error {
	a.buf = append(a.buf, p...)
	rest := a.buf
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			if len(rest) > a.max {
				return fmt.Errorf("%w (%d > %d bytes)", ErrMessageTooLarge, len(rest), a.max)
			}
			return nil
		}
		if i > a.max {
			return fmt.Errorf("%w (%d > %d bytes)", ErrMessageTooLarge, i, a.max)
		}
		rest = rest[i+1:]
	}
}

// Next pops one complete message, without its trailing delimiter. The
// second return is false when no complete message is buffered yet,
// regardless of how balanced the partial payload looks.
func (a *Assembler) Next() ([]byte, bool) {
	i := bytes.IndexByte(a.buf, '\n')
	if i < 0 {
		return nil, false
	}
	msg := a.buf[:i]
	// Tolerate CRLF clients.
	msg = bytes.TrimSuffix(msg, []byte{'\r'})
	a.buf = a.buf[i+1:]
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return msg, true
}

// Buffered reports how many unconsumed bytes the assembler holds.
func (a *Assembler) Buffered() int { return len(a.buf) }

// AppendFrame appends msg plus the line delimiter to dst. Callers write
// the returned slice in a single Write so a response is either fully
// flushed or not sent at all.
func AppendFrame(dst, msg []byte) []byte {
	dst = append(dst, msg...)
	return append(dst, '\n')
}
