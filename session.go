package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EvalSession is the per-client state of the eval variant: the on-disk
// session trail and the snippet counter. It is created on that client's
// handshake and owned solely by its connection.
type EvalSession struct {
	// Dir is the session directory, keyed by timestamp and client pid.
	Dir string

	client  ClientInfo
	suffix  string
	counter int
}

// newEvalSession creates the session directory under root.
func newEvalSession(root, suffix string, client ClientInfo, now time.Time) (*EvalSession, error) {
	dir := filepath.Join(root, fmt.Sprintf("%s_pid%d", now.Format("20060102_150405"), client.PID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &EvalSession{Dir: dir, client: client, suffix: suffix}, nil
}

// record writes the submitted code verbatim to the next sequentially
// numbered snippet file and returns its path. The counter is monotonic
// and never reused within a session, even when the write fails.
func (s *EvalSession) record(code string) (path string, seq int, err error) {
	s.counter++
	seq = s.counter
	path = filepath.Join(s.Dir, fmt.Sprintf("snippet_%04d%s", seq, s.suffix))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", seq, fmt.Errorf("record snippet %d: %w", seq, err)
	}
	return path, seq, nil
}

// Count returns how many snippets have been numbered so far.
func (s *EvalSession) Count() int { return s.counter }
