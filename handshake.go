package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// connState is the per-connection handshake state. It is a value, not a
// pointer: a successful hello produces a replacement state rather than
// mutating the old one, which keeps the state machine testable apart
// from socket I/O.
type connState struct {
	identified bool
	client     ClientInfo
}

// handshake validates a hello request against the optionally configured
// shared-secret token and returns the post-hello state. On any failure
// the returned state equals the input state (still unidentified).
func handshake(st connState, params json.RawMessage, serverToken string) (connState, *HelloParams, *Error) {
	var p HelloParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return st, nil, Errorf(CodeInvalidParams, "invalid hello params: %v", err)
		}
	}

	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.Version == "" {
		missing = append(missing, "version")
	}
	if p.Agent == "" {
		missing = append(missing, "agent")
	}
	if p.PID == 0 {
		missing = append(missing, "pid")
	}
	if len(missing) > 0 {
		return st, nil, Errorf(CodeInvalidParams,
			"hello missing required fields: %s", strings.Join(missing, ", "))
	}

	if serverToken != "" && p.Token != serverToken {
		return st, nil, &Error{Code: CodeAuthFailed, Message: "authentication failed: bad or missing token"}
	}

	next := connState{
		identified: true,
		client: ClientInfo{
			Name:      p.Name,
			Version:   p.Version,
			Agent:     p.Agent,
			PID:       p.PID,
			Workspace: p.Workspace,
		},
	}
	return next, &p, nil
}

// helloMessage is the greeting placed in the hello reply.
func helloMessage(name string, client ClientInfo) string {
	return fmt.Sprintf("%s ready; welcome %s/%s (%s)", name, client.Name, client.Version, client.Agent)
}

// logHandshakeFailure keeps auth failures visible while demoting plain
// validation noise to debug.
func logHandshakeFailure(log *slog.Logger, c *conn, herr *Error) {
	if herr.Code == CodeAuthFailed {
		log.Warn("handshake rejected: authentication failure", "conn", c.id)
	} else {
		log.Debug("handshake rejected", "conn", c.id, "err", herr.Message)
	}
}
