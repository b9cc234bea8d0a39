package bridge

import "encoding/json"

// JSONRPCVersion is the envelope version stamped on every response.
const JSONRPCVersion = "2.0"

// Protocol types
type (
	// Request is one parsed client message. Immutable once parsed.
	// ID is opaque and may be null; it is echoed verbatim.
	Request struct {
		JSONRPC string          `json:"jsonrpc,omitempty"`
		ID      any             `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`

		// Legacy command shape; rewritten to tools/call before dispatch.
		Command    string          `json:"command,omitempty"`
		Parameters json.RawMessage `json:"parameters,omitempty"`
	}

	// Response is the wire reply: exactly one of Result or Error,
	// plus the echoed request id.
	Response struct {
		JSONRPC string `json:"jsonrpc"`
		ID      any    `json:"id"`
		Result  any    `json:"result,omitempty"`
		Error   *Error `json:"error,omitempty"`
	}

	// HelloParams carries the client identification handshake.
	HelloParams struct {
		Name      string `json:"name"`
		Version   string `json:"version"`
		Agent     string `json:"agent"`
		PID       int    `json:"pid"`
		Token     string `json:"token,omitempty"`
		Workspace string `json:"workspace,omitempty"`
	}

	// HelloReply is returned on a successful handshake.
	HelloReply struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Session string         `json:"session,omitempty"`
		Server  Implementation `json:"server"`
	}

	// PingReply is the static health payload.
	PingReply struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Message string `json:"message"`
	}

	// CallToolParams names a tool and its argument map.
	CallToolParams struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}

	// EvalParams carries a code snippet for the eval variant.
	EvalParams struct {
		Code string `json:"code"`
	}

	// EvalReply is the eval variant's result envelope: captured output
	// and the textual result (or error) folded into one string.
	EvalReply struct {
		Output  string `json:"output"`
		Success bool   `json:"success"`
	}

	// ListResourcesReply wraps the collaborator-supplied resource list.
	ListResourcesReply struct {
		Resources []Resource `json:"resources"`
		Success   bool       `json:"success"`
	}

	// Resource is one addressable entity exposed by the host.
	Resource struct {
		URI         string `json:"uri"`
		Name        string `json:"name,omitempty"`
		Description string `json:"description,omitempty"`
		MimeType    string `json:"mimeType,omitempty"`
	}

	// Implementation identifies a protocol participant.
	Implementation struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
)

// ClientInfo is the metadata recorded on a connection after a
// successful handshake.
type ClientInfo struct {
	Name      string
	Version   string
	Agent     string
	PID       int
	Workspace string
}
