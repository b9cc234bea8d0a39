package bridge

import "context"

// Executor resolves a tool name to host-specific behavior. The
// dispatcher does not know the set of valid names; an unknown name must
// return an error naming the tool, which is converted into a protocol
// error response rather than tearing the connection down.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any, workspace string) (any, error)
}

// Evaluator is the pluggable script-evaluation capability supplied by
// the host for the eval variant. sourceLabel is the on-disk snippet
// path, bound as the evaluation's logical source location so errors
// attribute to a concrete file and line.
type Evaluator interface {
	Evaluate(code, sourceLabel string) (output string, err error)
}

// ConsoleCapture captures host console output around an evaluation.
// Stop must be safe to call after a failed Start, and capture must be
// restored on every path, including when evaluation fails.
type ConsoleCapture interface {
	Start()
	Stop() string
	AddMarker(text string)
}

// ResourceLister supplies the entities reported by resources/list.
type ResourceLister interface {
	ListResources(ctx context.Context) ([]Resource, error)
}

// PathPolicy validates file access for tool implementations. It is
// consulted by individual tools, not by the dispatcher.
type PathPolicy interface {
	Validate(path, operation, workspace string) error
}
