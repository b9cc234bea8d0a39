/*
Package bridge implements a small TCP protocol server that runs inside a
3D-modeling host application and bridges external tool-calling clients
(AI agents, CLIs) to host functionality.

The host application is single-threaded and schedules the server itself:
it calls (*Server).Tick on a fixed interval, and every socket operation
inside a tick is non-blocking. The server never starts work that outlives
a tick, so it can be embedded in an event loop that must not stall.

# Wire protocol

Messages are UTF-8 JSON-RPC-style envelopes, one per line:

	{"jsonrpc":"2.0","id":1,"method":"hello","params":{"name":"agent","version":"1.0","agent":"cli","pid":4242}}

A connection starts unidentified. The only method accepted before a
successful hello is hello itself; everything else returns an
identification-required error. After hello the bridge variant serves
exactly one more request and closes; the eval variant (ReplServer) keeps
the connection alive and accepts repeated eval calls, writing each
submitted snippet to a per-session directory on disk.

Example server:

	reg := bridge.NewRegistry()
	reg.Register("ping", func(ctx context.Context, args map[string]any, workspace string) (any, error) {
		return map[string]any{"status": "ok"}, nil
	})

	srv := bridge.NewServer("model-host", "1.0.0", reg)
	if err := srv.Start("127.0.0.1:9876"); err != nil {
		log.Fatal(err)
	}
	defer srv.Stop()

	// Host scheduler drives the reactor:
	go srv.Run(ctx)

Binding to a non-loopback address is refused unless WithAllowRemote is
set; a shared-secret token (WithToken) gates the handshake when
configured.
*/
package bridge
