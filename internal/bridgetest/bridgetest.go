// Package bridgetest runs txtar-scripted wire-protocol tests against a
// live bridge or eval server. Scripts drive a raw TCP connection with
// connect/send/close commands, so they exercise exactly the bytes a
// real client produces.
package bridgetest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/tools/txtar"
	"rsc.io/script"
)

// connState tracks the current scripted connection.
type connState struct {
	conn net.Conn
	r    *bufio.Reader
}

func (s *connState) close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.r = nil
	}
}

// RunTxtarFile executes one scripted protocol test. The script's
// environment receives BRIDGE_ADDR from the caller's environment, so a
// script can `connect $BRIDGE_ADDR`.
func RunTxtarFile(ctx context.Context, filename string, output io.Writer) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading file: %v", err)
	}
	eng := script.NewEngine()

	var state connState
	defer state.close()

	for name, cmd := range bridgeCommands(output, &state) {
		eng.Cmds[name] = cmd
	}
	for name, cmd := range script.DefaultCmds() {
		eng.Cmds[name] = cmd
	}

	env := os.Environ()
	workdir := os.TempDir()
	s, err := script.NewState(ctx, workdir, env)
	if err != nil {
		return err
	}
	a, err := txtar.ParseFile(filename)
	if err != nil {
		return err
	}
	initScriptDirs(s)
	if err := s.ExtractFiles(a); err != nil {
		return err
	}
	return eng.Execute(s, filename, bufio.NewReader(bytes.NewReader(content)), output)
}

func initScriptDirs(s *script.State) {
	work := s.Getwd()
	s.Setenv("WORK", work)
	os.MkdirAll(filepath.Join(work, "tmp"), 0777)
}

// bridgeCommands returns the protocol-specific script commands.
func bridgeCommands(output io.Writer, state *connState) map[string]script.Cmd {
	return map[string]script.Cmd{
		"connect": script.Command(script.CmdUsage{
			Summary: "connect to a bridge server",
			Args:    "addr",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleConnect(state, args...)
		}),
		"send": script.Command(script.CmdUsage{
			Summary: "send one line and read one response line",
			Args:    "json",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleSend(output, state, true, args...)
		}),
		"send-noreply": script.Command(script.CmdUsage{
			Summary: "send one line without waiting for a response",
			Args:    "json",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleSend(output, state, false, args...)
		}),
		"disconnect": script.Command(script.CmdUsage{
			Summary: "close the current connection",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			state.close()
			return nil, nil
		}),
	}
}

func handleConnect(state *connState, args ...string) (script.WaitFunc, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: connect <addr>")
	}
	state.close()

	conn, err := net.DialTimeout("tcp", args[0], 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %v", args[0], err)
	}
	state.conn = conn
	state.r = bufio.NewReader(conn)
	return nil, nil
}

func handleSend(output io.Writer, state *connState, wantReply bool, args ...string) (script.WaitFunc, error) {
	if state.conn == nil {
		return nil, fmt.Errorf("no connection, use connect first")
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: send <json>")
	}

	line := args[0]
	fmt.Fprintf(output, "# >> %s\n", line)

	state.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(state.conn, "%s\n", line); err != nil {
		return nil, fmt.Errorf("write: %v", err)
	}
	if !wantReply {
		return nil, nil
	}

	state.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := state.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read: %v", err)
	}
	fmt.Fprintf(output, "# << %s", reply)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, bytes.TrimSpace(reply), "", "  "); err != nil {
		return nil, fmt.Errorf("response is not JSON: %v", err)
	}
	out := pretty.String()
	return func(*script.State) (string, string, error) {
		return out + "\n", "", nil
	}, nil
}
