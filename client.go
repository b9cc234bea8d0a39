package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client speaks the line protocol over a single TCP connection. The
// bridge variant closes the connection after each non-hello response,
// so callers dial once per request, or once per hello-plus-request
// pair; the eval variant keeps the connection for the whole session.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	nextID  int
}

// Dial connects to a bridge or eval server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn), timeout: 5 * time.Second, nextID: 1}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Hello performs the identification handshake.
func (c *Client) Hello(params HelloParams) (*HelloReply, error) {
	var reply HelloReply
	if err := c.Call(MethodHello, params, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Ping requests the static health payload.
func (c *Client) Ping() (*PingReply, error) {
	var reply PingReply
	if err := c.Call(MethodPing, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// CallTool invokes a named tool and returns its raw result.
func (c *Client) CallTool(name string, args map[string]any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.Call(MethodCallTool, CallToolParams{Name: name, Arguments: args}, &raw)
	return raw, err
}

// ListResources fetches the host's addressable entities.
func (c *Client) ListResources() (*ListResourcesReply, error) {
	var reply ListResourcesReply
	if err := c.Call(MethodListResources, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Eval submits a code snippet to the eval variant.
func (c *Client) Eval(code string) (*EvalReply, error) {
	var reply EvalReply
	if err := c.Call(MethodEval, EvalParams{Code: code}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Command sends the legacy {command, parameters} shape.
func (c *Client) Command(command string, parameters any) (json.RawMessage, error) {
	msg := struct {
		ID         int    `json:"id"`
		Command    string `json:"command"`
		Parameters any    `json:"parameters,omitempty"`
	}{ID: c.id(), Command: command, Parameters: parameters}

	var raw json.RawMessage
	err := c.roundTrip(msg, &raw)
	return raw, err
}

// Call sends one request and decodes the result into out (ignored when
// out is nil). A server-side error envelope is returned as *Error.
func (c *Client) Call(method string, params, out any) error {
	var rawParams json.RawMessage
	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = p
	}

	req := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int             `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{JSONRPC: JSONRPCVersion, ID: c.id(), Method: method, Params: rawParams}

	return c.roundTrip(req, out)
}

func (c *Client) id() int {
	id := c.nextID
	c.nextID++
	return id
}

func (c *Client) roundTrip(req, out any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp struct {
		ID     any             `json:"id"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  *Error          `json:"error,omitempty"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
