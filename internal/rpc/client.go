package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrDaemonUnavailable indicates that the weft daemon could not be reached.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// StatusError is a failed response surfaced to the caller with its wire
// status preserved.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Client talks to a running daemon over its unix socket. A client holds one
// connection; calls are serialized.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writer  *bufio.Writer
	mu      sync.Mutex
	spaceID string
}

// Dial connects to the daemon socket.
func Dial(sockPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	return &Client{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		writer:  bufio.NewWriter(conn),
	}, nil
}

// SetSpace sets the space id attached to every subsequent call.
func (c *Client) SetSpace(spaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spaceID = spaceID
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and decodes the successful response data into out
// (skipped when out is nil). A failed response comes back as a StatusError.
func (c *Client) Call(operation string, args any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{Operation: operation, SpaceID: c.spaceID}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshaling args: %w", err)
		}
		req.Args = raw
	}
	reqJSON, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if _, err := c.writer.Write(reqJSON); err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
		}
		return fmt.Errorf("%w: connection closed", ErrDaemonUnavailable)
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !resp.Success {
		status := resp.Status
		if status == "" {
			status = StatusUnknown
		}
		return &StatusError{Status: status, Message: resp.Error}
	}
	if out != nil && resp.Data != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// Ping checks daemon liveness and returns its version.
func (c *Client) Ping() (string, error) {
	var out map[string]string
	if err := c.Call(OpPing, nil, &out); err != nil {
		return "", err
	}
	return out["pong"], nil
}

// Status fetches the daemon status report.
func (c *Client) Status() (*StatusResult, error) {
	var out StatusResult
	if err := c.Call(OpStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	return c.Call(OpShutdown, nil, nil)
}
