package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrServiceUnavailable is returned by Call when the Model Service cannot
// be reached at all (socket missing, connection refused, dial timeout).
// The Verifier must treat this differently from a Response carrying a
// non-empty Error field (spec §4.2).
var ErrServiceUnavailable = errors.New("ipc: model service unavailable")

// Client dials the Model Service's Unix domain socket. Each Call opens a
// fresh connection and closes it after one request/response round, per
// spec §4.2 ("each connection handles one request/response round").
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

// NewClient returns a Client targeting the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath:  socketPath,
		dialTimeout: 2 * time.Second,
	}
}

// Call sends req and waits for the Model Service's response.
func (c *Client) Call(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer conn.Close()

	payload, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("ipc: encoding request: %w", err)
	}
	if err := WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	respPayload, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	resp, err := DecodeResponse(respPayload)
	if err != nil {
		return nil, fmt.Errorf("ipc: decoding response: %w", err)
	}
	return resp, nil
}

// Ping is a convenience wrapper reporting whether the service is reachable
// and has finished loading its models.
func (c *Client) Ping() (alive, modelsLoaded bool, err error) {
	resp, err := c.Call(&Request{Type: KindPing})
	if err != nil {
		return false, false, err
	}
	return resp.Alive, resp.ModelsLoaded, nil
}
