package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	dialTimeout  = 2 * time.Second
	startRetries = 10
	startBackoff = 200 * time.Millisecond
)

// Client talks to a daemon, starting it on first use.
type Client struct {
	SocketPath string
	// Start launches a daemon when none answers. Nil disables auto-start.
	Start func() error
}

// Query sends req to the daemon. If no daemon answers, it starts one and
// retries for up to two seconds.
func (c *Client) Query(ctx context.Context, req Request) (Response, error) {
	resp, err := c.send(ctx, req)
	if err == nil || c.Start == nil {
		return resp, err
	}

	if startErr := c.Start(); startErr != nil {
		return Response{}, fmt.Errorf("failed to start daemon: %w", startErr)
	}

	for i := 0; i < startRetries; i++ {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(startBackoff):
		}
		resp, err = c.send(ctx, req)
		if err == nil {
			return resp, nil
		}
	}
	return Response{}, fmt.Errorf("daemon not available after retries: %w", err)
}

// send sends a single request and reads the response.
func (c *Client) send(ctx context.Context, req Request) (Response, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(requestDeadline)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
