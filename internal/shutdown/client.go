package shutdown

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"
)

// Result is the client-side outcome of a handshake.
type Result struct {
	// Lines holds every line the monitor sent.
	Lines []string
	// Acknowledged is set when the monitor reported itself as stopped.
	Acknowledged bool
	// TimedOut is set when no end of conversation was seen in time. The
	// remote outcome is then unknown.
	TimedOut bool
}

// Client sends commands to a Monitor.
type Client struct {
	Host    string
	Port    int
	Key     string
	Timeout time.Duration
}

// NewClient returns a client for the loopback stop port.
func NewClient(port int, key string, timeout time.Duration) *Client {
	return &Client{Host: LoopbackHost, Port: port, Key: key, Timeout: timeout}
}

// Stop asks the host to stop and waits for the connection to close.
func (c *Client) Stop(ctx context.Context) (*Result, error) {
	return c.Send(ctx, CommandStop)
}

// Status asks the host whether it is alive.
func (c *Client) Status(ctx context.Context) (*Result, error) {
	return c.Send(ctx, CommandStatus)
}

// Send writes one command and collects response lines until the monitor
// closes the connection or the timeout elapses. Connection failures are
// returned as errors; a timeout is reported through Result.TimedOut.
func (c *Client) Send(ctx context.Context, command string) (*Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	host := c.Host
	if host == "" {
		host = LoopbackHost
	}
	addr := net.JoinHostPort(host, strconv.Itoa(c.Port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))
	stopAfter := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stopAfter()

	if _, err := conn.Write(encodeRequest(c.Key, command)); err != nil {
		return nil, fmt.Errorf("failed to send %s command: %w", command, err)
	}

	res := &Result{}
	r := bufio.NewReader(conn)
	for {
		line, err := readLine(r)
		if err != nil {
			if isTimeout(err) {
				res.TimedOut = true
				return res, nil
			}
			if isClosed(err) {
				return res, nil
			}
			return res, fmt.Errorf("failed to read response: %w", err)
		}
		res.Lines = append(res.Lines, line)
		if line == ReplyStopped {
			res.Acknowledged = true
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET)
}
