// Package device holds the concrete integrations behind the capability
// interfaces: the TCP bridge to the pointer actuator hardware and the HTTP
// client for the perception service that captures frames and runs the
// detectors.
package device

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/probelab-dev/uiscout/pkg/logger"
)

const dialTimeout = 5 * time.Second

// TCPTransport is a line-oriented transport to the actuator bridge. One
// command per line out, one response line back.
type TCPTransport struct {
	mu     sync.Mutex
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

// DialActuator connects to the actuator bridge at addr.
func DialActuator(addr string) (*TCPTransport, error) {
	t := &TCPTransport{addr: addr}
	if err := t.connect(); err != nil {
		return nil, fmt.Errorf("connect to actuator at %s: %w", addr, err)
	}
	logger.Info("device: connected to actuator at %s", addr)
	return t, nil
}

func (t *TCPTransport) connect() error {
	conn, err := net.DialTimeout("tcp", t.addr, dialTimeout)
	if err != nil {
		return err
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

// Send writes one command line and reads the response line, honoring the
// context deadline on both directions.
func (t *TCPTransport) Send(ctx context.Context, command string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return "", fmt.Errorf("actuator transport not connected")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(15 * time.Second)
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	if _, err := t.conn.Write([]byte(command + "\n")); err != nil {
		return "", wrapDeadline(ctx, err)
	}

	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", wrapDeadline(ctx, err)
	}
	return strings.TrimSpace(line), nil
}

// Reset closes and redials the connection. The bridge drops any half-sent
// command on disconnect, which is exactly what the retry path needs.
func (t *TCPTransport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger.Warn("device: resetting actuator transport")
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.reader = nil
	}
	return t.connect()
}

// Close shuts the connection down.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}

// wrapDeadline maps a network timeout onto the context error so callers
// can classify it with errors.Is(err, context.DeadlineExceeded).
func wrapDeadline(ctx context.Context, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return context.DeadlineExceeded
	}
	return err
}
