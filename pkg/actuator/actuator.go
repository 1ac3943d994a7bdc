// Package actuator implements the command channel to the pointer/keyboard
// hardware. It wraps a raw line transport with the command deadline,
// reset-and-reconnect recovery, and mutual exclusion the exploration core
// requires; the transport itself (serial, TCP bridge) lives outside the
// core.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/logger"
)

// Transport sends one command line to the device and returns its response.
// Send must honor context cancellation. Reset performs a hard
// reset-and-reconnect of the underlying link.
type Transport interface {
	Send(ctx context.Context, command string) (string, error)
	Reset() error
	Close() error
}

// ErrTransportFailed reports a non-timeout transport failure that survived
// the reset-and-retry cycle.
var ErrTransportFailed = &core.ExplorationError{
	Category: core.ErrCategoryConnection,
	Code:     "transport_failed",
	Message:  "actuator transport failed after retry",
}

// Client implements core.Actuator on top of a Transport. Commands are
// serialized under a mutex: overlapping commands would desynchronize the
// engine's belief about the pointer position.
type Client struct {
	mu      sync.Mutex
	t       Transport
	timeout time.Duration
}

// New creates a client with the given per-command deadline.
func New(t Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{t: t, timeout: timeout}
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.Close()
}

// send issues one command under the deadline. On failure it resets the
// transport and retries exactly once; a second failure propagates to the
// caller as a command failure, not a crash.
func (c *Client) send(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.sendOnce(command)
	if err == nil {
		return nil
	}

	logger.Warn("actuator: command %q failed (%v), resetting transport", command, err)
	if resetErr := c.t.Reset(); resetErr != nil {
		return ErrTransportFailed.WithCause(fmt.Errorf("reset after %q: %w", command, resetErr))
	}

	if err = c.sendOnce(command); err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTransportTimeout.WithCause(fmt.Errorf("command %q", command))
	}
	return ErrTransportFailed.WithCause(fmt.Errorf("command %q: %w", command, err))
}

func (c *Client) sendOnce(command string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.t.Send(ctx, command)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return err
}

// MoveRelative moves the pointer by raw actuator units.
func (c *Client) MoveRelative(dx, dy int) error {
	return c.send(fmt.Sprintf("MOVE %d %d", dx, dy))
}

// Scroll scrolls by raw actuator units.
func (c *Client) Scroll(dx, dy int) error {
	return c.send(fmt.Sprintf("SCROLL %d %d", dx, dy))
}

// Click presses a pointer button.
func (c *Client) Click(button int) error {
	return c.send(fmt.Sprintf("CLICK %d", button))
}

// TypeText injects a text string. Callers chunk strings longer than the
// configured per-command limit.
func (c *Client) TypeText(s string) error {
	return c.send("PRINT " + s)
}

// SpecialKey presses a named key.
func (c *Client) SpecialKey(name string) error {
	return c.send("WRITE " + name)
}

// Keypress sends a named key combination or device action.
func (c *Client) Keypress(action string) error {
	return c.send("KEYPRESS " + action)
}

// OpenSwitcher opens the application switcher overlay.
func (c *Client) OpenSwitcher() error {
	return c.send("SWITCHER")
}

// Recenter recenters the headset view on the pointer.
func (c *Client) Recenter() error {
	return c.send("RECENTER")
}
