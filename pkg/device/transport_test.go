package device

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// echoServer answers every command line with "OK <command>". A command of
// "HANG" is swallowed without a response.
func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					cmd := strings.TrimSpace(line)
					if cmd == "HANG" {
						continue
					}
					c.Write([]byte("OK " + cmd + "\n"))
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestSendRoundTrip(t *testing.T) {
	ln := echoServer(t)
	tr, err := DialActuator(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	resp, err := tr.Send(context.Background(), "MOVE 10 -5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "OK MOVE 10 -5" {
		t.Errorf("unexpected response: %q", resp)
	}
}

func TestSendHonorsDeadline(t *testing.T) {
	ln := echoServer(t)
	tr, err := DialActuator(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = tr.Send(ctx, "HANG")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestResetReconnects(t *testing.T) {
	ln := echoServer(t)
	tr, err := DialActuator(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	if err := tr.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	resp, err := tr.Send(context.Background(), "CLICK 1")
	if err != nil {
		t.Fatalf("send after reset: %v", err)
	}
	if resp != "OK CLICK 1" {
		t.Errorf("unexpected response after reset: %q", resp)
	}
}

func TestDialFailure(t *testing.T) {
	if _, err := DialActuator("127.0.0.1:1"); err == nil {
		t.Error("expected dial failure")
	}
}
