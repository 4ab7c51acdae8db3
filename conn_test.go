package tarpit

import (
	"bytes"
	"errors"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestWouldBlock(t *testing.T) {
	t.Parallel()
	for _, tc := range [...]struct {
		name string
		err  error
		want bool
	}{
		{`eagain`, unix.EAGAIN, true},
		{`ewouldblock`, unix.EWOULDBLOCK, true},
		{`syscall wrapped`, &os.SyscallError{Syscall: `write`, Err: unix.EAGAIN}, true},
		{`op wrapped`, &net.OpError{Op: `write`, Err: &os.SyscallError{Syscall: `write`, Err: unix.EAGAIN}}, true},
		{`eintr`, unix.EINTR, false},
		{`econnreset`, unix.ECONNRESET, false},
		{`other`, errors.New(`nope`), false},
		{`nil`, nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := wouldBlock(tc.err); got != tc.want {
				t.Errorf(`wouldBlock(%v) = %v, want %v`, tc.err, got, tc.want)
			}
		})
	}
}

func TestInterrupted(t *testing.T) {
	t.Parallel()
	for _, tc := range [...]struct {
		name string
		err  error
		want bool
	}{
		{`eintr`, unix.EINTR, true},
		{`syscall wrapped`, &os.SyscallError{Syscall: `write`, Err: unix.EINTR}, true},
		{`op wrapped`, &net.OpError{Op: `write`, Err: &os.SyscallError{Syscall: `write`, Err: unix.EINTR}}, true},
		{`eagain`, unix.EAGAIN, false},
		{`other`, errors.New(`nope`), false},
		{`nil`, nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := interrupted(tc.err); got != tc.want {
				t.Errorf(`interrupted(%v) = %v, want %v`, tc.err, got, tc.want)
			}
		})
	}
}

// tcpPair returns a connected loopback pair, closed with the test.
func tcpPair(t *testing.T) (server, client *net.TCPConn) {
	t.Helper()
	l, err := net.Listen(`tcp`, `127.0.0.1:0`)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		ch <- result{c, err}
	}()
	c, err := net.Dial(`tcp`, l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	r := <-ch
	if r.err != nil {
		_ = c.Close()
		t.Fatal(r.err)
	}
	server, client = r.c.(*net.TCPConn), c.(*net.TCPConn)
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return
}

// With no reader and tiny buffers, repeated writes must surface
// backpressure as a would-block error rather than blocking the caller.
func TestRawWrite_backpressure(t *testing.T) {
	t.Parallel()
	server, client := tcpPair(t)
	if err := server.SetWriteBuffer(1); err != nil {
		t.Fatal(err)
	}
	if err := client.SetReadBuffer(1); err != nil {
		t.Fatal(err)
	}
	rc, err := server.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	w := rawWrite(rc)
	chunk := bytes.Repeat([]byte{'x'}, 4096)
	var total int
	for i := 0; ; i++ {
		if i > 4096 {
			t.Fatal(`kernel buffers never filled`)
		}
		n, err := w(chunk)
		if err != nil {
			if !wouldBlock(err) {
				t.Fatalf(`unexpected error: %v`, err)
			}
			if n != 0 {
				t.Errorf(`would-block reported %d bytes`, n)
			}
			break
		}
		if n <= 0 {
			t.Fatalf(`write returned %d without error`, n)
		}
		total += n
	}
	if total == 0 {
		t.Error(`expected progress before backpressure`)
	}
}

func TestRawWrite_closed(t *testing.T) {
	t.Parallel()
	server, _ := tcpPair(t)
	rc, err := server.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	n, err := rawWrite(rc)([]byte(`x`))
	if n != 0 || err == nil || wouldBlock(err) {
		t.Errorf(`rawWrite on closed socket = %d, %v`, n, err)
	}
}
