package tarpit

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Listener socket options. The buffer values are intentionally tiny; the
// kernel clamps them to its floor, and accepted sockets inherit them, so
// each tarpitted socket pledges as little kernel memory as the platform
// allows.
const (
	listenRcvBuf = 1
	listenSndBuf = 16
)

// listener is a bound TCP listener plus a duplicate of its descriptor
// for readiness waits; a listener's own RawConn supports only Control.
type listener struct {
	net.Listener
	poll *os.File
}

// pollFile duplicates l's descriptor into an os.File registered with the
// runtime poller, so acceptLoop can park until a connection is pending
// without consuming the listener itself.
func pollFile(l *net.TCPListener) (*os.File, error) {
	rc, err := l.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		dup  int
		derr error
	)
	if err := rc.Control(func(fd uintptr) {
		dup, derr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if derr != nil {
		return nil, derr
	}
	return os.NewFile(uintptr(dup), l.Addr().String()), nil
}

// awaitPending parks until the accept queue behind rc holds at least one
// connection. The queue is checked with a zero-timeout poll on every
// wakeup, so arrivals coalesced into a single readiness event are never
// lost. Returns an error once the descriptor is closed.
func awaitPending(rc syscall.RawConn) error {
	return rc.Read(func(fd uintptr) bool {
		fds := [...]unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds[:], 0)
		return err == nil && n > 0 &&
			fds[0].Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0
	})
}

// listenConfig returns the ListenConfig used to bind listeners,
// requesting minimal socket buffers and address reuse. Socket option
// failures are logged and otherwise ignored; a listener that cannot
// shrink its buffers still tarpits.
func (x *Server) listenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				for _, o := range [...]struct {
					name string
					opt  int
					val  int
				}{
					{`SO_REUSEADDR`, unix.SO_REUSEADDR, 1},
					{`SO_RCVBUF`, unix.SO_RCVBUF, listenRcvBuf},
					{`SO_SNDBUF`, unix.SO_SNDBUF, listenSndBuf},
				} {
					if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, o.opt, o.val); err != nil {
						x.log.Warning().
							Str(`addr`, address).
							Str(`opt`, o.name).
							Err(err).
							Log(`setsockopt`)
					}
				}
			})
		},
	}
}

// Listen binds every configured address. It must be called once, before
// Run. On failure, any listeners already bound are closed and the server
// may attempt Listen again.
func (x *Server) Listen(ctx context.Context) error {
	if x.listeners != nil {
		return ErrAlreadyListening
	}
	lc := x.listenConfig()
	listeners := make([]listener, 0, len(x.addresses))
	for _, addr := range x.addresses {
		l, err := lc.Listen(ctx, `tcp`, addr)
		var pf *os.File
		if err == nil {
			if pf, err = pollFile(l.(*net.TCPListener)); err != nil {
				_ = l.Close()
			}
		}
		if err != nil {
			for _, p := range listeners {
				_ = p.Close()
				_ = p.poll.Close()
			}
			return fmt.Errorf(`tarpit: listen %s: %w`, addr, err)
		}
		x.log.Info().Str(`addr`, l.Addr().String()).Log(`listen`)
		listeners = append(listeners, listener{Listener: l, poll: pf})
	}
	x.listeners = listeners
	return nil
}

// Addrs returns the bound listener addresses, or nil before Listen. It
// is mainly useful after binding port 0.
func (x *Server) Addrs() []net.Addr {
	if x.listeners == nil {
		return nil
	}
	addrs := make([]net.Addr, len(x.listeners))
	for i, l := range x.listeners {
		addrs[i] = l.Addr()
	}
	return addrs
}
