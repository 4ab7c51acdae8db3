package tarpit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

const (
	// DefaultAddress is the listen address used when none are configured.
	DefaultAddress = `0.0.0.0:2222`

	// acceptBackoff is the fixed pause after an unexpected accept error,
	// avoiding a tight loop on conditions like descriptor exhaustion.
	acceptBackoff = 100 * time.Millisecond
)

type (
	// Config configures a Server. The zero value is valid and listens on
	// DefaultAddress with the documented defaults.
	Config struct {
		// Addresses are the TCP listen addresses to bind.
		//
		// Defaults to [DefaultAddress], if empty.
		Addresses []string

		// MaxClients bounds the number of concurrently held connections.
		// At the bound, acceptance is suspended, leaving further
		// connection attempts in the OS listen backlog rather than
		// accepting and turning them away.
		//
		// Defaults to 4096, if 0.
		MaxClients int

		// Delay is the interval between write attempts to any one
		// connection, and therefore also the size of the scheduling
		// wheel. It must be a whole number of seconds, at least one.
		//
		// Defaults to 10s, if 0.
		Delay time.Duration

		// Timeout bounds consecutive backpressure: a connection whose
		// writes would block for this long in a row is disconnected. It
		// must be a positive multiple of Delay, as it is only ever
		// measured in whole rotations.
		//
		// Defaults to 30s, if 0.
		Timeout time.Duration

		// Banner is the text trickled to every connection, cyclically,
		// at most one line per write attempt.
		//
		// Defaults to DefaultBanner, if empty.
		Banner string

		// AcceptRate caps accepted connections per second, aggregate
		// across listeners, smoothing accept storms. Zero or negative
		// means unlimited. The MaxClients ceiling applies regardless.
		AcceptRate float64

		// AcceptBurst is the burst size of the accept rate limiter, and
		// is only meaningful with AcceptRate set.
		//
		// Defaults to 1, if 0.
		AcceptBurst int

		// VisitorWindow is the sliding window of the repeat-visitor
		// ledger, which annotates connect events from recurring peer
		// IPs with a visit count. Negative disables the ledger.
		//
		// Defaults to 30m, if 0.
		VisitorWindow time.Duration

		// Logger receives structured lifecycle events. May be nil, in
		// which case nothing is logged.
		Logger *logiface.Logger[logiface.Event]
	}

	// Server holds every connection it accepts and dribbles a banner to
	// each on a slow cycle. See the package documentation for the
	// scheduling model. A Server is created by New, bound by Listen, and
	// served by Run.
	Server struct {
		log     *logiface.Logger[logiface.Event]
		banner  []byte
		delay   time.Duration
		timeout time.Duration
		max     int
		epoch   time.Time

		// admission holds one permit per potential connection, acquired
		// before accept and released at eviction.
		admission *semaphore.Weighted
		limiter   *rate.Limiter
		visitors  *visitors

		addresses []string
		listeners []listener

		ring *wheel

		running atomic.Bool

		clients      atomic.Uint64
		totalClients atomic.Uint64
		totalBytes   atomic.Uint64
	}
)

// New validates cfg and returns a Server. The network is not touched
// until Listen.
func New(cfg Config) (*Server, error) {
	x := Server{
		log:       cfg.Logger,
		banner:    []byte(cfg.Banner),
		delay:     cfg.Delay,
		timeout:   cfg.Timeout,
		max:       cfg.MaxClients,
		epoch:     time.Now(),
		addresses: cfg.Addresses,
	}
	if len(x.banner) == 0 {
		x.banner = []byte(DefaultBanner)
	}
	if x.delay == 0 {
		x.delay = 10 * time.Second
	}
	if x.timeout == 0 {
		x.timeout = 30 * time.Second
	}
	if x.max == 0 {
		x.max = 4096
	}
	if len(x.addresses) == 0 {
		x.addresses = []string{DefaultAddress}
	}
	switch {
	case x.max < 0:
		return nil, fmt.Errorf(`%w: max clients must be positive`, ErrConfig)
	case x.delay < time.Second || x.delay%time.Second != 0:
		return nil, fmt.Errorf(`%w: delay must be a whole number of seconds, at least one`, ErrConfig)
	case x.timeout < x.delay || x.timeout%x.delay != 0:
		return nil, fmt.Errorf(`%w: timeout must be a positive multiple of delay`, ErrConfig)
	case cfg.AcceptBurst < 0:
		return nil, fmt.Errorf(`%w: accept burst must not be negative`, ErrConfig)
	}
	x.admission = semaphore.NewWeighted(int64(x.max))
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst == 0 {
			burst = 1
		}
		x.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	window := cfg.VisitorWindow
	if window == 0 {
		window = 30 * time.Minute
	}
	x.visitors = newVisitors(window)
	x.ring = newWheel(int(x.delay / time.Second))
	return &x, nil
}

// Run serves until a termination signal arrives or ctx is canceled,
// whichever comes first, then closes every listener and held connection.
// It returns nil for signal-driven shutdown and ctx.Err() for
// context-driven shutdown. Interrupt and terminate signals stop the
// server; hangup and USR1 log a stats snapshot and continue. Run may be
// called at most once.
func (x *Server) Run(ctx context.Context) error {
	if x.listeners == nil {
		return ErrNotListening
	}
	if !x.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, unix.SIGTERM, unix.SIGHUP, unix.SIGUSR1)
	defer signal.Stop(signals)

	accepted := make(chan net.Conn)
	var acceptors sync.WaitGroup
	for _, l := range x.listeners {
		acceptors.Add(1)
		go func() {
			defer acceptors.Done()
			x.acceptLoop(ctx, l, accepted)
		}()
	}

	x.log.Info().
		Int(`servers`, len(x.listeners)).
		Int(`max_clients`, x.max).
		Dur(`delay`, x.delay).
		Dur(`timeout`, x.timeout).
		Log(`start`)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Every mutation of the ring and counters happens on this goroutine,
	// while handling exactly one of the four event sources below.
	var err error
loop:
	for {
		select {
		case <-ticker.C:
			x.ring.sweep(x.pump)

		case c := <-accepted:
			x.admit(c)

		case sig := <-signals:
			if sig == unix.SIGHUP || sig == unix.SIGUSR1 {
				x.logStats(`stats`)
				continue
			}
			x.log.Info().Log(sig.String())
			break loop

		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}

	x.logStats(`shutdown`)

	cancel()
	for _, l := range x.listeners {
		_ = l.Close()
		_ = l.poll.Close()
	}
	acceptors.Wait()

	// remaining connections drop with the server
	x.ring.drain(func(c *conn) {
		_ = c.sock.Close()
		x.clients.Add(^uint64(0))
		x.admission.Release(1)
	})

	return err
}

// acceptLoop owns a single listener. A pending connection is awaited
// before admission capacity is reserved, so an idle listener reserves
// nothing; at the client ceiling the loop parks on the semaphore with
// the pending connection still in the OS listen backlog. No
// accept/close cycle is ever spent turning a connection away.
func (x *Server) acceptLoop(ctx context.Context, l listener, accepted chan<- net.Conn) {
	rc, err := l.poll.SyscallConn()
	if err != nil {
		return
	}
	for {
		if err := awaitPending(rc); err != nil {
			return
		}
		if err := x.admission.Acquire(ctx, 1); err != nil {
			return
		}
		if x.limiter != nil {
			if err := x.limiter.Wait(ctx); err != nil {
				x.admission.Release(1)
				return
			}
		}
		c, err := l.Accept()
		if err != nil {
			x.admission.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if ignorableAccept(err) {
				continue
			}
			x.log.Warning().Err(err).Dur(`wait`, acceptBackoff).Log(`accept`)
			select {
			case <-time.After(acceptBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case accepted <- c:
		case <-ctx.Done():
			_ = c.Close()
			x.admission.Release(1)
			return
		}
	}
}

// ignorableAccept reports errors meaning the remote vanished before its
// accept completed; they carry no information worth logging.
func ignorableAccept(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.ECONNRESET)
}

// admit takes ownership of a freshly accepted socket, recording it in
// the active slot. The acceptor already reserved admission capacity;
// the reject paths hand it back.
func (x *Server) admit(nc net.Conn) {
	peer, ok := peerAddrOf(nc.RemoteAddr())
	if !ok {
		x.reject(nc, errors.New(`no peer address`))
		return
	}
	sc, ok := nc.(syscall.Conn)
	if !ok {
		x.reject(nc, errors.New(`not a system socket`))
		return
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		x.reject(nc, err)
		return
	}
	x.ring.insert(&conn{
		sock:  nc,
		write: rawWrite(rc),
		peer:  peer,
		start: ElapsedSince(x.epoch),
	})
	clients := x.clients.Add(1)
	x.totalClients.Add(1)
	b := x.log.Info().Stringer(`peer`, peer).Uint64(`clients`, clients)
	if n := x.visitors.visit(peer); n > 1 {
		b = b.Uint64(`visits`, n)
	}
	b.Log(`connect`)
}

// reject discards a socket that cannot be tarpitted, because it cannot
// be addressed back.
func (x *Server) reject(nc net.Conn, cause error) {
	_ = nc.Close()
	x.admission.Release(1)
	x.log.Warning().Err(cause).Log(`reject`)
}

// pump drives one scheduled write attempt against c, reporting whether
// the connection stays in its slot. A connection is never disconnected
// for being slow, only for a real error or for exceeding the timeout
// budget in consecutive would-block rotations.
func (x *Server) pump(c *conn) bool {
	n, err := c.write(fragment(x.banner, c.sent))
	switch {
	case err == nil:
		c.sent += uint64(n)
		c.stalls = 0
		x.totalBytes.Add(uint64(n))
		x.log.Debug().Stringer(`peer`, c.peer).Int(`bytes`, n).Log(`write`)
		return true

	case interrupted(err):
		// neither progress nor backpressure; retry next rotation
		return true

	case wouldBlock(err):
		c.stalls++
		if x.delay*time.Duration(c.stalls) < x.timeout {
			return true
		}
		x.evict(c, errTimedOut)
		return false

	default:
		x.evict(c, err)
		return false
	}
}

// evict closes and unaccounts c, logging the disconnect with its cause.
func (x *Server) evict(c *conn, cause error) {
	_ = c.sock.Close()
	clients := x.clients.Add(^uint64(0))
	x.admission.Release(1)
	x.log.Info().
		Stringer(`peer`, c.peer).
		Dur(`duration`, ElapsedSince(x.epoch).Sub(c.start)).
		Uint64(`bytes`, c.sent).
		Str(`error`, cause.Error()).
		Uint64(`clients`, clients).
		Log(`disconnect`)
}
