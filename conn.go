package tarpit

import (
	"errors"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

type (
	// writeFunc attempts a single non-blocking write, returning the
	// number of bytes moved on (possibly partial) success, or an error
	// such as unix.EAGAIN with nothing transferred.
	writeFunc func(p []byte) (int, error)

	// conn is the per-connection record. It exclusively owns its socket;
	// closing sock is the whole of teardown.
	conn struct {
		sock  io.Closer
		write writeFunc
		peer  PeerAddr
		start Elapsed
		// sent counts banner bytes delivered; the next fragment offset
		// is sent modulo the banner length.
		sent uint64
		// stalls counts consecutive would-block writes since the last
		// successful one.
		stalls uint32
	}
)

// rawWrite adapts a non-blocking socket into a writeFunc. Exactly one
// write(2) is issued per call; the callback returns true immediately so
// the runtime poller never parks waiting for writability, which is what
// net.Conn's Write would otherwise do.
func rawWrite(rc syscall.RawConn) writeFunc {
	return func(p []byte) (int, error) {
		n := -1
		var werr error
		err := rc.Write(func(fd uintptr) bool {
			n, werr = unix.Write(int(fd), p)
			return true
		})
		if err != nil {
			return 0, err
		}
		if n < 0 {
			n = 0
		}
		return n, werr
	}
}

// wouldBlock reports whether err is the backpressure outcome of a
// non-blocking write.
func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// interrupted reports whether err is a transient signal interruption,
// distinct from both backpressure and real socket errors.
func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
