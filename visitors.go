package tarpit

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// visitorCacheSize bounds the repeat-visitor ledger; once exceeded, the
// least recently seen peers fall out first.
const visitorCacheSize = 8192

// visitors tracks how many times each peer IP connected within a sliding
// window, which separates persistent scanners from one-off callers in
// the connect logs. Ports are ignored: scanners reconnect from ephemeral
// ports.
type visitors struct {
	lru *expirable.LRU[[16]byte, uint64]
}

// newVisitors returns a ledger with the given window, or nil, itself a
// valid inert ledger, for window <= 0.
func newVisitors(window time.Duration) *visitors {
	if window <= 0 {
		return nil
	}
	return &visitors{lru: expirable.NewLRU[[16]byte, uint64](visitorCacheSize, nil, window)}
}

// visit records a connection from p, returning how many connections the
// same IP has made within the window, this one included, or 0 on an
// inert ledger.
func (x *visitors) visit(p PeerAddr) uint64 {
	if x == nil {
		return 0
	}
	n, _ := x.lru.Get(p.ip)
	n++
	x.lru.Add(p.ip, n)
	return n
}
