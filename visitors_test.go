package tarpit

import (
	"net/netip"
	"testing"
	"time"
)

func TestVisitors_counts(t *testing.T) {
	t.Parallel()
	v := newVisitors(time.Minute)
	p := PeerAddrFrom(netip.MustParseAddrPort(`192.0.2.1:50000`))
	for want := uint64(1); want <= 3; want++ {
		if got := v.visit(p); got != want {
			t.Errorf(`visit = %d, want %d`, got, want)
		}
	}
	// same IP from another ephemeral port is the same visitor
	q := PeerAddrFrom(netip.MustParseAddrPort(`192.0.2.1:50001`))
	if got := v.visit(q); got != 4 {
		t.Errorf(`visit = %d, want 4`, got)
	}
	// a different IP is not
	r := PeerAddrFrom(netip.MustParseAddrPort(`192.0.2.2:50000`))
	if got := v.visit(r); got != 1 {
		t.Errorf(`visit = %d, want 1`, got)
	}
}

func TestVisitors_window(t *testing.T) {
	t.Parallel()
	v := newVisitors(50 * time.Millisecond)
	p := PeerAddrFrom(netip.MustParseAddrPort(`198.51.100.1:2222`))
	if got := v.visit(p); got != 1 {
		t.Fatalf(`visit = %d, want 1`, got)
	}
	if got := v.visit(p); got != 2 {
		t.Fatalf(`visit = %d, want 2`, got)
	}
	time.Sleep(200 * time.Millisecond)
	if got := v.visit(p); got != 1 {
		t.Errorf(`visit after expiry = %d, want 1`, got)
	}
}

func TestVisitors_disabled(t *testing.T) {
	t.Parallel()
	for _, window := range [...]time.Duration{0, -time.Minute} {
		v := newVisitors(window)
		if v != nil {
			t.Fatalf(`newVisitors(%v) = %v, want nil`, window, v)
		}
		p := PeerAddrFrom(netip.MustParseAddrPort(`203.0.113.1:1`))
		if got := v.visit(p); got != 0 {
			t.Errorf(`visit on disabled ledger = %d, want 0`, got)
		}
	}
}
