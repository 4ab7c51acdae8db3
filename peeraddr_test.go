package tarpit

import (
	"net"
	"net/netip"
	"testing"
)

func TestPeerAddr_roundTrip(t *testing.T) {
	t.Parallel()
	for _, tc := range [...]struct {
		name string
		in   string
		want string
	}{
		{`ipv4`, `192.0.2.1:2222`, `192.0.2.1:2222`},
		{`ipv6`, `[2001:db8::1]:443`, `[2001:db8::1]:443`},
		{`ipv4 mapped`, `[::ffff:192.0.2.1]:80`, `192.0.2.1:80`},
		{`loopback`, `127.0.0.1:65535`, `127.0.0.1:65535`},
		{`ipv6 loopback`, `[::1]:1`, `[::1]:1`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := PeerAddrFrom(netip.MustParseAddrPort(tc.in))
			if got := p.String(); got != tc.want {
				t.Errorf(`String() = %q, want %q`, got, tc.want)
			}
			if got := p.AddrPort(); got.String() != tc.want {
				t.Errorf(`AddrPort() = %q, want %q`, got, tc.want)
			}
		})
	}
}

// An IPv4 peer and its IPv4-mapped IPv6 form store identically, which is
// what makes the visitor ledger family-agnostic.
func TestPeerAddr_mappedEquivalence(t *testing.T) {
	t.Parallel()
	a := PeerAddrFrom(netip.MustParseAddrPort(`192.0.2.7:1000`))
	b := PeerAddrFrom(netip.MustParseAddrPort(`[::ffff:192.0.2.7]:1000`))
	if a != b {
		t.Errorf(`expected identical storage, got %#v and %#v`, a, b)
	}
}

func TestPeerAddrOf(t *testing.T) {
	t.Parallel()
	for _, tc := range [...]struct {
		name string
		addr net.Addr
		want string
		ok   bool
	}{
		{`tcp4`, &net.TCPAddr{IP: net.IPv4(198, 51, 100, 9), Port: 4000}, `198.51.100.9:4000`, true},
		{`tcp6`, &net.TCPAddr{IP: net.ParseIP(`2001:db8::2`), Port: 22}, `[2001:db8::2]:22`, true},
		{`nil addr`, nil, ``, false},
		{`typed nil`, (*net.TCPAddr)(nil), ``, false},
		{`not tcp`, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, ``, false},
		{`no ip`, &net.TCPAddr{Port: 1}, ``, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := peerAddrOf(tc.addr)
			if ok != tc.ok {
				t.Fatalf(`ok = %v, want %v`, ok, tc.ok)
			}
			if ok && p.String() != tc.want {
				t.Errorf(`peer = %q, want %q`, p, tc.want)
			}
		})
	}
}
