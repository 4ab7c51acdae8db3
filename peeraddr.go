package tarpit

import (
	"net"
	"net/netip"
)

// PeerAddr is a compact remote address. IPv4 addresses are stored in
// their IPv4-mapped IPv6 form, so one 18 byte value covers both families;
// at tens of thousands of held connections the per-record footprint adds
// up. The zero value is not a meaningful address.
type PeerAddr struct {
	ip   [16]byte
	port uint16
}

// PeerAddrFrom returns the compact form of ap.
func PeerAddrFrom(ap netip.AddrPort) PeerAddr {
	return PeerAddr{ip: ap.Addr().As16(), port: ap.Port()}
}

// peerAddrOf extracts the remote address of an accepted TCP socket,
// reporting false for sockets that cannot name their peer.
func peerAddrOf(addr net.Addr) (PeerAddr, bool) {
	t, ok := addr.(*net.TCPAddr)
	if !ok || t == nil {
		return PeerAddr{}, false
	}
	ap := t.AddrPort()
	if !ap.IsValid() {
		return PeerAddr{}, false
	}
	return PeerAddrFrom(ap), true
}

// AddrPort returns the address in its net/netip form, unmapped back to
// IPv4 where the stored address falls in the mapped range.
func (x PeerAddr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(x.ip).Unmap(), x.port)
}

// String implements fmt.Stringer, formatting as net/netip does.
func (x PeerAddr) String() string {
	return x.AddrPort().String()
}
