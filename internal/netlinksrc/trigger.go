// Package netlinksrc consumes NETLINK_ROUTE neighbor and link events and
// translates the ones that matter into resolution triggers or rescan
// signals.
//
// A qualifying neighbor event is modeled as a small tagged-variant Trigger
// type (a kind tag plus per-kind payload) rather than three parallel
// call sites switching on address family, so downstream dispatch never
// has to re-inspect the family itself.
package netlinksrc

import "net"

// Kind identifies which overlay resolution a Trigger requests.
type Kind uint8

const (
	// KindV4 requests a VL3 (overlay IP) resolution for an IPv4 address,
	// which is v4-mapped into IPv6 form before it is sent.
	KindV4 Kind = iota
	// KindV6 requests a VL3 resolution for an IPv6 address.
	KindV6
	// KindMAC requests a VL2 (overlay MAC) resolution.
	KindMAC
)

func (k Kind) String() string {
	switch k {
	case KindV4:
		return "V4"
	case KindV6:
		return "V6"
	case KindMAC:
		return "MAC"
	default:
		return "UNKNOWN"
	}
}

// Trigger is a single qualifying neighbor event: a kernel request to resolve
// an overlay address for an interface that participates in the fabric.
type Trigger struct {
	Kind    Kind
	IfIndex int32

	// IP holds the overlay address for KindV4/KindV6 triggers.
	IP net.IP

	// MAC holds the overlay MAC for a KindMAC trigger.
	MAC [6]byte
}
