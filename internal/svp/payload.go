package svp

import (
	"encoding/binary"
	"net"
)

// MACLen is the Ethernet address length.
const MACLen = 6

// VL2ReqSize is the wire size of a VL2Req payload: mac(6) + pad(2) +
// vnetid(4).
const VL2ReqSize = 12

// VL2AckSize is the wire size of a VL2Ack payload: status(2) + port(2) +
// addr(16).
const VL2AckSize = 20

// VL3ReqSize is the wire size of a VL3Req payload: ip(16) + type(4) +
// vnetid(4).
const VL3ReqSize = 24

// VL3AckSize is the wire size of a VL3Ack payload: status(4) + mac(6) +
// port(2) + ip(16).
const VL3AckSize = 28

// VL3Type distinguishes the address family of a VL3Req.
type VL3Type uint32

const (
	VL3TypeIPv4 VL3Type = 0x01
	VL3TypeIPv6 VL3Type = 0x02
)

// VL2Req is a VLS->UL3 lookup request: "given this overlay MAC in this
// vnet, what underlay address and port serves it?"
type VL2Req struct {
	MAC    [MACLen]byte
	VNetID uint32
}

// Marshal encodes r into buf[0:VL2ReqSize].
func (r *VL2Req) Marshal(buf []byte) {
	copy(buf[0:MACLen], r.MAC[:])
	buf[MACLen] = 0
	buf[MACLen+1] = 0
	binary.BigEndian.PutUint32(buf[8:12], r.VNetID)
}

// Unmarshal decodes r from buf[0:VL2ReqSize].
func (r *VL2Req) Unmarshal(buf []byte) {
	copy(r.MAC[:], buf[0:MACLen])
	r.VNetID = binary.BigEndian.Uint32(buf[8:12])
}

// VL2Ack is the server's reply to a VL2Req.
type VL2Ack struct {
	Status Status
	Port   uint16
	Addr   [16]byte // IPv4-mapped IPv6 when the underlay is IPv4.
}

// Unmarshal decodes a from buf[0:VL2AckSize].
func (a *VL2Ack) Unmarshal(buf []byte) {
	a.Status = Status(binary.BigEndian.Uint16(buf[0:2]))
	a.Port = binary.BigEndian.Uint16(buf[2:4])
	copy(a.Addr[:], buf[4:20])
}

// IP returns the underlay address as a net.IP.
func (a *VL2Ack) IP() net.IP {
	return net.IP(a.Addr[:])
}

// VL3Req is a VL3->VL2 lookup request (which implicitly resolves VL2->UL3
// too): "given this overlay IP in this vnet, what overlay MAC has it, and
// what underlay address serves that MAC?"
type VL3Req struct {
	IP     [16]byte
	Type   VL3Type
	VNetID uint32
}

// Marshal encodes r into buf[0:VL3ReqSize].
func (r *VL3Req) Marshal(buf []byte) {
	copy(buf[0:16], r.IP[:])
	binary.BigEndian.PutUint32(buf[16:20], uint32(r.Type))
	binary.BigEndian.PutUint32(buf[20:24], r.VNetID)
}

// Unmarshal decodes r from buf[0:VL3ReqSize].
func (r *VL3Req) Unmarshal(buf []byte) {
	copy(r.IP[:], buf[0:16])
	r.Type = VL3Type(binary.BigEndian.Uint32(buf[16:20]))
	r.VNetID = binary.BigEndian.Uint32(buf[20:24])
}

// VL3Ack is the server's reply to a VL3Req.
type VL3Ack struct {
	Status Status
	MAC    [MACLen]byte
	Port   uint16
	IP     [16]byte
}

// Unmarshal decodes a from buf[0:VL3AckSize].
func (a *VL3Ack) Unmarshal(buf []byte) {
	a.Status = Status(binary.BigEndian.Uint32(buf[0:4]))
	copy(a.MAC[:], buf[4:10])
	a.Port = binary.BigEndian.Uint16(buf[10:12])
	copy(a.IP[:], buf[12:28])
}

// UnderlayIP returns the underlay address as a net.IP.
func (a *VL3Ack) UnderlayIP() net.IP {
	return net.IP(a.IP[:])
}

// VL3TypeFor returns the VL3Type matching the address family of ip, or
// false if ip is neither a valid IPv4 nor IPv6 address.
func VL3TypeFor(ip net.IP) (VL3Type, [16]byte, bool) {
	var out [16]byte
	if v4 := ip.To4(); v4 != nil {
		v4in6 := v4.To16()
		copy(out[:], v4in6)
		return VL3TypeIPv4, out, true
	}
	if v6 := ip.To16(); v6 != nil {
		copy(out[:], v6)
		return VL3TypeIPv6, out, true
	}
	return 0, out, false
}
