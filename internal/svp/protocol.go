// Package svp implements the SDC VXLAN Protocol (SVP): the framed, CRC32
// protected TCP protocol govarpd speaks to a remote Portolan directory
// service to resolve overlay-to-underlay mappings.
package svp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Version is the only SVP protocol version defined so far.
const Version uint16 = 1

// HeaderSize is the fixed SVP request header size in bytes: version(2) +
// op(2) + payload size(4) + id(4) + crc32(4).
const HeaderSize = 16

// MaxMessageSize bounds a single inbound message (header + payload) to a
// size comfortably larger than any ack this daemon expects to receive.
const MaxMessageSize = 2048

// Op identifies an SVP message type.
type Op uint16

// Op codes. Only the subset this daemon actually issues or consumes are
// defined; bulk-transfer, log-replay, and shootdown ops exist on the wire
// but are never sent or handled here.
const (
	OpUnknown Op = 0x00
	OpPing    Op = 0x01
	OpPong    Op = 0x02
	OpVL2Req  Op = 0x03
	OpVL2Ack  Op = 0x04
	OpVL3Req  Op = 0x05
	OpVL3Ack  Op = 0x06
)

// String renders an Op for logging.
func (o Op) String() string {
	switch o {
	case OpUnknown:
		return "UNKNOWN"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	case OpVL2Req:
		return "VL2_REQ"
	case OpVL2Ack:
		return "VL2_ACK"
	case OpVL3Req:
		return "VL3_REQ"
	case OpVL3Ack:
		return "VL3_ACK"
	default:
		return fmt.Sprintf("OP(0x%x)", uint16(o))
	}
}

// IsAckFor reports whether o is the ACK op immediately following req: every
// ACK op code is its REQ's code plus one.
func (o Op) IsAckFor(req Op) bool {
	return o == req+1
}

// Status is the server-reported outcome of a request.
type Status uint32

const (
	StatusOK        Status = 0x00
	StatusFatal     Status = 0x01
	StatusNotFound  Status = 0x02
	StatusBadL3Type Status = 0x03
	StatusBadBulk   Status = 0x04
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFatal:
		return "FATAL"
	case StatusNotFound:
		return "NOTFOUND"
	case StatusBadL3Type:
		return "BADL3TYPE"
	case StatusBadBulk:
		return "BADBULK"
	default:
		return fmt.Sprintf("STATUS(0x%x)", uint32(s))
	}
}

// ErrFatalStatus is returned when a server response carries StatusFatal,
// which ends the connection: the server has told us it cannot continue
// serving requests on it.
var ErrFatalStatus = errors.New("svp: server returned a fatal status")

// ErrNotFound is returned when a server response carries StatusNotFound --
// not an error worth logging loudly, but still reported to the caller so
// metrics can count it and the transaction can be dropped.
var ErrNotFound = errors.New("svp: entry not found")

// ErrBadStatus is returned for any other unrecognized status value.
var ErrBadStatus = errors.New("svp: unrecognized status code")

// ErrCRCMismatch is returned when a message's wire CRC does not match the
// CRC recomputed over its contents. On the handshake PONG this is fatal;
// on a routine ack it is a transient condition to log and drop.
var ErrCRCMismatch = errors.New("svp: crc mismatch")

// CheckStatus translates a decoded Status into the corresponding sentinel
// error, or nil for StatusOK.
func CheckStatus(s Status) error {
	switch s {
	case StatusOK:
		return nil
	case StatusFatal:
		return fmt.Errorf("%w", ErrFatalStatus)
	case StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case StatusBadL3Type, StatusBadBulk:
		return fmt.Errorf("status %s: %w", s, ErrBadStatus)
	default:
		return fmt.Errorf("status %s: %w", s, ErrBadStatus)
	}
}

// Header is the 16-byte SVP request/response header preceding every message
// payload, always encoded in network byte order.
type Header struct {
	Version     uint16
	Op          Op
	PayloadSize uint32
	ID          uint32
	CRC32       uint32
}

// Marshal encodes h into buf[0:HeaderSize]. buf must be at least HeaderSize
// bytes long.
func (h *Header) Marshal(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Op))
	binary.BigEndian.PutUint32(buf[4:8], h.PayloadSize)
	binary.BigEndian.PutUint32(buf[8:12], h.ID)
	binary.BigEndian.PutUint32(buf[12:16], h.CRC32)
}

// Unmarshal decodes h from buf[0:HeaderSize].
func (h *Header) Unmarshal(buf []byte) {
	h.Version = binary.BigEndian.Uint16(buf[0:2])
	h.Op = Op(binary.BigEndian.Uint16(buf[2:4]))
	h.PayloadSize = binary.BigEndian.Uint32(buf[4:8])
	h.ID = binary.BigEndian.Uint32(buf[8:12])
	h.CRC32 = binary.BigEndian.Uint32(buf[12:16])
}

// crc computes the SVP CRC-32/IEEE checksum over a full message (header with
// a zeroed CRC field, followed by payload): init value 0xFFFFFFFF, standard
// IEEE polynomial (via hash/crc32's IEEE table), one's-complement of the
// final running value.
//
// hash/crc32 is used directly rather than a third-party CRC package:
// CRC-32/IEEE is bit-exact and fully specified, and the standard library
// already implements this exact variant correctly.
func crc(msg []byte) uint32 {
	return crc32.ChecksumIEEE(msg)
}

// ComputeCRC returns the CRC32 value for a message whose header has its
// CRC32 field set to zero, header and payload laid out contiguously in msg.
func ComputeCRC(msg []byte) uint32 {
	return crc(msg)
}
