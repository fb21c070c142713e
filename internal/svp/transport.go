package svp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// pingID is the reserved transaction id used for the handshake PING. The
// PING is never entered into the Registry, so an ordinary request that is
// later assigned this same id (NextID reaches it just before wrapping) is
// still matched only against its own transaction.
const pingID uint32 = 0xffffffff

// Installer receives resolved overlay mappings. Implementations live in
// internal/install; svp depends only on this narrow interface to avoid a
// package cycle.
type Installer interface {
	InstallOverlayMAC(vnetid uint32, mac [MACLen]byte, port uint16, underlay net.IP) error
	InstallOverlayIP(vnetid uint32, ip net.IP, mac [MACLen]byte) error
}

// Transport owns a single TCP connection to a Portolan SVP server, the
// transaction registry for requests sent over it, and the installer that
// consumes resolved acks. It is not safe for concurrent Send calls from
// multiple goroutines beyond what Registry already serializes; a
// single-threaded reactor is the intended caller.
type Transport struct {
	conn    net.Conn
	reg     *Registry
	logger  *slog.Logger
	install Installer

	readBuf [MaxMessageSize]byte
}

// Dial connects to addr, performs the SVP PING/PONG version handshake, and
// returns a ready Transport.
func Dial(ctx context.Context, addr string, reg *Registry, install Installer, logger *slog.Logger) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("svp: dial %s: %w", addr, err)
	}

	t := &Transport{
		conn:    conn,
		reg:     reg,
		logger:  logger.With(slog.String("component", "svp")),
		install: install,
	}

	if err := t.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) handshake() error {
	var buf [HeaderSize]byte
	hdr := Header{Version: Version, Op: OpPing, PayloadSize: 0, ID: pingID}
	hdr.Marshal(buf[:])
	hdr.CRC32 = ComputeCRC(buf[:])
	hdr.Marshal(buf[:])

	if _, err := t.conn.Write(buf[:]); err != nil {
		return fmt.Errorf("svp: send PING: %w", err)
	}

	if _, err := io.ReadFull(t.conn, buf[:]); err != nil {
		return fmt.Errorf("svp: recv PONG: %w", err)
	}

	var resp Header
	resp.Unmarshal(buf[:])
	wireCRC := resp.CRC32
	resp.CRC32 = 0
	resp.Marshal(buf[:])
	if got := ComputeCRC(buf[:]); got != wireCRC {
		return fmt.Errorf("svp: handshake crc mismatch: wire=0x%x computed=0x%x: %w", wireCRC, got, ErrCRCMismatch)
	}
	if resp.Op != OpPong {
		return fmt.Errorf("svp: handshake op mismatch: got %s, want %s", resp.Op, OpPong)
	}
	return nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// SendVL3Req issues a VL3_REQ for the overlay address ip within vnetid, on
// behalf of ifindex (the triggering link).
func (t *Transport) SendVL3Req(ifindex int32, vnetid uint32, ip net.IP) error {
	vtype, addr, ok := VL3TypeFor(ip)
	if !ok {
		return fmt.Errorf("svp: %v is neither a valid IPv4 nor IPv6 address", ip)
	}

	req := VL3Req{IP: addr, Type: vtype, VNetID: vnetid}
	id := t.reg.NextID()

	var msg [HeaderSize + VL3ReqSize]byte
	hdr := Header{Version: Version, Op: OpVL3Req, PayloadSize: VL3ReqSize, ID: id}
	hdr.Marshal(msg[:HeaderSize])
	req.Marshal(msg[HeaderSize:])
	hdr.CRC32 = ComputeCRC(msg[:])
	hdr.Marshal(msg[:HeaderSize])

	if _, err := t.conn.Write(msg[:]); err != nil {
		return fmt.Errorf("svp: send VL3_REQ: %w", err)
	}

	t.reg.Insert(&Transaction{ID: id, Op: OpVL3Req, IfIndex: ifindex, VL3Req: req})
	return nil
}

// SendVL2Req issues a VL2_REQ for the overlay MAC within vnetid, on behalf
// of ifindex.
func (t *Transport) SendVL2Req(ifindex int32, vnetid uint32, mac [MACLen]byte) error {
	req := VL2Req{MAC: mac, VNetID: vnetid}
	id := t.reg.NextID()

	var msg [HeaderSize + VL2ReqSize]byte
	hdr := Header{Version: Version, Op: OpVL2Req, PayloadSize: VL2ReqSize, ID: id}
	hdr.Marshal(msg[:HeaderSize])
	req.Marshal(msg[HeaderSize:])
	hdr.CRC32 = ComputeCRC(msg[:])
	hdr.Marshal(msg[:HeaderSize])

	if _, err := t.conn.Write(msg[:]); err != nil {
		return fmt.Errorf("svp: send VL2_REQ: %w", err)
	}

	t.reg.Insert(&Transaction{ID: id, Op: OpVL2Req, IfIndex: ifindex, VL2Req: req})
	return nil
}

// ErrTransactionNotFound is returned by HandleInbound when an ack's id does
// not match any outstanding transaction.
var ErrTransactionNotFound = errors.New("svp: no outstanding transaction for id")

// ErrAckMismatch is returned when an ack's op is not REQ+1 for the
// transaction it claims to answer.
var ErrAckMismatch = errors.New("svp: ack op does not match outstanding request op")

// HandleInbound reads exactly one SVP message from the connection, matches
// it to an outstanding transaction, validates it, and dispatches the result
// to the Installer.
func (t *Transport) HandleInbound() error {
	if _, err := io.ReadFull(t.conn, t.readBuf[:HeaderSize]); err != nil {
		return fmt.Errorf("svp: read header: %w", err)
	}

	var hdr Header
	hdr.Unmarshal(t.readBuf[:HeaderSize])

	total := int(HeaderSize) + int(hdr.PayloadSize)
	if total > MaxMessageSize {
		return fmt.Errorf("svp: message size %d exceeds %d-byte limit", total, MaxMessageSize)
	}

	if hdr.PayloadSize > 0 {
		if _, err := io.ReadFull(t.conn, t.readBuf[HeaderSize:total]); err != nil {
			return fmt.Errorf("svp: read payload: %w", err)
		}
	}

	wireCRC := hdr.CRC32
	hdr.CRC32 = 0
	hdr.Marshal(t.readBuf[:HeaderSize])
	if got := ComputeCRC(t.readBuf[:total]); got != wireCRC {
		return fmt.Errorf("svp: message crc mismatch: wire=0x%x computed=0x%x: %w", wireCRC, got, ErrCRCMismatch)
	}

	txn := t.reg.Take(hdr.ID)
	if txn == nil {
		return fmt.Errorf("%w: id=%d", ErrTransactionNotFound, hdr.ID)
	}

	if !hdr.Op.IsAckFor(txn.Op) {
		return fmt.Errorf("%w: req=%s ack=%s", ErrAckMismatch, txn.Op, hdr.Op)
	}

	switch hdr.Op {
	case OpVL2Ack:
		var ack VL2Ack
		ack.Unmarshal(t.readBuf[HeaderSize:total])
		return t.handleVL2Ack(txn, &ack)
	case OpVL3Ack:
		var ack VL3Ack
		ack.Unmarshal(t.readBuf[HeaderSize:total])
		return t.handleVL3Ack(txn, &ack)
	default:
		return fmt.Errorf("svp: unhandled ack op %s", hdr.Op)
	}
}

func (t *Transport) handleVL2Ack(txn *Transaction, ack *VL2Ack) error {
	if err := CheckStatus(ack.Status); err != nil {
		return fmt.Errorf("vl2 ack for vnetid %d: %w", txn.VL2Req.VNetID, err)
	}
	return t.install.InstallOverlayMAC(txn.VL2Req.VNetID, txn.VL2Req.MAC, ack.Port, ack.IP())
}

func (t *Transport) handleVL3Ack(txn *Transaction, ack *VL3Ack) error {
	if err := CheckStatus(ack.Status); err != nil {
		return fmt.Errorf("vl3 ack for vnetid %d: %w", txn.VL3Req.VNetID, err)
	}

	// Set the overlay MAC -> underlay mapping before the overlay IP ->
	// overlay MAC mapping: a packet forwarded using the second mapping must
	// already be able to resolve the first, or the kernel would forward it
	// to a MAC with no known underlay destination.
	if err := t.install.InstallOverlayMAC(txn.VL3Req.VNetID, ack.MAC, ack.Port, ack.UnderlayIP()); err != nil {
		return err
	}
	queryIP := net.IP(txn.VL3Req.IP[:])
	v4mapped := queryIP.To4() != nil
	if (txn.VL3Req.Type == VL3TypeIPv4) != v4mapped {
		return fmt.Errorf("svp: vl3 request type %d does not match stored address form %v", txn.VL3Req.Type, queryIP)
	}
	return t.install.InstallOverlayIP(txn.VL3Req.VNetID, queryIP, ack.MAC)
}

// Conn exposes the underlying connection for the reactor to poll on.
func (t *Transport) Conn() net.Conn {
	return t.conn
}

// SetDeadline is a thin convenience wrapper that sets a read/write deadline
// d from now on the underlying connection. The reactor does not call it.
func (t *Transport) SetDeadline(d time.Duration) error {
	return t.conn.SetDeadline(time.Now().Add(d))
}
