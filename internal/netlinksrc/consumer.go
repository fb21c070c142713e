package netlinksrc

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// groups is the RTMGRP_LINK | RTMGRP_IPV4_ROUTE | RTMGRP_NEIGH multicast
// group mask this daemon needs: link add/remove notifications to trigger a
// fabric rescan, and neighbor-resolution events to trigger overlay lookups.
const groups = unix.RTMGRP_LINK | unix.RTMGRP_IPV4_ROUTE | unix.RTMGRP_NEIGH

// Consumer wraps a NETLINK_ROUTE socket subscribed to link and neighbor
// multicast groups. mdlayher/netlink's Conn dynamically sizes its receive
// buffer, so oversized datagrams are read in full rather than risking
// silent truncation against a fixed-size buffer.
type Consumer struct {
	conn   *netlink.Conn
	logger *slog.Logger
}

// Dial opens and binds a NETLINK_ROUTE socket, joining the link, IPv4
// route, and neighbor multicast groups.
func Dial(logger *slog.Logger) (*Consumer, error) {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{Groups: groups})
	if err != nil {
		return nil, fmt.Errorf("netlinksrc: dial: %w", err)
	}
	return &Consumer{conn: conn, logger: logger.With(slog.String("component", "netlinksrc"))}, nil
}

// Close closes the underlying socket.
func (c *Consumer) Close() error {
	return c.conn.Close()
}

// Fd exposes the underlying socket descriptor for the reactor's poll loop.
func (c *Consumer) Fd() (int, error) {
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// HandleInbound reads one readiness-worth of netlink messages (which may be
// more than one logical message per underlying datagram) and returns the
// resolution triggers they produced, plus whether a fabric rescan was
// requested (a link was added or removed, so the fabric interface inventory
// may be stale).
func (c *Consumer) HandleInbound() (triggers []Trigger, rescan bool, err error) {
	msgs, err := c.conn.Receive()
	if err != nil {
		return nil, false, fmt.Errorf("netlinksrc: receive: %w", err)
	}

	for _, msg := range msgs {
		switch msg.Header.Type {
		case unix.RTM_GETNEIGH:
			trig, ok := c.decodeNeigh(msg.Data)
			if ok {
				triggers = append(triggers, trig)
			}
		case unix.RTM_NEWNEIGH:
			// Ignored -- a neighbor entry already being refreshed by the
			// kernel is not a resolution miss and needs no directory
			// lookup.
		case unix.RTM_NEWLINK, unix.RTM_DELLINK:
			rescan = true
		default:
			// Every other message type carries no information this
			// daemon acts on.
		}
	}
	return triggers, rescan, nil
}

func (c *Consumer) decodeNeigh(data []byte) (Trigger, bool) {
	ndm, ok := decodeNdmsg(data)
	if !ok {
		c.logger.Warn("short ndmsg payload", slog.Int("len", len(data)))
		return Trigger{}, false
	}
	if !ndm.qualifies() {
		return Trigger{}, false
	}

	ad, err := netlink.NewAttributeDecoder(data[ndmsgLen:])
	if err != nil {
		c.logger.Warn("attribute decode failed", slog.Any("error", err))
		return Trigger{}, false
	}

	var dst []byte
	for ad.Next() {
		if ad.Type() == ndaDST {
			dst = ad.Bytes()
		}
	}
	if err := ad.Err(); err != nil {
		c.logger.Warn("attribute walk failed", slog.Any("error", err))
		return Trigger{}, false
	}
	if dst == nil {
		c.logger.Warn("neighbor event missing NDA_DST", slog.Int("ifindex", int(ndm.IfIndex)))
		return Trigger{}, false
	}

	switch ndm.Family {
	case afInet:
		if len(dst) != 4 {
			return Trigger{}, false
		}
		return Trigger{Kind: KindV4, IfIndex: ndm.IfIndex, IP: net.IP(dst).To16()}, true
	case afInet6:
		if len(dst) != 16 {
			return Trigger{}, false
		}
		return Trigger{Kind: KindV6, IfIndex: ndm.IfIndex, IP: net.IP(dst)}, true
	case afPacket:
		if len(dst) != 6 {
			return Trigger{}, false
		}
		var mac [6]byte
		copy(mac[:], dst)
		return Trigger{Kind: KindMAC, IfIndex: ndm.IfIndex, MAC: mac}, true
	default:
		return Trigger{}, false
	}
}
