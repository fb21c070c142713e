// Package reactor implements the daemon's single-threaded readiness loop: a
// poll(2)-based multiplexer over the netlink socket and the SVP socket,
// dispatching to the netlink consumer (internal/netlinksrc) and the SVP
// transport (internal/svp). A buffered channel gives SIGHUP a way to wake
// the reactor and request a rescan without it needing to poll a signal fd
// directly. The reactor depends only on narrow interfaces for its
// collaborators (NetlinkSource, SVPSender, FabricScanner) rather than their
// concrete types, so it can be driven by fakes in tests without a real
// netlink socket or TCP connection.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mnx-cloud/govarpd/internal/fabriclink"
	varpdmetrics "github.com/mnx-cloud/govarpd/internal/metrics"
	"github.com/mnx-cloud/govarpd/internal/netlinksrc"
	"github.com/mnx-cloud/govarpd/internal/svp"
)

// defaultPollTimeout is the reactor's readiness-wait timeout; a timeout is
// a no-op, just a chance to check for a pending rescan request.
const defaultPollTimeout = 60 * time.Second

// NetlinkSource is the narrow interface the reactor needs from a netlink
// consumer. *netlinksrc.Consumer implements it.
type NetlinkSource interface {
	Fd() (int, error)
	HandleInbound() (triggers []netlinksrc.Trigger, rescan bool, err error)
}

// SVPSender is the narrow interface the reactor needs from an SVP
// transport. *svp.Transport implements it.
type SVPSender interface {
	Conn() net.Conn
	SendVL3Req(ifindex int32, vnetid uint32, ip net.IP) error
	SendVL2Req(ifindex int32, vnetid uint32, mac [svp.MACLen]byte) error
	HandleInbound() error
}

// FabricScanner is the narrow interface the reactor needs to re-scan the
// fabric link inventory. *fabricscan.Scanner implements it.
type FabricScanner interface {
	ScanVXLANSide() error
	ScanFabricSide() error
	SeedFromFile(path string) error
}

// Reactor is the single-threaded readiness loop multiplexing the netlink
// socket and the SVP socket.
type Reactor struct {
	netlink NetlinkSource
	svp     SVPSender
	table   *fabriclink.Table
	scanner FabricScanner
	reg     *svp.Registry

	nicsFile string
	metrics  *varpdmetrics.Collector
	logger   *slog.Logger

	pollTimeout  time.Duration
	rescanSignal chan struct{}
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithPollTimeout overrides the default ~60s readiness-wait timeout.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Reactor) { r.pollTimeout = d }
}

// WithMetrics attaches a metrics collector the reactor records operational
// counters/gauges into.
func WithMetrics(m *varpdmetrics.Collector) Option {
	return func(r *Reactor) { r.metrics = m }
}

// WithRegistry attaches the transaction registry so the reactor can report
// the outstanding-transaction gauge after each processed ack.
func WithRegistry(reg *svp.Registry) Option {
	return func(r *Reactor) { r.reg = reg }
}

// New creates a Reactor wired to the given subsystems.
func New(nl NetlinkSource, sender SVPSender, table *fabriclink.Table, scanner FabricScanner, nicsFile string, logger *slog.Logger, opts ...Option) *Reactor {
	r := &Reactor{
		netlink:      nl,
		svp:          sender,
		table:        table,
		scanner:      scanner,
		nicsFile:     nicsFile,
		logger:       logger.With(slog.String("component", "reactor")),
		pollTimeout:  defaultPollTimeout,
		rescanSignal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NotifyRescan requests a fabric re-scan at the next readiness-loop
// iteration; outstanding transactions are left untouched. Non-blocking: a
// pending request is coalesced with any already queued.
func (r *Reactor) NotifyRescan() {
	select {
	case r.rescanSignal <- struct{}{}:
	default:
	}
}

func (r *Reactor) pendingRescan() bool {
	select {
	case <-r.rescanSignal:
		return true
	default:
		return false
	}
}

// rawFd extracts the underlying file descriptor from a net.Conn, used to
// build the poll(2) fd set for the SVP socket.
func rawFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errors.New("reactor: connection does not expose a raw file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("reactor: syscall conn: %w", err)
	}
	var fd int
	if ctrlErr := raw.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return -1, fmt.Errorf("reactor: control: %w", ctrlErr)
	}
	return fd, nil
}

// rescan runs both fabric scan walks and the declarative seed file, logging
// and recording metrics on completion. Scan errors are logged, not fatal,
// except a programmer-invariant violation (fabriclink.IsFatal), which
// propagates.
func (r *Reactor) rescan(trigger string) error {
	if err := r.scanner.ScanVXLANSide(); err != nil {
		if fabriclink.IsFatal(err) {
			return fmt.Errorf("reactor: fatal during vxlan-side scan: %w", err)
		}
		r.logger.Warn("vxlan-side scan error", slog.Any("error", err))
	}
	if err := r.scanner.ScanFabricSide(); err != nil {
		if fabriclink.IsFatal(err) {
			return fmt.Errorf("reactor: fatal during fabric-side scan: %w", err)
		}
		r.logger.Warn("fabric-side scan error", slog.Any("error", err))
	}
	if r.nicsFile != "" {
		if err := r.scanner.SeedFromFile(r.nicsFile); err != nil {
			if fabriclink.IsFatal(err) {
				return fmt.Errorf("reactor: fatal during fabric-nics seed: %w", err)
			}
			r.logger.Warn("fabric-nics seed error", slog.Any("error", err))
		}
	}

	linkCount := r.table.Count()

	if r.metrics != nil {
		r.metrics.RecordScan(trigger, linkCount)
	}
	r.logger.Info("fabric scan complete", slog.String("trigger", trigger), slog.Int("links", linkCount))
	return nil
}

// Run drives the readiness loop until ctx is cancelled or a fatal error
// occurs. An error from the poll(2) primitive itself (not EINTR) is fatal:
// the reactor has lost its ability to wait for readiness at all.
func (r *Reactor) Run(ctx context.Context) error {
	netlinkFd, err := r.netlink.Fd()
	if err != nil {
		return fmt.Errorf("reactor: netlink fd: %w", err)
	}
	svpFd, err := rawFd(r.svp.Conn())
	if err != nil {
		return fmt.Errorf("reactor: svp fd: %w", err)
	}

	if err := r.rescan("startup"); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if r.pendingRescan() {
			if err := r.rescan("sighup"); err != nil {
				return err
			}
		}

		fds := []unix.PollFd{
			{Fd: int32(netlinkFd), Events: unix.POLLIN},
			{Fd: int32(svpFd), Events: unix.POLLIN},
		}

		n, err := unix.Poll(fds, int(r.pollTimeout.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("reactor: poll: %w", err)
		}
		if n == 0 {
			// Timeout: a no-op, just loop back to check for a pending
			// rescan request.
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if err := r.handleNetlinkReadable(); err != nil {
				if fabriclink.IsFatal(err) {
					return err
				}
				r.logger.Warn("netlink handling error", slog.Any("error", err))
			}
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			if err := r.handleSVPReadable(); err != nil {
				return fmt.Errorf("reactor: svp: %w", err)
			}
		}
	}
}

func (r *Reactor) handleNetlinkReadable() error {
	triggers, rescanNeeded, err := r.netlink.HandleInbound()
	if err != nil {
		return err
	}
	if rescanNeeded {
		if err := r.rescan("rtm_newlink"); err != nil {
			return err
		}
	}
	for _, trig := range triggers {
		r.dispatch(trig)
	}
	return nil
}

func (r *Reactor) dispatch(trig netlinksrc.Trigger) {
	if r.metrics != nil {
		r.metrics.RecordTrigger(strings.ToLower(trig.Kind.String()))
	}

	vnetid, ok := r.table.VNetID(trig.IfIndex)
	if !ok {
		r.logger.Warn("trigger on unknown fabric link", slog.Int("ifindex", int(trig.IfIndex)))
		return
	}

	var err error
	var op string
	switch trig.Kind {
	case netlinksrc.KindV4, netlinksrc.KindV6:
		op = "vl3_req"
		err = r.svp.SendVL3Req(trig.IfIndex, vnetid, trig.IP)
	case netlinksrc.KindMAC:
		op = "vl2_req"
		err = r.svp.SendVL2Req(trig.IfIndex, vnetid, trig.MAC)
	}
	if err != nil {
		r.logger.Warn("failed to send svp request", slog.String("op", op), slog.Any("error", err))
		return
	}
	if r.metrics != nil {
		r.metrics.RecordRequestSent(op)
	}
}

// handleSVPReadable processes exactly one full framed SVP message. A
// server "not found" status is logged at info and its transaction dropped;
// transient protocol-level errors (unmatched ack, op mismatch, routine CRC
// mismatch) are logged and dropped; anything else (broken connection, fatal
// server status) is fatal and propagates.
func (r *Reactor) handleSVPReadable() error {
	err := r.svp.HandleInbound()

	if r.reg != nil && r.metrics != nil {
		status := "ok"
		switch {
		case errors.Is(err, svp.ErrNotFound):
			status = "notfound"
		case err != nil:
			status = "error"
		}
		r.metrics.RecordAck(status, r.reg.Len())
	}

	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, svp.ErrNotFound):
		r.logger.Info("svp entry not found, dropping transaction", slog.Any("error", err))
		return nil
	case errors.Is(err, svp.ErrTransactionNotFound),
		errors.Is(err, svp.ErrAckMismatch),
		errors.Is(err, svp.ErrCRCMismatch):
		r.logger.Warn("svp transient error, dropping message", slog.Any("error", err))
		return nil
	default:
		return err
	}
}
