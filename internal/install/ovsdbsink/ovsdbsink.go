package ovsdbsink

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/ovsdb"

	"github.com/mnx-cloud/govarpd/internal/svp"
)

// locatorUUIDName is the named-uuid placeholder used within a single OVSDB
// transaction so the Physical_Locator insert can be referenced by the
// Ucast_Macs_Remote insert, per the OVSDB protocol's "named uuid" mechanism
// (RFC 7047 section 5.2.1).
const locatorUUIDName = "varpd_locator"

// Sink programs resolved overlay mappings into an OVSDB server speaking the
// hardware_vtep schema, typically an Open vSwitch integration bridge acting
// as a VTEP gateway.
type Sink struct {
	cli    client.Client
	logger *slog.Logger
}

// Dial connects to an OVSDB server at endpoint (e.g. "tcp:127.0.0.1:6632")
// and begins monitoring the hardware_vtep tables this sink writes to.
func Dial(ctx context.Context, endpoint string, logger *slog.Logger) (*Sink, error) {
	dbModel, err := clientDBModel()
	if err != nil {
		return nil, fmt.Errorf("ovsdbsink: build client db model: %w", err)
	}

	cli, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("ovsdbsink: new client: %w", err)
	}
	if err := cli.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ovsdbsink: connect %s: %w", endpoint, err)
	}
	if _, err := cli.MonitorAll(ctx); err != nil {
		cli.Disconnect()
		return nil, fmt.Errorf("ovsdbsink: monitor %s: %w", endpoint, err)
	}

	return &Sink{
		cli:    cli,
		logger: logger.With(slog.String("component", "ovsdbsink")),
	}, nil
}

// Close disconnects from the OVSDB server.
func (s *Sink) Close() {
	s.cli.Disconnect()
}

func logicalSwitchName(vnetid uint32) string {
	return fmt.Sprintf("vxlan%d", vnetid)
}

// resolveLogicalSwitch finds the Logical_Switch row for vnetid, creating it
// if this is the first mapping seen for that VXLAN segment.
func (s *Sink) resolveLogicalSwitch(ctx context.Context, vnetid uint32) (ovsdb.UUID, error) {
	name := logicalSwitchName(vnetid)

	selectOp := ovsdb.Operation{
		Op:    ovsdb.OperationSelect,
		Table: "Logical_Switch",
		Where: []ovsdb.Condition{{Column: "name", Function: ovsdb.ConditionEqual, Value: name}},
	}
	results, err := s.cli.Transact(ctx, selectOp)
	if err != nil {
		return ovsdb.UUID{}, fmt.Errorf("select logical_switch %s: %w", name, err)
	}
	if len(results) == 1 && len(results[0].Rows) == 1 {
		if raw, ok := results[0].Rows[0]["_uuid"].(ovsdb.UUID); ok {
			return raw, nil
		}
	}

	key := int(vnetid)
	insertOp := ovsdb.Operation{
		Op:       ovsdb.OperationInsert,
		Table:    "Logical_Switch",
		UUIDName: "varpd_logical_switch",
		Row: ovsdb.Row{
			"name":       name,
			"tunnel_key": ovsdb.OvsSet{GoSet: []interface{}{key}},
		},
	}
	inserted, err := s.cli.Transact(ctx, insertOp)
	if err != nil {
		return ovsdb.UUID{}, fmt.Errorf("insert logical_switch %s: %w", name, err)
	}
	if len(inserted) != 1 {
		return ovsdb.UUID{}, fmt.Errorf("insert logical_switch %s: unexpected result count %d", name, len(inserted))
	}
	return inserted[0].UUID, nil
}

// InstallOverlayMAC programs the overlay-MAC -> underlay-(IP,port) binding
// as a Ucast_Macs_Remote row pointing at a freshly inserted Physical_Locator
// for the underlay tunnel endpoint. The OVSDB schema this sink targets has
// no column for a bare UDP port -- VXLAN destination port is a bridge-wide
// setting, not per-entry -- so port is logged but not stored.
func (s *Sink) InstallOverlayMAC(vnetid uint32, mac [svp.MACLen]byte, port uint16, underlay net.IP) error {
	ctx := context.Background()

	lsUUID, err := s.resolveLogicalSwitch(ctx, vnetid)
	if err != nil {
		return fmt.Errorf("ovsdbsink: resolve logical switch for vnetid %d: %w", vnetid, err)
	}

	ops := []ovsdb.Operation{
		{
			Op:       ovsdb.OperationInsert,
			Table:    "Physical_Locator",
			UUIDName: locatorUUIDName,
			Row: ovsdb.Row{
				"dst_ip":             underlay.String(),
				"encapsulation_type": "vxlan_over_ipv4",
			},
		},
		{
			Op:    ovsdb.OperationInsert,
			Table: "Ucast_Macs_Remote",
			Row: ovsdb.Row{
				"MAC":            net.HardwareAddr(mac[:]).String(),
				"ipaddr":         underlay.String(),
				"locator":        ovsdb.UUID{GoUUID: locatorUUIDName},
				"logical_switch": lsUUID,
			},
		},
	}

	if _, err := s.cli.Transact(ctx, ops...); err != nil {
		return fmt.Errorf("ovsdbsink: install overlay mac vnetid=%d mac=%s: %w", vnetid, net.HardwareAddr(mac[:]), err)
	}

	s.logger.Debug("programmed overlay mac",
		slog.Uint64("vnetid", uint64(vnetid)),
		slog.String("mac", net.HardwareAddr(mac[:]).String()),
		slog.Int("port", int(port)),
		slog.String("underlay", underlay.String()),
	)
	return nil
}

// InstallOverlayIP is a no-op on this backend: the hardware_vtep schema's
// ARP-suppression table (Arp_Sources_Remote) addresses a different
// direction of binding than the overlay-IP -> overlay-MAC mapping, so this
// sink only programs the MAC side; pairing it with install.LoggingInstaller
// via install.MultiInstaller covers the rest.
func (s *Sink) InstallOverlayIP(uint32, net.IP, [svp.MACLen]byte) error {
	return nil
}
