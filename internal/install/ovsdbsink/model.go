// Package ovsdbsink implements an svp.Installer backend that programs
// resolved overlay-to-underlay mappings into an Open vSwitch integration
// bridge through OVSDB, using the "hardware_vtep" schema's
// Physical_Locator/Logical_Switch/Ucast_Macs_Remote tables -- the real
// analogue of a Linux VTEP gateway's unicast remote-MAC table.
package ovsdbsink

import (
	"github.com/ovn-org/libovsdb/model"
)

// PhysicalLocator mirrors the hardware_vtep schema's Physical_Locator table:
// one tunnel endpoint, identified by encapsulation type and destination IP.
type PhysicalLocator struct {
	UUID              string `ovsdb:"_uuid"`
	DstIP             string `ovsdb:"dst_ip"`
	EncapsulationType string `ovsdb:"encapsulation_type"`
}

// LogicalSwitch mirrors hardware_vtep's Logical_Switch table: one entry per
// VXLAN vnet-id, named for and keyed by it.
type LogicalSwitch struct {
	UUID      string `ovsdb:"_uuid"`
	Name      string `ovsdb:"name"`
	TunnelKey *int   `ovsdb:"tunnel_key"`
}

// UcastMacsRemote mirrors hardware_vtep's Ucast_Macs_Remote table: one row
// per overlay MAC known to live behind a remote Physical_Locator -- the
// overlay-MAC -> underlay-(IP,port) binding.
type UcastMacsRemote struct {
	UUID          string  `ovsdb:"_uuid"`
	MAC           string  `ovsdb:"MAC"`
	LogicalSwitch *string `ovsdb:"logical_switch"`
	Locator       *string `ovsdb:"locator"`
	IPAddr        string  `ovsdb:"ipaddr"`
}

// dbName is the OVSDB schema name this sink targets.
const dbName = "hardware_vtep"

func clientDBModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel(dbName, map[string]model.Model{
		"Physical_Locator":  &PhysicalLocator{},
		"Logical_Switch":    &LogicalSwitch{},
		"Ucast_Macs_Remote": &UcastMacsRemote{},
	})
}
