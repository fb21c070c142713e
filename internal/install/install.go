// Package install provides Installer implementations that program the
// resolved overlay-to-underlay mappings the SVP transport (internal/svp)
// receives from Portolan.
//
// This package supplies two concrete sinks: a logging sink (useful for
// dry-run/diagnostic deployments) and an OVSDB-backed sink
// (internal/install/ovsdbsink) for a real Linux VTEP fabric built on
// Open vSwitch.
package install

import (
	"log/slog"
	"net"

	"github.com/mnx-cloud/govarpd/internal/svp"
)

// LoggingInstaller implements svp.Installer by logging every resolved
// mapping at info level instead of programming it anywhere.
type LoggingInstaller struct {
	logger *slog.Logger
}

// NewLoggingInstaller creates a LoggingInstaller.
func NewLoggingInstaller(logger *slog.Logger) *LoggingInstaller {
	return &LoggingInstaller{logger: logger.With(slog.String("component", "install"))}
}

// InstallOverlayMAC logs the overlay-MAC -> underlay-(IP,port) binding.
func (l *LoggingInstaller) InstallOverlayMAC(vnetid uint32, mac [svp.MACLen]byte, port uint16, underlay net.IP) error {
	l.logger.Info("install overlay mac",
		slog.Uint64("vnetid", uint64(vnetid)),
		slog.String("mac", net.HardwareAddr(mac[:]).String()),
		slog.Uint64("port", uint64(port)),
		slog.String("underlay", underlay.String()),
	)
	return nil
}

// InstallOverlayIP logs the overlay-IP -> overlay-MAC binding.
func (l *LoggingInstaller) InstallOverlayIP(vnetid uint32, ip net.IP, mac [svp.MACLen]byte) error {
	l.logger.Info("install overlay ip",
		slog.Uint64("vnetid", uint64(vnetid)),
		slog.String("ip", ip.String()),
		slog.String("mac", net.HardwareAddr(mac[:]).String()),
	)
	return nil
}

// MultiInstaller fans a resolved mapping out to every Installer it wraps,
// stopping and returning the first error. Useful for running the logging
// sink alongside a real programming backend during rollout.
type MultiInstaller struct {
	Installers []svp.Installer
}

// InstallOverlayMAC forwards to each wrapped Installer in order.
func (m *MultiInstaller) InstallOverlayMAC(vnetid uint32, mac [svp.MACLen]byte, port uint16, underlay net.IP) error {
	for _, inst := range m.Installers {
		if err := inst.InstallOverlayMAC(vnetid, mac, port, underlay); err != nil {
			return err
		}
	}
	return nil
}

// InstallOverlayIP forwards to each wrapped Installer in order.
func (m *MultiInstaller) InstallOverlayIP(vnetid uint32, ip net.IP, mac [svp.MACLen]byte) error {
	for _, inst := range m.Installers {
		if err := inst.InstallOverlayIP(vnetid, ip, mac); err != nil {
			return err
		}
	}
	return nil
}
