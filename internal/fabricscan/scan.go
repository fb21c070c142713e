// Package fabricscan discovers VXLAN and VLAN-over-VXLAN fabric interfaces
// from the kernel's exported virtual-net directory tree and populates a
// fabriclink.Table.
package fabricscan

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mnx-cloud/govarpd/internal/fabriclink"
)

// SysfsRoot is the kernel-exported virtual-net directory tree:
// "/sys/devices/virtual/net/<iface>/ifindex" and friends.
const SysfsRoot = "/sys/devices/virtual/net"

// vxlanPrefix identifies a VXLAN parent device directory by its name
// prefix.
const vxlanPrefix = "sdcvxl"

// upperPrefix identifies a VLAN-over-VXLAN child symlink within a VXLAN
// device's directory: "upper_vx<vnetid>v<vid>".
const upperPrefix = "upper_vx"

// fabricPrefix identifies a shallow fabric interface for the alternate
// traversal: "fabric<N>".
const fabricPrefix = "fabric"

// Scanner walks kernel-exported directory state and commits discovered
// fabric links into a fabriclink.Table.
type Scanner struct {
	root   string
	table  *fabriclink.Table
	logger *slog.Logger
}

// New creates a Scanner rooted at SysfsRoot.
func New(table *fabriclink.Table, logger *slog.Logger) *Scanner {
	return &Scanner{
		root:   SysfsRoot,
		table:  table,
		logger: logger.With(slog.String("component", "fabricscan")),
	}
}

// NewWithRoot creates a Scanner rooted at an arbitrary directory, used by
// tests to exercise the walk against a synthetic fixture tree.
func NewWithRoot(root string, table *fabriclink.Table, logger *slog.Logger) *Scanner {
	return &Scanner{root: root, table: table, logger: logger.With(slog.String("component", "fabricscan"))}
}

// ifindexOf reads the kernel-exported "ifindex" file within dir, a
// single-line decimal integer, newline-terminated.
func ifindexOf(dir string) (int32, error) {
	data, err := os.ReadFile(filepath.Join(dir, "ifindex"))
	if err != nil {
		return 0, fmt.Errorf("read ifindex in %s: %w", dir, err)
	}
	index, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse ifindex in %s: %w", dir, err)
	}
	return int32(index), nil
}

// ScanVXLANSide walks SysfsRoot for "sdcvxl<vnetid>" directories and their
// "upper_vx<vnetid>v<vid>" children, upserting every entry it can parse into
// the link table. Malformed names are skipped with a warning; they never
// abort the scan.
func (s *Scanner) ScanVXLANSide() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("opendir %s: %w", s.root, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, vxlanPrefix) {
			continue
		}
		if err := s.scanOneVXLAN(name); err != nil {
			// Programmer-invariant violations (ErrMismatch) are fatal and
			// propagate; everything else is a warn-and-continue.
			if fabriclink.IsFatal(err) {
				return err
			}
			s.logger.Warn("skipping malformed vxlan directory", slog.String("name", name), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Scanner) scanOneVXLAN(name string) error {
	vnetidStr := strings.TrimPrefix(name, vxlanPrefix)
	vnetid, err := strconv.ParseUint(vnetidStr, 10, 32)
	if err != nil {
		return fmt.Errorf("parse vnetid from %q: %w", name, err)
	}
	if err := fabriclink.ValidateVNetID(uint32(vnetid)); err != nil {
		return err
	}

	vxlanDir := filepath.Join(s.root, name)
	index, err := ifindexOf(vxlanDir)
	if err != nil {
		return err
	}

	vxlanLink, err := s.table.Upsert(index, name, uint32(vnetid), nil)
	if err != nil {
		return fmt.Errorf("upsert vxlan %q: %w", name, err)
	}

	children, err := os.ReadDir(vxlanDir)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", vxlanDir, err)
	}
	for _, child := range children {
		childName := child.Name()
		if !strings.HasPrefix(childName, upperPrefix) {
			continue
		}
		if err := s.scanOneUpper(vxlanDir, childName, vxlanLink); err != nil {
			if fabriclink.IsFatal(err) {
				return err
			}
			s.logger.Warn("skipping malformed upper link", slog.String("name", childName), slog.Any("error", err))
		}
	}
	return nil
}

// scanOneUpper parses "upper_vx<vnetid>v<vid>" and upserts the VLAN child.
// Only the trailing "v<vid>" is used for the id; the vnetid embedded in the
// name is redundant with the parent's own id and is not re-validated here.
func (s *Scanner) scanOneUpper(vxlanDir, name string, parent *fabriclink.FabricLink) error {
	rest := strings.TrimPrefix(name, upperPrefix)
	sep := strings.IndexByte(rest, 'v')
	if sep < 0 {
		return fmt.Errorf("no vid separator in %q", name)
	}
	vid, err := strconv.ParseUint(rest[sep+1:], 10, 32)
	if err != nil {
		return fmt.Errorf("parse vid from %q: %w", name, err)
	}
	if err := fabriclink.ValidateVLANID(uint32(vid)); err != nil {
		return err
	}

	childDir := filepath.Join(vxlanDir, name)
	index, err := ifindexOf(childDir)
	if err != nil {
		return err
	}

	// The stored name drops the "upper_" prefix, which only marks the
	// symlink's direction in the kernel's upper/lower device graph and is
	// not part of the VLAN interface's own name.
	if _, err := s.table.Upsert(index, name[len("upper_"):], uint32(vid), parent); err != nil {
		return fmt.Errorf("upsert vlan child %q: %w", name, err)
	}
	return nil
}

// ScanFabricSide performs the alternate traversal, following the kernel's
// lower-device symlink chain: "fabricN -> lower_vx<vnetid>v<vid> ->
// lower_sdcvxl<vnetid>". It is optional and, when run, upserts into the
// same table the VXLAN-side walk populates -- both walks are expected to
// coexist and agree on any interface they both discover.
func (s *Scanner) ScanFabricSide() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("opendir %s: %w", s.root, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, fabricPrefix) {
			continue
		}
		if err := s.scanOneFabric(name); err != nil {
			if fabriclink.IsFatal(err) {
				return err
			}
			s.logger.Warn("skipping malformed fabric directory", slog.String("name", name), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Scanner) scanOneFabric(name string) error {
	fabricDir := filepath.Join(s.root, name)
	lowerVXEntries, err := filepath.Glob(filepath.Join(fabricDir, "lower_vx*"))
	if err != nil || len(lowerVXEntries) == 0 {
		return fmt.Errorf("no lower_vx* entry under %s", fabricDir)
	}
	lowerVXName := filepath.Base(lowerVXEntries[0])

	rest := strings.TrimPrefix(lowerVXName, "lower_vx")
	sep := strings.IndexByte(rest, 'v')
	if sep < 0 {
		return fmt.Errorf("no vid separator in %q", lowerVXName)
	}
	vnetid, err := strconv.ParseUint(rest[:sep], 10, 32)
	if err != nil {
		return fmt.Errorf("parse vnetid from %q: %w", lowerVXName, err)
	}
	vid, err := strconv.ParseUint(rest[sep+1:], 10, 32)
	if err != nil {
		return fmt.Errorf("parse vid from %q: %w", lowerVXName, err)
	}
	if err := fabriclink.ValidateVNetID(uint32(vnetid)); err != nil {
		return err
	}
	if err := fabriclink.ValidateVLANID(uint32(vid)); err != nil {
		return err
	}

	lowerVXDir := filepath.Join(fabricDir, lowerVXName)
	lowerSdcEntries, err := filepath.Glob(filepath.Join(lowerVXDir, "lower_sdcvxl*"))
	if err != nil || len(lowerSdcEntries) == 0 {
		return fmt.Errorf("no lower_sdcvxl* entry under %s", lowerVXDir)
	}
	lowerSdcName := filepath.Base(lowerSdcEntries[0])
	vxlanDevName := strings.TrimPrefix(lowerSdcName, "lower_")

	vxlanDir := filepath.Join(s.root, vxlanDevName)
	vxlanIndex, err := ifindexOf(vxlanDir)
	if err != nil {
		return err
	}
	vxlanLink, err := s.table.Upsert(vxlanIndex, vxlanDevName, uint32(vnetid), nil)
	if err != nil {
		return fmt.Errorf("upsert vxlan %q: %w", vxlanDevName, err)
	}

	fabricIndex, err := ifindexOf(fabricDir)
	if err != nil {
		return err
	}
	if _, err := s.table.Upsert(fabricIndex, name, uint32(vid), vxlanLink); err != nil {
		return fmt.Errorf("upsert fabric child %q: %w", name, err)
	}
	return nil
}

// SeedFromFile loads static fabric-link declarations from a "fabric-nics"
// configuration file and upserts them into the same table the sysfs walks
// populate, for environments where an interface's sysfs entries are not
// available or reliable at startup. The line format is:
//
//	<ifindex> <name> <vnetid> [<vlan-id>]
//
// A three-field line declares a VXLAN parent; a four-field line declares a
// VLAN child of the most recently declared VXLAN parent with that vnetid.
// Blank lines and lines beginning with '#' are ignored; malformed lines are
// skipped with a warning, while a programmer-invariant violation
// (fabriclink.IsFatal) aborts the load and is returned.
func (s *Scanner) SeedFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("no fabric-nics file present, skipping seed", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	vxlanByVNetID := make(map[uint32]*fabriclink.FabricLink)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.seedLine(line, vxlanByVNetID); err != nil {
			if fabriclink.IsFatal(err) {
				return fmt.Errorf("%s line %d: %w", path, lineNo, err)
			}
			s.logger.Warn("skipping malformed fabric-nics line", slog.Int("line", lineNo), slog.Any("error", err))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (s *Scanner) seedLine(line string, vxlanByVNetID map[uint32]*fabriclink.FabricLink) error {
	fields := strings.Fields(line)
	if len(fields) != 3 && len(fields) != 4 {
		return fmt.Errorf("expected 3 or 4 fields, got %d", len(fields))
	}

	index, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return fmt.Errorf("parse ifindex %q: %w", fields[0], err)
	}
	name := fields[1]
	vnetid, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return fmt.Errorf("parse vnetid %q: %w", fields[2], err)
	}

	if len(fields) == 3 {
		if err := fabriclink.ValidateVNetID(uint32(vnetid)); err != nil {
			return err
		}
		link, err := s.table.Upsert(int32(index), name, uint32(vnetid), nil)
		if err != nil {
			return err
		}
		vxlanByVNetID[uint32(vnetid)] = link
		return nil
	}

	parent, ok := vxlanByVNetID[uint32(vnetid)]
	if !ok {
		return fmt.Errorf("vlan child %q references unknown vnetid %d (declare the vxlan parent first)", name, vnetid)
	}
	vid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return fmt.Errorf("parse vid %q: %w", fields[3], err)
	}
	if err := fabriclink.ValidateVLANID(uint32(vid)); err != nil {
		return err
	}
	_, err = s.table.Upsert(int32(index), name, uint32(vid), parent)
	return err
}
