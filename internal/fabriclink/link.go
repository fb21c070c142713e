// Package fabriclink holds the in-memory inventory of overlay-participating
// network interfaces: the VXLAN parent devices and their VLAN children,
// keyed directly by the kernel-assigned interface index.
package fabriclink

import (
	"errors"
	"fmt"
	"sync"
)

// MaxNameLen is the maximum interface name length, matching Linux's
// IFNAMSIZ - 1 (15 printable characters plus a NUL terminator).
const MaxNameLen = 15

// startSize is the initial link table capacity.
const startSize = 64

// MaxVNetID is the exclusive upper bound for a VXLAN vnet-id (24 bits).
const MaxVNetID = 1 << 24

// MaxVLANID is the exclusive upper bound for a VLAN id (10 bits).
const MaxVLANID = 1 << 10

// Sentinel errors. ErrMismatch indicates the caller's view of an interface
// has diverged from what this table already recorded for it, which can only
// happen if the kernel reused an ifindex or the caller's data is corrupt;
// both are unrecoverable and always fatal to the caller.
var (
	// ErrNameTooLong indicates an interface name exceeds MaxNameLen.
	ErrNameTooLong = errors.New("fabriclink: interface name exceeds maximum length")

	// ErrNegativeIndex indicates a negative ifindex was supplied.
	ErrNegativeIndex = errors.New("fabriclink: ifindex must be non-negative")

	// ErrMismatch indicates a re-registration of an existing ifindex with
	// differing fields -- a programming error.
	ErrMismatch = errors.New("fabriclink: re-registration of ifindex with differing fields")

	// ErrBadVNetID indicates a vnet-id outside (0, MaxVNetID).
	ErrBadVNetID = errors.New("fabriclink: vnet-id out of range")

	// ErrBadVLANID indicates a VLAN id outside (0, MaxVLANID).
	ErrBadVLANID = errors.New("fabriclink: vlan id out of range")
)

// FabricLink represents one overlay-participating interface: either a VXLAN
// parent (Parent == nil, ID is the vnet-id) or a VLAN-over-VXLAN child
// (Parent != nil, ID is the VLAN id, Parent.Parent == nil).
type FabricLink struct {
	IfIndex int32
	Name    string
	ID      uint32
	Parent  *FabricLink
}

// IsVXLAN reports whether this link is a VXLAN parent device.
func (f *FabricLink) IsVXLAN() bool { return f.Parent == nil }

// VNetID returns the VXLAN vnet-id this link ultimately belongs to: its own
// ID if it is a VXLAN parent, or its parent's ID if it is a VLAN child.
func (f *FabricLink) VNetID() uint32 {
	if f.Parent != nil {
		return f.Parent.ID
	}
	return f.ID
}

func (f *FabricLink) equal(other *FabricLink) bool {
	return f.IfIndex == other.IfIndex &&
		f.Name == other.Name &&
		f.ID == other.ID &&
		f.Parent == other.Parent
}

// Table is the index-keyed inventory of fabric links. It grows only,
// doubling on demand, and never shrinks: an ifindex is never reused by the
// kernel in practice, so there is no benefit to reclaiming a freed slot, and
// shrinking would risk invalidating a lookup concurrent with a rescan.
// The zero value is not usable; construct with NewTable.
type Table struct {
	mu      sync.RWMutex
	entries []*FabricLink
}

// NewTable creates a link table with the default starting capacity.
func NewTable() *Table {
	return &Table{entries: make([]*FabricLink, startSize)}
}

// growLocked doubles the table until it can hold the given index. Caller
// must hold t.mu for writing.
func (t *Table) growLocked(index int32) {
	size := len(t.entries)
	for int32(size) <= index {
		size *= 2
	}
	if size == len(t.entries) {
		return
	}
	grown := make([]*FabricLink, size)
	copy(grown, t.entries)
	t.entries = grown
}

// Upsert inserts a new FabricLink at ifindex, or verifies an existing entry
// is field-for-field identical. A mismatch is a programmer-invariant
// violation: it returns ErrMismatch, which callers must treat as fatal.
func (t *Table) Upsert(ifindex int32, name string, id uint32, parent *FabricLink) (*FabricLink, error) {
	if ifindex < 0 {
		return nil, fmt.Errorf("upsert ifindex %d: %w", ifindex, ErrNegativeIndex)
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("upsert %q (len %d): %w", name, len(name), ErrNameTooLong)
	}

	candidate := &FabricLink{IfIndex: ifindex, Name: name, ID: id, Parent: parent}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.growLocked(ifindex)

	if existing := t.entries[ifindex]; existing != nil {
		if !existing.equal(candidate) {
			return nil, fmt.Errorf("upsert ifindex %d (name %q, id %d): %w", ifindex, name, id, ErrMismatch)
		}
		return existing, nil
	}

	t.entries[ifindex] = candidate
	return candidate, nil
}

// LookupByIndex returns the entry at ifindex, or nil if it is out of bounds
// or unpopulated. The returned entry must not be mutated by the caller.
func (t *Table) LookupByIndex(ifindex int32) *FabricLink {
	if ifindex < 0 {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(ifindex) >= len(t.entries) {
		return nil
	}
	return t.entries[ifindex]
}

// VNetID is a convenience wrapper around LookupByIndex + FabricLink.VNetID,
// used to derive the vnet-id for an outbound request from the triggering
// interface index.
func (t *Table) VNetID(ifindex int32) (uint32, bool) {
	link := t.LookupByIndex(ifindex)
	if link == nil {
		return 0, false
	}
	return link.VNetID(), true
}

// Len reports the current table capacity (not the number of populated
// entries), useful for diagnostics and tests of the doubling behavior.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Count reports the number of populated entries, used to report the
// fabric_links_discovered gauge after a scan.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// ValidateVNetID checks the (0, MaxVNetID) range a parsed VXLAN vnetid must
// fall within: zero is reserved and the field is only 24 bits wide on the
// wire.
func ValidateVNetID(id uint32) error {
	if id == 0 || id >= MaxVNetID {
		return fmt.Errorf("vnet-id %d: %w", id, ErrBadVNetID)
	}
	return nil
}

// ValidateVLANID checks the (0, MaxVLANID) range a parsed VLAN id must fall
// within: zero is reserved and 802.1Q VLAN ids are only 10 bits wide.
func ValidateVLANID(id uint32) error {
	if id == 0 || id >= MaxVLANID {
		return fmt.Errorf("vlan id %d: %w", id, ErrBadVLANID)
	}
	return nil
}

// IsFatal reports whether err represents a programmer-invariant violation
// (a field mismatch on re-upsert, a malformed ifindex, or an oversized
// name). Scanners must abort the scan and propagate such an error rather
// than log-and-continue.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMismatch) || errors.Is(err, ErrNameTooLong) || errors.Is(err, ErrNegativeIndex)
}
