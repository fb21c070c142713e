package fabriclink_test

import (
	"errors"
	"testing"

	"github.com/mnx-cloud/govarpd/internal/fabriclink"
)

func TestUpsertAndLookup(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()

	vxlan, err := tbl.Upsert(12, "sdcvxl100", 100, nil)
	if err != nil {
		t.Fatalf("upsert vxlan: %v", err)
	}

	vlan, err := tbl.Upsert(13, "vx100v5", 5, vxlan)
	if err != nil {
		t.Fatalf("upsert vlan: %v", err)
	}

	if got := tbl.LookupByIndex(12); got != vxlan {
		t.Fatalf("lookup(12) = %v, want %v", got, vxlan)
	}
	if got := tbl.LookupByIndex(13); got != vlan {
		t.Fatalf("lookup(13) = %v, want %v", got, vlan)
	}
	if got := tbl.LookupByIndex(14); got != nil {
		t.Fatalf("lookup(14) = %v, want nil", got)
	}

	vnetid, ok := tbl.VNetID(13)
	if !ok || vnetid != 100 {
		t.Fatalf("VNetID(13) = (%d, %v), want (100, true)", vnetid, ok)
	}
	vnetid, ok = tbl.VNetID(12)
	if !ok || vnetid != 100 {
		t.Fatalf("VNetID(12) = (%d, %v), want (100, true)", vnetid, ok)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()

	first, err := tbl.Upsert(5, "sdcvxl7", 7, nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := tbl.Upsert(5, "sdcvxl7", 7, nil)
	if err != nil {
		t.Fatalf("re-upsert identical fields: %v", err)
	}
	if first != second {
		t.Fatalf("re-upsert returned a distinct pointer")
	}
}

func TestUpsertMismatchIsFatal(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()

	if _, err := tbl.Upsert(5, "sdcvxl7", 7, nil); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	_, err := tbl.Upsert(5, "sdcvxl7", 9, nil)
	if !errors.Is(err, fabriclink.ErrMismatch) {
		t.Fatalf("re-upsert with differing id: err = %v, want ErrMismatch", err)
	}
}

func TestUpsertNameTooLong(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()

	_, err := tbl.Upsert(1, "this-name-is-way-too-long-for-ifnamsiz", 1, nil)
	if !errors.Is(err, fabriclink.ErrNameTooLong) {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
}

// TestDoublingGrowth checks the table's doubling boundary behavior:
// starting at size 64, a write at ifindex=64 grows to 128 and places the
// entry at slot 64; a write at ifindex=1000 grows until 1024 (slot 1000).
func TestDoublingGrowth(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()
	if got := tbl.Len(); got != 64 {
		t.Fatalf("initial Len() = %d, want 64", got)
	}

	link64, err := tbl.Upsert(64, "sdcvxl1", 1, nil)
	if err != nil {
		t.Fatalf("upsert(64): %v", err)
	}
	if got := tbl.Len(); got != 128 {
		t.Fatalf("Len() after ifindex=64 = %d, want 128", got)
	}
	if tbl.LookupByIndex(64) != link64 {
		t.Fatalf("lookup(64) did not return the inserted entry")
	}

	link1000, err := tbl.Upsert(1000, "sdcvxl2", 2, nil)
	if err != nil {
		t.Fatalf("upsert(1000): %v", err)
	}
	if got := tbl.Len(); got != 1024 {
		t.Fatalf("Len() after ifindex=1000 = %d, want 1024", got)
	}
	if tbl.LookupByIndex(1000) != link1000 {
		t.Fatalf("lookup(1000) did not return the inserted entry")
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	tbl := fabriclink.NewTable()
	if got := tbl.Count(); got != 0 {
		t.Fatalf("Count() on empty table = %d, want 0", got)
	}

	if _, err := tbl.Upsert(3, "sdcvxl1", 1, nil); err != nil {
		t.Fatalf("upsert(3): %v", err)
	}
	if _, err := tbl.Upsert(1000, "sdcvxl2", 2, nil); err != nil {
		t.Fatalf("upsert(1000): %v", err)
	}

	// Count reflects populated entries, not the (much larger, doubled)
	// capacity Len() reports.
	if got := tbl.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	if got := tbl.Len(); got == 2 {
		t.Fatalf("Len() unexpectedly equals Count(); test setup no longer exercises the capacity/count distinction")
	}
}

func TestValidateVNetID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id      uint32
		wantErr bool
	}{
		{0, true},
		{fabriclink.MaxVNetID, true},
		{1, false},
		{fabriclink.MaxVNetID - 1, false},
	}
	for _, c := range cases {
		err := fabriclink.ValidateVNetID(c.id)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateVNetID(%d) err = %v, wantErr %v", c.id, err, c.wantErr)
		}
	}
}

func TestValidateVLANID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id      uint32
		wantErr bool
	}{
		{0, true},
		{fabriclink.MaxVLANID, true},
		{1, false},
		{fabriclink.MaxVLANID - 1, false},
	}
	for _, c := range cases {
		err := fabriclink.ValidateVLANID(c.id)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateVLANID(%d) err = %v, wantErr %v", c.id, err, c.wantErr)
		}
	}
}
