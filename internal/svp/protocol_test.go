package svp_test

import (
	"errors"
	"testing"

	"github.com/mnx-cloud/govarpd/internal/svp"
)

func TestHeaderMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	want := svp.Header{Version: svp.Version, Op: svp.OpVL3Req, PayloadSize: svp.VL3ReqSize, ID: 42, CRC32: 0xdeadbeef}
	var buf [svp.HeaderSize]byte
	want.Marshal(buf[:])

	var got svp.Header
	got.Unmarshal(buf[:])
	if got != want {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, want)
	}
}

func TestComputeCRCDeterministic(t *testing.T) {
	t.Parallel()

	hdr := svp.Header{Version: svp.Version, Op: svp.OpPing, PayloadSize: 0, ID: 0xffffffff}
	var buf [svp.HeaderSize]byte
	hdr.Marshal(buf[:])

	crc1 := svp.ComputeCRC(buf[:])
	crc2 := svp.ComputeCRC(buf[:])
	if crc1 != crc2 {
		t.Fatalf("CRC not deterministic: %x != %x", crc1, crc2)
	}

	hdr.ID = 1
	hdr.Marshal(buf[:])
	if crc3 := svp.ComputeCRC(buf[:]); crc3 == crc1 {
		t.Fatalf("CRC did not change when message changed")
	}
}

func TestOpIsAckFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		req, ack svp.Op
		want     bool
	}{
		{svp.OpVL2Req, svp.OpVL2Ack, true},
		{svp.OpVL3Req, svp.OpVL3Ack, true},
		{svp.OpPing, svp.OpPong, true},
		{svp.OpVL2Req, svp.OpVL3Ack, false},
		{svp.OpVL3Req, svp.OpVL2Ack, false},
	}
	for _, c := range cases {
		if got := c.ack.IsAckFor(c.req); got != c.want {
			t.Errorf("Op(%s).IsAckFor(%s) = %v, want %v", c.ack, c.req, got, c.want)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	if err := svp.CheckStatus(svp.StatusOK); err != nil {
		t.Fatalf("StatusOK: err = %v, want nil", err)
	}
	if err := svp.CheckStatus(svp.StatusFatal); !errors.Is(err, svp.ErrFatalStatus) {
		t.Fatalf("StatusFatal: err = %v, want ErrFatalStatus", err)
	}
	if err := svp.CheckStatus(svp.StatusNotFound); !errors.Is(err, svp.ErrNotFound) {
		t.Fatalf("StatusNotFound: err = %v, want ErrNotFound", err)
	}
	if err := svp.CheckStatus(svp.StatusBadL3Type); !errors.Is(err, svp.ErrBadStatus) {
		t.Fatalf("StatusBadL3Type: err = %v, want ErrBadStatus", err)
	}
}
