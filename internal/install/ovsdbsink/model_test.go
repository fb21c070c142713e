package ovsdbsink

import "testing"

func TestLogicalSwitchName(t *testing.T) {
	t.Parallel()

	got := logicalSwitchName(16777215)
	want := "vxlan16777215"
	if got != want {
		t.Errorf("logicalSwitchName(16777215) = %q, want %q", got, want)
	}
}

func TestClientDBModel(t *testing.T) {
	t.Parallel()

	dbModel, err := clientDBModel()
	if err != nil {
		t.Fatalf("clientDBModel: %v", err)
	}
	if got := dbModel.Name(); got != dbName {
		t.Fatalf("model name = %q, want %q", got, dbName)
	}
}
