package disk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlanLayout(t *testing.T) {
	const boot = 300 << 20

	l, err := PlanLayout(boot, 1<<30)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if l.BootStart != 2048 {
		t.Errorf("boot start = %d, want 2048", l.BootStart)
	}
	if l.BootEnd != 616447 {
		t.Errorf("boot end = %d, want 616447", l.BootEnd)
	}
	if l.DataStart != 616448 {
		t.Errorf("data start = %d, want 616448", l.DataStart)
	}
	if l.DataEnd != 2097118 {
		t.Errorf("data end = %d, want 2097118", l.DataEnd)
	}
	if l.BootBytes() != boot {
		t.Errorf("boot bytes = %d, want %d", l.BootBytes(), boot)
	}
}

func TestPlanLayoutBounds(t *testing.T) {
	const boot = 300 << 20

	// Smallest image that still fits: a data partition of one sector.
	min := uint64(616482) * DefaultSectorSize
	l, err := PlanLayout(boot, min)
	if err != nil {
		t.Fatalf("plan at minimum size failed: %v", err)
	}
	if l.DataStart != l.DataEnd {
		t.Errorf("data partition spans sectors %d..%d, want a single sector", l.DataStart, l.DataEnd)
	}

	if _, err := PlanLayout(boot, min-DefaultSectorSize); err == nil {
		t.Fatal("expected error for image one sector below minimum")
	}
	if _, err := PlanLayout(boot+1, 1<<30); err == nil {
		t.Fatal("expected error for boot size not sector aligned")
	}
	if _, err := PlanLayout(0, 1<<30); err == nil {
		t.Fatal("expected error for zero boot size")
	}
}

func TestPartitionAndReadBack(t *testing.T) {
	const (
		boot = 300 << 20
		size = 2 << 30
	)

	path := filepath.Join(t.TempDir(), "alarm.raw")
	if err := Allocate(path, size, false); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	l, err := PlanLayout(boot, size)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if err := Partition(path, l); err != nil {
		t.Fatalf("partition failed: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if st.Size() != size {
		t.Errorf("image size changed to %d after partitioning, want %d", st.Size(), size)
	}

	parts, err := ReadPartitions(path)
	if err != nil {
		t.Fatalf("read partitions failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d partitions, want 2", len(parts))
	}

	p1, p2 := parts[0], parts[1]
	if p1.Index != 1 || p1.Start != 2048 || p1.Size != boot {
		t.Errorf("boot partition = %+v, want index 1 start 2048 size %d", p1, boot)
	}
	if !strings.EqualFold(p1.Type, "C12A7328-F81F-11D2-BA4B-00A0C93EC93B") {
		t.Errorf("boot partition type = %s, want EFI system partition GUID", p1.Type)
	}
	if p1.Name != BootPartitionName {
		t.Errorf("boot partition name = %q, want %q", p1.Name, BootPartitionName)
	}

	if p2.Start != l.DataStart || p2.Size != l.DataBytes() {
		t.Errorf("data partition = %+v, want start %d size %d", p2, l.DataStart, l.DataBytes())
	}
	if !strings.EqualFold(p2.Type, "0FC63DAF-8483-4772-8E79-3D69D8477DE4") {
		t.Errorf("data partition type = %s, want Linux filesystem GUID", p2.Type)
	}
	if p1.GUID == "" || p2.GUID == "" || strings.EqualFold(p1.GUID, p2.GUID) {
		t.Errorf("partition GUIDs %q and %q should be distinct and non-empty", p1.GUID, p2.GUID)
	}
}

func TestPartitionFailureKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.raw")
	if err := Allocate(path, 1<<20, false); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	l, err := PlanLayout(300<<20, 2<<30)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if err := Partition(path, l); err == nil {
		t.Fatal("expected error partitioning an undersized image")
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("image missing after failed partitioning: %v", err)
	}
	if st.Size() != 1<<20 {
		t.Errorf("image size = %d after failed partitioning, want %d", st.Size(), 1<<20)
	}
}
