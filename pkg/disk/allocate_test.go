package disk

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestAllocateSparse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.raw")
	const size = 64 << 20

	if err := Allocate(path, size, false); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if st.Size() != size {
		t.Errorf("image size = %d, want %d", st.Size(), size)
	}
}

func TestAllocateInvalidSize(t *testing.T) {
	dir := t.TempDir()

	for _, size := range []uint64{0, math.MaxInt64 + 1} {
		path := filepath.Join(dir, "img.raw")
		if err := Allocate(path, size, false); err == nil {
			t.Fatalf("expected error for size %d", size)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("size %d left a file behind", size)
		}
	}
}

func TestAllocatePreallocated(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("preallocation requires fallocate")
	}

	path := filepath.Join(t.TempDir(), "img.raw")
	const size = 16 << 20

	if err := Allocate(path, size, true); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if st.Size() != size {
		t.Errorf("image size = %d, want %d", st.Size(), size)
	}
}
