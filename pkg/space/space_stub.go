// +build !linux,!darwin

package space

import (
	"log/slog"
	"os"
	"runtime"
)

func check(dir string, required uint64) error {
	// No statfs on this platform; the guard degrades to a pass-through.
	slog.Warn("space_check_unavailable", "dir", dir, "platform", runtime.GOOS)
	return nil
}

func allocated(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}
