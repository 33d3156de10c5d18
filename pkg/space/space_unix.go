// +build linux darwin

package space

import (
	"golang.org/x/sys/unix"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

func check(dir string, required uint64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return errors.Wrapf(err, "statfs %s", dir)
	}

	available := uint64(st.Bavail) * uint64(st.Bsize)
	if available < required {
		return &InsufficientSpaceError{Dir: dir, Required: required, Available: available}
	}
	return nil
}

func allocated(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}

	// Blocks counts 512-byte units regardless of the filesystem block size.
	return uint64(st.Blocks) * 512, nil
}
