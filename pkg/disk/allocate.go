// Package disk creates raw disk images and writes GPT partition tables
// into them in-process.
package disk

import (
	"fmt"
	"math"
	"os"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// Allocate creates a raw disk image of exactly size bytes at path. By
// default the image is sparse; with preallocate the full extent is
// reserved up front (Linux only). An existing file at path is truncated,
// so callers own the overwrite decision. On any failure after the file
// was created it is removed again: allocation either fully succeeds or
// leaves nothing behind.
func Allocate(path string, size uint64, preallocate bool) error {
	if size == 0 || size > math.MaxInt64 {
		return fmt.Errorf("invalid image size %d bytes", size)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create image %s", path)
	}

	if preallocate {
		err = preallocateFile(f, int64(size))
	} else {
		err = f.Truncate(int64(size))
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return errors.Wrapf(err, "allocate image %s", path)
	}

	return nil
}
