// +build !linux

package disk

import (
	"fmt"
	"os"
	"runtime"
)

func preallocateFile(f *os.File, size int64) error {
	return fmt.Errorf("preallocation not supported on %s", runtime.GOOS)
}
