// Package space guards destructive pipeline stages against running out of
// disk. Every check queries the filesystem fresh; earlier measurements are
// never reused because free space can change between stages.
package space

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// InsufficientSpaceError reports that the filesystem hosting Dir cannot
// hold Required bytes.
type InsufficientSpaceError struct {
	Dir       string
	Required  uint64
	Available uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space in %s: need %s, have %s",
		e.Dir, humanize.IBytes(e.Required), humanize.IBytes(e.Available))
}

// Check queries free space on the filesystem hosting dir and fails with an
// *InsufficientSpaceError when it is below required.
func Check(dir string, required uint64) error {
	return check(dir, required)
}

// Allocated returns the physical byte count a file occupies on disk, which
// for sparse files is far below the logical size.
func Allocated(path string) (uint64, error) {
	return allocated(path)
}
