// +build !linux

package loopback

import (
	"context"
	"fmt"
	"runtime"
)

// StubManager refuses partition work on non-Linux systems.
type StubManager struct{}

// NewManager creates a stub manager on non-Linux systems.
func NewManager(workDir string) (Manager, error) {
	return &StubManager{}, nil
}

func (m *StubManager) Format(ctx context.Context, imagePath string) error {
	return fmt.Errorf("partition formatting not supported on %s", runtime.GOOS)
}

func (m *StubManager) Populate(ctx context.Context, imagePath, archivePath string) error {
	return fmt.Errorf("partition populate not supported on %s", runtime.GOOS)
}
