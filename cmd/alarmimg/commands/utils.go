package commands

import (
	"os"
	"path/filepath"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application.
// fsmDBPath, workDir and archiveDir may be empty for commands that do not
// need them.
func ensureDirectories(dbPath, fsmDBPath, workDir, archiveDir string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed for build command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create work directory (only needed for build command)
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}

	// Create archive directory (only needed for build command)
	if archiveDir != "" {
		if err := os.MkdirAll(archiveDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create archive directory")
		}
	}

	return nil
}
