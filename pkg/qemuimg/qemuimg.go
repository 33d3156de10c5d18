// Package qemuimg shells out to qemu-img for image format conversion and
// inspection. The rest of the pipeline only ever touches raw images; this
// is the single place other formats are produced.
package qemuimg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// Accepted conversion targets.
const (
	FormatRaw       = "raw"
	FormatQCOW2     = "qcow2"
	FormatVMDK      = "vmdk"
	FormatParallels = "parallels"
)

var supportedFormats = map[string]bool{
	FormatRaw:       true,
	FormatQCOW2:     true,
	FormatVMDK:      true,
	FormatParallels: true,
}

// SupportedFormat reports whether format is an accepted conversion target.
func SupportedFormat(format string) bool {
	return supportedFormats[format]
}

// SupportedFormats returns the accepted target formats in display order.
func SupportedFormats() []string {
	return []string{FormatRaw, FormatQCOW2, FormatVMDK, FormatParallels}
}

// Convert encodes the raw image at src into dst in the given target format.
// A partial dst is removed on failure so callers never see a half-written
// artifact.
func Convert(ctx context.Context, src, dst, format string) error {
	if !SupportedFormat(format) {
		return fmt.Errorf("unsupported image format %q (supported: %s)",
			format, strings.Join(SupportedFormats(), ", "))
	}

	slog.Info("convert_image", "src", src, "dst", dst, "format", format)
	cmd := exec.CommandContext(ctx, "qemu-img", "convert", "-f", "raw", "-O", format, src, dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dst)
		slog.Error("convert_failed", "src", src, "format", format, "error", err)
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return errors.Wrapf(err, "qemu-img convert: %s", msg)
		}
		return errors.Wrap(err, "qemu-img convert")
	}
	return nil
}

// Info runs qemu-img info on the image at path and returns its output.
func Info(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "qemu-img", "info", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return "", errors.Wrapf(err, "qemu-img info: %s", msg)
		}
		return "", errors.Wrap(err, "qemu-img info")
	}
	return string(out), nil
}
