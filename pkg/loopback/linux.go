// +build linux

package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// LinuxManager drives losetup and kpartx on a raw image.
type LinuxManager struct {
	workDir string
}

// NewManager creates the Linux loop-device manager. Mapping partitions and
// mounting filesystems requires root.
func NewManager(workDir string) (Manager, error) {
	slog.Info("loopback_init", "work_dir", workDir, "platform", "linux")

	if !isRoot() {
		slog.Error("loopback_requires_root")
		return nil, fmt.Errorf("partition formatting requires root privileges")
	}

	return &LinuxManager{workDir: workDir}, nil
}

func (m *LinuxManager) Format(ctx context.Context, imagePath string) error {
	loopDev, parts, err := m.attach(ctx, imagePath)
	if err != nil {
		return err
	}
	defer m.detach(loopDev)

	slog.Info("format_boot_partition", "device", parts[0], "filesystem", "vfat")
	if err := run(ctx, "mkfs.vfat", parts[0]); err != nil {
		return errors.Wrap(err, "format boot partition")
	}

	slog.Info("format_data_partition", "device", parts[1], "filesystem", "ext4")
	if err := run(ctx, "mkfs.ext4", "-F", parts[1]); err != nil {
		return errors.Wrap(err, "format data partition")
	}

	return nil
}

func (m *LinuxManager) Populate(ctx context.Context, imagePath, archivePath string) error {
	loopDev, parts, err := m.attach(ctx, imagePath)
	if err != nil {
		return err
	}
	defer m.detach(loopDev)

	root := filepath.Join(m.workDir, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrap(err, "create mount point")
	}

	slog.Info("mount_data_partition", "device", parts[1], "mount_path", root)
	if err := run(ctx, "mount", parts[1], root); err != nil {
		return errors.Wrap(err, "mount data partition")
	}
	defer m.unmount(root)

	boot := filepath.Join(root, "boot")
	if err := os.MkdirAll(boot, 0o755); err != nil {
		return errors.Wrap(err, "create boot mount point")
	}

	slog.Info("mount_boot_partition", "device", parts[0], "mount_path", boot)
	if err := run(ctx, "mount", parts[0], boot); err != nil {
		return errors.Wrap(err, "mount boot partition")
	}
	defer m.unmount(boot)

	slog.Info("extract_rootfs", "archive", archivePath, "root", root)
	if err := run(ctx, "bsdtar", "-xpf", archivePath, "-C", root); err != nil {
		return errors.Wrap(err, "extract root filesystem")
	}

	if err := run(ctx, "sync"); err != nil {
		return errors.Wrap(err, "sync")
	}

	return nil
}

// attach maps the image's partitions and returns the loop device plus the
// two /dev/mapper partition nodes.
func (m *LinuxManager) attach(ctx context.Context, imagePath string) (string, [2]string, error) {
	var parts [2]string

	out, err := exec.CommandContext(ctx, "losetup", "--find", "--show", imagePath).Output()
	if err != nil {
		return "", parts, errors.Wrap(err, "attach loop device")
	}
	loopDev := strings.TrimSpace(string(out))

	slog.Info("map_partitions", "image", imagePath, "loop_device", loopDev)
	if err := run(ctx, "kpartx", "-av", loopDev); err != nil {
		exec.Command("losetup", "-d", loopDev).Run()
		return "", parts, errors.Wrap(err, "map partitions")
	}

	return loopDev, partitionNodes(loopDev), nil
}

// detach undoes attach. Teardown failures are logged, not returned, so the
// original stage error wins. Uses a fresh context because teardown must run
// even after the stage context was cancelled.
func (m *LinuxManager) detach(loopDev string) {
	if err := run(context.Background(), "kpartx", "-d", loopDev); err != nil {
		slog.Error("unmap_partitions_failed", "loop_device", loopDev, "error", err)
	}
	if err := run(context.Background(), "losetup", "-d", loopDev); err != nil {
		slog.Error("detach_loop_failed", "loop_device", loopDev, "error", err)
	}
}

func (m *LinuxManager) unmount(path string) {
	if err := run(context.Background(), "umount", path); err != nil {
		slog.Error("unmount_failed", "mount_path", path, "error", err)
	}
}

// partitionNodes returns the mapper nodes kpartx creates for the first two
// partitions of a loop device: /dev/loop0 becomes /dev/mapper/loop0p1.
func partitionNodes(loopDev string) [2]string {
	base := filepath.Base(loopDev)
	return [2]string{
		filepath.Join("/dev/mapper", base+"p1"),
		filepath.Join("/dev/mapper", base+"p2"),
	}
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return errors.Wrapf(err, "%s: %s", name, msg)
		}
		return errors.Wrap(err, name)
	}
	return nil
}

func isRoot() bool {
	cmd := exec.Command("id", "-u")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(output)) == "0"
}
