// Package tools checks that the external programs a build will invoke are
// present on PATH before any pipeline state is created.
package tools

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Platform selects which remediation hint table applies.
type Platform string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformDebian  Platform = "debian"
	PlatformArch    Platform = "arch"
	PlatformUnknown Platform = "unknown"
)

var defaultHints = map[Platform]map[string]string{
	PlatformDarwin: {
		"qemu-img":  "brew install qemu",
		"kpartx":    "brew install kpartx",
		"mkfs.vfat": "brew install dosfstools",
		"mkfs.ext4": "brew install e2fsprogs",
		"bsdtar":    "brew install libarchive",
	},
	PlatformDebian: {
		"qemu-img":  "apt install qemu-utils",
		"kpartx":    "apt install kpartx",
		"mkfs.vfat": "apt install dosfstools",
		"mkfs.ext4": "apt install e2fsprogs",
		"bsdtar":    "apt install libarchive-tools",
	},
	PlatformArch: {
		"qemu-img":  "pacman -S qemu",
		"kpartx":    "pacman -S multipath-tools",
		"mkfs.vfat": "pacman -S dosfstools",
		"mkfs.ext4": "pacman -S e2fsprogs",
		"bsdtar":    "pacman -S libarchive",
	},
}

// DetectPlatform identifies the host so hints can name its package manager.
func DetectPlatform() Platform {
	return detectPlatform(runtime.GOOS, "/etc/os-release")
}

func detectPlatform(goos, osReleasePath string) Platform {
	if goos == "darwin" {
		return PlatformDarwin
	}
	data, err := os.ReadFile(osReleasePath)
	if err != nil {
		return PlatformUnknown
	}
	release := strings.ToLower(string(data))
	switch {
	case strings.Contains(release, "debian"), strings.Contains(release, "ubuntu"):
		return PlatformDebian
	case strings.Contains(release, "arch"), strings.Contains(release, "manjaro"):
		return PlatformArch
	}
	return PlatformUnknown
}

// DefaultHints returns a copy of the remediation hints for the platform.
// Unknown platforms get an empty table; missing tools are still reported,
// just without an install command.
func DefaultHints(p Platform) map[string]string {
	hints := make(map[string]string, len(defaultHints[p]))
	for tool, hint := range defaultHints[p] {
		hints[tool] = hint
	}
	return hints
}

// Required returns the external tools a build with the given settings will
// invoke. A raw-format build that does not populate partitions needs none.
func Required(format string, populate bool) []string {
	var names []string
	if format != "raw" {
		names = append(names, "qemu-img")
	}
	if populate {
		names = append(names, "kpartx", "mkfs.vfat", "mkfs.ext4", "bsdtar")
	}
	return names
}

// Report holds presence results for a set of required tools.
type Report struct {
	tools   []string
	missing []string
}

// Check looks up each tool on PATH.
func Check(names []string) *Report {
	r := &Report{tools: names}
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			r.missing = append(r.missing, name)
		}
	}
	return r
}

// Missing returns the tools that were not found, in request order.
func (r *Report) Missing() []string {
	return r.missing
}

// Err returns a *MissingError naming the absent tools, nil when all were
// found.
func (r *Report) Err(hints map[string]string) error {
	if len(r.missing) == 0 {
		return nil
	}
	return &MissingError{Tools: r.missing, Hints: hints}
}

// MissingError reports required external tools absent from PATH.
type MissingError struct {
	Tools []string
	Hints map[string]string
}

func (e *MissingError) Error() string {
	var b strings.Builder
	b.WriteString("missing required tools: ")
	for i, tool := range e.Tools {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tool)
		if hint, ok := e.Hints[tool]; ok {
			fmt.Fprintf(&b, " (install: %s)", hint)
		}
	}
	return b.String()
}
