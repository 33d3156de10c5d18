// Package mirror resolves download mirrors and fetches the root-filesystem
// archive from them.
package mirror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownMirror is returned when an identifier is not in the registry.
var ErrUnknownMirror = errors.New("unknown mirror")

// Built-in mirrors for the Arch Linux ARM aarch64 rootfs archive.
var defaults = map[string]string{
	"official": "http://os.archlinuxarm.org/os/ArchLinuxARM-aarch64-latest.tar.gz",
	"tsinghua": "https://mirrors.tuna.tsinghua.edu.cn/archlinuxarm/os/ArchLinuxARM-aarch64-latest.tar.gz",
}

// Registry maps short mirror identifiers to archive URLs.
type Registry struct {
	mirrors map[string]string
}

// NewRegistry returns the built-in registry with extra entries merged over
// it. Entries may use http(s):// or s3://bucket/key URLs.
func NewRegistry(extra map[string]string) *Registry {
	m := make(map[string]string, len(defaults)+len(extra))
	for id, u := range defaults {
		m[id] = u
	}
	for id, u := range extra {
		m[id] = u
	}
	return &Registry{mirrors: m}
}

// Resolve maps an identifier to its URL. Unknown identifiers fail fast;
// there is no fallback mirror.
func (r *Registry) Resolve(id string) (string, error) {
	u, ok := r.mirrors[id]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownMirror, id, strings.Join(r.IDs(), ", "))
	}
	return u, nil
}

// IDs returns the known identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.mirrors))
	for id := range r.mirrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
