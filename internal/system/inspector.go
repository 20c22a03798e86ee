// Package system gathers host state for the dashboard: volumes, per-source
// availability, and permission heuristics.
package system

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"recoverd/internal/core"
	"recoverd/internal/scanners"
	"recoverd/internal/syscmd"
)

// Inspector assembles SystemInfo snapshots. It holds no state of its own;
// every call re-probes the host.
type Inspector struct {
	logger   *log.Logger
	runner   *syscmd.Runner
	registry *scanners.Registry
	homeDir  string
}

// NewInspector creates an Inspector probing through the given runner.
func NewInspector(runner *syscmd.Runner, registry *scanners.Registry, logger *log.Logger) *Inspector {
	home, _ := os.UserHomeDir()
	return &Inspector{
		logger:   logger,
		runner:   runner,
		registry: registry,
		homeDir:  home,
	}
}

// Inspect gathers the full dashboard snapshot: identity, volumes, permission
// state, and every registered source's availability.
func (ins *Inspector) Inspect(ctx context.Context) core.SystemInfo {
	adminCached := ins.runner.SudoCached(ctx) ||
		(ins.runner.Credentials() != nil && ins.runner.Credentials().Held())

	info := core.SystemInfo{
		Hostname:          ins.runner.Hostname(ctx),
		OSVersion:         ins.runner.OSVersion(ctx),
		Volumes:           ins.volumes(ctx),
		HasFullDiskAccess: ins.hasFullDiskAccess(),
		AdminCached:       adminCached,
	}

	for _, scanner := range ins.registry.All() {
		avail := scanner.CheckAvailability(ctx)
		if avail.RequiresAdmin {
			avail.HasAdmin = adminCached
		}
		info.Sources = append(info.Sources, avail)
	}
	return info
}

// SourceAvailability probes a single source.
func (ins *Inspector) SourceAvailability(ctx context.Context, sourceID string) (core.SourceAvailability, bool) {
	scanner, ok := ins.registry.Get(sourceID)
	if !ok {
		return core.SourceAvailability{}, false
	}
	return scanner.CheckAvailability(ctx), true
}

func (ins *Inspector) volumes(ctx context.Context) []core.VolumeInfo {
	var vols []core.VolumeInfo
	for _, v := range ins.runner.ListVolumes(ctx) {
		name := filepath.Base(v.MountPoint)
		if v.MountPoint == "/" {
			name = "/"
		}
		vols = append(vols, core.VolumeInfo{
			Name:       name,
			MountPoint: v.MountPoint,
			IsBoot:     v.MountPoint == "/",
		})
	}
	return vols
}

// hasFullDiskAccess probes TCC-protected paths under ~/Library. A permission
// error on an existing one means the host process lacks Full Disk Access.
func (ins *Inspector) hasFullDiskAccess() bool {
	probes := []string{
		filepath.Join(ins.homeDir, "Library", "Mail"),
		filepath.Join(ins.homeDir, "Library", "Safari"),
	}
	for _, p := range probes {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if _, err := os.ReadDir(p); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return false
			}
			continue
		}
		return true
	}
	// Neither probe path exists; nothing contradicts access.
	return true
}

// PathWritable reports whether files can be created at path. For missing
// paths the nearest existing ancestor is checked.
func PathWritable(path string) bool {
	p := path
	for {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				p = filepath.Dir(p)
				continue
			}
			probe, err := os.CreateTemp(p, ".writecheck-*")
			if err != nil {
				return false
			}
			probe.Close()
			os.Remove(probe.Name())
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}
