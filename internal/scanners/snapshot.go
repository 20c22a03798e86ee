package scanners

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/syscmd"
)

// SourceSnapshot identifies the APFS local snapshot scanner.
const SourceSnapshot = "apfs_snapshot"

// userWalkRoots are the subtrees walked inside a historical copy of the
// filesystem. A full-disk walk would be slow and mostly noise; these are
// where user-relevant files live.
var userWalkRoots = []string{"Users", "Applications", "Library"}

// snapshotOps abstracts the OS-level snapshot operations so the mount
// discipline can be tested without tmutil or mount_apfs.
type snapshotOps interface {
	ListSnapshots(ctx context.Context, volume string) []string
	Mount(ctx context.Context, snapshot, volume, mountPoint string) error
	Unmount(ctx context.Context, mountPoint string) error
}

type runnerSnapshotOps struct {
	runner *syscmd.Runner
}

func (o runnerSnapshotOps) ListSnapshots(ctx context.Context, volume string) []string {
	return o.runner.ListLocalSnapshots(ctx, volume)
}

func (o runnerSnapshotOps) Mount(ctx context.Context, snapshot, volume, mountPoint string) error {
	return o.runner.MountSnapshot(ctx, snapshot, volume, mountPoint)
}

func (o runnerSnapshotOps) Unmount(ctx context.Context, mountPoint string) error {
	return o.runner.UnmountSnapshot(ctx, mountPoint)
}

// SnapshotScanner mounts APFS local snapshots read-only and reports files
// that exist in the snapshot but are missing from the live volume. Mount
// points are tracked in instance state so Cleanup can force-unmount anything
// left behind by a cancelled scan.
type SnapshotScanner struct {
	logger    *log.Logger
	ops       snapshotOps
	mountBase string
	walkRoots []string

	mu      sync.Mutex
	mounted []string
}

// NewSnapshotScanner creates the snapshot scanner. mountBase is the private
// directory snapshots get mounted under.
func NewSnapshotScanner(runner *syscmd.Runner, mountBase string, logger *log.Logger) *SnapshotScanner {
	return &SnapshotScanner{
		logger:    logger,
		ops:       runnerSnapshotOps{runner: runner},
		mountBase: mountBase,
		walkRoots: userWalkRoots,
	}
}

func (s *SnapshotScanner) ID() string   { return SourceSnapshot }
func (s *SnapshotScanner) Name() string { return "APFS Snapshots" }
func (s *SnapshotScanner) Description() string {
	return "Scan APFS local snapshots for deleted files"
}
func (s *SnapshotScanner) RequiresAdmin() bool { return true }

func (s *SnapshotScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	snaps := s.ops.ListSnapshots(ctx, "/")
	count := len(snaps)
	return core.SourceAvailability{
		SourceID:      s.ID(),
		Name:          s.Name(),
		Available:     count > 0,
		RequiresAdmin: true,
		Detail:        fmt.Sprintf("%d local snapshots found", count),
		Count:         &count,
	}
}

func (s *SnapshotScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)

	go func() {
		defer close(out)

		volume := cfg.Volume
		if volume == "" {
			volume = "/"
		}

		snapshots := s.ops.ListSnapshots(ctx, volume)
		if cfg.DateRange != nil {
			snapshots = filterSnapshotsByDate(snapshots, cfg.DateRange)
		}
		if len(snapshots) == 0 {
			return
		}

		if err := os.MkdirAll(s.mountBase, 0o755); err != nil {
			if s.logger != nil {
				s.logger.Printf("[SnapshotScanner] cannot create mount base: %v", err)
			}
			return
		}

		for _, snapshot := range snapshots {
			if ctx.Err() != nil {
				return
			}
			if !s.scanOneSnapshot(ctx, snapshot, volume, out, progress) {
				return
			}
		}
	}()

	return out
}

// scanOneSnapshot mounts a snapshot, walks it, and guarantees the unmount on
// every exit path. Returns false when the scan was cancelled.
func (s *SnapshotScanner) scanOneSnapshot(ctx context.Context, snapshot, volume string, out chan<- core.RecoveredFile, progress ProgressFunc) bool {
	safe := strings.NewReplacer("/", "_", " ", "_").Replace(snapshot)
	mountPoint := filepath.Join(s.mountBase, safe)
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return true
	}

	if progress != nil {
		progress(fmt.Sprintf("Mounting snapshot %s", snapshot))
	}
	if err := s.ops.Mount(ctx, snapshot, volume, mountPoint); err != nil {
		if progress != nil {
			progress(fmt.Sprintf("Failed to mount %s: %v", snapshot, err))
		}
		return true
	}
	s.track(mountPoint)
	defer s.release(mountPoint)

	if progress != nil {
		progress(fmt.Sprintf("Scanning snapshot %s", snapshot))
	}
	return s.walkHistorical(ctx, mountPoint, volume, out)
}

// walkHistorical walks the user subtrees of a mounted historical copy and
// emits each file whose corresponding live path is absent. This diff is the
// recoverability predicate: present then, gone now.
func (s *SnapshotScanner) walkHistorical(ctx context.Context, mountRoot, liveRoot string, out chan<- core.RecoveredFile) bool {
	for _, root := range s.walkRoots {
		dir := filepath.Join(mountRoot, root)
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}

			rel, relErr := filepath.Rel(mountRoot, p)
			if relErr != nil {
				return nil
			}
			livePath := filepath.Join(liveRoot, rel)
			if _, statErr := os.Stat(livePath); statErr == nil {
				return nil // still exists on the live volume
			}

			if rf, ok := s.makeRecoveredFile(p, livePath); ok {
				if !emit(ctx, out, rf) {
					return context.Canceled
				}
			}
			return nil
		})
		if err != nil {
			return false
		}
	}
	return true
}

func (s *SnapshotScanner) makeRecoveredFile(path, originalPath string) (core.RecoveredFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return core.RecoveredFile{}, false
	}
	mod := info.ModTime().UTC()
	return core.RecoveredFile{
		ID:           core.NewFileID(),
		SourceID:     s.ID(),
		OriginalPath: originalPath,
		Filename:     filepath.Base(path),
		Extension:    strings.ToLower(filepath.Ext(path)),
		Metadata:     core.FileMetadata{Size: info.Size(), Modified: &mod},
		AccessPath:   path,
	}, true
}

func (s *SnapshotScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return readLocalFile(f)
}

// Cleanup force-unmounts every mount point still tracked. Covers cancellation
// that interrupts a scan between mount and its deferred unmount.
func (s *SnapshotScanner) Cleanup(ctx context.Context) {
	s.mu.Lock()
	mounted := append([]string(nil), s.mounted...)
	s.mu.Unlock()

	for _, mp := range mounted {
		if err := s.ops.Unmount(ctx, mp); err != nil && s.logger != nil {
			s.logger.Printf("[SnapshotScanner] cleanup unmount %s: %v", mp, err)
		}
		s.untrack(mp)
	}
}

// MountedPoints returns the currently tracked mount points.
func (s *SnapshotScanner) MountedPoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mounted...)
}

func (s *SnapshotScanner) track(mountPoint string) {
	s.mu.Lock()
	s.mounted = append(s.mounted, mountPoint)
	s.mu.Unlock()
}

func (s *SnapshotScanner) release(mountPoint string) {
	// Unmount with a fresh context: release must run even when the scan's
	// context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ops.Unmount(ctx, mountPoint); err != nil && s.logger != nil {
		s.logger.Printf("[SnapshotScanner] unmount %s: %v", mountPoint, err)
	}
	s.untrack(mountPoint)
}

func (s *SnapshotScanner) untrack(mountPoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, mp := range s.mounted {
		if mp == mountPoint {
			s.mounted = append(s.mounted[:i], s.mounted[i+1:]...)
			return
		}
	}
}

var snapshotDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})-(\d{6})`)
var snapshotDayRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// parseSnapshotDate extracts the timestamp embedded in snapshot names like
// com.apple.TimeMachine.2025-12-15-123456.local. Returns nil when the name
// carries no recognizable date.
func parseSnapshotDate(name string) *time.Time {
	if m := snapshotDateRe.FindStringSubmatch(name); m != nil {
		hms := m[2]
		stamp := fmt.Sprintf("%s %s:%s:%s", m[1], hms[0:2], hms[2:4], hms[4:6])
		if t, err := time.Parse("2006-01-02 15:04:05", stamp); err == nil {
			return &t
		}
	}
	if m := snapshotDayRe.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			return &t
		}
	}
	return nil
}

// filterSnapshotsByDate keeps snapshots whose embedded date falls inside the
// range. Unparseable names are kept: missing a relevant snapshot is worse
// than walking an extra one.
func filterSnapshotsByDate(snapshots []string, dr *core.DateRange) []string {
	var kept []string
	for _, snap := range snapshots {
		t := parseSnapshotDate(snap)
		if t == nil || (!t.Before(dr.Start) && !t.After(dr.End)) {
			kept = append(kept, snap)
		}
	}
	return kept
}
