package scanners

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"recoverd/internal/core"
	"recoverd/internal/syscmd"
)

// SourceTimeMachine identifies the Time Machine backup scanner.
const SourceTimeMachine = "time_machine"

// maxTMBackups caps how many backups a single scan walks. Backups are
// already-mounted directory trees, so a walk per backup adds up fast.
const maxTMBackups = 5

// TimeMachineScanner walks mounted Time Machine backups and reports files
// present in a backup but missing from the live volume. No mounting happens
// here; tmutil exposes backups as plain directories under the destination.
type TimeMachineScanner struct {
	logger    *log.Logger
	runner    *syscmd.Runner
	walkRoots []string

	// listBackups is a test seam; defaults to the runner's tmutil wrapper.
	listBackups func(ctx context.Context) []string
}

func NewTimeMachineScanner(runner *syscmd.Runner, logger *log.Logger) *TimeMachineScanner {
	s := &TimeMachineScanner{
		logger:    logger,
		runner:    runner,
		walkRoots: userWalkRoots,
	}
	s.listBackups = func(ctx context.Context) []string {
		return runner.ListTMBackups(ctx)
	}
	return s
}

func (s *TimeMachineScanner) ID() string   { return SourceTimeMachine }
func (s *TimeMachineScanner) Name() string { return "Time Machine" }
func (s *TimeMachineScanner) Description() string {
	return "Scan Time Machine backups for deleted files"
}
func (s *TimeMachineScanner) RequiresAdmin() bool { return true }

func (s *TimeMachineScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	dest := s.runner.TMDestination(ctx)
	if dest == "" {
		return core.SourceAvailability{
			SourceID:      s.ID(),
			Name:          s.Name(),
			RequiresAdmin: true,
			Detail:        "no Time Machine destination configured or connected",
		}
	}
	backups := s.listBackups(ctx)
	count := len(backups)
	return core.SourceAvailability{
		SourceID:      s.ID(),
		Name:          s.Name(),
		Available:     count > 0,
		RequiresAdmin: true,
		Detail:        fmt.Sprintf("%d backups at %s", count, dest),
		Count:         &count,
	}
}

func (s *TimeMachineScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)

	go func() {
		defer close(out)

		liveRoot := cfg.Volume
		if liveRoot == "" {
			liveRoot = "/"
		}

		backups := s.listBackups(ctx)
		if cfg.DateRange != nil {
			// Backup paths embed their creation timestamp; skip backups
			// outside the range before walking them.
			backups = filterSnapshotsByDate(backups, cfg.DateRange)
		}
		if len(backups) > maxTMBackups {
			// Most recent backups carry the most recently deleted files.
			backups = backups[len(backups)-maxTMBackups:]
		}

		for _, backup := range backups {
			if ctx.Err() != nil {
				return
			}
			if progress != nil {
				progress(fmt.Sprintf("Scanning backup %s", filepath.Base(backup)))
			}
			if !s.walkBackup(ctx, backup, liveRoot, out) {
				return
			}
		}
	}()

	return out
}

func (s *TimeMachineScanner) walkBackup(ctx context.Context, backupRoot, liveRoot string, out chan<- core.RecoveredFile) bool {
	for _, volRoot := range volumeRoots(backupRoot) {
		for _, root := range s.walkRoots {
			dir := filepath.Join(volRoot, root)
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

				rel, relErr := filepath.Rel(volRoot, p)
				if relErr != nil {
					return nil
				}
				livePath := filepath.Join(liveRoot, rel)
				if _, statErr := os.Stat(livePath); statErr == nil {
					return nil
				}

				info, infoErr := d.Info()
				if infoErr != nil {
					return nil
				}
				mod := info.ModTime().UTC()
				rf := core.RecoveredFile{
					ID:           core.NewFileID(),
					SourceID:     s.ID(),
					OriginalPath: livePath,
					Filename:     d.Name(),
					Extension:    strings.ToLower(filepath.Ext(p)),
					Metadata:     core.FileMetadata{Size: info.Size(), Modified: &mod},
					AccessPath:   p,
				}
				if !emit(ctx, out, rf) {
					return context.Canceled
				}
				return nil
			})
			if err != nil {
				return false
			}
		}
	}
	return true
}

// volumeRoots lists the volume directories inside a backup. A backup like
// .../2025-12-15-123456 holds one directory per backed-up volume
// ("Macintosh HD - Data"); older layouts put the tree directly at the backup
// path, so an empty listing falls back to the backup itself.
func volumeRoots(backupRoot string) []string {
	var roots []string
	entries, err := os.ReadDir(backupRoot)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
				roots = append(roots, filepath.Join(backupRoot, entry.Name()))
			}
		}
	}
	if len(roots) == 0 {
		roots = []string{backupRoot}
	}
	return roots
}

func (s *TimeMachineScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return readLocalFile(f)
}
