package scanners

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/syscmd"
)

// SourceTrash identifies the Trash scanner.
const SourceTrash = "trash"

// TrashScanner walks the user Trash and per-volume .Trashes directories.
// Every item in the Trash is a deleted file by definition, so there is no
// live-filesystem diff here; original location and deletion date come from
// Finder's trash xattrs when present.
type TrashScanner struct {
	logger     *log.Logger
	homeDir    string
	volumesDir string
	uid        int

	// getxattr is swappable for tests; defaults to the real xattr read.
	getxattr func(path, attr string) []byte

	// runOsascript is swappable for tests; defaults to running osascript.
	runOsascript func(ctx context.Context, script string) (string, error)
}

// NewTrashScanner creates the Trash scanner rooted at the current user's home.
func NewTrashScanner(logger *log.Logger) *TrashScanner {
	home, _ := os.UserHomeDir()
	return &TrashScanner{
		logger:       logger,
		homeDir:      home,
		volumesDir:   "/Volumes",
		uid:          os.Getuid(),
		getxattr:     syscmd.Getxattr,
		runOsascript: runOsascript,
	}
}

// runOsascript evaluates an AppleScript snippet and returns its trimmed
// output. Finder scripting can stall on a busy system, hence the timeout.
func runOsascript(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *TrashScanner) ID() string          { return SourceTrash }
func (s *TrashScanner) Name() string        { return "Trash" }
func (s *TrashScanner) Description() string { return "Scan the Trash and per-volume .Trashes" }
func (s *TrashScanner) RequiresAdmin() bool { return false }

func (s *TrashScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	avail := core.SourceAvailability{SourceID: s.ID(), Name: s.Name()}

	userTrash := filepath.Join(s.homeDir, ".Trash")
	info, err := os.Stat(userTrash)
	if err != nil || !info.IsDir() {
		avail.Detail = "Trash directory not found"
		return avail
	}

	entries, err := os.ReadDir(userTrash)
	if err != nil {
		// Direct listing blocked by Full Disk Access; Finder can still
		// count the items for us.
		avail.RequiresAdmin = true
		count, ok := s.countViaFinder(ctx)
		if ok {
			avail.Count = &count
			avail.Available = count > 0
			if count == 0 {
				avail.Detail = "Trash is empty"
			} else {
				avail.Detail = fmt.Sprintf("%d items in Trash (via Finder)", count)
			}
			return avail
		}
		avail.Detail = "Cannot access Trash. Grant Full Disk Access to the host process"
		return avail
	}

	count := len(entries)
	avail.Available = true
	avail.Count = &count
	avail.Detail = fmt.Sprintf("%d items in user Trash", count)
	return avail
}

func (s *TrashScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)

	go func() {
		defer close(out)

		found := 0
		for _, trashDir := range s.trashDirs() {
			if ctx.Err() != nil {
				return
			}
			if _, err := os.Stat(trashDir); err != nil {
				continue
			}
			if progress != nil {
				progress(fmt.Sprintf("Scanning %s", trashDir))
			}
			n, ok := s.walkTrash(ctx, trashDir, out)
			found += n
			if !ok {
				return
			}
		}

		// Nothing readable directly; Finder may still see the Trash.
		if found == 0 {
			if progress != nil {
				progress("Trying Finder-based Trash scan...")
			}
			s.scanViaFinder(ctx, out)
		}
	}()

	return out
}

func (s *TrashScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return readLocalFile(f)
}

// trashDirs lists the user Trash plus each mounted volume's per-uid .Trashes.
func (s *TrashScanner) trashDirs() []string {
	dirs := []string{filepath.Join(s.homeDir, ".Trash")}
	entries, err := os.ReadDir(s.volumesDir)
	if err != nil {
		return dirs
	}
	for _, entry := range entries {
		trashes := filepath.Join(s.volumesDir, entry.Name(), ".Trashes", fmt.Sprint(s.uid))
		if info, err := os.Stat(trashes); err == nil && info.IsDir() {
			dirs = append(dirs, trashes)
		}
	}
	return dirs
}

// walkTrash emits every non-hidden file under one trash directory, recursing
// into trashed directories. Returns the emit count and false when the scan
// was cancelled.
func (s *TrashScanner) walkTrash(ctx context.Context, trashDir string, out chan<- core.RecoveredFile) (int, bool) {
	entries, err := os.ReadDir(trashDir)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("[TrashScanner] cannot list %s: %v", trashDir, err)
		}
		return 0, true
	}

	found := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return found, false
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(trashDir, entry.Name())

		if !entry.IsDir() {
			if rf, ok := s.makeRecoveredFile(path); ok {
				if !emit(ctx, out, rf) {
					return found, false
				}
				found++
			}
			continue
		}

		// A trashed directory: every regular file inside it is recoverable.
		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if rf, ok := s.makeRecoveredFile(p); ok {
				if !emit(ctx, out, rf) {
					return context.Canceled
				}
				found++
			}
			return nil
		})
		if walkErr != nil {
			return found, false
		}
	}
	return found, true
}

// finderCountScript asks Finder how many items the Trash holds.
const finderCountScript = `tell application "Finder" to return count of items of trash`

// finderListScript asks Finder for the POSIX path of every Trash item,
// one per line.
const finderListScript = `tell application "Finder"
	set trashItems to every item of trash
	set paths to {}
	repeat with anItem in trashItems
		set end of paths to POSIX path of (anItem as alias)
	end repeat
	set AppleScript's text item delimiters to linefeed
	return paths as text
end tell`

func (s *TrashScanner) osascript(ctx context.Context, script string) (string, error) {
	if s.runOsascript != nil {
		return s.runOsascript(ctx, script)
	}
	return runOsascript(ctx, script)
}

func (s *TrashScanner) countViaFinder(ctx context.Context) (int, bool) {
	out, err := s.osascript(ctx, finderCountScript)
	if err != nil {
		return 0, false
	}
	count, err := strconv.Atoi(out)
	if err != nil {
		return 0, false
	}
	return count, true
}

// scanViaFinder lists the Trash through Finder and emits whatever of it is
// directly readable. Used when listing the trash directory itself is denied.
func (s *TrashScanner) scanViaFinder(ctx context.Context, out chan<- core.RecoveredFile) {
	listing, err := s.osascript(ctx, finderListScript)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("[TrashScanner] Finder listing failed: %v", err)
		}
		return
	}

	for _, line := range strings.Split(listing, "\n") {
		path := strings.TrimSpace(line)
		if path == "" || ctx.Err() != nil {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if !info.IsDir() {
			if rf, ok := s.makeRecoveredFile(path); ok {
				if !emit(ctx, out, rf) {
					return
				}
			}
			continue
		}

		filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if rf, ok := s.makeRecoveredFile(p); ok {
				if !emit(ctx, out, rf) {
					return context.Canceled
				}
			}
			return nil
		})
	}
}

func (s *TrashScanner) makeRecoveredFile(path string) (core.RecoveredFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return core.RecoveredFile{}, false
	}

	meta := core.FileMetadata{Size: info.Size()}
	mod := info.ModTime().UTC()
	meta.Modified = &mod
	if raw := s.getxattr(path, xattrTrashDeletionDate); raw != nil {
		meta.DeletedDate = DecodeDeletionDate(raw)
	}

	originalPath := path
	if raw := s.getxattr(path, xattrTrashOrigPath); raw != nil {
		if orig := DecodeOrigPath(raw); orig != "" {
			originalPath = orig
		}
	}

	return core.RecoveredFile{
		ID:           core.NewFileID(),
		SourceID:     s.ID(),
		OriginalPath: originalPath,
		Filename:     filepath.Base(path),
		Extension:    strings.ToLower(filepath.Ext(path)),
		Metadata:     meta,
		AccessPath:   path,
	}, true
}
