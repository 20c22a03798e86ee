package scanners

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"recoverd/internal/core"
)

// encodeAppleDate builds a deletiondate xattr payload in the binary float
// encoding.
func encodeAppleDate(t time.Time) []byte {
	secs := t.Sub(appleEpoch).Seconds()
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, math.Float64bits(secs))
	return raw
}

type stubScanner struct {
	id string
}

func (s stubScanner) ID() string          { return s.id }
func (s stubScanner) Name() string        { return s.id }
func (s stubScanner) Description() string { return "" }
func (s stubScanner) RequiresAdmin() bool { return false }
func (s stubScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	return core.SourceAvailability{SourceID: s.id}
}
func (s stubScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)
	close(out)
	return out
}
func (s stubScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return nil, ErrUnreadable
}

func TestRegistryLookupAndOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubScanner{id: "trash"})
	reg.Register(stubScanner{id: "apfs_snapshot"})
	reg.Register(stubScanner{id: "spotlight"})

	if _, ok := reg.Get("apfs_snapshot"); !ok {
		t.Fatal("registered scanner not found")
	}
	if _, ok := reg.Get("nope"); ok {
		t.Fatal("unregistered scanner found")
	}

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d scanners, want 3", len(all))
	}
	if all[0].ID() != "trash" || all[1].ID() != "apfs_snapshot" {
		t.Fatal("All() did not preserve registration order")
	}

	ids := reg.IDs()
	if len(ids) != 3 || ids[0] != "apfs_snapshot" {
		t.Fatalf("IDs() = %v, want sorted ids", ids)
	}
}

func TestTrashScannerWalk(t *testing.T) {
	home := t.TempDir()
	trash := filepath.Join(home, ".Trash")
	if err := os.MkdirAll(filepath.Join(trash, "old project"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(trash, "report.pdf"), "pdf bytes")
	mustWrite(t, filepath.Join(trash, "old project", "notes.txt"), "notes")
	mustWrite(t, filepath.Join(trash, ".DS_Store"), "junk")

	deleted := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s := &TrashScanner{
		logger:     log.New(os.Stderr, "", 0),
		homeDir:    home,
		volumesDir: filepath.Join(home, "no-volumes"),
		uid:        501,
		getxattr: func(path, attr string) []byte {
			if filepath.Base(path) == "report.pdf" && attr == xattrTrashOrigPath {
				return []byte("/Users/gus/Documents/report.pdf\x00")
			}
			if filepath.Base(path) == "report.pdf" && attr == xattrTrashDeletionDate {
				return encodeAppleDate(deleted)
			}
			return nil
		},
	}

	files := drain(t, s.Scan(context.Background(), core.ScanConfig{}, nil))
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2 (hidden file must be skipped)", len(files))
	}

	byName := map[string]core.RecoveredFile{}
	for _, f := range files {
		byName[f.Filename] = f
	}

	report, ok := byName["report.pdf"]
	if !ok {
		t.Fatal("report.pdf not emitted")
	}
	if report.SourceID != SourceTrash {
		t.Fatalf("SourceID = %q", report.SourceID)
	}
	if report.OriginalPath != "/Users/gus/Documents/report.pdf" {
		t.Fatalf("OriginalPath = %q", report.OriginalPath)
	}
	if report.Metadata.DeletedDate == nil || !report.Metadata.DeletedDate.Equal(deleted) {
		t.Fatalf("DeletedDate = %v, want %v", report.Metadata.DeletedDate, deleted)
	}
	if report.Extension != ".pdf" {
		t.Fatalf("Extension = %q", report.Extension)
	}

	notes, ok := byName["notes.txt"]
	if !ok {
		t.Fatal("file inside a trashed directory not emitted")
	}
	if notes.AccessPath == "" {
		t.Fatal("AccessPath empty for readable trash file")
	}
}

func TestTrashScannerCancelStops(t *testing.T) {
	home := t.TempDir()
	trash := filepath.Join(home, ".Trash")
	if err := os.MkdirAll(trash, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		mustWrite(t, filepath.Join(trash, fmt.Sprintf("file%d.txt", i)), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &TrashScanner{
		homeDir:    home,
		volumesDir: filepath.Join(home, "no-volumes"),
		getxattr:   func(path, attr string) []byte { return nil },
	}
	files := drain(t, s.Scan(ctx, core.ScanConfig{}, nil))
	if len(files) != 0 {
		t.Fatalf("cancelled scan emitted %d files, want 0", len(files))
	}
}

func TestReadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	mustWrite(t, path, "hello")

	got, err := readLocalFile(core.RecoveredFile{AccessPath: path})
	if err != nil {
		t.Fatalf("readLocalFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q", got)
	}

	if _, err := readLocalFile(core.RecoveredFile{AccessPath: ""}); err != ErrUnreadable {
		t.Fatalf("empty AccessPath err = %v, want ErrUnreadable", err)
	}
	if _, err := readLocalFile(core.RecoveredFile{AccessPath: filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("missing file read succeeded")
	}
	if _, err := readLocalFile(core.RecoveredFile{AccessPath: dir}); err != ErrUnreadable {
		t.Fatalf("directory read err = %v, want ErrUnreadable", err)
	}
}

func drain(t *testing.T, ch <-chan core.RecoveredFile) []core.RecoveredFile {
	t.Helper()
	var files []core.RecoveredFile
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return files
			}
			files = append(files, f)
		case <-timeout:
			t.Fatal("scan channel never closed")
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// When direct Trash access is denied, Finder can still enumerate items; the
// scanner falls back to an osascript listing.
func TestTrashScannerFinderFallback(t *testing.T) {
	home := t.TempDir() // no .Trash at all, direct walk finds nothing

	itemDir := t.TempDir()
	loose := filepath.Join(itemDir, "loose.txt")
	mustWrite(t, loose, "loose content")
	folder := filepath.Join(itemDir, "Old Project")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(folder, "notes.md"), "notes")

	s := &TrashScanner{
		logger:     log.New(os.Stderr, "", 0),
		homeDir:    home,
		volumesDir: filepath.Join(home, "no-volumes"),
		getxattr:   func(path, attr string) []byte { return nil },
		runOsascript: func(ctx context.Context, script string) (string, error) {
			return loose + "\n" + folder, nil
		},
	}

	files := drain(t, s.Scan(context.Background(), core.ScanConfig{}, nil))
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	names := map[string]bool{}
	for _, f := range files {
		names[f.Filename] = true
	}
	if !names["loose.txt"] || !names["notes.md"] {
		t.Fatalf("files = %v", names)
	}
}

func TestTrashAvailabilityCountsViaFinder(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	home := t.TempDir()
	trash := filepath.Join(home, ".Trash")
	if err := os.MkdirAll(trash, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(trash, 0o755) })

	s := &TrashScanner{
		homeDir:    home,
		volumesDir: filepath.Join(home, "no-volumes"),
		getxattr:   func(path, attr string) []byte { return nil },
		runOsascript: func(ctx context.Context, script string) (string, error) {
			return "3", nil
		},
	}

	avail := s.CheckAvailability(context.Background())
	if !avail.Available {
		t.Fatal("not available despite Finder count")
	}
	if !avail.RequiresAdmin {
		t.Fatal("RequiresAdmin not set for blocked direct access")
	}
	if avail.Count == nil || *avail.Count != 3 {
		t.Fatalf("Count = %v", avail.Count)
	}
}
