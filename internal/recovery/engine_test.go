package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"recoverd/internal/core"
)

func sourceFile(t *testing.T, dir, name, content string) core.RecoveredFile {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return core.RecoveredFile{
		ID:           "id-" + name,
		SourceID:     "trash",
		OriginalPath: "/Users/gus/Documents/" + name,
		Filename:     name,
		Extension:    filepath.Ext(name),
		Metadata:     core.FileMetadata{Size: int64(len(content))},
		AccessPath:   path,
	}
}

func collect(t *testing.T, ch <-chan core.RecoveryFileResult) []core.RecoveryFileResult {
	t.Helper()
	var results []core.RecoveryFileResult
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return results
			}
			results = append(results, r)
		case <-timeout:
			t.Fatal("result channel never closed")
		}
	}
}

func TestEngineCopiesAndVerifies(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	f := sourceFile(t, src, "report.pdf", "pdf content")

	e := &Engine{Destination: dest, VerifyChecksums: true}
	results := collect(t, e.Recover(context.Background(), []core.RecoveredFile{f}))

	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if !r.Success {
		t.Fatalf("copy failed: %s", r.Error)
	}
	if r.ChecksumMatch == nil || !*r.ChecksumMatch {
		t.Fatal("checksum did not verify")
	}
	if r.RecoveredPath != filepath.Join(dest, "report.pdf") {
		t.Fatalf("RecoveredPath = %q", r.RecoveredPath)
	}
	got, err := os.ReadFile(r.RecoveredPath)
	if err != nil || string(got) != "pdf content" {
		t.Fatalf("copied content = %q, err %v", got, err)
	}
}

func TestEngineReportsChecksumMismatch(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	f := sourceFile(t, src, "photo.jpg", "original bytes")

	e := &Engine{
		Destination:     dest,
		VerifyChecksums: true,
		copy: func(src, dst string) error {
			return os.WriteFile(dst, []byte("corrupted bytes"), 0o644)
		},
	}
	results := collect(t, e.Recover(context.Background(), []core.RecoveredFile{f}))

	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Success {
		t.Fatal("mismatch reported as success")
	}
	if r.ChecksumMatch == nil || *r.ChecksumMatch {
		t.Fatal("ChecksumMatch should be false")
	}
	if r.Error == "" {
		t.Fatal("no error message for mismatch")
	}
}

func TestEnginePreservesStructure(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	f := sourceFile(t, src, "notes.txt", "x")

	e := &Engine{Destination: dest, PreserveStructure: true}
	results := collect(t, e.Recover(context.Background(), []core.RecoveredFile{f}))

	want := filepath.Join(dest, "Users", "gus", "Documents", "notes.txt")
	if results[0].RecoveredPath != want {
		t.Fatalf("RecoveredPath = %q, want %q", results[0].RecoveredPath, want)
	}
}

func TestEngineCollisionSuffixes(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	a := sourceFile(t, src, "dup.txt", "first")
	b := sourceFile(t, filepath.Join(src), "dup2.txt", "second")
	b.Filename = "dup.txt"
	c := sourceFile(t, filepath.Join(src), "dup3.txt", "third")
	c.Filename = "dup.txt"

	e := &Engine{Destination: dest}
	results := collect(t, e.Recover(context.Background(), []core.RecoveredFile{a, b, c}))

	paths := []string{
		results[0].RecoveredPath,
		results[1].RecoveredPath,
		results[2].RecoveredPath,
	}
	want := []string{
		filepath.Join(dest, "dup.txt"),
		filepath.Join(dest, "dup_1.txt"),
		filepath.Join(dest, "dup_2.txt"),
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	// Every copy kept its own content; nothing was overwritten.
	for i, content := range []string{"first", "second", "third"} {
		got, err := os.ReadFile(paths[i])
		if err != nil || string(got) != content {
			t.Errorf("content[%d] = %q, err %v", i, got, err)
		}
	}
}

func TestEngineUnreachableSources(t *testing.T) {
	dest := t.TempDir()
	missing := core.RecoveredFile{
		ID:         "gone",
		Filename:   "gone.txt",
		AccessPath: filepath.Join(t.TempDir(), "never-existed"),
	}
	indexOnly := core.RecoveredFile{
		ID:         "tombstone",
		Filename:   "tombstone.txt",
		AccessPath: "",
	}

	e := &Engine{Destination: dest, VerifyChecksums: true}
	results := collect(t, e.Recover(context.Background(), []core.RecoveredFile{missing, indexOnly}))

	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	for _, r := range results {
		if r.Success {
			t.Errorf("recovery of %s succeeded unexpectedly", r.FileID)
		}
		if r.Error == "" {
			t.Errorf("no error reported for %s", r.FileID)
		}
		if r.ChecksumMatch != nil {
			t.Errorf("ChecksumMatch set for a failed copy of %s", r.FileID)
		}
	}
}

func TestEngineCancelStopsBatch(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	var files []core.RecoveredFile
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		files = append(files, sourceFile(t, src, name, "x"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := (&Engine{Destination: dest}).Recover(ctx, files)

	first, ok := <-ch
	if !ok {
		t.Fatal("channel closed before first result")
	}
	if !first.Success {
		t.Fatalf("first copy failed: %s", first.Error)
	}
	cancel()
	rest := collect(t, ch)

	// The first file stays on disk; the batch stops early.
	if _, err := os.Stat(first.RecoveredPath); err != nil {
		t.Fatal("already-copied file removed on cancel")
	}
	if len(rest) >= len(files) {
		t.Fatalf("cancel did not stop the batch: %d more results", len(rest))
	}
}

func TestEnginePreservesModTime(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	f := sourceFile(t, src, "old.txt", "x")
	mtime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(f.AccessPath, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	results := collect(t, (&Engine{Destination: dest}).Recover(context.Background(), []core.RecoveredFile{f}))
	info, err := os.Stat(results[0].RecoveredPath)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Fatalf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}
