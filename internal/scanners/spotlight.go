package scanners

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/syscmd"
)

// Source identifiers for the Spotlight scanner. Files the index remembers but
// the filesystem no longer has are tagged with the deleted variant so callers
// know there is no content behind them.
const (
	SourceSpotlight        = "spotlight"
	SourceSpotlightDeleted = "spotlight_deleted"
)

// spotlightUserDirs are the home subdirectories worth querying. Everything
// else under $HOME is caches and app state.
var spotlightUserDirs = []string{
	"Desktop", "Documents", "Downloads", "Pictures",
	"Movies", "Music", "Public", "Sites", "projects",
}

// spotlightSkipContains filters build artifacts and junk out of mdfind
// results.
var spotlightSkipContains = []string{
	"/node_modules/", "/.git/", "/__pycache__/", "/.venv/",
	"/.npm/", "/.cache/", "/DerivedData/", "/.next/",
	"/.nuxt/", "/dist/", "/build/", "/.DS_Store",
}

// SpotlightScanner queries the Spotlight index with mdfind. Hits that still
// exist are reported as browsable context; hits whose path has vanished are
// index tombstones for deleted files, reported with metadata pulled from mdls.
type SpotlightScanner struct {
	logger  *log.Logger
	runner  *syscmd.Runner
	homeDir string
}

func NewSpotlightScanner(runner *syscmd.Runner, homeDir string, logger *log.Logger) *SpotlightScanner {
	return &SpotlightScanner{logger: logger, runner: runner, homeDir: homeDir}
}

func (s *SpotlightScanner) ID() string   { return SourceSpotlight }
func (s *SpotlightScanner) Name() string { return "Spotlight Index" }
func (s *SpotlightScanner) Description() string {
	return "Browse files from a date range via Spotlight, including index entries for deleted files"
}
func (s *SpotlightScanner) RequiresAdmin() bool { return false }

func (s *SpotlightScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	res := s.runner.Run(ctx, 15*time.Second, "mdutil", "-s", "/")
	enabled := res.OK() && strings.Contains(res.Stdout, "Indexing enabled")
	detail := "Spotlight indexing may be disabled"
	if enabled {
		detail = "Spotlight indexing is active"
	}
	return core.SourceAvailability{
		SourceID:  s.ID(),
		Name:      s.Name(),
		Available: enabled,
		Detail:    detail,
	}
}

func (s *SpotlightScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)

	go func() {
		defer close(out)

		if progress != nil {
			progress("Querying Spotlight index...")
		}

		query := buildSpotlightQuery(cfg)
		count := 0
		for _, dir := range s.searchDirs() {
			if ctx.Err() != nil {
				return
			}
			if progress != nil {
				progress(fmt.Sprintf("Searching %s...", filepath.Base(dir)))
			}

			res := s.runner.Run(ctx, 120*time.Second, "mdfind", "-onlyin", dir, query)
			if !res.OK() {
				if progress != nil {
					progress(fmt.Sprintf("Spotlight search failed for %s", filepath.Base(dir)))
				}
				continue
			}

			for _, line := range strings.Split(res.Stdout, "\n") {
				if ctx.Err() != nil {
					return
				}
				path := strings.TrimSpace(line)
				if path == "" || spotlightSkip(path) {
					continue
				}

				rf, ok := s.makeRecoveredFile(ctx, path)
				if !ok {
					continue
				}
				if !emit(ctx, out, rf) {
					return
				}
				count++
				if count%100 == 0 && progress != nil {
					progress(fmt.Sprintf("Processing... %d files found", count))
				}
			}
		}

		if progress != nil {
			progress(fmt.Sprintf("Spotlight scan complete. %d files found.", count))
		}
	}()

	return out
}

func (s *SpotlightScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return readLocalFile(f)
}

func (s *SpotlightScanner) searchDirs() []string {
	var dirs []string
	for _, d := range spotlightUserDirs {
		p := filepath.Join(s.homeDir, d)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	if len(dirs) == 0 {
		dirs = []string{s.homeDir}
	}
	return dirs
}

func (s *SpotlightScanner) makeRecoveredFile(ctx context.Context, path string) (core.RecoveredFile, bool) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() || info.Size() == 0 {
			return core.RecoveredFile{}, false
		}
		mod := info.ModTime().UTC()
		return core.RecoveredFile{
			ID:           core.NewFileID(),
			SourceID:     SourceSpotlight,
			OriginalPath: path,
			Filename:     filepath.Base(path),
			Extension:    strings.ToLower(filepath.Ext(path)),
			Metadata:     core.FileMetadata{Size: info.Size(), Modified: &mod},
			AccessPath:   path,
		}, true
	}

	// Path gone but still indexed: a tombstone for a deleted file. Content is
	// unreachable, so AccessPath stays empty.
	meta := s.mdlsMetadata(ctx, path)
	return core.RecoveredFile{
		ID:           core.NewFileID(),
		SourceID:     SourceSpotlightDeleted,
		OriginalPath: path,
		Filename:     filepath.Base(path),
		Extension:    strings.ToLower(filepath.Ext(path)),
		Metadata:     meta,
		AccessPath:   "",
	}, true
}

// mdlsMetadata pulls size and date attributes for a path out of the Spotlight
// store. Works for deleted paths as long as the index entry survives.
func (s *SpotlightScanner) mdlsMetadata(ctx context.Context, path string) core.FileMetadata {
	var meta core.FileMetadata
	res := s.runner.Run(ctx, 10*time.Second, "mdls",
		"-name", "kMDItemFSSize",
		"-name", "kMDItemContentCreationDate",
		"-name", "kMDItemContentModificationDate",
		path)
	if !res.OK() {
		return meta
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		key, val, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"`)
		if val == "" || val == "(null)" {
			continue
		}
		switch {
		case strings.Contains(key, "Size"):
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				meta.Size = n
			}
		case strings.Contains(key, "CreationDate"):
			meta.Created = parseMdlsDate(val)
		case strings.Contains(key, "ModificationDate"):
			meta.Modified = parseMdlsDate(val)
		}
	}
	return meta
}

// parseMdlsDate handles the date formats mdls emits. Returns nil when none
// match.
func parseMdlsDate(val string) *time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05 -0700", "2006-01-02 15:04:05 MST"} {
		if t, err := time.Parse(layout, val); err == nil {
			return &t
		}
	}
	if len(val) >= 19 {
		if t, err := time.Parse("2006-01-02T15:04:05", val[:19]); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// spotlightSkip drops build artifacts and anything inside a hidden directory.
// Hidden leaf files are kept.
func spotlightSkip(path string) bool {
	for _, substr := range spotlightSkipContains {
		if strings.Contains(path, substr) {
			return true
		}
	}
	parts := strings.Split(path, "/")
	for _, part := range parts[:len(parts)-1] {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// buildSpotlightQuery composes the mdfind predicate from the scan config.
func buildSpotlightQuery(cfg core.ScanConfig) string {
	var parts []string
	if cfg.DateRange != nil {
		start := cfg.DateRange.Start.Format("2006-01-02T15:04:05")
		end := cfg.DateRange.End.Format("2006-01-02T15:04:05")
		parts = append(parts, fmt.Sprintf(
			`(kMDItemContentModificationDate >= "$time.iso(%s)" && kMDItemContentModificationDate <= "$time.iso(%s)")`,
			start, end))
	} else {
		parts = append(parts, `kMDItemContentModificationDate >= "$time.this_month(-6)"`)
	}

	if len(cfg.FileExtensions) > 0 {
		var conds []string
		for _, ext := range cfg.FileExtensions {
			conds = append(conds, fmt.Sprintf(`kMDItemFSName == "*.%s"`, strings.TrimPrefix(ext, ".")))
		}
		parts = append(parts, "("+strings.Join(conds, " || ")+")")
	}

	return strings.Join(parts, " && ")
}
