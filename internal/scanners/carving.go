package scanners

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/syscmd"
)

// SourceCarving identifies the PhotoRec file-carving scanner.
const SourceCarving = "file_carving"

// carvingPollInterval is how often the supervisor recounts carved output
// while PhotoRec runs.
const carvingPollInterval = 10 * time.Second

// CarvingScanner drives PhotoRec in non-interactive /cmd mode against the raw
// disk device backing the data volume. PhotoRec runs under sudo; the session
// credential is written to its stdin exactly once and never appears in logs
// or progress messages.
type CarvingScanner struct {
	logger *log.Logger
	runner *syscmd.Runner

	// findBinary and findDevice are test seams.
	findBinary func() string
	findDevice func(ctx context.Context) string

	mu         sync.Mutex
	outputDir  string
	proc       *os.Process
	procExited bool
}

func NewCarvingScanner(runner *syscmd.Runner, logger *log.Logger) *CarvingScanner {
	return &CarvingScanner{
		logger: logger,
		runner: runner,
		findBinary: func() string {
			p, _ := exec.LookPath("photorec")
			return p
		},
		findDevice: runner.DataVolumeDevice,
	}
}

func (s *CarvingScanner) ID() string   { return SourceCarving }
func (s *CarvingScanner) Name() string { return "File Carving (PhotoRec)" }
func (s *CarvingScanner) Description() string {
	return "Deep scan raw disk for permanently deleted files"
}
func (s *CarvingScanner) RequiresAdmin() bool { return true }

func (s *CarvingScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	binary := s.findBinary()
	if binary == "" {
		return core.SourceAvailability{
			SourceID:      s.ID(),
			Name:          s.Name(),
			RequiresAdmin: true,
			Detail:        "PhotoRec not found. Install: brew install testdisk",
		}
	}

	hasCred := s.runner.Credentials() != nil && s.runner.Credentials().Held()
	parts := []string{"PhotoRec ready"}
	if device := s.findDevice(ctx); device != "" {
		parts = append(parts, "device "+device)
	}
	if hasCred {
		parts = append(parts, "admin authenticated")
	} else {
		parts = append(parts, "enter admin password to enable")
	}

	return core.SourceAvailability{
		SourceID:      s.ID(),
		Name:          s.Name(),
		Available:     true,
		RequiresAdmin: true,
		HasAdmin:      hasCred,
		Detail:        strings.Join(parts, "; "),
	}
}

func (s *CarvingScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)

	go func() {
		defer close(out)

		say := func(format string, args ...any) {
			if progress != nil {
				progress(fmt.Sprintf(format, args...))
			}
		}

		binary := s.findBinary()
		if binary == "" {
			say("PhotoRec not installed")
			return
		}

		creds := s.runner.Credentials()
		if creds == nil || !creds.Held() {
			say("Admin password not provided. Unlock privileged sources first")
			return
		}

		device := s.findDevice(ctx)
		if device == "" {
			say("Could not determine disk device")
			return
		}

		outputBase, err := os.MkdirTemp("", "recoverd-carve-")
		if err != nil {
			say("Cannot create carving output directory: %v", err)
			return
		}
		// PhotoRec appends .1 to the /d path for its first session.
		s.mu.Lock()
		s.outputDir = outputBase + ".1"
		s.mu.Unlock()

		say("Starting PhotoRec on %s...", device)
		say("PhotoRec scanning %s (free space)... this may take 30-60+ minutes", device)

		cmdString := buildCarvingCmd(cfg)
		if s.logger != nil {
			s.logger.Printf("[CarvingScanner] photorec /log /d %s /cmd %s %s", outputBase, device, cmdString)
		}

		if err := s.runPhotoRec(ctx, binary, outputBase, device, cmdString, say); err != nil {
			say("PhotoRec error: %v", err)
			return
		}

		total := s.countCarved()
		say("PhotoRec finished. %d files carved. Processing results...", total)

		for _, rf := range s.collectResults() {
			if !emit(ctx, out, rf) {
				return
			}
		}
	}()

	return out
}

// runPhotoRec launches and supervises the PhotoRec process. The credential is
// piped to sudo's stdin and the pipe is closed immediately after.
func (s *CarvingScanner) runPhotoRec(ctx context.Context, binary, outputBase, device, cmdString string, say func(string, ...any)) error {
	cmd := exec.Command("sudo", "-S", binary, "/log", "/d", outputBase, "/cmd", device, cmdString)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return err
	}

	password, _ := s.runner.Credentials().Get()
	fmt.Fprintf(stdin, "%s\n", password)
	stdin.Close()

	s.mu.Lock()
	s.proc = cmd.Process
	s.procExited = false
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	lastCount := -1
	ticker := time.NewTicker(carvingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			s.markExited()
			if s.logger != nil {
				s.logger.Printf("[CarvingScanner] photorec exited: %v", err)
			}
			// A terminated PhotoRec still leaves usable carved output.
			return nil
		case <-ctx.Done():
			s.stopProcess()
			<-done
			s.markExited()
			return ctx.Err()
		case <-ticker.C:
			count := s.countCarved()
			if count != lastCount || count == 0 {
				lastCount = count
				say("PhotoRec scanning... %d files recovered so far", count)
			}
		}
	}
}

// Cleanup terminates a still-running PhotoRec: SIGTERM first, SIGKILL after a
// grace period.
func (s *CarvingScanner) Cleanup(ctx context.Context) {
	s.stopProcess()
}

func (s *CarvingScanner) stopProcess() {
	s.mu.Lock()
	proc := s.proc
	exited := s.procExited
	s.mu.Unlock()
	if proc == nil || exited {
		return
	}

	_ = proc.Signal(syscall.SIGTERM)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return // gone
		}
		time.Sleep(200 * time.Millisecond)
	}
	_ = proc.Kill()
}

func (s *CarvingScanner) markExited() {
	s.mu.Lock()
	s.procExited = true
	s.mu.Unlock()
}

func (s *CarvingScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return readLocalFile(f)
}

// outputFiles lists carved files: top-level entries of the output directory
// plus the contents of recup_dir.N subdirectories, skipping hidden files and
// PhotoRec's report.xml.
func (s *CarvingScanner) outputFiles() []string {
	s.mu.Lock()
	dir := s.outputDir
	s.mu.Unlock()
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		switch {
		case !entry.IsDir() && name != "report.xml":
			files = append(files, filepath.Join(dir, name))
		case entry.IsDir() && strings.HasPrefix(name, "recup_dir"):
			subEntries, err := os.ReadDir(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			for _, sub := range subEntries {
				if sub.IsDir() || strings.HasPrefix(sub.Name(), ".") {
					continue
				}
				files = append(files, filepath.Join(dir, name, sub.Name()))
			}
		}
	}
	return files
}

func (s *CarvingScanner) countCarved() int { return len(s.outputFiles()) }

func (s *CarvingScanner) collectResults() []core.RecoveredFile {
	paths := s.outputFiles()
	sort.Strings(paths)

	var files []core.RecoveredFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.Size() == 0 {
			continue
		}
		mod := info.ModTime().UTC()
		name := filepath.Base(p)
		files = append(files, core.RecoveredFile{
			ID:       core.NewFileID(),
			SourceID: SourceCarving,
			// Carved files have no recorded origin; names come from PhotoRec.
			OriginalPath: "[carved] " + name,
			Filename:     name,
			Extension:    strings.ToLower(filepath.Ext(p)),
			Metadata:     core.FileMetadata{Size: info.Size(), Modified: &mod},
			AccessPath:   p,
		})
	}
	return files
}

// photoRecTypeExts maps file-type categories to PhotoRec's own fileopt
// family names. These differ from the filter extensions elsewhere: PhotoRec
// has no jpeg/svg/webp families but knows tif, raw and cr2.
var photoRecTypeExts = map[string][]string{
	"image":    {"jpg", "png", "gif", "bmp", "tif", "raw", "cr2", "heic"},
	"document": {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "rtf", "txt"},
	"video":    {"mov", "mp4", "avi", "mkv"},
	"audio":    {"mp3", "wav", "aac", "flac", "m4a", "aif", "ogg"},
	"code":     {"py", "js", "html", "json", "xml"},
}

// buildCarvingCmd composes PhotoRec's /cmd string. Explicit extensions win
// over type groups; with neither, everything is enabled. Carving always scans
// free space only, which is where deleted data lives.
func buildCarvingCmd(cfg core.ScanConfig) string {
	var parts []string

	switch {
	case len(cfg.FileExtensions) > 0:
		parts = append(parts, "fileopt", "everything", "disable")
		for _, ext := range cfg.FileExtensions {
			bare := strings.TrimPrefix(core.NormalizeExtension(ext), ".")
			parts = append(parts, bare, "enable")
		}
	case len(cfg.FileTypes) > 0:
		parts = append(parts, "fileopt", "everything", "disable")
		for _, ft := range cfg.FileTypes {
			for _, ext := range photoRecTypeExts[strings.ToLower(ft)] {
				parts = append(parts, ext, "enable")
			}
		}
	default:
		parts = append(parts, "fileopt", "everything", "enable")
	}

	parts = append(parts, "freespace", "search")
	return strings.Join(parts, ",")
}
