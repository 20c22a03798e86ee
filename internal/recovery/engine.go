// Package recovery copies scanned files to a destination directory with
// optional SHA-256 verification, and manages recovery job lifecycles.
package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"recoverd/internal/core"
)

// Engine copies a batch of recovered files to one destination. It is a pure
// per-file algorithm: no state is shared between files beyond the destination
// directory itself.
type Engine struct {
	Destination       string
	PreserveStructure bool
	VerifyChecksums   bool

	// copy overrides the copy step in tests. Nil means copyFile.
	copy func(src, dst string) error
}

// Recover copies files one at a time, delivering each result as it completes.
// The channel closes when the batch finishes or ctx is cancelled; results for
// files already copied are never retracted.
func (e *Engine) Recover(ctx context.Context, files []core.RecoveredFile) <-chan core.RecoveryFileResult {
	out := make(chan core.RecoveryFileResult)

	go func() {
		defer close(out)

		if err := os.MkdirAll(e.Destination, 0o755); err != nil {
			for _, f := range files {
				res := core.RecoveryFileResult{
					FileID:       f.ID,
					OriginalPath: f.OriginalPath,
					Error:        fmt.Sprintf("cannot create destination: %v", err),
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
			return
		}

		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			res := e.recoverOne(f)
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (e *Engine) recoverOne(f core.RecoveredFile) core.RecoveryFileResult {
	result := core.RecoveryFileResult{
		FileID:       f.ID,
		OriginalPath: f.OriginalPath,
	}

	if f.AccessPath == "" {
		result.Error = "file content is not accessible (index-only record)"
		return result
	}
	if _, err := os.Stat(f.AccessPath); err != nil {
		result.Error = fmt.Sprintf("source file not found: %s", f.AccessPath)
		return result
	}

	destPath := e.destPath(f)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		result.Error = fmt.Sprintf("cannot create directory: %v", err)
		return result
	}
	destPath = uniquePath(destPath)

	var sourceHash string
	if e.VerifyChecksums {
		h, err := fileSHA256(f.AccessPath)
		if err != nil {
			result.Error = fmt.Sprintf("cannot hash source: %v", err)
			return result
		}
		sourceHash = h
	}

	copyFn := e.copy
	if copyFn == nil {
		copyFn = copyFile
	}
	if err := copyFn(f.AccessPath, destPath); err != nil {
		result.Error = fmt.Sprintf("copy failed: %v", err)
		return result
	}

	result.RecoveredPath = destPath
	result.Success = true

	if e.VerifyChecksums {
		destHash, err := fileSHA256(destPath)
		if err != nil {
			result.Error = fmt.Sprintf("cannot hash copy: %v", err)
			result.Success = false
			return result
		}
		match := sourceHash == destHash
		result.ChecksumMatch = &match
		if !match {
			result.Error = "checksum mismatch after copy"
			result.Success = false
		}
	}

	return result
}

// destPath maps a recovered file into the destination tree. With structure
// preservation the original path becomes a relative path under the
// destination; otherwise everything lands flat.
func (e *Engine) destPath(f core.RecoveredFile) string {
	if e.PreserveStructure && f.OriginalPath != "" {
		rel := strings.TrimLeft(f.OriginalPath, string(os.PathSeparator))
		return filepath.Join(e.Destination, rel)
	}
	return filepath.Join(e.Destination, f.Filename)
}

// uniquePath returns path itself when free, otherwise the first
// name_N.ext variant that does not exist yet.
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// copyFile copies src to dst and carries the source's modification time over.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
