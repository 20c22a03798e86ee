package core

import "strings"

// typeExtensions maps a high-level file-type category to the extensions it
// covers, for result filtering.
var typeExtensions = map[string][]string{
	"image":    {".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".tiff", ".bmp", ".svg"},
	"document": {".pdf", ".doc", ".docx", ".txt", ".rtf", ".pages", ".odt", ".xls", ".xlsx", ".csv"},
	"video":    {".mp4", ".mov", ".avi", ".mkv", ".wmv", ".m4v"},
	"audio":    {".mp3", ".wav", ".aac", ".flac", ".m4a", ".ogg"},
	"code":     {".py", ".js", ".ts", ".jsx", ".tsx", ".html", ".css", ".json", ".yaml", ".yml", ".md", ".sh", ".go", ".rs", ".java", ".c", ".cpp", ".h", ".swift"},
}

// NormalizeExtension lowercases an extension and guarantees a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// MatchesFilters reports whether a file passes the config's extension and
// file-type filters. Empty filters match everything.
func MatchesFilters(f RecoveredFile, cfg ScanConfig) bool {
	if len(cfg.FileExtensions) > 0 {
		ok := false
		for _, ext := range cfg.FileExtensions {
			if strings.EqualFold(f.Extension, NormalizeExtension(ext)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if len(cfg.FileTypes) > 0 {
		ok := false
		for _, ft := range cfg.FileTypes {
			for _, ext := range typeExtensions[strings.ToLower(ft)] {
				if strings.EqualFold(f.Extension, ext) {
					ok = true
					break
				}
			}
			if ok {
				break
			}
		}
		if !ok {
			return false
		}
	}

	return true
}
