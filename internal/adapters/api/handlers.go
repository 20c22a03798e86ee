package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/scanners"
	"recoverd/internal/system"
)

// photoRecImportDir is where an externally-run PhotoRec session is expected
// to have written its output.
const photoRecImportDir = "/tmp/recoverd-carve"

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "recoverd-api",
	})
}

// handleSystemInfo returns the cached dashboard snapshot.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cachedSystemInfo(r.Context(), false))
}

// handleSystemRefresh re-probes the host.
func (s *Server) handleSystemRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cachedSystemInfo(r.Context(), true))
}

// handleSudo validates the submitted admin password and stores it for the
// session. The password itself never appears in logs or responses.
func (s *Server) handleSudo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	var req SudoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Password required")
		return
	}

	if !s.runner.ValidateCredential(r.Context(), req.Password) {
		s.writeError(w, http.StatusUnauthorized, "invalid_credential", "Invalid admin password")
		return
	}
	s.runner.Credentials().Set(req.Password)

	// Privileged sources just became available; refresh the dashboard.
	s.cachedSystemInfo(r.Context(), true)
	s.writeJSON(w, http.StatusOK, SudoStatusResponse{Authenticated: true})
}

// handleSudoStatus reports whether a session credential is held.
func (s *Server) handleSudoStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}
	held := s.runner.Credentials() != nil && s.runner.Credentials().Held()
	s.writeJSON(w, http.StatusOK, SudoStatusResponse{Authenticated: held})
}

// handleSources lists every registered source with a fresh availability probe.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}

	var sources []core.SourceAvailability
	for _, scanner := range s.registry.All() {
		sources = append(sources, scanner.CheckAvailability(r.Context()))
	}
	s.writeJSON(w, http.StatusOK, sources)
}

// handleScanStart creates and starts a scan job.
func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	var cfg core.ScanConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(cfg.Sources) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "At least one source required")
		return
	}

	job := s.scans.CreateJob(cfg)
	// The job must outlive this request.
	if err := s.scans.StartScan(context.Background(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, StartJobResponse{JobID: job.ID, Status: core.StatusRunning})
}

// handleScanJob handles GET /api/scan/jobs/{id} and POST /{id}/cancel.
func (s *Server) handleScanJob(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/scan/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_path", "Job ID required")
		return
	}
	jobID := parts[0]
	isCancel := len(parts) > 1 && parts[1] == "cancel"

	switch {
	case r.Method == http.MethodGet && !isCancel:
		job, ok := s.scans.Job(jobID)
		if !ok {
			s.writeError(w, http.StatusNotFound, "not_found", "Scan job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, job)

	case r.Method == http.MethodPost && isCancel:
		if !s.scans.CancelScan(r.Context(), jobID) {
			s.writeError(w, http.StatusNotFound, "cancel_failed", "Scan job not found or already finished")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET /api/scan/jobs/{id} or POST /api/scan/jobs/{id}/cancel")
	}
}

// handleLoadPhotoRec imports carving output from a PhotoRec session run
// outside this process and registers it as a completed scan job.
func (s *Server) handleLoadPhotoRec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	entries, err := os.ReadDir(photoRecImportDir)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "not_found",
			fmt.Sprintf("No PhotoRec output found at %s", photoRecImportDir))
		return
	}

	var files []core.RecoveredFile
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "recup_dir") {
			continue
		}
		dir := filepath.Join(photoRecImportDir, entry.Name())
		subEntries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, sub := range subEntries {
			if sub.IsDir() || strings.HasPrefix(sub.Name(), ".") {
				continue
			}
			info, err := sub.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
			mod := info.ModTime().UTC()
			files = append(files, core.RecoveredFile{
				ID:           core.NewFileID(),
				SourceID:     scanners.SourceCarving,
				OriginalPath: "[carved] " + sub.Name(),
				Filename:     sub.Name(),
				Extension:    strings.ToLower(filepath.Ext(sub.Name())),
				Metadata:     core.FileMetadata{Size: info.Size(), Modified: &mod},
				AccessPath:   filepath.Join(dir, sub.Name()),
			})
		}
	}

	job := s.scans.ImportResults(core.ScanConfig{Sources: []string{scanners.SourceCarving}}, files)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":       job.ID,
		"filesLoaded": len(files),
	})
}

// handleResults serves GET /api/results/{id} (paged, filtered, sorted) and
// GET /api/results/{id}/stats.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/results/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_path", "Job ID required")
		return
	}
	jobID := parts[0]

	if _, ok := s.scans.Job(jobID); !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "Scan job not found")
		return
	}

	if len(parts) > 1 && parts[1] == "stats" {
		s.writeJSON(w, http.StatusOK, s.scans.Stats(jobID))
		return
	}

	files := s.scans.Results(jobID)
	q := r.URL.Query()

	if search := strings.ToLower(q.Get("search")); search != "" {
		var kept []core.RecoveredFile
		for _, f := range files {
			if strings.Contains(strings.ToLower(f.Filename), search) ||
				strings.Contains(strings.ToLower(f.OriginalPath), search) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	if ext := q.Get("extension"); ext != "" {
		ext = core.NormalizeExtension(ext)
		var kept []core.RecoveredFile
		for _, f := range files {
			if strings.EqualFold(f.Extension, ext) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	if source := q.Get("source"); source != "" {
		var kept []core.RecoveredFile
		for _, f := range files {
			if f.SourceID == source {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	total := len(files)
	sortResults(files, q.Get("sortBy"), q.Get("sortOrder") == "desc")

	offset := intParam(q.Get("offset"), 0)
	limit := intParam(q.Get("limit"), 100)
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	s.writeJSON(w, http.StatusOK, ResultsPage{
		JobID:  jobID,
		Total:  total,
		Offset: offset,
		Limit:  limit,
		Files:  files[offset:end],
	})
}

// handleRecoveryStart creates and starts a recovery job after checking the
// destination is writable.
func (s *Server) handleRecoveryStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	var req core.RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Destination == "" || len(req.FileIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Destination and file ids required")
		return
	}
	if !system.PathWritable(req.Destination) {
		s.writeError(w, http.StatusBadRequest, "destination_unwritable", "Destination is not writable")
		return
	}

	job := s.recovery.CreateJob(req)
	if err := s.recovery.StartRecovery(context.Background(), job.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, StartJobResponse{JobID: job.ID, Status: core.StatusRunning})
}

// handleRecoveryJob handles GET /api/recovery/jobs/{id} and POST /{id}/cancel.
func (s *Server) handleRecoveryJob(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/recovery/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_path", "Job ID required")
		return
	}
	jobID := parts[0]
	isCancel := len(parts) > 1 && parts[1] == "cancel"

	switch {
	case r.Method == http.MethodGet && !isCancel:
		job, ok := s.recovery.Job(jobID)
		if !ok {
			s.writeError(w, http.StatusNotFound, "not_found", "Recovery job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, job)

	case r.Method == http.MethodPost && isCancel:
		if !s.recovery.CancelRecovery(jobID) {
			s.writeError(w, http.StatusNotFound, "cancel_failed", "Recovery job not found or already finished")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET /api/recovery/jobs/{id} or POST /api/recovery/jobs/{id}/cancel")
	}
}

// handlePreview streams a scanned file's bytes inline: GET
// /api/preview/{jobId}/{fileId}.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/preview/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_path", "Job ID and file ID required")
		return
	}
	jobID, fileID := parts[0], parts[1]

	if _, ok := s.scans.Job(jobID); !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "Scan job not found")
		return
	}

	var file *core.RecoveredFile
	for _, f := range s.scans.Results(jobID) {
		if f.ID == fileID {
			file = &f
			break
		}
	}
	if file == nil {
		s.writeError(w, http.StatusNotFound, "not_found", "File not found")
		return
	}
	if file.Metadata.Size > s.maxPreviewBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "too_large", "File too large for preview")
		return
	}

	scanner, ok := s.registry.Get(file.SourceID)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "no_scanner", "Scanner not available")
		return
	}
	data, err := scanner.ReadFileBytes(r.Context(), *file)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unreadable", "Could not read file")
		return
	}

	mimeType := mime.TypeByExtension(file.Extension)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// sortResults orders files for the results page. Missing dates sort first in
// ascending order.
func sortResults(files []core.RecoveredFile, sortBy string, desc bool) {
	var less func(a, b core.RecoveredFile) bool
	switch sortBy {
	case "size":
		less = func(a, b core.RecoveredFile) bool { return a.Metadata.Size < b.Metadata.Size }
	case "modified":
		less = func(a, b core.RecoveredFile) bool {
			return dateKey(a.Metadata.Modified, a.Metadata.Created).Before(dateKey(b.Metadata.Modified, b.Metadata.Created))
		}
	case "created":
		less = func(a, b core.RecoveredFile) bool {
			return dateKey(a.Metadata.Created).Before(dateKey(b.Metadata.Created))
		}
	case "extension":
		less = func(a, b core.RecoveredFile) bool {
			return strings.ToLower(a.Extension) < strings.ToLower(b.Extension)
		}
	case "source":
		less = func(a, b core.RecoveredFile) bool { return a.SourceID < b.SourceID }
	default: // filename
		less = func(a, b core.RecoveredFile) bool {
			return strings.ToLower(a.Filename) < strings.ToLower(b.Filename)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		if desc {
			return less(files[j], files[i])
		}
		return less(files[i], files[j])
	})
}

func dateKey(candidates ...*time.Time) time.Time {
	for _, t := range candidates {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
