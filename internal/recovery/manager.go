package recovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"recoverd/internal/core"
)

// ScanResults resolves a scan job's collected files. Satisfied by the scan
// Manager.
type ScanResults interface {
	Results(jobID string) []core.RecoveredFile
}

// Listener receives a snapshot of a job every time its progress changes.
type Listener func(job core.RecoveryJob)

// Manager owns recovery job lifecycles. Recovery progress is never throttled:
// batches are small relative to scan result streams and every per-file result
// matters to the caller.
type Manager struct {
	mu        sync.Mutex
	logger    *log.Logger
	scans     ScanResults
	jobs      map[string]*core.RecoveryJob
	cancels   map[string]context.CancelFunc
	listeners map[string]map[int]Listener
	nextLID   int

	now func() time.Time
}

// NewManager creates a recovery Manager that resolves file ids against scans.
func NewManager(scans ScanResults, logger *log.Logger) *Manager {
	return &Manager{
		logger:    logger,
		scans:     scans,
		jobs:      make(map[string]*core.RecoveryJob),
		cancels:   make(map[string]context.CancelFunc),
		listeners: make(map[string]map[int]Listener),
		now:       time.Now,
	}
}

// CreateJob registers a new pending recovery job.
func (m *Manager) CreateJob(req core.RecoveryRequest) core.RecoveryJob {
	job := &core.RecoveryJob{
		ID:        core.NewJobID(),
		Request:   req,
		Status:    core.StatusPending,
		Results:   []core.RecoveryFileResult{},
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Printf("[RecoveryManager] CreateJob: id=%s files=%d dest=%s",
		job.ID, len(req.FileIDs), req.Destination)
	return *job
}

// StartRecovery launches the copy goroutine for a pending job.
func (m *Manager) StartRecovery(ctx context.Context, jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("recovery job %s not found", jobID)
	}
	if job.Status != core.StatusPending {
		status := job.Status
		m.mu.Unlock()
		return fmt.Errorf("recovery job %s already started (status: %s)", jobID, status)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.logger.Printf("[RecoveryManager] StartRecovery: id=%s", jobID)
	go m.runRecovery(jobCtx, jobID)
	return nil
}

// CancelRecovery cancels a running job. Files already copied stay on disk and
// in the job's result list.
func (m *Manager) CancelRecovery(jobID string) bool {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	cancel := m.cancels[jobID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.setStatus(jobID, core.StatusCancelled, "")
	m.logger.Printf("[RecoveryManager] CancelRecovery: id=%s", jobID)
	return true
}

// Job returns a snapshot of one job, including its per-file results.
func (m *Manager) Job(jobID string) (core.RecoveryJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return core.RecoveryJob{}, false
	}
	snapshot := *job
	snapshot.Results = append([]core.RecoveryFileResult(nil), job.Results...)
	return snapshot, true
}

// AddProgressListener subscribes to one job's progress. The returned id
// removes the subscription.
func (m *Manager) AddProgressListener(jobID string, l Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners[jobID] == nil {
		m.listeners[jobID] = make(map[int]Listener)
	}
	m.nextLID++
	m.listeners[jobID][m.nextLID] = l
	return m.nextLID
}

// RemoveProgressListener drops a subscription made with AddProgressListener.
func (m *Manager) RemoveProgressListener(jobID string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners[jobID], id)
}

func (m *Manager) runRecovery(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("[RecoveryManager] runRecovery: panic in job %s: %v", jobID, r)
			m.setStatus(jobID, core.StatusFailed, fmt.Sprint(r))
		}
	}()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	req := job.Request
	job.Status = core.StatusRunning
	m.mu.Unlock()
	m.notify(jobID)

	// Resolve ids against the scan's result set. Unknown ids are dropped
	// silently; the files_total the client sees reflects what will actually
	// be attempted.
	byID := make(map[string]core.RecoveredFile)
	for _, f := range m.scans.Results(req.JobID) {
		byID[f.ID] = f
	}
	var files []core.RecoveredFile
	var bytesTotal int64
	for _, fid := range req.FileIDs {
		if f, ok := byID[fid]; ok {
			files = append(files, f)
			bytesTotal += f.Metadata.Size
		}
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		job.Progress = core.RecoveryProgress{
			FilesTotal: len(files),
			BytesTotal: bytesTotal,
		}
	}
	m.mu.Unlock()
	m.notify(jobID)

	engine := &Engine{
		Destination:       req.Destination,
		PreserveStructure: req.PreserveStructure,
		VerifyChecksums:   req.VerifyChecksums,
	}

	sizeByID := make(map[string]int64, len(files))
	for _, f := range files {
		sizeByID[f.ID] = f.Metadata.Size
	}

	for result := range engine.Recover(ctx, files) {
		m.mu.Lock()
		// A cancelled job's result list is frozen; keep draining so the
		// engine goroutine can exit.
		if job, ok := m.jobs[jobID]; ok && !job.Status.IsTerminal() {
			job.Results = append(job.Results, result)
			p := &job.Progress
			if result.Success {
				p.FilesRecovered++
				p.BytesCopied += sizeByID[result.FileID]
			} else {
				p.FilesFailed++
			}
			p.CurrentFile = result.OriginalPath
			if p.FilesTotal > 0 {
				p.Percent = float64(p.FilesRecovered+p.FilesFailed) / float64(p.FilesTotal) * 100
			}
			p.Message = fmt.Sprintf("Recovered %d/%d", p.FilesRecovered, p.FilesTotal)
		}
		m.mu.Unlock()
		m.notify(jobID)
	}

	if ctx.Err() != nil {
		m.setStatus(jobID, core.StatusCancelled, "")
		return
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok && !job.Status.IsTerminal() {
		job.Status = core.StatusCompleted
		now := m.now().UTC()
		job.CompletedAt = &now
		job.Progress.Percent = 100
		job.Progress.Message = fmt.Sprintf("Recovery complete. %d recovered, %d failed.",
			job.Progress.FilesRecovered, job.Progress.FilesFailed)
	}
	m.mu.Unlock()
	m.notify(jobID)
	m.logger.Printf("[RecoveryManager] runRecovery: id=%s done", jobID)
}

func (m *Manager) setStatus(jobID string, status core.JobStatus, errMsg string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	if status.IsTerminal() {
		now := m.now().UTC()
		job.CompletedAt = &now
	}
	m.mu.Unlock()
	m.notify(jobID)
}

func (m *Manager) notify(jobID string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := *job
	snapshot.Results = append([]core.RecoveryFileResult(nil), job.Results...)
	ls := make([]Listener, 0, len(m.listeners[jobID]))
	for _, l := range m.listeners[jobID] {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		go func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Printf("[RecoveryManager] notify: listener panic: %v", r)
				}
			}()
			l(snapshot)
		}(l)
	}
}
