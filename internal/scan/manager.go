// Package scan orchestrates scan jobs: one goroutine per job walking the
// configured sources in order, collecting matches, and fanning progress out
// to listeners.
package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/scanners"
)

// notifyInterval throttles per-file progress broadcasts. Checkpoint
// notifications (source boundaries, terminal states) are never throttled.
const notifyInterval = 5 * time.Second

// Listener receives a snapshot of a job every time its progress changes.
type Listener func(job core.ScanJob)

// Manager owns scan job lifecycles. All state lives in memory; results exist
// for as long as the process does.
type Manager struct {
	mu        sync.Mutex
	logger    *log.Logger
	registry  *scanners.Registry
	jobs      map[string]*core.ScanJob
	results   map[string][]core.RecoveredFile
	cancels   map[string]context.CancelFunc
	listeners map[string]map[int]Listener
	nextLID   int

	// now is swappable for throttle tests.
	now func() time.Time
}

// NewManager creates a scan Manager backed by the given scanner registry.
func NewManager(registry *scanners.Registry, logger *log.Logger) *Manager {
	return &Manager{
		logger:    logger,
		registry:  registry,
		jobs:      make(map[string]*core.ScanJob),
		results:   make(map[string][]core.RecoveredFile),
		cancels:   make(map[string]context.CancelFunc),
		listeners: make(map[string]map[int]Listener),
		now:       time.Now,
	}
}

// CreateJob registers a new pending job and returns its snapshot. The scan
// does not start until StartScan is called.
func (m *Manager) CreateJob(cfg core.ScanConfig) core.ScanJob {
	job := &core.ScanJob{
		ID:        core.NewJobID(),
		Config:    cfg,
		Status:    core.StatusPending,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.results[job.ID] = []core.RecoveredFile{}
	m.mu.Unlock()

	m.logger.Printf("[ScanManager] CreateJob: id=%s sources=%v", job.ID, cfg.Sources)
	return *job
}

// ImportResults registers an already-completed job holding externally
// produced files, e.g. carving output from a PhotoRec run outside this
// process.
func (m *Manager) ImportResults(cfg core.ScanConfig, files []core.RecoveredFile) core.ScanJob {
	now := m.now().UTC()
	job := &core.ScanJob{
		ID:          core.NewJobID(),
		Config:      cfg,
		Status:      core.StatusCompleted,
		CreatedAt:   now,
		CompletedAt: &now,
		Progress: core.ScanProgress{
			FilesFound:       len(files),
			SourcesCompleted: len(cfg.Sources),
			SourcesTotal:     len(cfg.Sources),
			Percent:          100,
			Message:          fmt.Sprintf("Loaded %d files", len(files)),
		},
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.results[job.ID] = append([]core.RecoveredFile(nil), files...)
	m.mu.Unlock()

	m.logger.Printf("[ScanManager] ImportResults: id=%s files=%d", job.ID, len(files))
	return *job
}

// StartScan launches the scan goroutine for a pending job.
func (m *Manager) StartScan(ctx context.Context, jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("scan job %s not found", jobID)
	}
	if job.Status != core.StatusPending {
		status := job.Status
		m.mu.Unlock()
		return fmt.Errorf("scan job %s already started (status: %s)", jobID, status)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.logger.Printf("[ScanManager] StartScan: id=%s", jobID)
	go m.runScan(jobCtx, jobID)
	return nil
}

// CancelScan cancels a running job and releases any external resources its
// scanners still hold. Returns false when the job is unknown or already
// terminal.
func (m *Manager) CancelScan(ctx context.Context, jobID string) bool {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	cancel := m.cancels[jobID]
	cfg := job.Config
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.setStatus(jobID, core.StatusCancelled, "")
	m.logger.Printf("[ScanManager] CancelScan: id=%s", jobID)

	// Release mounts and subprocesses the cancelled scan may have left
	// behind. Failures here must not block the cancel.
	for _, sourceID := range cfg.Sources {
		scanner, ok := m.registry.Get(sourceID)
		if !ok {
			continue
		}
		if cleaner, ok := scanner.(scanners.Cleaner); ok {
			cleaner.Cleanup(ctx)
		}
	}
	return true
}

// Job returns a snapshot of one job.
func (m *Manager) Job(jobID string) (core.ScanJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return core.ScanJob{}, false
	}
	return *job, true
}

// Results returns a copy of a job's collected files.
func (m *Manager) Results(jobID string) []core.RecoveredFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.RecoveredFile(nil), m.results[jobID]...)
}

// Stats aggregates a job's result set by source and extension.
func (m *Manager) Stats(jobID string) core.ScanStats {
	files := m.Results(jobID)
	stats := core.ScanStats{
		TotalFiles:  len(files),
		BySource:    make(map[string]int),
		ByExtension: make(map[string]int),
	}
	for _, f := range files {
		stats.TotalSize += f.Metadata.Size
		stats.BySource[f.SourceID]++
		ext := f.Extension
		if ext == "" {
			ext = "(no ext)"
		}
		stats.ByExtension[ext]++
	}
	return stats
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

func (m *Manager) runScan(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("[ScanManager] runScan: panic in job %s: %v", jobID, r)
			m.setStatus(jobID, core.StatusFailed, fmt.Sprint(r))
		}
	}()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	cfg := job.Config
	if job.Status.IsTerminal() {
		// Cancelled before the goroutine got going.
		m.mu.Unlock()
		return
	}
	job.Status = core.StatusRunning
	job.Progress = core.ScanProgress{SourcesTotal: len(cfg.Sources)}
	m.mu.Unlock()
	m.notify(jobID)

	for i, sourceID := range cfg.Sources {
		if ctx.Err() != nil {
			m.setStatus(jobID, core.StatusCancelled, "")
			return
		}

		scanner, ok := m.registry.Get(sourceID)
		if !ok {
			// Unknown source ids are skipped, not fatal.
			continue
		}

		m.updateProgress(jobID, func(p *core.ScanProgress) {
			p.CurrentSource = scanner.Name()
			p.SourcesCompleted = i + 1
			p.Percent = float64(i+1) / float64(len(cfg.Sources)) * 100
			p.Message = fmt.Sprintf("Scanning %s...", scanner.Name())
		})
		m.notify(jobID)

		m.scanSource(ctx, jobID, scanner, cfg)
		if ctx.Err() != nil {
			m.setStatus(jobID, core.StatusCancelled, "")
			return
		}
		// Checkpoint at every source boundary regardless of throttle.
		m.notify(jobID)
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok && !job.Status.IsTerminal() {
		job.Status = core.StatusCompleted
		now := m.now().UTC()
		job.CompletedAt = &now
		job.Progress.SourcesCompleted = len(cfg.Sources)
		job.Progress.Percent = 100
		job.Progress.Message = fmt.Sprintf("Scan complete. Found %d files.", job.Progress.FilesFound)
	}
	m.mu.Unlock()
	m.notify(jobID)
	m.logger.Printf("[ScanManager] runScan: id=%s done", jobID)
}

// scanSource drains one scanner's output channel, filtering and collecting
// matches.
func (m *Manager) scanSource(ctx context.Context, jobID string, scanner scanners.Scanner, cfg core.ScanConfig) {
	// Carved files carry no meaningful timestamps. A date filter would
	// silently hide everything carving finds.
	skipDateFilter := scanner.ID() == scanners.SourceCarving

	progress := func(msg string) {
		m.logger.Printf("[%s] %s", scanner.Name(), msg)
		m.updateProgress(jobID, func(p *core.ScanProgress) { p.Message = msg })
	}

	var yielded, filteredDate, filteredType int
	lastNotify := time.Time{}

	for f := range scanner.Scan(ctx, cfg, progress) {
		yielded++
		if !skipDateFilter && !core.MatchesDateRange(f, cfg.DateRange) {
			filteredDate++
			continue
		}
		if !core.MatchesFilters(f, cfg) {
			filteredType++
			continue
		}

		m.mu.Lock()
		if job, ok := m.jobs[jobID]; !ok || job.Status.IsTerminal() {
			// The job was cancelled under us; its result list is frozen.
			// Keep draining so the scanner's goroutine can exit.
			m.mu.Unlock()
			continue
		}
		m.results[jobID] = append(m.results[jobID], f)
		count := len(m.results[jobID])
		m.jobs[jobID].Progress.FilesFound = count
		m.mu.Unlock()

		if now := m.now(); now.Sub(lastNotify) >= notifyInterval {
			lastNotify = now
			m.notify(jobID)
		}
	}

	m.logger.Printf("[%s] Done: %d yielded, %d filtered by date, %d filtered by type",
		scanner.Name(), yielded, filteredDate, filteredType)
}

// setStatus moves a job to a new status. Terminal states are final: a job
// that already completed, failed, or was cancelled never transitions again.
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

func (m *Manager) updateProgress(jobID string, fn func(*core.ScanProgress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok && !job.Status.IsTerminal() {
		fn(&job.Progress)
	}
}

// notify broadcasts the current job snapshot to all listeners. Each listener
// runs in its own goroutine; a panicking listener never takes down the scan.
func (m *Manager) notify(jobID string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := *job
	ls := make([]Listener, 0, len(m.listeners[jobID]))
	for _, l := range m.listeners[jobID] {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		go func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Printf("[ScanManager] notify: listener panic: %v", r)
				}
			}()
			l(snapshot)
		}(l)
	}
}
