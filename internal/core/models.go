// Package core provides the domain model for recoverd: recovered files,
// scan and recovery jobs, progress snapshots, and source availability.
// This package must NOT import any adapter-specific code (HTTP, WebSocket,
// CLI frameworks). It should be fully testable without a running server.
package core

import "time"

// JobStatus represents the lifecycle state of a scan or recovery job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status will never transition again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// DateRange is an inclusive time interval used for scan filtering.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FileMetadata holds whatever timestamps and sizing a source could determine
// for a recovered file. All timestamps are optional; carving in particular
// produces files with no reliable dates.
type FileMetadata struct {
	Size        int64      `json:"size"`
	Created     *time.Time `json:"created,omitempty"`
	Modified    *time.Time `json:"modified,omitempty"`
	Accessed    *time.Time `json:"accessed,omitempty"`
	DeletedDate *time.Time `json:"deletedDate,omitempty"`
	MimeType    string     `json:"mimeType,omitempty"`
}

// RecoveredFile is one file a scanner located. OriginalPath is the user-facing
// logical location (possibly synthetic, e.g. "[carved] f123.jpg"); AccessPath
// is the internal location bytes can actually be read from. An empty
// AccessPath means the file is not readable anywhere (index-only record) and
// no byte-reading operation may be attempted. Immutable once produced.
type RecoveredFile struct {
	ID           string       `json:"id"`
	SourceID     string       `json:"sourceId"`
	OriginalPath string       `json:"originalPath"`
	Filename     string       `json:"filename"`
	Extension    string       `json:"extension"`
	Metadata     FileMetadata `json:"metadata"`
	AccessPath   string       `json:"-"`
}

// SourceAvailability describes whether one source is usable on this system.
type SourceAvailability struct {
	SourceID      string `json:"sourceId"`
	Name          string `json:"name"`
	Available     bool   `json:"available"`
	RequiresAdmin bool   `json:"requiresAdmin"`
	HasAdmin      bool   `json:"hasAdmin"`
	Detail        string `json:"detail"`
	Count         *int   `json:"count,omitempty"`
}

// ScanConfig is the immutable input to a scan job. Source order is
// significant: sources are scanned sequentially in exactly this order.
type ScanConfig struct {
	Sources        []string   `json:"sources"`
	DateRange      *DateRange `json:"dateRange,omitempty"`
	FileTypes      []string   `json:"fileTypes,omitempty"`
	FileExtensions []string   `json:"fileExtensions,omitempty"`
	Volume         string     `json:"volume"`
}

// ScanProgress is a point-in-time progress snapshot of a scan job.
type ScanProgress struct {
	CurrentSource    string  `json:"currentSource"`
	FilesFound       int     `json:"filesFound"`
	SourcesCompleted int     `json:"sourcesCompleted"`
	SourcesTotal     int     `json:"sourcesTotal"`
	Message          string  `json:"message"`
	Percent          float64 `json:"percent"`
}

// ScanJob tracks one scan from creation to a terminal state.
type ScanJob struct {
	ID          string       `json:"id"`
	Config      ScanConfig   `json:"config"`
	Status      JobStatus    `json:"status"`
	Progress    ScanProgress `json:"progress"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ScanStats aggregates a scan job's result set.
type ScanStats struct {
	TotalFiles  int            `json:"totalFiles"`
	TotalSize   int64          `json:"totalSize"`
	BySource    map[string]int `json:"bySource"`
	ByExtension map[string]int `json:"byExtension"`
}

// RecoveryRequest asks for a set of files from a prior scan job to be copied
// to a destination directory.
type RecoveryRequest struct {
	JobID             string   `json:"jobId"`
	FileIDs           []string `json:"fileIds"`
	Destination       string   `json:"destination"`
	PreserveStructure bool     `json:"preserveStructure"`
	VerifyChecksums   bool     `json:"verifyChecksums"`
}

// RecoveryProgress is a point-in-time progress snapshot of a recovery job.
type RecoveryProgress struct {
	FilesRecovered int     `json:"filesRecovered"`
	FilesTotal     int     `json:"filesTotal"`
	FilesFailed    int     `json:"filesFailed"`
	CurrentFile    string  `json:"currentFile"`
	BytesCopied    int64   `json:"bytesCopied"`
	BytesTotal     int64   `json:"bytesTotal"`
	Percent        float64 `json:"percent"`
	Message        string  `json:"message"`
}

// RecoveryFileResult is the outcome of recovering one file. ChecksumMatch is
// nil when verification was not requested or never reached; Success is false
// both for copy failures and for checksum mismatches, which are told apart by
// ChecksumMatch.
type RecoveryFileResult struct {
	FileID        string `json:"fileId"`
	OriginalPath  string `json:"originalPath"`
	RecoveredPath string `json:"recoveredPath,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ChecksumMatch *bool  `json:"checksumMatch,omitempty"`
}

// RecoveryJob tracks one recovery from creation to a terminal state. Results
// are ordered by processing order; already-copied files stay in the list if
// the job is cancelled mid-batch.
type RecoveryJob struct {
	ID          string               `json:"id"`
	Request     RecoveryRequest      `json:"request"`
	Status      JobStatus            `json:"status"`
	Progress    RecoveryProgress     `json:"progress"`
	Results     []RecoveryFileResult `json:"results"`
	CreatedAt   time.Time            `json:"createdAt"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// VolumeInfo describes a mounted volume.
type VolumeInfo struct {
	Name       string `json:"name"`
	MountPoint string `json:"mountPoint"`
	Filesystem string `json:"filesystem,omitempty"`
	IsBoot     bool   `json:"isBoot"`
}

// SystemInfo is the dashboard view of the host: volumes, per-source
// availability, and permission state.
type SystemInfo struct {
	Hostname          string               `json:"hostname"`
	OSVersion         string               `json:"osVersion"`
	Volumes           []VolumeInfo         `json:"volumes"`
	Sources           []SourceAvailability `json:"sources"`
	HasFullDiskAccess bool                 `json:"hasFullDiskAccess"`
	AdminCached       bool                 `json:"adminCached"`
}
