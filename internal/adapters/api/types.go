// Package api exposes the scan and recovery engines over HTTP: REST
// endpoints for job control and a WebSocket stream for live progress.
package api

import "recoverd/internal/core"

// APIResponse wraps all API responses with a consistent structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents an API error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartJobResponse acknowledges an accepted scan or recovery job.
type StartJobResponse struct {
	JobID  string         `json:"jobId"`
	Status core.JobStatus `json:"status"`
}

// ResultsPage is one page of a scan's result set.
type ResultsPage struct {
	JobID  string               `json:"jobId"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
	Files  []core.RecoveredFile `json:"files"`
}

// SudoRequest carries the admin password for session authentication. The
// password is consumed by the credential store and never logged or echoed.
type SudoRequest struct {
	Password string `json:"password"`
}

// SudoStatusResponse reports whether a session credential is held.
type SudoStatusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// wsCommand is an inbound WebSocket message.
type wsCommand struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

// wsProgress is an outbound WebSocket progress frame.
type wsProgress struct {
	Type     string         `json:"type"`
	JobID    string         `json:"jobId"`
	Status   core.JobStatus `json:"status"`
	Progress interface{}    `json:"progress"`
}
