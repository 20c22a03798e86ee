package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID returns a short random identifier for a scan or recovery job.
func NewJobID() string {
	return hexID(8)
}

// NewFileID returns a random identifier for a recovered file, unique within
// a scan job's result set.
func NewFileID() string {
	return hexID(12)
}

func hexID(n int) string {
	s := strings.ReplaceAll(uuid.New().String(), "-", "")
	return s[:n]
}
