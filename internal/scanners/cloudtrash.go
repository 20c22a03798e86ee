package scanners

import (
	"context"

	"recoverd/internal/core"
)

// SourceCloudTrash identifies the cloud trash scanner.
const SourceCloudTrash = "cloud_trash"

// CloudTrashScanner is registered so the source shows up in availability
// listings, but it never yields results yet.
type CloudTrashScanner struct{}

func NewCloudTrashScanner() *CloudTrashScanner { return &CloudTrashScanner{} }

func (s *CloudTrashScanner) ID() string   { return SourceCloudTrash }
func (s *CloudTrashScanner) Name() string { return "Cloud Trash" }
func (s *CloudTrashScanner) Description() string {
	return "Check cloud storage trash (iCloud, Google Drive, Dropbox)"
}
func (s *CloudTrashScanner) RequiresAdmin() bool { return false }

func (s *CloudTrashScanner) CheckAvailability(ctx context.Context) core.SourceAvailability {
	return core.SourceAvailability{
		SourceID: s.ID(),
		Name:     s.Name(),
		Detail:   "Not yet supported (iCloud, Google Drive, Dropbox trash)",
	}
}

func (s *CloudTrashScanner) Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile {
	out := make(chan core.RecoveredFile)
	close(out)
	return out
}

func (s *CloudTrashScanner) ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error) {
	return nil, ErrUnreadable
}
