package core

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

func TestBestDate_Waterfall(t *testing.T) {
	deleted := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	modified := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	accessed := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		meta FileMetadata
		want *time.Time
	}{
		{"deleted wins", FileMetadata{DeletedDate: tp(deleted), Modified: tp(modified), Created: tp(created), Accessed: tp(accessed)}, tp(deleted)},
		{"modified next", FileMetadata{Modified: tp(modified), Created: tp(created), Accessed: tp(accessed)}, tp(modified)},
		{"created next", FileMetadata{Created: tp(created), Accessed: tp(accessed)}, tp(created)},
		{"accessed last", FileMetadata{Accessed: tp(accessed)}, tp(accessed)},
		{"no dates", FileMetadata{}, nil},
	}

	for _, tt := range tests {
		got := BestDate(tt.meta)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("%s: BestDate = %v, want %v", tt.name, got, tt.want)
			continue
		}
		if got != nil && !got.Equal(*tt.want) {
			t.Errorf("%s: BestDate = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchesDateRange_InclusiveBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	dr := &DateRange{Start: start, End: end}

	fileAt := func(ts time.Time) RecoveredFile {
		return RecoveredFile{Metadata: FileMetadata{Modified: tp(ts)}}
	}

	if !MatchesDateRange(fileAt(start), dr) {
		t.Error("file exactly at range start should be included")
	}
	if !MatchesDateRange(fileAt(end), dr) {
		t.Error("file exactly at range end should be included")
	}
	if MatchesDateRange(fileAt(start.Add(-time.Second)), dr) {
		t.Error("file before range should be excluded")
	}
	if MatchesDateRange(fileAt(end.Add(time.Second)), dr) {
		t.Error("file after range should be excluded")
	}
}

func TestMatchesDateRange_Conservative(t *testing.T) {
	dr := &DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	// No date info at all: include rather than hide.
	if !MatchesDateRange(RecoveredFile{}, dr) {
		t.Error("file without dates should be included")
	}

	// No range: everything passes.
	old := RecoveredFile{Metadata: FileMetadata{Modified: tp(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))}}
	if !MatchesDateRange(old, nil) {
		t.Error("nil range should match everything")
	}
}

func TestMatchesFilters(t *testing.T) {
	jpg := RecoveredFile{Extension: ".jpg"}
	pdf := RecoveredFile{Extension: ".pdf"}

	tests := []struct {
		name string
		file RecoveredFile
		cfg  ScanConfig
		want bool
	}{
		{"no filters", jpg, ScanConfig{}, true},
		{"extension match", jpg, ScanConfig{FileExtensions: []string{".jpg"}}, true},
		{"extension without dot", jpg, ScanConfig{FileExtensions: []string{"jpg"}}, true},
		{"extension case insensitive", RecoveredFile{Extension: ".JPG"}, ScanConfig{FileExtensions: []string{"jpg"}}, true},
		{"extension mismatch", pdf, ScanConfig{FileExtensions: []string{".jpg"}}, false},
		{"type image", jpg, ScanConfig{FileTypes: []string{"image"}}, true},
		{"type document rejects image", jpg, ScanConfig{FileTypes: []string{"document"}}, false},
		{"multiple types", pdf, ScanConfig{FileTypes: []string{"image", "document"}}, true},
		{"both filters must pass", jpg, ScanConfig{FileTypes: []string{"image"}, FileExtensions: []string{".png"}}, false},
	}

	for _, tt := range tests {
		if got := MatchesFilters(tt.file, tt.cfg); got != tt.want {
			t.Errorf("%s: MatchesFilters = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	terminal := []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusPending, StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
