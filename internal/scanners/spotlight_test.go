package scanners

import (
	"testing"
	"time"

	"recoverd/internal/core"
)

func TestSpotlightSkip(t *testing.T) {
	cases := []struct {
		path string
		skip bool
	}{
		{"/Users/gus/Documents/report.pdf", false},
		{"/Users/gus/projects/app/node_modules/x/index.js", true},
		{"/Users/gus/projects/app/.git/config", true},
		{"/Users/gus/Library/.cache/blob", true},
		{"/Users/gus/.hidden-dir/file.txt", true},
		{"/Users/gus/Documents/.secret-notes.txt", false}, // hidden leaf files kept
	}
	for _, tc := range cases {
		if got := spotlightSkip(tc.path); got != tc.skip {
			t.Errorf("spotlightSkip(%q) = %v, want %v", tc.path, got, tc.skip)
		}
	}
}

func TestBuildSpotlightQuery(t *testing.T) {
	dr := &core.DateRange{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
	}
	got := buildSpotlightQuery(core.ScanConfig{DateRange: dr, FileExtensions: []string{".pdf", "docx"}})
	want := `(kMDItemContentModificationDate >= "$time.iso(2026-03-01T00:00:00)" && kMDItemContentModificationDate <= "$time.iso(2026-03-31T23:59:59)") && (kMDItemFSName == "*.pdf" || kMDItemFSName == "*.docx")`
	if got != want {
		t.Errorf("query = %q\nwant    %q", got, want)
	}

	got = buildSpotlightQuery(core.ScanConfig{})
	if got != `kMDItemContentModificationDate >= "$time.this_month(-6)"` {
		t.Errorf("default query = %q", got)
	}
}

func TestParseMdlsDate(t *testing.T) {
	cases := []struct {
		in   string
		want *time.Time
	}{
		{"2026-03-10 08:30:00 +0000", timePtr(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))},
		{"2026-03-10T08:30:00.000Z", timePtr(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))},
		{"(null)", nil},
		{"garbage", nil},
	}
	for _, tc := range cases {
		got := parseMdlsDate(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("parseMdlsDate(%q) = %v, want nil", tc.in, got)
		case tc.want != nil && (got == nil || !got.Equal(*tc.want)):
			t.Errorf("parseMdlsDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
