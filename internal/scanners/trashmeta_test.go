package scanners

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestDecodeDeletionDate_Plist(t *testing.T) {
	// XML property list with a single date payload, as Finder writes it.
	raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<date>2024-03-01T12:30:00Z</date>
</plist>`)

	got := DecodeDeletionDate(raw)
	if got == nil {
		t.Fatal("expected a decoded date, got nil")
	}
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("decoded %v, want %v", got, want)
	}
}

func TestDecodeDeletionDate_BigEndianFloat(t *testing.T) {
	// 8-byte big-endian float64 of seconds since 2001-01-01 UTC.
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	secs := want.Sub(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)).Seconds()

	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, math.Float64bits(secs))

	got := DecodeDeletionDate(raw)
	if got == nil {
		t.Fatal("expected a decoded date, got nil")
	}
	if !got.Equal(want) {
		t.Errorf("decoded %v, want %v", got, want)
	}
}

func TestDecodeDeletionDate_Garbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("not a plist"),
		{0x01, 0x02, 0x03}, // wrong length for the float encoding
	}
	for _, raw := range cases {
		if got := DecodeDeletionDate(raw); got != nil {
			t.Errorf("DecodeDeletionDate(%v) = %v, want nil", raw, got)
		}
	}
}

func TestDecodeOrigPath(t *testing.T) {
	raw := append([]byte("/Users/alice/Documents/report.pdf"), 0x00, 0x00)
	if got := DecodeOrigPath(raw); got != "/Users/alice/Documents/report.pdf" {
		t.Errorf("DecodeOrigPath = %q", got)
	}
}
