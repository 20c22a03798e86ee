package scanners

import (
	"encoding/binary"
	"math"
	"strings"
	"time"

	"howett.net/plist"
)

// Finder records trash metadata in extended attributes on each trashed item.
const (
	xattrTrashOrigPath     = "com.apple.trash.origpath"
	xattrTrashDeletionDate = "com.apple.trash.deletiondate"
)

// appleEpoch is the NSDate reference date.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// DecodeDeletionDate parses the raw deletiondate xattr payload. The value is
// either a property list holding a date, or an 8-byte big-endian float64 of
// seconds since 2001-01-01 UTC. Returns nil when neither encoding matches.
func DecodeDeletionDate(raw []byte) *time.Time {
	if len(raw) == 0 {
		return nil
	}

	var dt time.Time
	if _, err := plist.Unmarshal(raw, &dt); err == nil && !dt.IsZero() {
		utc := dt.UTC()
		return &utc
	}

	if len(raw) == 8 {
		secs := math.Float64frombits(binary.BigEndian.Uint64(raw))
		if !math.IsNaN(secs) && !math.IsInf(secs, 0) {
			t := appleEpoch.Add(time.Duration(secs * float64(time.Second)))
			return &t
		}
	}
	return nil
}

// DecodeOrigPath parses the origpath xattr payload into a clean path string.
func DecodeOrigPath(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00")
}
