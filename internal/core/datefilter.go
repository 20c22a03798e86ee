package core

import "time"

// BestDate picks the most relevant timestamp from file metadata, in waterfall
// order: deleted date, then modified, created, accessed. Returns nil when the
// metadata carries no dates at all.
func BestDate(meta FileMetadata) *time.Time {
	for _, dt := range []*time.Time{meta.DeletedDate, meta.Modified, meta.Created, meta.Accessed} {
		if dt != nil {
			return dt
		}
	}
	return nil
}

// MatchesDateRange reports whether a file's best date falls within the range,
// bounds inclusive. Files with no date information are included (conservative:
// better to show a candidate than to hide it).
func MatchesDateRange(f RecoveredFile, dr *DateRange) bool {
	if dr == nil {
		return true
	}
	best := BestDate(f.Metadata)
	if best == nil {
		return true
	}
	t := *best
	return !t.Before(dr.Start) && !t.After(dr.End)
}
