package timetravel

import (
	"regexp"
	"strconv"
	"time"

	pb "go.litevfs.dev/core/protocol"
)

// Absolute layouts accepted by ParseTimeSpec, most specific first. Layouts
// without a zone are interpreted as UTC.
var timeSpecLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var relativeSpecRe = regexp.MustCompile(`^(\d+) (second|minute|hour|day|week)s? ago$`)

// ParseTimeSpec parses a point-in-time specification: an absolute timestamp
// ("2026-08-23T10:00:00Z", "2026-08-23 10:00:00", "2026-08-23") or a
// relative expression ("90 seconds ago", "2 hours ago", "1 week ago")
// evaluated against |now|.
func ParseTimeSpec(spec string, now time.Time) (time.Time, error) {
	for _, layout := range timeSpecLayouts {
		if t, err := time.ParseInLocation(layout, spec, time.UTC); err == nil {
			return t, nil
		}
	}

	if m := relativeSpecRe.FindStringSubmatch(spec); m != nil {
		var n, err = strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, pb.NewValidationError("time spec %q: %s", spec, err)
		}
		var unit time.Duration
		switch m[2] {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), nil
	}

	return time.Time{}, pb.NewValidationError(
		"cannot parse time spec %q (want an RFC3339 timestamp, a date, or eg \"90 seconds ago\")", spec)
}
