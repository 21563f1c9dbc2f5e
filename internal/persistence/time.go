package persistence

import "time"

var isoLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseISO8601 tries each layout the repository has ever written, so a
// file produced by an older build still loads cleanly.
func parseISO8601(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
