// Package timex holds time helpers shared by config loading and display.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Duration wraps time.Duration so JSON config files may use either a Go
// duration string ("90s", "15m") or an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// DisplayLayout is the layout used for human-facing timestamps.
const DisplayLayout = "2006-01-02 15:04:05 MST"

// Format renders t in loc using DisplayLayout. A nil t yields "".
func Format(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}

// ParseExpiry parses an ISO-8601 expiry as sent by upload forms. It accepts
// RFC 3339 with or without fractional seconds, and the zone-less forms
// "2006-01-02T15:04:05" and "2006-01-02T15:04" (HTML datetime-local), which
// are interpreted in loc.
func ParseExpiry(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed expiry %q", raw)
}
