package capture

import (
	"encoding/json"
	"fmt"
	"time"
)

// zonelessLayouts are accepted when reading capture files written without a
// UTC offset, such as Python's datetime.isoformat() output.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a capture file time. It is written as RFC 3339 in UTC and read
// from RFC 3339 or from zone-less ISO-8601, which is taken as local time.
type Timestamp struct {
	time.Time
}

// At returns t as a Timestamp in UTC.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// ParseTimestamp parses s in any layout a capture file may contain.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return At(t), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return At(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON writes t as an RFC 3339 string in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts any layout ParseTimestamp does.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
