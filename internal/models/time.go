package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var flexLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FlexTime accepts RFC3339 as well as the shorter forms browser date inputs send.
// Zone-less values are read as UTC.
type FlexTime struct {
	time.Time
}

func ParseFlexTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range flexLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, InvalidInput(fmt.Sprintf("Invalid date: %q", s))
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return InvalidInput("Date must be a string.")
	}
	parsed, err := ParseFlexTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}

func trimSpace(s string) string { return strings.TrimSpace(s) }
