package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Story is a single travel-journal record owned by exactly one user.
type Story struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Title           string    `json:"title"`
	Story           string    `json:"story"`
	VisitedLocation Locations `json:"visitedLocation"`
	ImageURL        string    `json:"imageUrl"`
	VisitedDate     time.Time `json:"visitedDate"`
	IsFavourite     bool      `json:"isFavourite"`
	CreatedOn       time.Time `json:"createdOn"`
}

// Locations is the list of place labels attached to a story. In JSON it
// decodes from a single string or an array of strings and always encodes
// as an array.
type Locations []string

func (l Locations) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *Locations) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = Locations{single}.Clean()
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("visitedLocation must be a string or an array of strings")
	}
	*l = Locations(many).Clean()
	return nil
}

// Clean trims labels and drops empty ones.
func (l Locations) Clean() Locations {
	out := make(Locations, 0, len(l))
	for _, s := range l {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DateFromMillis converts an epoch-millisecond timestamp to the calendar
// date it falls on, in UTC.
func DateFromMillis(ms int64) time.Time {
	t := time.UnixMilli(ms).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
