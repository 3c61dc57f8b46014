package model

import (
	"encoding/json"
	"time"
)

// Frequency is the recurrence unit of a calendar event.
type Frequency string

// Recurrence frequencies.
const (
	FrequencyNone    Frequency = "NONE"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// CalendarEvent is a possibly recurring calendar entry.
type CalendarEvent struct {
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
}

// Medication payload.
type Medication struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

// Task payload.
type Task struct {
	Title string     `json:"title"`
	DueAt *time.Time `json:"due_at,omitempty"`
	Done  bool       `json:"done"`
}

// Note payload.
type Note struct {
	Body string `json:"body"`
}

// HealthRecord payload.
type HealthRecord struct {
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EncodePayload marshals a typed payload for storage in a record.
func EncodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// DecodeCalendarEvent unmarshals a calendar_event payload.
func DecodeCalendarEvent(raw json.RawMessage) (CalendarEvent, error) {
	var ev CalendarEvent
	err := json.Unmarshal(raw, &ev)
	return ev, err
}
