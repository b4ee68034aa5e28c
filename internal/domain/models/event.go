package models

import "time"

// Event is a scheduled economic calendar entry.
type Event struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Country string    `json:"country"`
	Impact  Impact    `json:"impact"`
	Date    time.Time `json:"date"`
	Source  string    `json:"source"`
}

// CalendarSnapshot is what the calendar family publishes, ordered by date.
type CalendarSnapshot struct {
	Events []Event `json:"events"`
}

// SignalEvent is published downstream when something notable happens.
type SignalEvent struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Family     string      `json:"family,omitempty"`
	CycleID    string      `json:"cycleId,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload,omitempty"`
}

const (
	SignalSnapshotSwapped = "snapshot.swapped"
	SignalNewsCritical    = "news.critical"
	SignalSurpriseScored  = "surprise.analyzed"
)
