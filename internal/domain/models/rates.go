package models

import "time"

type RateMove string

const (
	MoveHike RateMove = "hike"
	MoveHold RateMove = "hold"
	MoveCut  RateMove = "cut"
)

type Probabilities struct {
	Hike float64 `json:"hike"`
	Hold float64 `json:"hold"`
	Cut  float64 `json:"cut"`
}

func (p Probabilities) Sum() float64 {
	return p.Hike + p.Hold + p.Cut
}

type TimelinePoint struct {
	Date         time.Time `json:"date"`
	ExpectedRate float64   `json:"expectedRate"`
}

// RateSnapshotRef is a historical point used for week-over-week display.
type RateSnapshotRef struct {
	BankCode         string        `json:"bankCode"`
	CurrentRate      float64       `json:"currentRate"`
	Probabilities    Probabilities `json:"probabilities"`
	NextExpectedMove RateMove      `json:"nextExpectedMove"`
	RecordedAt       time.Time     `json:"recordedAt"`
}

type RateProbabilitySnapshot struct {
	BankCode         string           `json:"bankCode"`
	CurrencyCode     Currency         `json:"currencyCode"`
	CurrentRate      float64          `json:"currentRate"`
	Probabilities    Probabilities    `json:"probabilities"`
	NextExpectedMove RateMove         `json:"nextExpectedMove"`
	ExpectedChange   int              `json:"expectedChange"`
	NextMeetingDate  *time.Time       `json:"nextMeetingDate"`
	Timeline         []TimelinePoint  `json:"timeline"`
	WeekAgoSnapshot  *RateSnapshotRef `json:"weekAgoSnapshot,omitempty"`
	LastUpdated      time.Time        `json:"lastUpdated"`
	IsAvailable      bool             `json:"isAvailable"`
	// IsStale is derived when serving; it is never persisted as true.
	IsStale bool `json:"isStale"`
}

// Ref reduces a snapshot to its history point.
func (s *RateProbabilitySnapshot) Ref() RateSnapshotRef {
	return RateSnapshotRef{
		BankCode:         s.BankCode,
		CurrentRate:      s.CurrentRate,
		Probabilities:    s.Probabilities,
		NextExpectedMove: s.NextExpectedMove,
		RecordedAt:       s.LastUpdated,
	}
}

// RatesSnapshot is what the rates family publishes, keyed by bank code.
type RatesSnapshot struct {
	Banks map[string]RateProbabilitySnapshot `json:"banks"`
}
