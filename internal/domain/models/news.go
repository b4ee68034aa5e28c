package models

import (
	"fmt"
	"time"
)

// NewsIdentity identifies a news item: exact headline plus timestamp.
// A nil timestamp is represented by the zero time.
type NewsIdentity struct {
	Headline  string
	Timestamp time.Time
}

func (id NewsIdentity) String() string {
	if id.Timestamp.IsZero() {
		return id.Headline + " @ -"
	}
	return fmt.Sprintf("%s @ %s", id.Headline, id.Timestamp.UTC().Format(time.RFC3339))
}

// EconomicData holds the numeric print attached to a headline. Each field
// is nil when the source did not publish it or it failed to parse.
type EconomicData struct {
	Actual   *float64 `json:"actual"`
	Forecast *float64 `json:"forecast"`
	Previous *float64 `json:"previous"`
	// Unit is the suffix seen on the raw values ("%", "K", "M", "B").
	Unit string `json:"unit,omitempty"`
}

// HasSurpriseInputs reports whether both actual and forecast are present.
func (e *EconomicData) HasSurpriseInputs() bool {
	return e != nil && e.Actual != nil && e.Forecast != nil
}

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ParseImpact maps free-form impact markers to an Impact.
func ParseImpact(s string) Impact {
	switch s {
	case "high", "High", "HIGH", "3", "red":
		return ImpactHigh
	case "medium", "Medium", "MEDIUM", "moderate", "2", "orange":
		return ImpactMedium
	case "low", "Low", "LOW", "1", "yellow":
		return ImpactLow
	}
	return ""
}

// Rank orders impacts; unknown is below low.
func (i Impact) Rank() int {
	switch i {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	}
	return 0
}

type NewsItem struct {
	Headline     string        `json:"headline"`
	Timestamp    *time.Time    `json:"timestamp"`
	EconomicData *EconomicData `json:"economicData"`
	Tags         []string      `json:"tags"`
	IsCritical   bool          `json:"isCritical"`
	FirstSeenAt  time.Time     `json:"firstSeenAt"`
	Source       string        `json:"source,omitempty"`
	Impact       Impact        `json:"impact,omitempty"`
}

// Identity returns the dedup key of the item.
func (n NewsItem) Identity() NewsIdentity {
	id := NewsIdentity{Headline: n.Headline}
	if n.Timestamp != nil {
		id.Timestamp = n.Timestamp.UTC()
	}
	return id
}

// Clone returns a deep copy safe to hand to readers.
func (n NewsItem) Clone() NewsItem {
	c := n
	if n.Timestamp != nil {
		ts := *n.Timestamp
		c.Timestamp = &ts
	}
	if n.EconomicData != nil {
		ed := *n.EconomicData
		c.EconomicData = &ed
	}
	c.Tags = append([]string(nil), n.Tags...)
	return c
}

// NewsSnapshot is what the news family publishes.
type NewsSnapshot struct {
	Items []NewsItem `json:"items"`
	// Dropped is how many raw records the last poll discarded.
	Dropped int `json:"dropped"`
}

var unitScale = map[string]float64{"K": 1e3, "M": 1e6, "B": 1e9, "T": 1e12}

// UnitScale returns the multiplier of a magnitude suffix (1 for "%" or none).
func UnitScale(unit string) float64 {
	if s, ok := unitScale[unit]; ok {
		return s
	}
	return 1
}
