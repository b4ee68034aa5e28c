package models

import "time"

type Verdict string

const (
	VerdictBullishSurprise Verdict = "BullishSurprise"
	VerdictBearishSurprise Verdict = "BearishSurprise"
	VerdictNeutral         Verdict = "Neutral"
	VerdictError           Verdict = "Error"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictBullishSurprise, VerdictBearishSurprise, VerdictNeutral, VerdictError:
		return true
	}
	return false
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

type SurpriseAnalysis struct {
	Verdict    Verdict    `json:"verdict"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	KeyFactors []string   `json:"keyFactors"`
	AnalyzedAt time.Time  `json:"analyzedAt"`
	Cached     bool       `json:"cached"`
}

// AnalysisState is the lifecycle of one identity's analysis.
type AnalysisState string

const (
	StateUnanalyzed AnalysisState = "unanalyzed"
	StateAnalyzing  AnalysisState = "analyzing"
	StateAnalyzed   AnalysisState = "analyzed"
	StateFailed     AnalysisState = "failed"
)
