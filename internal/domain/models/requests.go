package models

// AnalyzeRequest is the body of the surprise analysis endpoints. Numeric
// fields accept numbers or strings such as "1.2%" or "250K".
type AnalyzeRequest struct {
	Headline     string            `json:"headline" validate:"required,max=512"`
	EconomicData *RawEconomicData  `json:"economicData"`
	Tags         []string          `json:"tags" validate:"max=32"`
	Timestamp    string            `json:"timestamp"`
	Retry        bool              `json:"retry"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// RawEconomicData keeps the values as sent; the normalizer parses them.
type RawEconomicData struct {
	Actual   interface{} `json:"actual"`
	Forecast interface{} `json:"forecast"`
	Previous interface{} `json:"previous"`
}

type RateHistoryRequest struct {
	Bank string `query:"bank" validate:"required,max=16"`
	Days int    `query:"days" default:"30" validate:"gte=1,lte=365"`
}
