package models

import "time"

// Currency is an ISO 4217 code of a tracked major currency.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CHF Currency = "CHF"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	NZD Currency = "NZD"
)

// TrackedCurrencies is the canonical order. Ties in the strength ranking
// keep this order.
var TrackedCurrencies = []Currency{USD, EUR, GBP, JPY, CHF, CAD, AUD, NZD}

var currencyNames = map[Currency]string{
	USD: "US Dollar",
	EUR: "Euro",
	GBP: "British Pound",
	JPY: "Japanese Yen",
	CHF: "Swiss Franc",
	CAD: "Canadian Dollar",
	AUD: "Australian Dollar",
	NZD: "New Zealand Dollar",
}

// marketPriority decides which side of a pair is the base, following
// market convention (EUR > GBP > AUD > NZD > USD > CAD > CHF > JPY).
var marketPriority = map[Currency]int{
	EUR: 0, GBP: 1, AUD: 2, NZD: 3, USD: 4, CAD: 5, CHF: 6, JPY: 7,
}

// DisplayName returns the human name of the currency.
func (c Currency) DisplayName() string {
	if n, ok := currencyNames[c]; ok {
		return n
	}
	return string(c)
}

// IsTracked reports whether c is one of the eight majors.
func (c Currency) IsTracked() bool {
	_, ok := currencyNames[c]
	return ok
}

// Pair is a currency pair, e.g. EUR/USD.
type Pair struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

func (p Pair) String() string {
	return string(p.Base) + string(p.Quote)
}

// TrackedPairs returns the 28 pairs over the tracked currencies, each in
// market-convention orientation.
func TrackedPairs() []Pair {
	pairs := make([]Pair, 0, 28)
	for i, a := range TrackedCurrencies {
		for _, b := range TrackedCurrencies[i+1:] {
			if marketPriority[a] < marketPriority[b] {
				pairs = append(pairs, Pair{Base: a, Quote: b})
			} else {
				pairs = append(pairs, Pair{Base: b, Quote: a})
			}
		}
	}
	return pairs
}

// IsTrackedPair reports whether p is one of the 28 pairs in its
// conventional orientation.
func IsTrackedPair(p Pair) bool {
	if !p.Base.IsTracked() || !p.Quote.IsTracked() || p.Base == p.Quote {
		return false
	}
	return marketPriority[p.Base] < marketPriority[p.Quote]
}

// Quote is the percent change of one pair over the source window.
type Quote struct {
	Pair          Pair      `json:"pair"`
	Timestamp     time.Time `json:"timestamp"`
	PercentChange float64   `json:"percentChange"`
}

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// CurrencyStrengthEntry is one row of the strength ranking.
type CurrencyStrengthEntry struct {
	CurrencyCode  Currency `json:"currencyCode"`
	DisplayName   string   `json:"displayName"`
	StrengthValue float64  `json:"strengthValue"`
	Momentum      float64  `json:"momentum"`
	Trend         Trend    `json:"trend"`
}

// CurrencyStrengthSnapshot is what the currency family publishes.
type CurrencyStrengthSnapshot struct {
	Entries []CurrencyStrengthEntry `json:"entries"`
	// SourceUpdatedAt is when the underlying quotes were fetched.
	SourceUpdatedAt time.Time `json:"sourceUpdatedAt"`
	// FilledPairs lists pairs served from last-known-good quotes.
	FilledPairs []string `json:"filledPairs,omitempty"`
}
