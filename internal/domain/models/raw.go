package models

import "encoding/json"

// Raw shapes as returned by the source connectors, before normalization.

type RawNewsItem struct {
	Headline string
	Time     string
	Actual   string
	Forecast string
	Previous string
	Tags     []string
	Impact   string
	Source   string
}

type RawQuote struct {
	Symbol        string      `json:"symbol"`
	Base          string      `json:"base"`
	Quote         string      `json:"quote"`
	Timestamp     string      `json:"timestamp"`
	ChangePercent json.Number `json:"changePercent"`
}

type RawMeeting struct {
	Date        string   `json:"date"`
	Hike        float64  `json:"hike"`
	Hold        float64  `json:"hold"`
	Cut         float64  `json:"cut"`
	ImpliedRate *float64 `json:"impliedRate"`
}

type RawBank struct {
	Bank        string       `json:"bank"`
	Currency    string       `json:"currency"`
	CurrentRate float64      `json:"currentRate"`
	StepBps     int          `json:"stepBps"`
	Meetings    []RawMeeting `json:"meetings"`
}

type RawRateFeed struct {
	UpdatedAt string    `json:"updatedAt"`
	Banks     []RawBank `json:"banks"`
}

type RawEvent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Country string `json:"country"`
	Impact  string `json:"impact"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}
