package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindTimeout             ErrorKind = "Timeout"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindParseError          ErrorKind = "ParseError"
	KindMissingData         ErrorKind = "MissingData"
	KindAIServiceError      ErrorKind = "AIServiceError"
	KindUnavailable         ErrorKind = "Unavailable"
	KindUnknown             ErrorKind = "Unknown"
)

// SourceError is the typed failure of a connector, the aggregation engine
// or the AI classifier.
type SourceError struct {
	Kind   ErrorKind
	Source string
	Reason string
	Err    error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError builds a SourceError.
func NewSourceError(kind ErrorKind, source, reason string, err error) *SourceError {
	return &SourceError{Kind: kind, Source: source, Reason: reason, Err: err}
}

// KindOf extracts the ErrorKind from anywhere in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// UserMessage is the banner text shown for a failed family.
func UserMessage(family string, kind ErrorKind) string {
	switch {
	case family == "news" && kind != "":
		return "News source temporarily unavailable"
	case kind != "":
		return "Data may be outdated"
	}
	return ""
}
