package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	smetrics "MarketPulse/internal/service/metrics"
)

const systemPrompt = `You are a macro economist classifying economic data releases.
Compare the actual print with the forecast and decide whether the surprise is
bullish, bearish or neutral for the currency of the releasing country.
Answer with a single JSON object and nothing else:
{"verdict":"BullishSurprise|BearishSurprise|Neutral","confidence":"High|Medium|Low","reasoning":"<two sentences>","keyFactors":["<factor>", "..."]}`

// BuildPrompt renders the user prompt for one news item.
func BuildPrompt(item models.NewsItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Headline: %s\n", item.Headline)
	if item.Timestamp != nil {
		fmt.Fprintf(&b, "Released: %s\n", item.Timestamp.UTC().Format(time.RFC3339))
	}
	if ed := item.EconomicData; ed != nil {
		fmt.Fprintf(&b, "Actual: %s\n", formatValue(ed.Actual, ed.Unit))
		fmt.Fprintf(&b, "Forecast: %s\n", formatValue(ed.Forecast, ed.Unit))
		fmt.Fprintf(&b, "Previous: %s\n", formatValue(ed.Previous, ed.Unit))
	}
	if len(item.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(item.Tags, ", "))
	}
	return b.String()
}

func formatValue(v *float64, unit string) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v/models.UnitScale(unit), 'f', -1, 64) + unit
}

type verdictPayload struct {
	Verdict    string   `json:"verdict"`
	Confidence string   `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"keyFactors"`
}

// ParseVerdict decodes the model answer. Code fences and text around the
// JSON object are tolerated; an unknown verdict is an error, an unknown
// confidence degrades to Low.
func ParseVerdict(text string) (models.SurpriseAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.SurpriseAnalysis{}, errors.New("no JSON object in response")
	}

	var p verdictPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return models.SurpriseAnalysis{}, fmt.Errorf("decode verdict: %w", err)
	}

	verdict := models.Verdict(p.Verdict)
	if !verdict.Valid() || verdict == models.VerdictError {
		return models.SurpriseAnalysis{}, fmt.Errorf("unknown verdict %q", p.Verdict)
	}
	confidence := models.Confidence(p.Confidence)
	if !confidence.Valid() {
		confidence = models.ConfidenceLow
	}
	if p.KeyFactors == nil {
		p.KeyFactors = []string{}
	}

	return models.SurpriseAnalysis{
		Verdict:    verdict,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(p.Reasoning),
		KeyFactors: p.KeyFactors,
	}, nil
}

// classifyErr maps a provider failure to a SourceError.
func classifyErr(ctx context.Context, provider string, timeout time.Duration, err error) error {
	smetrics.ClassifierErrors.WithLabelValues(provider).Inc()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewSourceError(models.KindTimeout, provider, fmt.Sprintf("AI service did not answer within %s", timeout), err)
	}
	return models.NewSourceError(models.KindAIServiceError, provider, "AI service error", err)
}
