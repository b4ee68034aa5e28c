package service

import (
	"context"

	"MarketPulse/internal/domain/models"
)

// SurpriseClassifier asks an AI model whether an economic print beat or
// missed expectations. Errors are *models.SourceError with
// KindAIServiceError or KindTimeout.
type SurpriseClassifier interface {
	Classify(ctx context.Context, item models.NewsItem) (models.SurpriseAnalysis, error)
	Name() string
}
