package out

import (
	"context"

	"triage_server/core/domain"
)

// ClassificationService sends a prompt to a generative model and returns its
// text untouched. Non-success responses surface as apperr TRANSPORT_ERROR.
type ClassificationService interface {
	Classify(ctx context.Context, prompt string) (*domain.RawResponse, error)
	Name() string
}
