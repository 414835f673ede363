package contingency

import (
	"context"
	"strings"

	"fundflow/pkg/validate"
	"fundflow/timeline"
)

// FormRepository defines the data access required by the service.
type FormRepository interface {
	File(ctx context.Context, params FileParams) (Form, error)
	Decide(ctx context.Context, actorID, formID string, next Status) (Form, error)
	ListForTimeline(ctx context.Context, timelineID string) ([]Form, error)
}

// Service exposes the contingency request queue: startups file forms, the
// funding agency decides them. Acceptance never moves money; payment is a
// separate explicit action.
type Service struct {
	repo FormRepository
}

// NewService builds a Service using the provided repository.
func NewService(repo FormRepository) *Service {
	return &Service{repo: repo}
}

// File validates and appends a new pending form.
func (s *Service) File(ctx context.Context, params FileParams) (Form, error) {
	if params.TimelineID == "" {
		return Form{}, validate.Errorf("timeline_id", "is required")
	}
	if params.ActorID == "" {
		return Form{}, validate.Errorf("actor_id", "is required")
	}
	if !timeline.ValidStageKey(params.Stage) {
		return Form{}, ErrStageNotFound
	}
	if strings.TrimSpace(params.Description) == "" {
		return Form{}, validate.Errorf("description", "is required")
	}
	if params.Amount <= 0 {
		return Form{}, validate.Errorf("funding_amount", "must be greater than zero")
	}

	return s.repo.File(ctx, params)
}

// Accept marks a pending form accepted.
func (s *Service) Accept(ctx context.Context, actorID, formID string) (Form, error) {
	if formID == "" {
		return Form{}, validate.Errorf("form_id", "is required")
	}
	return s.repo.Decide(ctx, actorID, formID, StatusAccepted)
}

// Reject marks a pending form rejected.
func (s *Service) Reject(ctx context.Context, actorID, formID string) (Form, error) {
	if formID == "" {
		return Form{}, validate.Errorf("form_id", "is required")
	}
	return s.repo.Decide(ctx, actorID, formID, StatusRejected)
}

// ListForTimeline returns the queue for a timeline.
func (s *Service) ListForTimeline(ctx context.Context, timelineID string) ([]Form, error) {
	return s.repo.ListForTimeline(ctx, timelineID)
}
