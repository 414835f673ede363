package account

import "context"

// ProfileReader abstracts repository operations for the service.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	ListByRole(ctx context.Context, role string, limit int) ([]Profile, error)
}

// Service exposes business-level profile operations.
type Service struct {
	repo ProfileReader
}

// NewService builds a Service using the provided repository.
func NewService(repo ProfileReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the profile for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByRole returns up to limit profiles holding the given role.
func (s *Service) ListByRole(ctx context.Context, role string, limit int) ([]Profile, error) {
	return s.repo.ListByRole(ctx, role, limit)
}
