package affiliation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Affiliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Affiliation, error)
	// GetLiveByPair returns the PENDING or APPROVED affiliation for the pair,
	// or a not-found error when no live row exists.
	GetLiveByPair(ctx context.Context, doctorID, hospitalID uuid.UUID) (*Affiliation, error)
	Update(ctx context.Context, a *Affiliation) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error)
}
