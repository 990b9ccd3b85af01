package schedule

import (
	"context"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	// ReplaceForPair swaps the pair's full weekly template in one shot.
	ReplaceForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, entries []Entry) error
	ListForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) ([]Entry, error)
	DeleteForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) error
}

type HoursRepository interface {
	ReplaceForHospital(ctx context.Context, hospitalID uuid.UUID, open24x7 bool, days []DayHours) error
	// GetForHospital returns the stored configuration; a hospital with no
	// configuration at all is closed every day.
	GetForHospital(ctx context.Context, hospitalID uuid.UUID) (*HospitalHours, error)
}
