package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the appointment. The store's partial unique index on
	// (doctor_id, visit_date, slot_start) over non-cancelled rows makes this
	// the atomic reserve step; a lost race surfaces as a conflict error.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// NextToken atomically increments and returns the per-hospital-per-day
	// token counter. Run inside the same transaction as the insert so a failed
	// booking rolls the counter back and the sequence stays gapless.
	NextToken(ctx context.Context, hospitalID uuid.UUID, date string) (int, error)
	// TakenSlots returns the slot starts backing non-cancelled appointments
	// for the doctor on the date, across all hospitals.
	TakenSlots(ctx context.Context, doctorID uuid.UUID, date string) (map[string]bool, error)
	ListFutureForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, after time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListQueue(ctx context.Context, hospitalID uuid.UUID, date string) ([]*Appointment, error)
	ListOverdueBooked(ctx context.Context, before time.Time) ([]*Appointment, error)
}

type WalkInFlagRepository interface {
	Set(ctx context.Context, doctorID uuid.UUID, accepting bool) error
	// Get returns the doctor's walk-in flag; a doctor with no stored flag is
	// accepting.
	Get(ctx context.Context, doctorID uuid.UUID) (bool, error)
}
