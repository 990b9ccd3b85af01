package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment types.
const (
	TypeScheduled = "SCHEDULED"
	TypeWalkIn    = "WALK_IN"
	TypeFollowUp  = "FOLLOW_UP"
	TypeEmergency = "EMERGENCY"
)

// Appointment statuses.
const (
	StatusBooked         = "BOOKED"
	StatusCheckedIn      = "CHECKED_IN"
	StatusInConsultation = "IN_CONSULTATION"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
	StatusSkipped        = "SKIPPED"
)

// Payment statuses.
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
)

// legalTransitions is the full edge set of the appointment state machine.
// Terminal states have no outgoing edges.
var legalTransitions = map[string]map[string]bool{
	StatusBooked: {
		StatusCheckedIn: true,
		StatusCancelled: true,
		StatusSkipped:   true,
	},
	StatusCheckedIn: {
		StatusInConsultation: true,
		StatusCancelled:      true,
	},
	StatusInConsultation: {
		StatusCompleted: true,
	},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to string) bool {
	return legalTransitions[from][to]
}

// Terminal reports whether the status accepts no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// Appointment maps to the appointment table. SlotStart is nil for walk-ins
// and emergencies, which do not occupy a template slot. Clinical payloads are
// opaque text owned by the clinical record store; only presence matters here.
type Appointment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	HospitalID    uuid.UUID `db:"hospital_id" json:"hospital_id"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	VisitDate     string    `db:"visit_date" json:"visit_date"`
	SlotStart     *string   `db:"slot_start" json:"slot_start,omitempty"`
	TokenNumber   int       `db:"token_number" json:"token_number"`
	Type          string    `db:"type" json:"type"`
	Status        string    `db:"status" json:"status"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	PaymentMethod *string   `db:"payment_method" json:"payment_method,omitempty"`
	Vitals        *string   `db:"vitals" json:"vitals,omitempty"`
	Diagnosis     *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	Prescription  *string   `db:"prescription" json:"prescription,omitempty"`
	NextVisit     *string   `db:"next_visit" json:"next_visit,omitempty"`
	CancelReason  *string   `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
