package affiliation

import (
	"time"

	"github.com/google/uuid"
)

// Affiliation status values.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusRevoked  = "REVOKED"
)

// Request direction: who initiated the affiliation request.
const (
	RequestDoctorToHospital = "DOCTOR_TO_HOSPITAL"
	RequestHospitalToDoctor = "HOSPITAL_TO_DOCTOR"
)

// Affiliation maps to the affiliation table. At most one PENDING or APPROVED
// row may exist per (doctor_id, hospital_id) pair; REJECTED and REVOKED rows
// are terminal history and do not block a fresh request.
type Affiliation struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	DoctorID               uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	HospitalID             uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	Status                 string     `db:"status" json:"status"`
	RequestType            string     `db:"request_type" json:"request_type"`
	ConsultationFee        *float64   `db:"consultation_fee" json:"consultation_fee,omitempty"`
	ConsultationRoomNumber *string    `db:"consultation_room_number" json:"consultation_room_number,omitempty"`
	Notes                  *string    `db:"notes" json:"notes,omitempty"`
	RejectionReason        *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	RespondedAt            *time.Time `db:"responded_at" json:"responded_at,omitempty"`
}

// Live reports whether the affiliation occupies the pair's one non-terminal
// position.
func (a *Affiliation) Live() bool {
	return a.Status == StatusPending || a.Status == StatusApproved
}

// InitiatorID returns the party that created the request.
func (a *Affiliation) InitiatorID() uuid.UUID {
	if a.RequestType == RequestHospitalToDoctor {
		return a.HospitalID
	}
	return a.DoctorID
}

// CounterpartyID returns the party the request was addressed to.
func (a *Affiliation) CounterpartyID() uuid.UUID {
	if a.RequestType == RequestHospitalToDoctor {
		return a.DoctorID
	}
	return a.HospitalID
}
