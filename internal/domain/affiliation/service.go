package affiliation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperror"
)

// RevokeReason is recorded on every appointment cancelled by a revocation.
const RevokeReason = "affiliation revoked"

// CancelledAppointment identifies an appointment the revoke cascade cancelled,
// with enough context to notify the affected patient.
type CancelledAppointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	VisitDate string
}

// AppointmentCanceller cancels every future non-terminal appointment for a
// doctor/hospital pair. Implemented by the appointment service.
type AppointmentCanceller interface {
	CancelFutureForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, reason string) ([]CancelledAppointment, error)
}

// TemplateDeleter removes the schedule template rows for a pair. Implemented
// by the schedule service.
type TemplateDeleter interface {
	DeleteForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) error
}

// TxRunner runs a function inside a single store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers fire-and-forget notices. Failures are the notifier's
// problem, never the caller's.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, templateID string, data map[string]string)
}

type Service struct {
	repo         Repository
	tx           TxRunner
	appointments AppointmentCanceller
	templates    TemplateDeleter
	notifier     Notifier
}

func NewService(repo Repository, tx TxRunner, appts AppointmentCanceller, tpl TemplateDeleter, n Notifier) *Service {
	return &Service{repo: repo, tx: tx, appointments: appts, templates: tpl, notifier: n}
}

type RequestInput struct {
	InitiatorRole string `json:"-"`
	DoctorID      uuid.UUID
	HospitalID    uuid.UUID
	Notes         *string
}

// Request creates a PENDING affiliation. At most one PENDING or APPROVED
// affiliation may exist per pair; a duplicate request is a conflict.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Affiliation, error) {
	if in.DoctorID == uuid.Nil {
		return nil, apperror.Validation("doctor_id is required")
	}
	if in.HospitalID == uuid.Nil {
		return nil, apperror.Validation("hospital_id is required")
	}

	requestType := RequestHospitalToDoctor
	if in.InitiatorRole == "doctor" {
		requestType = RequestDoctorToHospital
	}

	if live, err := s.repo.GetLiveByPair(ctx, in.DoctorID, in.HospitalID); err == nil {
		return nil, apperror.Conflict("affiliation %s is already %s for this pair", live.ID, live.Status)
	} else if apperror.KindOf(err) != apperror.KindNotFound {
		return nil, err
	}

	a := &Affiliation{
		DoctorID:    in.DoctorID,
		HospitalID:  in.HospitalID,
		Status:      StatusPending,
		RequestType: requestType,
		Notes:       in.Notes,
	}
	// The partial unique index on live pairs closes the check-then-create race.
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, a.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Affiliation, error) {
	return s.repo.GetByID(ctx, id)
}

type RespondInput struct {
	Decision               string   `json:"action"`
	RejectionReason        *string  `json:"rejection_reason,omitempty"`
	ConsultationFee        *float64 `json:"consultation_fee,omitempty"`
	ConsultationRoomNumber *string  `json:"consultation_room_number,omitempty"`
}

// Respond accepts or rejects a PENDING affiliation.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, in RespondInput) (*Affiliation, error) {
	if in.Decision != "accept" && in.Decision != "reject" {
		return nil, apperror.Validation("action must be accept or reject")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, apperror.InvalidState("affiliation %s is %s, only PENDING requests can be responded to", id, a.Status)
	}

	now := time.Now()
	a.RespondedAt = &now
	if in.Decision == "accept" {
		a.Status = StatusApproved
		if in.ConsultationFee != nil {
			a.ConsultationFee = in.ConsultationFee
		}
		if in.ConsultationRoomNumber != nil {
			a.ConsultationRoomNumber = in.ConsultationRoomNumber
		}
	} else {
		a.Status = StatusRejected
		a.RejectionReason = in.RejectionReason
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	decision := "approved"
	if a.Status == StatusRejected {
		decision = "rejected"
	}
	s.notifier.Notify(ctx, a.InitiatorID(), "affiliation-responded", map[string]string{
		"decision":     decision,
		"counterparty": a.CounterpartyID().String(),
	})

	return a, nil
}

// Cancel deletes a PENDING request. Only the initiating party may cancel.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return apperror.InvalidState("affiliation %s is %s, only PENDING requests can be cancelled", id, a.Status)
	}
	if a.InitiatorID() != actorID {
		return apperror.Forbidden("only the requesting party may cancel affiliation %s", id)
	}
	return s.repo.Delete(ctx, id)
}

// Revoke ends an APPROVED affiliation. The status change, the cancellation of
// every future non-terminal appointment for the pair, and the removal of the
// pair's schedule template commit as one transaction. Patient notices go out
// only after the commit, best-effort.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (int, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if a.Status != StatusApproved {
		return 0, apperror.InvalidState("affiliation %s is %s, only APPROVED affiliations can be revoked", id, a.Status)
	}

	var cancelled []CancelledAppointment
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a.Status = StatusRevoked
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		cancelled, err = s.appointments.CancelFutureForPair(ctx, a.DoctorID, a.HospitalID, RevokeReason)
		if err != nil {
			return err
		}
		return s.templates.DeleteForPair(ctx, a.DoctorID, a.HospitalID)
	})
	if err != nil {
		return 0, err
	}

	for _, c := range cancelled {
		s.notifier.Notify(ctx, c.PatientID, "appointment-cancelled", map[string]string{
			"visit_date":  c.VisitDate,
			"doctor_name": a.DoctorID.String(),
			"reason":      RevokeReason,
		})
	}

	return len(cancelled), nil
}

// IsApproved reports whether the pair currently holds an APPROVED affiliation.
func (s *Service) IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error) {
	a, err := s.repo.GetLiveByPair(ctx, doctorID, hospitalID)
	if apperror.KindOf(err) == apperror.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.Status == StatusApproved, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, status, limit, offset)
}

func (s *Service) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error) {
	return s.repo.ListByHospital(ctx, hospitalID, status, limit, offset)
}
