package appointment

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/domain/schedule"
	"github.com/medisched/medisched/internal/platform/apperror"
)

// AffiliationChecker gates booking on an APPROVED doctor/hospital pair.
// Implemented by the affiliation service.
type AffiliationChecker interface {
	IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
}

// SlotResolver produces the bookable slot starts for a pair and date.
// Implemented by the schedule service.
type SlotResolver interface {
	ResolveSlots(ctx context.Context, doctorID, hospitalID uuid.UUID, date string) ([]string, error)
}

// TxRunner runs a function inside a single store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers fire-and-forget notices.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, templateID string, data map[string]string)
}

type Service struct {
	repo         Repository
	flags        WalkInFlagRepository
	affiliations AffiliationChecker
	resolver     SlotResolver
	tx           TxRunner
	notifier     Notifier
	now          func() time.Time
}

func NewService(repo Repository, flags WalkInFlagRepository, aff AffiliationChecker, res SlotResolver, tx TxRunner, n Notifier) *Service {
	return &Service{
		repo:         repo,
		flags:        flags,
		affiliations: aff,
		resolver:     res,
		tx:           tx,
		notifier:     n,
		now:          time.Now,
	}
}

// AvailableSlots is the resolved template minus the doctor's taken slots on
// that date across all hospitals.
func (s *Service) AvailableSlots(ctx context.Context, doctorID, hospitalID uuid.UUID, date string) ([]string, error) {
	resolved, err := s.resolver.ResolveSlots(ctx, doctorID, hospitalID, date)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.TakenSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(resolved))
	for _, slot := range resolved {
		if !taken[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

type BookInput struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	HospitalID uuid.UUID
	Date       string
	Slot       string
	Type       string
}

// Book reserves a template slot and creates a BOOKED appointment. The token
// increment, the slot reservation, and the insert commit as one transaction,
// so a lost slot race rolls the token back and the sequence stays gapless.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperror.Validation("patient_id is required")
	}
	if in.Type == "" {
		in.Type = TypeScheduled
	}
	if in.Type != TypeScheduled && in.Type != TypeFollowUp {
		return nil, apperror.Validation("type must be SCHEDULED or FOLLOW_UP for slot bookings")
	}
	day, err := schedule.ParseDate(in.Date)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	slotMinutes, err := schedule.ParseClock(in.Slot)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}

	approved, err := s.affiliations.IsApproved(ctx, in.DoctorID, in.HospitalID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, apperror.Forbidden("doctor %s has no approved affiliation at hospital %s", in.DoctorID, in.HospitalID)
	}

	resolved, err := s.resolver.ResolveSlots(ctx, in.DoctorID, in.HospitalID, in.Date)
	if err != nil {
		return nil, err
	}
	if !contains(resolved, in.Slot) {
		return nil, apperror.InvalidState("slot %s is not bookable for this doctor on %s", in.Slot, in.Date)
	}

	slot := in.Slot
	a := &Appointment{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		HospitalID:    in.HospitalID,
		ScheduledTime: atClock(day, slotMinutes),
		VisitDate:     in.Date,
		SlotStart:     &slot,
		Type:          in.Type,
		Status:        StatusBooked,
		PaymentStatus: PaymentPending,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		token, err := s.repo.NextToken(ctx, in.HospitalID, in.Date)
		if err != nil {
			return err
		}
		a.TokenNumber = token
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, a.PatientID, "appointment-booked", map[string]string{
		"doctor_name": a.DoctorID.String(),
		"visit_date":  a.VisitDate,
		"slot":        in.Slot,
		"token":       strconv.Itoa(a.TokenNumber),
	})
	return a, nil
}

type WalkInInput struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	HospitalID uuid.UUID
	Emergency  bool
}

// RegisterWalkIn creates an appointment at the registration instant without
// consuming a template slot. Emergencies bypass the doctor's walk-in flag.
func (s *Service) RegisterWalkIn(ctx context.Context, in WalkInInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperror.Validation("patient_id is required")
	}

	approved, err := s.affiliations.IsApproved(ctx, in.DoctorID, in.HospitalID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, apperror.Forbidden("doctor %s has no approved affiliation at hospital %s", in.DoctorID, in.HospitalID)
	}

	if !in.Emergency {
		accepting, err := s.flags.Get(ctx, in.DoctorID)
		if err != nil {
			return nil, err
		}
		if !accepting {
			return nil, apperror.InvalidState("doctor %s is not accepting walk-ins", in.DoctorID)
		}
	}

	now := s.now()
	typ := TypeWalkIn
	if in.Emergency {
		typ = TypeEmergency
	}
	a := &Appointment{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		HospitalID:    in.HospitalID,
		ScheduledTime: now,
		VisitDate:     now.Format(schedule.DateLayout),
		Type:          typ,
		Status:        StatusBooked,
		PaymentStatus: PaymentPending,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		token, err := s.repo.NextToken(ctx, in.HospitalID, a.VisitDate)
		if err != nil {
			return err
		}
		a.TokenNumber = token
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Transition moves an appointment along a legal state-machine edge.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, newStatus string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, newStatus) {
		return nil, apperror.InvalidTransition("cannot transition appointment from %s to %s", a.Status, newStatus)
	}
	a.Status = newStatus
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RecordVitals stores vitals. On a BOOKED appointment it also checks the
// patient in, as a single update.
func (s *Service) RecordVitals(ctx context.Context, id uuid.UUID, vitals string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case StatusBooked:
		a.Status = StatusCheckedIn
	case StatusCheckedIn:
		// vitals update only
	default:
		return nil, apperror.InvalidState("vitals can only be recorded while BOOKED or CHECKED_IN, appointment is %s", a.Status)
	}
	a.Vitals = &vitals
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule moves a BOOKED slot appointment to a new date and slot. The row
// move re-runs the reservation check through the same unique index; the old
// slot frees up in the same commit. Token is kept same-date and reissued
// cross-date.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate, newSlot string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusBooked {
		return nil, apperror.InvalidState("only BOOKED appointments can be rescheduled, appointment is %s", a.Status)
	}
	if a.SlotStart == nil {
		return nil, apperror.InvalidState("walk-in appointments cannot be rescheduled")
	}
	day, err := schedule.ParseDate(newDate)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	slotMinutes, err := schedule.ParseClock(newSlot)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}

	resolved, err := s.resolver.ResolveSlots(ctx, a.DoctorID, a.HospitalID, newDate)
	if err != nil {
		return nil, err
	}
	if !contains(resolved, newSlot) {
		return nil, apperror.InvalidState("slot %s is not bookable for this doctor on %s", newSlot, newDate)
	}

	sameDate := a.VisitDate == newDate
	oldToken := a.TokenNumber
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if !sameDate {
			token, err := s.repo.NextToken(ctx, a.HospitalID, newDate)
			if err != nil {
				return err
			}
			a.TokenNumber = token
		}
		a.VisitDate = newDate
		slot := newSlot
		a.SlotStart = &slot
		a.ScheduledTime = atClock(day, slotMinutes)
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		a.TokenNumber = oldToken
		return nil, err
	}

	s.notifier.Notify(ctx, a.PatientID, "appointment-rescheduled", map[string]string{
		"doctor_name": a.DoctorID.String(),
		"visit_date":  newDate,
		"slot":        newSlot,
		"token":       strconv.Itoa(a.TokenNumber),
	})
	return a, nil
}

// Cancel soft-cancels an appointment. Cancelling an already cancelled
// appointment returns the unchanged record.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return a, nil
	}
	if Terminal(a.Status) {
		return nil, apperror.InvalidTransition("cannot cancel appointment in terminal state %s", a.Status)
	}
	a.Status = StatusCancelled
	if reason != "" {
		a.CancelReason = &reason
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, a.PatientID, "appointment-cancelled", map[string]string{
		"doctor_name": a.DoctorID.String(),
		"visit_date":  a.VisitDate,
		"reason":      reason,
	})
	return a, nil
}

// CancelFutureForPair cancels every future non-terminal appointment for the
// pair. It runs inside the revoke cascade's transaction via the context and
// emits no notices itself; the caller notifies after its commit.
func (s *Service) CancelFutureForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, reason string) ([]*Appointment, error) {
	future, err := s.repo.ListFutureForPair(ctx, doctorID, hospitalID, s.now())
	if err != nil {
		return nil, err
	}
	for _, a := range future {
		a.Status = StatusCancelled
		a.CancelReason = &reason
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, err
		}
	}
	return future, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Queue returns the staff-facing list for a hospital and date, ordered by
// scheduled time. EMERGENCY appointments carry their type as a flag but keep
// their queue position.
func (s *Service) Queue(ctx context.Context, hospitalID uuid.UUID, date string) ([]*Appointment, error) {
	if _, err := schedule.ParseDate(date); err != nil {
		return nil, apperror.Validation("%v", err)
	}
	return s.repo.ListQueue(ctx, hospitalID, date)
}

func (s *Service) SetWalkInAvailability(ctx context.Context, doctorID uuid.UUID, accepting bool) error {
	return s.flags.Set(ctx, doctorID, accepting)
}

func (s *Service) WalkInAvailability(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	return s.flags.Get(ctx, doctorID)
}

// RecordOutcome stores the consultation outcome. Only legal while the patient
// is IN_CONSULTATION.
func (s *Service) RecordOutcome(ctx context.Context, id uuid.UUID, diagnosis, prescription, nextVisit *string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusInConsultation {
		return nil, apperror.InvalidState("outcome can only be recorded during consultation, appointment is %s", a.Status)
	}
	if diagnosis != nil {
		a.Diagnosis = diagnosis
	}
	if prescription != nil {
		a.Prescription = prescription
	}
	if nextVisit != nil {
		a.NextVisit = nextVisit
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkPaid settles the appointment's payment exactly once.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, method string) (*Appointment, error) {
	if method == "" {
		return nil, apperror.Validation("payment_method is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.PaymentStatus == PaymentPaid {
		return nil, apperror.Conflict("appointment %s is already paid", id)
	}
	a.PaymentStatus = PaymentPaid
	a.PaymentMethod = &method
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SkipOverdue marks BOOKED appointments whose start passed more than grace ago
// as SKIPPED. Checked-in and terminal appointments are left alone.
func (s *Service) SkipOverdue(ctx context.Context, grace time.Duration) (int, error) {
	overdue, err := s.repo.ListOverdueBooked(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range overdue {
		a.Status = StatusSkipped
		if err := s.repo.Update(ctx, a); err != nil {
			return count, err
		}
		count++
		s.notifier.Notify(ctx, a.PatientID, "appointment-skipped", map[string]string{
			"visit_date": a.VisitDate,
			"slot":       slotOrTime(a),
		})
	}
	return count, nil
}

func slotOrTime(a *Appointment) string {
	if a.SlotStart != nil {
		return *a.SlotStart
	}
	return a.ScheduledTime.Format("15:04")
}

func atClock(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, time.Local)
}

func contains(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
