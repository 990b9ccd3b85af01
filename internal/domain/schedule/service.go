package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperror"
)

// ApprovalChecker gates template mutation and slot resolution on an APPROVED
// affiliation. Implemented by the affiliation service.
type ApprovalChecker interface {
	IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
}

// TxRunner runs a function inside a single store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	templates    TemplateRepository
	hours        HoursRepository
	affiliations ApprovalChecker
	tx           TxRunner
	now          func() time.Time
}

func NewService(templates TemplateRepository, hours HoursRepository, affiliations ApprovalChecker, tx TxRunner) *Service {
	return &Service{
		templates:    templates,
		hours:        hours,
		affiliations: affiliations,
		tx:           tx,
		now:          time.Now,
	}
}

// SetApprovalChecker binds the affiliation dependency after construction. The
// schedule and affiliation services reference each other, so one side is wired
// late.
func (s *Service) SetApprovalChecker(ac ApprovalChecker) {
	s.affiliations = ac
}

// PutTemplate replaces the doctor's full weekly template at the hospital.
func (s *Service) PutTemplate(ctx context.Context, doctorID, hospitalID uuid.UUID, entries []Entry) error {
	approved, err := s.affiliations.IsApproved(ctx, doctorID, hospitalID)
	if err != nil {
		return err
	}
	if !approved {
		return apperror.Forbidden("doctor %s has no approved affiliation at hospital %s", doctorID, hospitalID)
	}

	for _, e := range entries {
		if e.Weekday < 0 || e.Weekday > 6 {
			return apperror.Validation("weekday must be 0-6, got %d", e.Weekday)
		}
		start, err := ParseClock(e.StartTime)
		if err != nil {
			return apperror.Validation("%v", err)
		}
		end, err := ParseClock(e.EndTime)
		if err != nil {
			return apperror.Validation("%v", err)
		}
		if start >= end {
			return apperror.Validation("start_time %s must be before end_time %s", e.StartTime, e.EndTime)
		}
		if e.SlotMinutes <= 0 {
			return apperror.Validation("slot_minutes must be positive, got %d", e.SlotMinutes)
		}
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.templates.ReplaceForPair(ctx, doctorID, hospitalID, entries)
	})
}

func (s *Service) Template(ctx context.Context, doctorID, hospitalID uuid.UUID) ([]Entry, error) {
	return s.templates.ListForPair(ctx, doctorID, hospitalID)
}

// DeleteForPair removes the pair's template rows. Called by the revoke cascade
// inside its transaction; the repository joins via the context.
func (s *Service) DeleteForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) error {
	return s.templates.DeleteForPair(ctx, doctorID, hospitalID)
}

// PutHospitalHours replaces a hospital's weekly operating configuration.
func (s *Service) PutHospitalHours(ctx context.Context, hospitalID uuid.UUID, open24x7 bool, days []DayHours) error {
	for _, d := range days {
		if d.Weekday < 0 || d.Weekday > 6 {
			return apperror.Validation("weekday must be 0-6, got %d", d.Weekday)
		}
		if !d.IsOpen {
			continue
		}
		if d.OpenTime == nil || d.CloseTime == nil {
			return apperror.Validation("open day %d needs open_time and close_time", d.Weekday)
		}
		open, err := ParseClock(*d.OpenTime)
		if err != nil {
			return apperror.Validation("%v", err)
		}
		closeAt, err := ParseClock(*d.CloseTime)
		if err != nil {
			return apperror.Validation("%v", err)
		}
		if open >= closeAt {
			return apperror.Validation("open_time %s must be before close_time %s", *d.OpenTime, *d.CloseTime)
		}
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.hours.ReplaceForHospital(ctx, hospitalID, open24x7, days)
	})
}

func (s *Service) HospitalHours(ctx context.Context, hospitalID uuid.UUID) (*HospitalHours, error) {
	return s.hours.GetForHospital(ctx, hospitalID)
}

// ResolveSlots computes the bookable slot starts ("HH:MM", ascending) for the
// pair on a calendar date. Missing template, unapproved pair, or a closed
// hospital all yield an empty result, never an error.
func (s *Service) ResolveSlots(ctx context.Context, doctorID, hospitalID uuid.UUID, date string) ([]string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}

	approved, err := s.affiliations.IsApproved(ctx, doctorID, hospitalID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return []string{}, nil
	}

	entries, err := s.templates.ListForPair(ctx, doctorID, hospitalID)
	if err != nil {
		return nil, err
	}
	weekday := int(day.Weekday())

	hh, err := s.hours.GetForHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	windowStart, windowEnd, open := hospitalWindow(hh, weekday)
	if !open {
		return []string{}, nil
	}

	now := s.now()
	today := now.Format(DateLayout)
	nowMinutes := now.Hour()*60 + now.Minute()

	seen := make(map[int]bool)
	var slots []int
	for _, e := range entries {
		if e.Weekday != weekday {
			continue
		}
		start, err := ParseClock(e.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(e.EndTime)
		if err != nil || e.SlotMinutes <= 0 {
			continue
		}
		for t := start; t+e.SlotMinutes <= end; t += e.SlotMinutes {
			if t < windowStart || t+e.SlotMinutes > windowEnd {
				continue
			}
			if date == today && t <= nowMinutes {
				continue
			}
			if !seen[t] {
				seen[t] = true
				slots = append(slots, t)
			}
		}
	}

	sort.Ints(slots)
	out := make([]string, 0, len(slots))
	for _, t := range slots {
		out = append(out, FormatClock(t))
	}
	return out, nil
}

// hospitalWindow returns the open window in minutes for the weekday. A 24x7
// hospital imposes no restriction. A day without an explicit open flag and
// valid times is closed.
func hospitalWindow(h *HospitalHours, weekday int) (start, end int, open bool) {
	if h.Open24x7 {
		return 0, 24 * 60, true
	}
	for _, d := range h.Days {
		if d.Weekday != weekday {
			continue
		}
		if !d.IsOpen || d.OpenTime == nil || d.CloseTime == nil {
			return 0, 0, false
		}
		s, err := ParseClock(*d.OpenTime)
		if err != nil {
			return 0, 0, false
		}
		e, err := ParseClock(*d.CloseTime)
		if err != nil {
			return 0, 0, false
		}
		return s, e, s < e
	}
	return 0, 0, false
}
