package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/platform/apperror"
)

// -- Mocks --

type mockRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*Appointment
	counters map[string]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:    make(map[uuid.UUID]*Appointment),
		counters: make(map[string]int),
	}
}

func counterKey(hospitalID uuid.UUID, date string) string {
	return hospitalID.String() + "|" + date
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.SlotStart != nil {
		for _, existing := range m.items {
			if existing.DoctorID == a.DoctorID && existing.VisitDate == a.VisitDate &&
				existing.Status != StatusCancelled && existing.SlotStart != nil &&
				*existing.SlotStart == *a.SlotStart {
				return apperror.Conflict("slot already taken")
			}
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("appointment %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return apperror.NotFound("appointment %s not found", a.ID)
	}
	if a.SlotStart != nil && a.Status != StatusCancelled {
		for id, existing := range m.items {
			if id != a.ID && existing.DoctorID == a.DoctorID && existing.VisitDate == a.VisitDate &&
				existing.Status != StatusCancelled && existing.SlotStart != nil &&
				*existing.SlotStart == *a.SlotStart {
				return apperror.Conflict("slot already taken")
			}
		}
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) NextToken(_ context.Context, hospitalID uuid.UUID, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey(hospitalID, date)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *mockRepo) TakenSlots(_ context.Context, doctorID uuid.UUID, date string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := make(map[string]bool)
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.VisitDate == date && a.Status != StatusCancelled && a.SlotStart != nil {
			taken[*a.SlotStart] = true
		}
	}
	return taken, nil
}

func (m *mockRepo) ListFutureForPair(_ context.Context, doctorID, hospitalID uuid.UUID, after time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.HospitalID == hospitalID &&
			a.ScheduledTime.After(after) && !Terminal(a.Status) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.items {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) ListQueue(_ context.Context, hospitalID uuid.UUID, date string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.items {
		if a.HospitalID == hospitalID && a.VisitDate == date && a.Status != StatusCancelled {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockRepo) ListOverdueBooked(_ context.Context, before time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.items {
		if a.Status == StatusBooked && a.ScheduledTime.Before(before) {
			result = append(result, a)
		}
	}
	return result, nil
}

type mockFlags struct {
	mu    sync.Mutex
	flags map[uuid.UUID]bool
}

func newMockFlags() *mockFlags {
	return &mockFlags{flags: make(map[uuid.UUID]bool)}
}

func (m *mockFlags) Set(_ context.Context, doctorID uuid.UUID, accepting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[doctorID] = accepting
	return nil
}

func (m *mockFlags) Get(_ context.Context, doctorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accepting, ok := m.flags[doctorID]; ok {
		return accepting, nil
	}
	return true, nil
}

type pairKey struct{ doctor, hospital uuid.UUID }

type mockApproval struct {
	approved map[pairKey]bool
}

func (m *mockApproval) IsApproved(_ context.Context, doctorID, hospitalID uuid.UUID) (bool, error) {
	return m.approved[pairKey{doctorID, hospitalID}], nil
}

type mockResolver struct {
	slots map[string][]string // keyed by date
}

func (m *mockResolver) ResolveSlots(_ context.Context, _, _ uuid.UUID, date string) ([]string, error) {
	return m.slots[date], nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type notice struct {
	recipient  uuid.UUID
	templateID string
}

type mockNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (m *mockNotifier) Notify(_ context.Context, recipientID uuid.UUID, templateID string, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, notice{recipient: recipientID, templateID: templateID})
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

type fixture struct {
	repo     *mockRepo
	flags    *mockFlags
	approval *mockApproval
	resolver *mockResolver
	notifier *mockNotifier
	svc      *Service
	patient  uuid.UUID
	doctor   uuid.UUID
	hospital uuid.UUID
	now      time.Time
}

const monday = "2025-06-02"

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		flags:    newMockFlags(),
		approval: &mockApproval{approved: make(map[pairKey]bool)},
		resolver: &mockResolver{slots: make(map[string][]string)},
		notifier: &mockNotifier{},
		patient:  uuid.New(),
		doctor:   uuid.New(),
		hospital: uuid.New(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local),
	}
	f.svc = NewService(f.repo, f.flags, f.approval, f.resolver, passthroughTx{}, f.notifier)
	f.svc.now = func() time.Time { return f.now }
	f.approval.approved[pairKey{f.doctor, f.hospital}] = true
	f.resolver.slots[monday] = []string{"09:00", "09:30", "10:00"}
	return f
}

func (f *fixture) book(t *testing.T, slot string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookInput{
		PatientID:  f.patient,
		DoctorID:   f.doctor,
		HospitalID: f.hospital,
		Date:       monday,
		Slot:       slot,
	})
	if err != nil {
		t.Fatalf("book %s: %v", slot, err)
	}
	return a
}

// -- Booking --

func TestBook_Success(t *testing.T) {
	f := newFixture()

	a := f.book(t, "09:00")
	if a.Status != StatusBooked {
		t.Errorf("expected BOOKED, got %s", a.Status)
	}
	if a.TokenNumber != 1 {
		t.Errorf("expected token 1, got %d", a.TokenNumber)
	}
	if a.Type != TypeScheduled {
		t.Errorf("expected SCHEDULED, got %s", a.Type)
	}
	if a.SlotStart == nil || *a.SlotStart != "09:00" {
		t.Error("expected slot_start 09:00")
	}
	if a.PaymentStatus != PaymentPending {
		t.Errorf("expected payment PENDING, got %s", a.PaymentStatus)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected booking notice, got %d notices", f.notifier.count())
	}
}

func TestBook_NotApprovedForbidden(t *testing.T) {
	f := newFixture()
	f.approval.approved[pairKey{f.doctor, f.hospital}] = false

	_, err := f.svc.Book(context.Background(), BookInput{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		Date: monday, Slot: "09:00",
	})
	if apperror.KindOf(err) != apperror.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestBook_SlotNotInTemplate(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Book(context.Background(), BookInput{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		Date: monday, Slot: "14:00",
	})
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestBook_SlotTakenConflict(t *testing.T) {
	f := newFixture()
	f.book(t, "09:00")

	_, err := f.svc.Book(context.Background(), BookInput{
		PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: f.hospital,
		Date: monday, Slot: "09:00",
	})
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestBook_CrossHospitalDoubleBookingBlocked(t *testing.T) {
	f := newFixture()
	f.book(t, "09:00")

	otherHospital := uuid.New()
	f.approval.approved[pairKey{f.doctor, otherHospital}] = true

	_, err := f.svc.Book(context.Background(), BookInput{
		PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: otherHospital,
		Date: monday, Slot: "09:00",
	})
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict across hospitals, got %v", err)
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture()

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), BookInput{
				PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: f.hospital,
				Date: monday, Slot: "09:00",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperror.KindOf(err) == apperror.KindConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 success, got %d", successes)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d", n-1, conflicts)
	}
}

func TestBook_TokenSequence(t *testing.T) {
	f := newFixture()

	a1 := f.book(t, "09:00")
	a2 := f.book(t, "09:30")
	a3 := f.book(t, "10:00")

	if a1.TokenNumber != 1 || a2.TokenNumber != 2 || a3.TokenNumber != 3 {
		t.Errorf("expected tokens 1,2,3 got %d,%d,%d", a1.TokenNumber, a2.TokenNumber, a3.TokenNumber)
	}
}

// -- Walk-ins --

func TestRegisterWalkIn_Success(t *testing.T) {
	f := newFixture()

	a, err := f.svc.RegisterWalkIn(context.Background(), WalkInInput{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
	})
	if err != nil {
		t.Fatalf("walk-in: %v", err)
	}
	if a.Type != TypeWalkIn {
		t.Errorf("expected WALK_IN, got %s", a.Type)
	}
	if a.SlotStart != nil {
		t.Error("walk-in must not consume a slot")
	}
	if !a.ScheduledTime.Equal(f.now) {
		t.Error("expected scheduled_time at registration instant")
	}
	if a.TokenNumber != 1 {
		t.Errorf("expected token 1, got %d", a.TokenNumber)
	}
}

func TestRegisterWalkIn_FlagOff(t *testing.T) {
	f := newFixture()
	f.flags.Set(context.Background(), f.doctor, false)

	_, err := f.svc.RegisterWalkIn(context.Background(), WalkInInput{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
	})
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected invalid state when not accepting walk-ins, got %v", err)
	}
}

func TestRegisterWalkIn_EmergencyBypassesFlag(t *testing.T) {
	f := newFixture()
	f.flags.Set(context.Background(), f.doctor, false)

	a, err := f.svc.RegisterWalkIn(context.Background(), WalkInInput{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital, Emergency: true,
	})
	if err != nil {
		t.Fatalf("emergency walk-in: %v", err)
	}
	if a.Type != TypeEmergency {
		t.Errorf("expected EMERGENCY, got %s", a.Type)
	}
}

func TestRegisterWalkIn_NotApproved(t *testing.T) {
	f := newFixture()

	_, err := f.svc.RegisterWalkIn(context.Background(), WalkInInput{
		PatientID: f.patient, DoctorID: uuid.New(), HospitalID: f.hospital,
	})
	if apperror.KindOf(err) != apperror.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRegisterWalkIn_ConcurrentTokensDistinct(t *testing.T) {
	f := newFixture()
	// Counter already at 5 for today.
	today := f.now.Format("2006-01-02")
	for i := 0; i < 5; i++ {
		if _, err := f.repo.NextToken(context.Background(), f.hospital, today); err != nil {
			t.Fatalf("seed counter: %v", err)
		}
	}

	var wg sync.WaitGroup
	tokens := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := f.svc.RegisterWalkIn(context.Background(), WalkInInput{
				PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: f.hospital,
			})
			if err != nil {
				t.Errorf("walk-in: %v", err)
				return
			}
			tokens <- a.TokenNumber
		}()
	}
	wg.Wait()
	close(tokens)

	got := make(map[int]bool)
	for tok := range tokens {
		got[tok] = true
	}
	if !got[6] || !got[7] || len(got) != 2 {
		t.Errorf("expected tokens {6,7}, got %v", got)
	}
}

// -- Availability --

func TestAvailableSlots_SubtractsTaken(t *testing.T) {
	f := newFixture()
	f.book(t, "09:00")

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor, f.hospital, monday)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if len(slots) != 2 || slots[0] != "09:30" || slots[1] != "10:00" {
		t.Errorf("expected [09:30 10:00], got %v", slots)
	}
}

// -- Transitions --

func TestTransition_FullPath(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	for _, next := range []string{StatusCheckedIn, StatusInConsultation, StatusCompleted} {
		got, err := f.svc.Transition(context.Background(), a.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if got.Status != next {
			t.Errorf("expected %s, got %s", next, got.Status)
		}
	}

	_, err := f.svc.Transition(context.Background(), a.ID, StatusCancelled)
	if apperror.KindOf(err) != apperror.KindInvalidTransition {
		t.Fatalf("expected invalid transition from COMPLETED, got %v", err)
	}
}

func TestTransition_IllegalEdgesLeaveStatusUnchanged(t *testing.T) {
	f := newFixture()

	cases := []struct {
		from, to string
	}{
		{StatusBooked, StatusInConsultation},
		{StatusBooked, StatusCompleted},
		{StatusCheckedIn, StatusSkipped},
		{StatusCheckedIn, StatusCompleted},
		{StatusInConsultation, StatusCancelled},
		{StatusInConsultation, StatusSkipped},
		{StatusCompleted, StatusCheckedIn},
		{StatusCancelled, StatusBooked},
		{StatusSkipped, StatusCheckedIn},
	}

	for _, tc := range cases {
		a := f.book(t, "09:00")
		a.Status = tc.from
		if err := f.repo.Update(context.Background(), a); err != nil {
			t.Fatalf("seed status: %v", err)
		}

		_, err := f.svc.Transition(context.Background(), a.ID, tc.to)
		if apperror.KindOf(err) != apperror.KindInvalidTransition {
			t.Errorf("%s -> %s: expected invalid transition, got %v", tc.from, tc.to, err)
		}
		got, _ := f.svc.Get(context.Background(), a.ID)
		if got.Status != tc.from {
			t.Errorf("%s -> %s: status changed to %s", tc.from, tc.to, got.Status)
		}

		// free the slot for the next case
		a.Status = StatusCancelled
		f.repo.Update(context.Background(), a)
	}
}

func TestTransition_NoShow(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	got, err := f.svc.Transition(context.Background(), a.ID, StatusSkipped)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if got.Status != StatusSkipped {
		t.Errorf("expected SKIPPED, got %s", got.Status)
	}
}

// -- Vitals --

func TestRecordVitals_ChecksIn(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	got, err := f.svc.RecordVitals(context.Background(), a.ID, `{"bp":"120/80"}`)
	if err != nil {
		t.Fatalf("record vitals: %v", err)
	}
	if got.Status != StatusCheckedIn {
		t.Errorf("expected CHECKED_IN after vitals, got %s", got.Status)
	}
	if got.Vitals == nil {
		t.Error("expected vitals to be stored")
	}
}

func TestRecordVitals_UpdateWhileCheckedIn(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	f.svc.RecordVitals(context.Background(), a.ID, "first")

	got, err := f.svc.RecordVitals(context.Background(), a.ID, "second")
	if err != nil {
		t.Fatalf("record vitals: %v", err)
	}
	if got.Status != StatusCheckedIn {
		t.Errorf("expected status to stay CHECKED_IN, got %s", got.Status)
	}
	if got.Vitals == nil || *got.Vitals != "second" {
		t.Error("expected vitals to be updated")
	}
}

func TestRecordVitals_RejectedInConsultation(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	f.svc.Transition(context.Background(), a.ID, StatusCheckedIn)
	f.svc.Transition(context.Background(), a.ID, StatusInConsultation)

	_, err := f.svc.RecordVitals(context.Background(), a.ID, "late")
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

// -- Reschedule --

func TestReschedule_SameDateKeepsToken(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	got, err := f.svc.Reschedule(context.Background(), a.ID, monday, "10:00")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got.TokenNumber != a.TokenNumber {
		t.Errorf("expected token %d kept, got %d", a.TokenNumber, got.TokenNumber)
	}
	if got.SlotStart == nil || *got.SlotStart != "10:00" {
		t.Error("expected new slot recorded")
	}

	// old slot is free again
	if _, err := f.svc.Book(context.Background(), BookInput{
		PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: f.hospital,
		Date: monday, Slot: "09:00",
	}); err != nil {
		t.Errorf("expected freed slot to be bookable, got %v", err)
	}
}

func TestReschedule_CrossDateNewToken(t *testing.T) {
	f := newFixture()
	const tuesday = "2025-06-03"
	f.resolver.slots[tuesday] = []string{"09:00"}
	a := f.book(t, "09:00")

	got, err := f.svc.Reschedule(context.Background(), a.ID, tuesday, "09:00")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got.VisitDate != tuesday {
		t.Errorf("expected visit date %s, got %s", tuesday, got.VisitDate)
	}
	if got.TokenNumber != 1 {
		t.Errorf("expected fresh token 1 for new day, got %d", got.TokenNumber)
	}
}

func TestReschedule_NewSlotTakenConflict(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	f.book(t, "10:00")

	_, err := f.svc.Reschedule(context.Background(), a.ID, monday, "10:00")
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReschedule_OnlyBooked(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	f.svc.Transition(context.Background(), a.ID, StatusCheckedIn)

	_, err := f.svc.Reschedule(context.Background(), a.ID, monday, "10:00")
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

// -- Cancel --

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	first, err := f.svc.Cancel(context.Background(), a.ID, "changed plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if first.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", first.Status)
	}

	second, err := f.svc.Cancel(context.Background(), a.ID, "again")
	if err != nil {
		t.Fatalf("second cancel should be a no-op, got %v", err)
	}
	if second.CancelReason == nil || *second.CancelReason != "changed plans" {
		t.Error("expected the original cancel reason to be preserved")
	}
}

func TestCancel_CompletedFails(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	for _, next := range []string{StatusCheckedIn, StatusInConsultation, StatusCompleted} {
		f.svc.Transition(context.Background(), a.ID, next)
	}

	_, err := f.svc.Cancel(context.Background(), a.ID, "")
	if apperror.KindOf(err) != apperror.KindInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

// -- Cascade --

func TestCancelFutureForPair(t *testing.T) {
	f := newFixture()

	// three future bookings for the pair
	f.book(t, "09:00")
	f.book(t, "09:30")
	f.book(t, "10:00")

	// a past completed appointment for the pair
	past := &Appointment{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		ScheduledTime: f.now.Add(-48 * time.Hour), VisitDate: "2025-05-30",
		TokenNumber: 1, Type: TypeScheduled, Status: StatusCompleted, PaymentStatus: PaymentPaid,
	}
	f.repo.Create(context.Background(), past)

	// a future booking at a different hospital
	otherHospital := uuid.New()
	f.approval.approved[pairKey{f.doctor, otherHospital}] = true
	other := &Appointment{
		PatientID: uuid.New(), DoctorID: f.doctor, HospitalID: otherHospital,
		ScheduledTime: f.now.Add(24 * time.Hour), VisitDate: monday,
		TokenNumber: 1, Type: TypeScheduled, Status: StatusBooked, PaymentStatus: PaymentPending,
	}
	f.repo.Create(context.Background(), other)

	cancelled, err := f.svc.CancelFutureForPair(context.Background(), f.doctor, f.hospital, "affiliation revoked")
	if err != nil {
		t.Fatalf("cancel future: %v", err)
	}
	if len(cancelled) != 3 {
		t.Fatalf("expected 3 cancelled, got %d", len(cancelled))
	}
	for _, a := range cancelled {
		got, _ := f.svc.Get(context.Background(), a.ID)
		if got.Status != StatusCancelled {
			t.Errorf("expected CANCELLED, got %s", got.Status)
		}
		if got.CancelReason == nil || *got.CancelReason != "affiliation revoked" {
			t.Error("expected cancel reason to be recorded")
		}
	}

	gotPast, _ := f.svc.Get(context.Background(), past.ID)
	if gotPast.Status != StatusCompleted {
		t.Error("past appointment must be untouched")
	}
	gotOther, _ := f.svc.Get(context.Background(), other.ID)
	if gotOther.Status != StatusBooked {
		t.Error("other hospital's appointment must be untouched")
	}
}

// -- Reaper --

func TestSkipOverdue(t *testing.T) {
	f := newFixture()

	overdue := &Appointment{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		ScheduledTime: f.now.Add(-2 * time.Hour), VisitDate: "2025-06-01",
		TokenNumber: 1, Type: TypeScheduled, Status: StatusBooked, PaymentStatus: PaymentPending,
	}
	f.repo.Create(context.Background(), overdue)

	checkedIn := &Appointment{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		ScheduledTime: f.now.Add(-2 * time.Hour), VisitDate: "2025-06-01",
		TokenNumber: 2, Type: TypeScheduled, Status: StatusCheckedIn, PaymentStatus: PaymentPending,
	}
	f.repo.Create(context.Background(), checkedIn)

	recent := &Appointment{
		PatientID: f.patient, DoctorID: f.doctor, HospitalID: f.hospital,
		ScheduledTime: f.now.Add(-10 * time.Minute), VisitDate: "2025-06-01",
		TokenNumber: 3, Type: TypeScheduled, Status: StatusBooked, PaymentStatus: PaymentPending,
	}
	f.repo.Create(context.Background(), recent)

	n, err := f.svc.SkipOverdue(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("skip overdue: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 skipped, got %d", n)
	}

	got, _ := f.svc.Get(context.Background(), overdue.ID)
	if got.Status != StatusSkipped {
		t.Errorf("expected SKIPPED, got %s", got.Status)
	}
	got, _ = f.svc.Get(context.Background(), checkedIn.ID)
	if got.Status != StatusCheckedIn {
		t.Error("checked-in appointment must be untouched")
	}
	got, _ = f.svc.Get(context.Background(), recent.ID)
	if got.Status != StatusBooked {
		t.Error("appointment inside the grace window must be untouched")
	}
}

// -- Outcome & payment --

func TestRecordOutcome_OnlyInConsultation(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")
	diagnosis := "seasonal flu"

	_, err := f.svc.RecordOutcome(context.Background(), a.ID, &diagnosis, nil, nil)
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected invalid state while BOOKED, got %v", err)
	}

	f.svc.Transition(context.Background(), a.ID, StatusCheckedIn)
	f.svc.Transition(context.Background(), a.ID, StatusInConsultation)

	got, err := f.svc.RecordOutcome(context.Background(), a.ID, &diagnosis, nil, nil)
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if got.Diagnosis == nil || *got.Diagnosis != diagnosis {
		t.Error("expected diagnosis to be stored")
	}
}

func TestMarkPaid_Once(t *testing.T) {
	f := newFixture()
	a := f.book(t, "09:00")

	got, err := f.svc.MarkPaid(context.Background(), a.ID, "card")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if got.PaymentStatus != PaymentPaid || got.PaymentMethod == nil || *got.PaymentMethod != "card" {
		t.Error("expected payment to be recorded")
	}

	_, err = f.svc.MarkPaid(context.Background(), a.ID, "cash")
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict on second payment, got %v", err)
	}
}

func TestWalkInAvailability_Roundtrip(t *testing.T) {
	f := newFixture()

	accepting, err := f.svc.WalkInAvailability(context.Background(), f.doctor)
	if err != nil || !accepting {
		t.Fatalf("expected default accepting, got %v %v", accepting, err)
	}

	if err := f.svc.SetWalkInAvailability(context.Background(), f.doctor, false); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	accepting, _ = f.svc.WalkInAvailability(context.Background(), f.doctor)
	if accepting {
		t.Error("expected flag off")
	}
}
