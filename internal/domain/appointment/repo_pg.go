package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/medisched/internal/platform/apperror"
	"github.com/medisched/medisched/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const appointmentCols = `id, patient_id, doctor_id, hospital_id, scheduled_time,
	to_char(visit_date, 'YYYY-MM-DD'), slot_start, token_number, type, status,
	payment_status, payment_method, vitals, diagnosis, prescription, next_visit,
	cancel_reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.HospitalID, &a.ScheduledTime,
		&a.VisitDate, &a.SlotStart, &a.TokenNumber, &a.Type, &a.Status,
		&a.PaymentStatus, &a.PaymentMethod, &a.Vitals, &a.Diagnosis, &a.Prescription, &a.NextVisit,
		&a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func conflictFromUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperror.Wrap(apperror.KindConflict, err, "slot already taken")
	}
	return err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, hospital_id, scheduled_time,
			visit_date, slot_start, token_number, type, status, payment_status,
			payment_method, vitals, diagnosis, prescription, next_visit, cancel_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.PatientID, a.DoctorID, a.HospitalID, a.ScheduledTime,
		a.VisitDate, a.SlotStart, a.TokenNumber, a.Type, a.Status, a.PaymentStatus,
		a.PaymentMethod, a.Vitals, a.Diagnosis, a.Prescription, a.NextVisit, a.CancelReason)
	return conflictFromUnique(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET scheduled_time=$2, visit_date=$3, slot_start=$4,
			token_number=$5, status=$6, payment_status=$7, payment_method=$8,
			vitals=$9, diagnosis=$10, prescription=$11, next_visit=$12,
			cancel_reason=$13, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ScheduledTime, a.VisitDate, a.SlotStart,
		a.TokenNumber, a.Status, a.PaymentStatus, a.PaymentMethod,
		a.Vitals, a.Diagnosis, a.Prescription, a.NextVisit, a.CancelReason)
	if err != nil {
		return conflictFromUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("appointment %s not found", a.ID)
	}
	return nil
}

func (r *repoPG) NextToken(ctx context.Context, hospitalID uuid.UUID, date string) (int, error) {
	var token int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_token_counter (hospital_id, day, last_token)
		VALUES ($1, $2, 1)
		ON CONFLICT (hospital_id, day)
		DO UPDATE SET last_token = appointment_token_counter.last_token + 1
		RETURNING last_token`,
		hospitalID, date).Scan(&token)
	return token, err
}

func (r *repoPG) TakenSlots(ctx context.Context, doctorID uuid.UUID, date string) (map[string]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT slot_start FROM appointment
		WHERE doctor_id = $1 AND visit_date = $2 AND status <> $3 AND slot_start IS NOT NULL`,
		doctorID, date, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		taken[slot] = true
	}
	return taken, rows.Err()
}

func (r *repoPG) ListFutureForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, after time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE doctor_id = $1 AND hospital_id = $2 AND scheduled_time > $3
			AND status IN ($4, $5, $6)
		ORDER BY scheduled_time`,
		doctorID, hospitalID, after, StatusBooked, StatusCheckedIn, StatusInConsultation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE patient_id = $1 ORDER BY scheduled_time DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListQueue(ctx context.Context, hospitalID uuid.UUID, date string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE hospital_id = $1 AND visit_date = $2 AND status <> $3
		ORDER BY scheduled_time, token_number`,
		hospitalID, date, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) ListOverdueBooked(ctx context.Context, before time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE status = $1 AND scheduled_time < $2
		ORDER BY scheduled_time`,
		StatusBooked, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Walk-in flag ===========

type walkInFlagRepoPG struct{ pool *pgxpool.Pool }

func NewWalkInFlagRepoPG(pool *pgxpool.Pool) WalkInFlagRepository {
	return &walkInFlagRepoPG{pool: pool}
}

func (r *walkInFlagRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *walkInFlagRepoPG) Set(ctx context.Context, doctorID uuid.UUID, accepting bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_walkin_flag (doctor_id, accepting, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (doctor_id) DO UPDATE SET accepting = EXCLUDED.accepting, updated_at = NOW()`,
		doctorID, accepting)
	return err
}

func (r *walkInFlagRepoPG) Get(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var accepting bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT accepting FROM doctor_walkin_flag WHERE doctor_id = $1`, doctorID).Scan(&accepting)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return accepting, nil
}
