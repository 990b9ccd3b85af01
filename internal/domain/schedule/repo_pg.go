package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/medisched/internal/platform/db"
)

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository { return &templateRepoPG{pool: pool} }

func (r *templateRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, doctor_id, hospital_id, weekday, start_time, end_time, slot_minutes`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.DoctorID, &e.HospitalID, &e.Weekday, &e.StartTime, &e.EndTime, &e.SlotMinutes)
	return e, err
}

func (r *templateRepoPG) ReplaceForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, entries []Entry) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx,
		`DELETE FROM schedule_template WHERE doctor_id = $1 AND hospital_id = $2`,
		doctorID, hospitalID); err != nil {
		return err
	}
	for i := range entries {
		entries[i].ID = uuid.New()
		entries[i].DoctorID = doctorID
		entries[i].HospitalID = hospitalID
		if _, err := q.Exec(ctx, `
			INSERT INTO schedule_template (id, doctor_id, hospital_id, weekday, start_time, end_time, slot_minutes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			entries[i].ID, doctorID, hospitalID, entries[i].Weekday,
			entries[i].StartTime, entries[i].EndTime, entries[i].SlotMinutes); err != nil {
			return err
		}
	}
	return nil
}

func (r *templateRepoPG) ListForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) ([]Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM schedule_template
		WHERE doctor_id = $1 AND hospital_id = $2
		ORDER BY weekday, start_time`,
		doctorID, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *templateRepoPG) DeleteForPair(ctx context.Context, doctorID, hospitalID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM schedule_template WHERE doctor_id = $1 AND hospital_id = $2`,
		doctorID, hospitalID)
	return err
}

// =========== Hours Repository ===========

type hoursRepoPG struct{ pool *pgxpool.Pool }

func NewHoursRepoPG(pool *pgxpool.Pool) HoursRepository { return &hoursRepoPG{pool: pool} }

func (r *hoursRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *hoursRepoPG) ReplaceForHospital(ctx context.Context, hospitalID uuid.UUID, open24x7 bool, days []DayHours) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO hospital_setting (hospital_id, open_24x7)
		VALUES ($1, $2)
		ON CONFLICT (hospital_id) DO UPDATE SET open_24x7 = EXCLUDED.open_24x7`,
		hospitalID, open24x7); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM hospital_hours WHERE hospital_id = $1`, hospitalID); err != nil {
		return err
	}
	for _, d := range days {
		if _, err := q.Exec(ctx, `
			INSERT INTO hospital_hours (hospital_id, weekday, is_open, open_time, close_time)
			VALUES ($1,$2,$3,$4,$5)`,
			hospitalID, d.Weekday, d.IsOpen, d.OpenTime, d.CloseTime); err != nil {
			return err
		}
	}
	return nil
}

func (r *hoursRepoPG) GetForHospital(ctx context.Context, hospitalID uuid.UUID) (*HospitalHours, error) {
	h := &HospitalHours{HospitalID: hospitalID}

	err := r.conn(ctx).QueryRow(ctx,
		`SELECT open_24x7 FROM hospital_setting WHERE hospital_id = $1`, hospitalID).Scan(&h.Open24x7)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT weekday, is_open, open_time, close_time FROM hospital_hours
		WHERE hospital_id = $1 ORDER BY weekday`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d DayHours
		if err := rows.Scan(&d.Weekday, &d.IsOpen, &d.OpenTime, &d.CloseTime); err != nil {
			return nil, err
		}
		h.Days = append(h.Days, d)
	}
	return h, rows.Err()
}
