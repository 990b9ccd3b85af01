package affiliation

import (
	"context"
	"errors"
	"fmt"

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

const affiliationCols = `id, doctor_id, hospital_id, status, request_type,
	consultation_fee, consultation_room_number, notes, rejection_reason,
	created_at, responded_at`

func scanAffiliation(row pgx.Row) (*Affiliation, error) {
	var a Affiliation
	err := row.Scan(&a.ID, &a.DoctorID, &a.HospitalID, &a.Status, &a.RequestType,
		&a.ConsultationFee, &a.ConsultationRoomNumber, &a.Notes, &a.RejectionReason,
		&a.CreatedAt, &a.RespondedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Affiliation) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO affiliation (id, doctor_id, hospital_id, status, request_type,
			consultation_fee, consultation_room_number, notes, rejection_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.DoctorID, a.HospitalID, a.Status, a.RequestType,
		a.ConsultationFee, a.ConsultationRoomNumber, a.Notes, a.RejectionReason)
	if isUniqueViolation(err) {
		return apperror.Wrap(apperror.KindConflict, err,
			"an active affiliation already exists for this doctor and hospital")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Affiliation, error) {
	a, err := scanAffiliation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+affiliationCols+` FROM affiliation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("affiliation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) GetLiveByPair(ctx context.Context, doctorID, hospitalID uuid.UUID) (*Affiliation, error) {
	a, err := scanAffiliation(r.conn(ctx).QueryRow(ctx, `
		SELECT `+affiliationCols+` FROM affiliation
		WHERE doctor_id = $1 AND hospital_id = $2 AND status IN ($3, $4)`,
		doctorID, hospitalID, StatusPending, StatusApproved))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("no active affiliation for doctor %s at hospital %s", doctorID, hospitalID)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Affiliation) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE affiliation SET status=$2, consultation_fee=$3, consultation_room_number=$4,
			rejection_reason=$5, responded_at=$6
		WHERE id = $1`,
		a.ID, a.Status, a.ConsultationFee, a.ConsultationRoomNumber,
		a.RejectionReason, a.RespondedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("affiliation %s not found", a.ID)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM affiliation WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("affiliation %s not found", id)
	}
	return nil
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error) {
	return r.list(ctx, "doctor_id", doctorID, status, limit, offset)
}

func (r *repoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error) {
	return r.list(ctx, "hospital_id", hospitalID, status, limit, offset)
}

func (r *repoPG) list(ctx context.Context, col string, id uuid.UUID, status string, limit, offset int) ([]*Affiliation, int, error) {
	where := fmt.Sprintf(`WHERE %s = $1`, col)
	args := []interface{}{id}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM affiliation `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM affiliation %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		affiliationCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Affiliation
	for rows.Next() {
		a, err := scanAffiliation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
