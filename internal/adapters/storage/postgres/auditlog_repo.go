package postgres

import (
	"context"
	"database/sql"
	"time"

	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/ports/directory"
)

const auditColumns = `
	id, accessor_id, accessor_type, accessor_name,
	patient_id, resource_type, resource_id, action, reason,
	booking_id, access_token_id,
	ip_address, user_agent, endpoint, method,
	success, error_message, usage_record_failed,
	ts`

// AuditLogRepo solo inserta y lee: la tabla es append-only y este
// subsistema no tiene UPDATE ni DELETE sobre ella.
type AuditLogRepo struct {
	db *sql.DB
}

func NewAuditLogRepo(db *sql.DB) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

func (r *AuditLogRepo) Append(ctx context.Context, e auditlog.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_logs (
			id, accessor_id, accessor_type, accessor_name,
			patient_id, resource_type, resource_id, action, reason,
			booking_id, access_token_id,
			ip_address, user_agent, endpoint, method,
			success, error_message, usage_record_failed,
			ts
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		e.ID,
		e.Actor.UserID,
		string(e.Actor.UserType),
		e.Actor.Name,
		e.PatientID,
		e.ResourceType,
		e.ResourceID,
		string(e.Action),
		string(e.Reason),
		e.BookingID,
		e.AccessTokenID,
		e.IPAddress,
		e.UserAgent,
		e.Endpoint,
		e.Method,
		e.Success,
		e.ErrorMessage,
		e.UsageRecordFailed,
		e.Timestamp,
	)
	return err
}

func (r *AuditLogRepo) ListByPatient(ctx context.Context, patientID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.query(ctx, `
		SELECT `+auditColumns+`
		FROM access_logs
		WHERE patient_id = $1
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND ($3::timestamptz IS NULL OR ts <= $3)
		ORDER BY ts DESC
		LIMIT $4 OFFSET $5
	`, patientID, toNullTime(f.From), toNullTime(f.To), f.Limit, f.Offset)
}

func (r *AuditLogRepo) ListByAccessor(ctx context.Context, userID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.query(ctx, `
		SELECT `+auditColumns+`
		FROM access_logs
		WHERE accessor_id = $1
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND ($3::timestamptz IS NULL OR ts <= $3)
		ORDER BY ts DESC
		LIMIT $4 OFFSET $5
	`, userID, toNullTime(f.From), toNullTime(f.To), f.Limit, f.Offset)
}

func (r *AuditLogRepo) ListFailed(ctx context.Context, f auditlog.Filter) ([]auditlog.Entry, error) {
	return r.query(ctx, `
		SELECT `+auditColumns+`
		FROM access_logs
		WHERE success = FALSE
		  AND ($1::timestamptz IS NULL OR ts >= $1)
		  AND ($2::timestamptz IS NULL OR ts <= $2)
		ORDER BY ts DESC
		LIMIT $3 OFFSET $4
	`, toNullTime(f.From), toNullTime(f.To), f.Limit, f.Offset)
}

func (r *AuditLogRepo) Stats(ctx context.Context, since time.Time) ([]auditlog.StatBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       resource_type,
		       success,
		       COUNT(*)
		FROM access_logs
		WHERE ts >= $1
		GROUP BY day, resource_type, success
		ORDER BY day ASC, resource_type ASC, success ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]auditlog.StatBucket, 0)
	for rows.Next() {
		var b auditlog.StatBucket
		if err := rows.Scan(&b.Day, &b.ResourceType, &b.Success, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	return out, rows.Err()
}

func (r *AuditLogRepo) query(ctx context.Context, q string, args ...any) ([]auditlog.Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]auditlog.Entry, 0)
	for rows.Next() {
		var e auditlog.Entry
		var accessorType, action, reason string

		if err := rows.Scan(
			&e.ID,
			&e.Actor.UserID,
			&accessorType,
			&e.Actor.Name,
			&e.PatientID,
			&e.ResourceType,
			&e.ResourceID,
			&action,
			&reason,
			&e.BookingID,
			&e.AccessTokenID,
			&e.IPAddress,
			&e.UserAgent,
			&e.Endpoint,
			&e.Method,
			&e.Success,
			&e.ErrorMessage,
			&e.UsageRecordFailed,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}

		e.Actor.UserType = directory.Role(accessorType)
		e.Action = auditlog.Action(action)
		e.Reason = auditlog.AccessReason(reason)
		out = append(out, e)
	}

	return out, rows.Err()
}
