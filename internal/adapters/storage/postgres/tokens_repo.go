package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"health-data-access/internal/domain/accesstokens"
	"health-data-access/internal/ports/directory"
)

const tokenColumns = `
	id, granted_to, granted_to_role, patient_id, booking_id,
	access_level, allowed_resources,
	granted_by, grant_reason,
	issued_at, expires_at,
	max_usage, usage_count, last_used_at, last_used_ip,
	is_active,
	revoked_at, revoked_by, revoked_by_type, revocation_reason`

type TokensRepo struct {
	db *sql.DB
}

func NewTokensRepo(db *sql.DB) *TokensRepo {
	return &TokensRepo{db: db}
}

func (r *TokensRepo) Create(ctx context.Context, t accesstokens.AccessToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (
			id, granted_to, granted_to_role, patient_id, booking_id,
			access_level, allowed_resources,
			granted_by, grant_reason,
			issued_at, expires_at,
			max_usage, usage_count, last_used_at, last_used_ip,
			is_active,
			revoked_at, revoked_by, revoked_by_type, revocation_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		t.ID,
		t.GrantedTo,
		string(t.GrantedToRole),
		t.PatientID,
		t.BookingID,
		string(t.AccessLevel),
		resourcesToText(t.AllowedResources),
		t.GrantedBy,
		t.GrantReason,
		t.IssuedAt,
		t.ExpiresAt,
		toNullInt(t.MaxUsage),
		t.UsageCount,
		toNullTime(t.LastUsedAt),
		t.LastUsedIP,
		t.IsActive,
		toNullTime(t.RevokedAt),
		t.RevokedBy,
		string(t.RevokedByType),
		t.RevocationReason,
	)
	return err
}

func (r *TokensRepo) GetByID(ctx context.Context, id string) (accesstokens.AccessToken, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return accesstokens.AccessToken{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE id = $1
	`, id)

	return scanToken(row)
}

func (r *TokensRepo) ListByPatient(ctx context.Context, patientID string) ([]accesstokens.AccessToken, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE patient_id = $1
		ORDER BY issued_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]accesstokens.AccessToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

func (r *TokensRepo) FindUsable(ctx context.Context, clinicianID, patientID string, now time.Time) (accesstokens.AccessToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE granted_to = $1
		  AND patient_id = $2
		  AND is_active
		  AND expires_at > $3
		  AND (max_usage IS NULL OR usage_count < max_usage)
		ORDER BY issued_at DESC
		LIMIT 1
	`, clinicianID, patientID, now)

	return scanToken(row)
}

// Consume es UNA sola actualización condicional: el WHERE re-chequea
// usabilidad y el CASE desactiva el token en el mismo statement si el
// incremento alcanza max_usage. Así, con max_usage=N y N+1 requests
// concurrentes, la fila solo matchea N veces.
func (r *TokensRepo) Consume(ctx context.Context, id string, now time.Time, ip string) (accesstokens.AccessToken, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE access_tokens
		SET usage_count = usage_count + 1,
		    last_used_at = $2,
		    last_used_ip = $3,
		    is_active = CASE
		        WHEN max_usage IS NOT NULL AND usage_count + 1 >= max_usage THEN FALSE
		        ELSE is_active
		    END
		WHERE id = $1
		  AND is_active
		  AND expires_at > $2
		  AND (max_usage IS NULL OR usage_count < max_usage)
		RETURNING `+tokenColumns+`
	`, id, now, ip)

	t, err := scanToken(row)
	if err == ErrNotFound {
		return accesstokens.AccessToken{}, ErrNotUsable
	}
	return t, err
}

// Update persiste solo los campos de revocación; el uso se muta
// exclusivamente vía Consume.
func (r *TokensRepo) Update(ctx context.Context, t accesstokens.AccessToken) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_tokens
		SET is_active = $2,
		    revoked_at = $3,
		    revoked_by = $4,
		    revoked_by_type = $5,
		    revocation_reason = $6
		WHERE id = $1
	`,
		t.ID,
		t.IsActive,
		toNullTime(t.RevokedAt),
		t.RevokedBy,
		string(t.RevokedByType),
		t.RevocationReason,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (accesstokens.AccessToken, error) {
	var t accesstokens.AccessToken
	var role, level, resources, revokedByType string
	var maxUsage sql.NullInt64
	var lastUsedAt, revokedAt sql.NullTime

	if err := row.Scan(
		&t.ID,
		&t.GrantedTo,
		&role,
		&t.PatientID,
		&t.BookingID,
		&level,
		&resources,
		&t.GrantedBy,
		&t.GrantReason,
		&t.IssuedAt,
		&t.ExpiresAt,
		&maxUsage,
		&t.UsageCount,
		&lastUsedAt,
		&t.LastUsedIP,
		&t.IsActive,
		&revokedAt,
		&t.RevokedBy,
		&revokedByType,
		&t.RevocationReason,
	); err != nil {
		if err == sql.ErrNoRows {
			return accesstokens.AccessToken{}, ErrNotFound
		}
		return accesstokens.AccessToken{}, err
	}

	t.GrantedToRole = directory.Role(role)
	t.AccessLevel = accesstokens.AccessLevel(level)
	t.AllowedResources = textToResources(resources)
	t.RevokedByType = accesstokens.RevokerType(revokedByType)
	if maxUsage.Valid {
		n := int(maxUsage.Int64)
		t.MaxUsage = &n
	}
	if lastUsedAt.Valid {
		ts := lastUsedAt.Time
		t.LastUsedAt = &ts
	}
	if revokedAt.Valid {
		ts := revokedAt.Time
		t.RevokedAt = &ts
	}

	return t, nil
}

// helpers

// Los recursos se guardan como texto separado por comas: es un set chico
// de tags cerrados, no hace falta text[] ni jsonb.
func resourcesToText(in []accesstokens.ResourceType) string {
	parts := make([]string, 0, len(in))
	for _, rt := range in {
		parts = append(parts, string(rt))
	}
	return strings.Join(parts, ",")
}

func textToResources(raw string) []accesstokens.ResourceType {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []accesstokens.ResourceType{}
	}
	parts := strings.Split(raw, ",")
	out := make([]accesstokens.ResourceType, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, accesstokens.ResourceType(p))
		}
	}
	return out
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toNullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
