package postgres

import (
	"context"
	"database/sql"
	"strings"

	"health-data-access/internal/domain/emergency"
)

type EmergencyRepo struct {
	db *sql.DB
}

func NewEmergencyRepo(db *sql.DB) *EmergencyRepo {
	return &EmergencyRepo{db: db}
}

func (r *EmergencyRepo) Create(ctx context.Context, t emergency.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emergency_tokens (id, patient_id, token_value, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`,
		t.ID,
		t.PatientID,
		t.Value,
		t.ExpiresAt,
		t.CreatedAt,
	)
	return err
}

func (r *EmergencyRepo) GetByValue(ctx context.Context, value string) (emergency.Token, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return emergency.Token{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, patient_id, token_value, expires_at, created_at
		FROM emergency_tokens
		WHERE token_value = $1
	`, value)

	var t emergency.Token
	if err := row.Scan(&t.ID, &t.PatientID, &t.Value, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return emergency.Token{}, ErrNotFound
		}
		return emergency.Token{}, err
	}

	return t, nil
}

type SummaryStore struct {
	db *sql.DB
}

func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

func (s *SummaryStore) Get(ctx context.Context, patientID string) (emergency.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT patient_id, blood_type, allergies, medications, conditions, emergency_contact, updated_at
		FROM emergency_summaries
		WHERE patient_id = $1
	`, patientID)

	var sum emergency.Summary
	var allergies, medications, conditions string
	var updatedAt sql.NullTime

	if err := row.Scan(
		&sum.PatientID,
		&sum.BloodType,
		&allergies,
		&medications,
		&conditions,
		&sum.EmergencyContact,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return emergency.Summary{}, ErrNotFound
		}
		return emergency.Summary{}, err
	}

	sum.Allergies = splitCSV(allergies)
	sum.Medications = splitCSV(medications)
	sum.Conditions = splitCSV(conditions)
	if updatedAt.Valid {
		ts := updatedAt.Time
		sum.UpdatedAt = &ts
	}

	return sum, nil
}

func (s *SummaryStore) Put(ctx context.Context, sum emergency.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emergency_summaries (patient_id, blood_type, allergies, medications, conditions, emergency_contact, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (patient_id) DO UPDATE SET
			blood_type = EXCLUDED.blood_type,
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			conditions = EXCLUDED.conditions,
			emergency_contact = EXCLUDED.emergency_contact,
			updated_at = EXCLUDED.updated_at
	`,
		sum.PatientID,
		sum.BloodType,
		joinCSV(sum.Allergies),
		joinCSV(sum.Medications),
		joinCSV(sum.Conditions),
		sum.EmergencyContact,
		toNullTime(sum.UpdatedAt),
	)
	return err
}

func joinCSV(in []string) string {
	return strings.Join(in, ",")
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
