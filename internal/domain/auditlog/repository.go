package auditlog

import (
	"context"
	"time"
)

type Repository interface {
	Append(ctx context.Context, e Entry) error

	ListByPatient(ctx context.Context, patientID string, f Filter) ([]Entry, error)
	ListByAccessor(ctx context.Context, userID string, f Filter) ([]Entry, error)
	ListFailed(ctx context.Context, f Filter) ([]Entry, error)
	Stats(ctx context.Context, since time.Time) ([]StatBucket, error)
}
