package emergency

import "context"

type Repository interface {
	Create(ctx context.Context, t Token) error

	// GetByValue busca por el valor crudo del token.
	GetByValue(ctx context.Context, value string) (Token, error)
}

// SummaryStore guarda el resumen de emergencia precomputado por paciente.
// Lo mantiene un colaborador externo vía Put; este módulo solo lee.
type SummaryStore interface {
	Get(ctx context.Context, patientID string) (Summary, error)
	Put(ctx context.Context, s Summary) error
}
