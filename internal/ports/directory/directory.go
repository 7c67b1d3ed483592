package directory

import "context"

// Directory es el directorio de identidades (colaborador externo).
// Dado un user id devuelve rol, afiliación hospitalaria y nombre.
// Se asume consistente al momento de la llamada.
type Directory interface {
	Lookup(ctx context.Context, userID string) (User, error)

	// ListProviders devuelve los clínicos afiliados a un hospital.
	// Lo usa solo el chequeo de frontera hospitalaria al emitir tokens.
	ListProviders(ctx context.Context, hospitalID string) ([]User, error)
}
