package auth

import "context"

// AuthVerifier verifica un token de transporte y devuelve claims o error.
// La autenticación ya ocurrió upstream; acá solo se extrae la identidad.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
