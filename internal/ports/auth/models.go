package auth

// Claims representa la información extraída del token de transporte.
// Rol y hospital NO viajan en el token: se resuelven contra el directorio
// de identidades en cada request.
type Claims struct {
	UserID string
	Email  string
}
