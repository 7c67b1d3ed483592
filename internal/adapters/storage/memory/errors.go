package memory

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrNotUsable lo devuelve Consume cuando la actualización condicional
	// rechaza (token inactivo, expirado o agotado).
	ErrNotUsable = errors.New("token not usable")
)
