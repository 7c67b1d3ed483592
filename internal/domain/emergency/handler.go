package emergency

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"health-data-access/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Lo genera el paciente (o su dashboard).
	r.Post("/patients/{patientID}/emergency-tokens", generateTokenHandler(svc))

	// Resolución anónima: el primer respondiente no está autenticado.
	r.Get("/emergency/{token}", resolveTokenHandler(svc))
}

type generateTokenRequest struct {
	ExpiryHours int `json:"expiry_hours,omitempty"`
}

type generateTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// generateTokenHandler godoc
// @Summary Generar token de emergencia (QR)
// @Description El paciente genera un token anónimo de corta vida que resuelve a su resumen mínimo de emergencia. Pueden convivir varios tokens vigentes.
// @Tags emergency
// @Accept json
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param payload body generateTokenRequest false "TTL en horas (default 24)"
// @Success 201 {object} generateTokenResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/emergency-tokens [post]
func generateTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if claims.UserID != patientID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req generateTokenRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body opcional
		}

		t, err := svc.Generate(r.Context(), patientID, req.ExpiryHours)
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, generateTokenResponse{
			Token:     t.Value,
			ExpiresAt: t.ExpiresAt,
		})
	}
}

func resolveTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "token")

		sum, ok := svc.Resolve(r.Context(), raw)
		if !ok {
			// Expirado e inexistente responden igual a propósito.
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, sum)
	}
}

// writeJSON se duplica a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
