package accesstokens

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"health-data-access/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/patients/{patientID}/access-tokens", func(tr chi.Router) {
		tr.Post("/", issueTokenHandler(svc))
		tr.Get("/", listTokensHandler(svc))
	})

	r.Post("/access-tokens/{tokenID}/revoke", revokeTokenHandler(svc))
}

type issueTokenRequest struct {
	GrantedTo        string   `json:"granted_to"`
	BookingID        string   `json:"booking_id,omitempty"`
	AccessLevel      string   `json:"access_level"`
	AllowedResources []string `json:"allowed_resources"`
	GrantReason      string   `json:"grant_reason,omitempty"`
	ExpiresAt        string   `json:"expires_at,omitempty"` // RFC3339
	MaxUsage         *int     `json:"max_usage,omitempty"`
}

type tokenResponse struct {
	ID               string     `json:"id"`
	GrantedTo        string     `json:"granted_to"`
	GrantedToRole    string     `json:"granted_to_role"`
	PatientID        string     `json:"patient_id"`
	BookingID        string     `json:"booking_id,omitempty"`
	AccessLevel      string     `json:"access_level"`
	AllowedResources []string   `json:"allowed_resources"`
	GrantedBy        string     `json:"granted_by"`
	GrantReason      string     `json:"grant_reason,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	MaxUsage         *int       `json:"max_usage,omitempty"`
	UsageCount       int        `json:"usage_count"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokedByType    string     `json:"revoked_by_type,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

// issueTokenHandler godoc
// @Summary Emitir token de acceso a datos de salud
// @Description Un admin otorga a un clínico acceso acotado (tiempo, recursos, usos) a los datos de un paciente. Admins con afiliación hospitalaria solo pueden otorgar dentro de su hospital. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags access-tokens
// @Accept json
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param payload body issueTokenRequest true "Parámetros del grant; expires_at en RFC3339"
// @Success 201 {object} tokenResponse
// @Failure 400 {string} string "parámetros inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "fuera de la frontera hospitalaria / no es admin"
// @Failure 404 {string} string "usuario inexistente"
// @Router /patients/{patientID}/access-tokens [post]
func issueTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientID := chi.URLParam(r, "patientID")

		var req issueTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		in := IssueInput{
			GrantedTo:   req.GrantedTo,
			PatientID:   patientID,
			BookingID:   req.BookingID,
			GrantedBy:   claims.UserID,
			GrantReason: req.GrantReason,
			MaxUsage:    req.MaxUsage,
		}

		if req.AccessLevel != "" {
			level, ok := ParseAccessLevel(req.AccessLevel)
			if !ok {
				http.Error(w, "invalid access_level", http.StatusBadRequest)
				return
			}
			in.AccessLevel = level
		}

		for _, raw := range req.AllowedResources {
			in.AllowedResources = append(in.AllowedResources, ResourceType(raw))
		}

		if strings.TrimSpace(req.ExpiresAt) != "" {
			t, err := time.Parse(time.RFC3339, req.ExpiresAt)
			if err != nil {
				http.Error(w, "expires_at must be RFC3339", http.StatusBadRequest)
				return
			}
			in.ExpiresAt = &t
		}

		token, err := svc.Issue(r.Context(), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTokenResponse(token))
	}
}

func listTokensHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientID := chi.URLParam(r, "patientID")

		// El listado lo ve el propio paciente; cualquier otro rol pasa por
		// el chequeo de admin dentro del service en los endpoints de emisión.
		if claims.UserID != patientID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		items, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]tokenResponse, 0, len(items))
		for _, t := range items {
			out = append(out, toTokenResponse(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type revokeTokenRequest struct {
	Reason string `json:"reason,omitempty"`
}

// revokeTokenHandler godoc
// @Summary Revocar token de acceso
// @Description Revoca un token en cualquier momento. Puede hacerlo el paciente dueño o un admin. Revocar un token ya revocado devuelve 409.
// @Tags access-tokens
// @Accept json
// @Produce json
// @Param tokenID path string true "ID del token"
// @Param payload body revokeTokenRequest false "Motivo de la revocación"
// @Success 200 {object} tokenResponse
// @Failure 409 {string} string "token ya revocado"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "token inexistente"
// @Router /access-tokens/{tokenID}/revoke [post]
func revokeTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		tokenID := chi.URLParam(r, "tokenID")

		var req revokeTokenRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body opcional
		}

		token, err := svc.Revoke(r.Context(), tokenID, claims.UserID, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTokenResponse(token))
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toTokenResponse(t AccessToken) tokenResponse {
	resources := make([]string, 0, len(t.AllowedResources))
	for _, rt := range t.AllowedResources {
		resources = append(resources, string(rt))
	}

	return tokenResponse{
		ID:               t.ID,
		GrantedTo:        t.GrantedTo,
		GrantedToRole:    string(t.GrantedToRole),
		PatientID:        t.PatientID,
		BookingID:        t.BookingID,
		AccessLevel:      string(t.AccessLevel),
		AllowedResources: resources,
		GrantedBy:        t.GrantedBy,
		GrantReason:      t.GrantReason,
		IssuedAt:         t.IssuedAt,
		ExpiresAt:        t.ExpiresAt,
		MaxUsage:         t.MaxUsage,
		UsageCount:       t.UsageCount,
		LastUsedAt:       t.LastUsedAt,
		IsActive:         t.IsActive,
		RevokedAt:        t.RevokedAt,
		RevokedByType:    string(t.RevokedByType),
		RevocationReason: t.RevocationReason,
	}
}

// writeJSON se duplica a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
