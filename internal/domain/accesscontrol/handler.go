package accesscontrol

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/middleware"
	"health-data-access/internal/ports/directory"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, dir directory.Directory) {
	r.Post("/patients/{patientID}/access/check", checkAccessHandler(svc, dir))
}

type checkAccessRequest struct {
	Resource   string `json:"resource"`
	ResourceID string `json:"resource_id,omitempty"`
	Action     string `json:"action"`
}

type decisionResponse struct {
	Allowed     bool   `json:"allowed"`
	AccessLevel string `json:"access_level,omitempty"`
	Reason      string `json:"reason,omitempty"`
	TokenID     string `json:"token_id,omitempty"`
}

// checkAccessHandler godoc
// @Summary Autorizar un acceso a datos de un paciente
// @Description Resuelve la clase de acceso del caller (paciente / admin / clínico con token) y devuelve la decisión. Todo intento queda auditado, se conceda o no. La denegación externa es siempre uniforme.
// @Tags access
// @Accept json
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param payload body checkAccessRequest true "Recurso y acción solicitados"
// @Success 200 {object} decisionResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "you do not have access"
// @Router /patients/{patientID}/access/check [post]
func checkAccessHandler(svc *Service, dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		accessor, err := dir.Lookup(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req checkAccessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		action, ok := auditlog.ParseAction(req.Action)
		if !ok {
			http.Error(w, "invalid action", http.StatusBadRequest)
			return
		}

		decision, err := svc.Authorize(r.Context(), Request{
			Accessor:   accessor,
			PatientID:  chi.URLParam(r, "patientID"),
			Resource:   req.Resource,
			ResourceID: req.ResourceID,
			Action:     action,
			IP:         r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			Endpoint:   r.URL.Path,
			Method:     r.Method,
		})
		if err != nil {
			if errors.Is(err, ErrDenied) {
				http.Error(w, ErrDenied.Error(), http.StatusForbidden)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, decisionResponse{
			Allowed:     decision.Allowed,
			AccessLevel: string(decision.Level),
			Reason:      string(decision.Reason),
			TokenID:     decision.TokenID,
		})
	}
}

// writeJSON se duplica a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
