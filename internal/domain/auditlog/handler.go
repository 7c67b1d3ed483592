package auditlog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"health-data-access/internal/middleware"
	"health-data-access/internal/ports/directory"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, dir directory.Directory) {
	r.Get("/patients/{patientID}/access-logs", patientHistoryHandler(svc, dir))
	r.Get("/me/access-logs", myHistoryHandler(svc))

	// Solo admins: monitoreo de seguridad y agregados.
	r.Get("/access-logs/failed", failedAttemptsHandler(svc, dir))
	r.Get("/access-logs/stats", statsHandler(svc, dir))
}

type entryResponse struct {
	ID                string    `json:"id"`
	AccessorID        string    `json:"accessor_id"`
	AccessorType      string    `json:"accessor_type"`
	AccessorName      string    `json:"accessor_name,omitempty"`
	PatientID         string    `json:"patient_id"`
	ResourceType      string    `json:"resource_type"`
	ResourceID        string    `json:"resource_id,omitempty"`
	Action            string    `json:"action"`
	Reason            string    `json:"reason,omitempty"`
	BookingID         string    `json:"booking_id,omitempty"`
	AccessTokenID     string    `json:"access_token_id,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	Endpoint          string    `json:"endpoint,omitempty"`
	Method            string    `json:"method,omitempty"`
	Success           bool      `json:"success"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	UsageRecordFailed bool      `json:"usage_record_failed,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

func patientHistoryHandler(svc *Service, dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		patientID := chi.URLParam(r, "patientID")

		// El historial de un paciente lo ve el propio paciente o un admin.
		if claims.UserID != patientID {
			u, err := dir.Lookup(r.Context(), claims.UserID)
			if err != nil || u.Role != directory.RoleAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		items, err := svc.PatientHistory(r.Context(), patientID, filterFromQuery(r))
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponses(items))
	}
}

func myHistoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.AccessorHistory(r.Context(), claims.UserID, filterFromQuery(r))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponses(items))
	}
}

func failedAttemptsHandler(svc *Service, dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r, dir) {
			return
		}

		items, err := svc.FailedAttempts(r.Context(), filterFromQuery(r))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponses(items))
	}
}

type statResponse struct {
	Day          string `json:"day"`
	ResourceType string `json:"resource_type"`
	Success      bool   `json:"success"`
	Count        int    `json:"count"`
}

func statsHandler(svc *Service, dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r, dir) {
			return
		}

		days := 7
		if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				days = n
			}
		}

		buckets, err := svc.Stats(r.Context(), days)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]statResponse, 0, len(buckets))
		for _, b := range buckets {
			out = append(out, statResponse{
				Day:          b.Day,
				ResourceType: b.ResourceType,
				Success:      b.Success,
				Count:        b.Count,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func requireAdmin(w http.ResponseWriter, r *http.Request, dir directory.Directory) bool {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	u, err := dir.Lookup(r.Context(), claims.UserID)
	if err != nil || u.Role != directory.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// from/to en RFC3339, limit/offset numéricos.
func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()

	var f Filter
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Limit = n
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Offset = n
		}
	}
	return f
}

func toEntryResponses(items []Entry) []entryResponse {
	out := make([]entryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, entryResponse{
			ID:                e.ID,
			AccessorID:        e.Actor.UserID,
			AccessorType:      string(e.Actor.UserType),
			AccessorName:      e.Actor.Name,
			PatientID:         e.PatientID,
			ResourceType:      e.ResourceType,
			ResourceID:        e.ResourceID,
			Action:            string(e.Action),
			Reason:            string(e.Reason),
			BookingID:         e.BookingID,
			AccessTokenID:     e.AccessTokenID,
			IPAddress:         e.IPAddress,
			Endpoint:          e.Endpoint,
			Method:            e.Method,
			Success:           e.Success,
			ErrorMessage:      e.ErrorMessage,
			UsageRecordFailed: e.UsageRecordFailed,
			Timestamp:         e.Timestamp,
		})
	}
	return out
}

// writeJSON se duplica a propósito en los handlers de cada módulo
// para no crear helpers compartidos antes de tiempo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
