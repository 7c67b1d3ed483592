package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bksmem "health-data-access/internal/adapters/bookings/memory"
	dirmem "health-data-access/internal/adapters/directory/memory"
	"health-data-access/internal/ports/directory"
	"health-data-access/internal/router"

	"github.com/rs/zerolog"
)

func newTestRouter(t *testing.T) (*httptest.Server, *router.Router) {
	t.Helper()

	dir := dirmem.NewDirectory(
		directory.User{ID: "patient-1", Name: "Ana", Role: directory.RolePatient},
		directory.User{ID: "patient-2", Name: "Luz", Role: directory.RolePatient},
		directory.User{ID: "doctor-1", Name: "Dr. Gomez", Role: directory.RoleDoctor, HospitalID: "hosp-1"},
		directory.User{ID: "doctor-2", Name: "Dr. Soto", Role: directory.RoleDoctor, HospitalID: "hosp-2"},
		directory.User{ID: "admin-1", Name: "Marta", Role: directory.RoleAdmin, HospitalID: "hosp-1"},
	)

	bks := bksmem.NewService()
	bks.AddBooking("patient-1", "doctor-1")

	rt := router.New(router.Options{
		Log:       zerolog.Nop(),
		Directory: dir,
		Bookings:  bks,
	})

	ts := httptest.NewServer(rt)
	return ts, rt
}

func TestHTTP_EndToEnd_TokenLifecycle(t *testing.T) {
	ts, rt := newTestRouter(t)
	defer ts.Close()

	// 1) El clínico sin token no tiene acceso (denegación uniforme)
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "doctor-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "VIEW",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 before grant, got %d body=%s", st, string(body))
		}
	}

	// 2) El admin emite un token acotado para el clínico
	tokenID := issueToken(t, ts.URL, "admin-1", "patient-1", map[string]any{
		"granted_to":        "doctor-1",
		"access_level":      "READ_ONLY",
		"allowed_resources": []string{"HEALTH_RECORD"},
		"expires_at":        time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"max_usage":         2,
	})

	// 3) Con token, el acceso de lectura pasa
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "doctor-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "VIEW",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 with token, got %d body=%s", st, string(body))
		}
		var resp struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
			TokenID string `json:"token_id"`
		}
		_ = json.Unmarshal(body, &resp)
		if !resp.Allowed || resp.TokenID != tokenID {
			t.Fatalf("unexpected decision: %s", string(body))
		}
	}

	// 4) Escritura con token READ_ONLY => denegado
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "doctor-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "UPDATE",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for write with read-only token, got %d", st)
		}
	}

	// 5) Recurso fuera del alcance => denegado
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "doctor-1", map[string]any{
			"resource": "DOCTOR_NOTE",
			"action":   "VIEW",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for uncovered resource, got %d", st)
		}
	}

	// 6) El paciente ve sus tokens con el uso consumido
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/patient-1/access-tokens", "patient-1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 listing tokens, got %d body=%s", st, string(body))
		}
		var items []struct {
			ID         string `json:"id"`
			UsageCount int    `json:"usage_count"`
		}
		_ = json.Unmarshal(body, &items)
		if len(items) != 1 || items[0].UsageCount != 1 {
			t.Fatalf("expected 1 token with 1 use, got %s", string(body))
		}
	}

	// 7) El paciente revoca
	{
		st, body := doReq(t, ts.URL, "POST", "/access-tokens/"+tokenID+"/revoke", "patient-1", map[string]any{
			"reason": "cambio de médico",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 revoking, got %d body=%s", st, string(body))
		}
	}

	// 8) Revocar de nuevo => 409
	{
		st, _ := doReq(t, ts.URL, "POST", "/access-tokens/"+tokenID+"/revoke", "patient-1", nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on double revoke, got %d", st)
		}
	}

	// 9) El clínico pierde el acceso inmediatamente
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "doctor-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "VIEW",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 after revoke, got %d", st)
		}
	}

	// 10) Paciente sobre sí mismo y admin auditor siempre pasan
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "patient-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "UPDATE",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 self access, got %d body=%s", st, string(body))
		}

		st, body = doReq(t, ts.URL, "POST", "/patients/patient-1/access/check", "admin-1", map[string]any{
			"resource": "HEALTH_RECORD",
			"action":   "VIEW",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 admin audit access, got %d body=%s", st, string(body))
		}
		var resp struct {
			AccessLevel string `json:"access_level"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.AccessLevel != "READ_ONLY" {
			t.Fatalf("expected admin forced READ_ONLY, got %s", string(body))
		}
	}

	// 11) Drenar auditoría y verificar que todo intento quedó registrado
	rt.Close()
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/patient-1/access-logs", "patient-1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 access logs, got %d body=%s", st, string(body))
		}
		var entries []struct {
			Success bool `json:"success"`
		}
		_ = json.Unmarshal(body, &entries)

		granted, denied := 0, 0
		for _, e := range entries {
			if e.Success {
				granted++
			} else {
				denied++
			}
		}
		// 3 concedidos (token, self, admin) y 4 denegados (pasos 1, 4, 5, 9).
		if granted != 3 || denied != 4 {
			t.Fatalf("expected 3 granted / 4 denied audit entries, got %d/%d body=%s",
				granted, denied, string(body))
		}
	}
}

func TestHTTP_HospitalBoundary(t *testing.T) {
	ts, rt := newTestRouter(t)
	defer ts.Close()
	defer rt.Close()

	// Clínico de otro hospital => 403
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/access-tokens", "admin-1", map[string]any{
			"granted_to":        "doctor-2",
			"allowed_resources": []string{"HEALTH_RECORD"},
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 cross-hospital grant, got %d", st)
		}
	}

	// Paciente sin bookings con el hospital => 403
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-2/access-tokens", "admin-1", map[string]any{
			"granted_to":        "doctor-1",
			"allowed_resources": []string{"HEALTH_RECORD"},
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 without bookings, got %d", st)
		}
	}

	// Un no-admin no puede emitir
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/access-tokens", "doctor-1", map[string]any{
			"granted_to":        "doctor-1",
			"allowed_resources": []string{"HEALTH_RECORD"},
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for non-admin granter, got %d", st)
		}
	}
}

func TestHTTP_AuditEndpoints_AdminOnly(t *testing.T) {
	ts, rt := newTestRouter(t)
	defer ts.Close()
	defer rt.Close()

	{
		st, _ := doReq(t, ts.URL, "GET", "/access-logs/failed", "doctor-1", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for non-admin on failed attempts, got %d", st)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "GET", "/access-logs/stats", "admin-1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 for admin stats, got %d", st)
		}
	}
	// El historial de un paciente lo ve el paciente o un admin, nadie más.
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/patient-1/access-logs", "patient-2", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for another patient, got %d", st)
		}
	}
}

func TestHTTP_EmergencyToken(t *testing.T) {
	ts, rt := newTestRouter(t)
	defer ts.Close()
	defer rt.Close()

	// Solo el propio paciente genera su token
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/patient-1/emergency-tokens", "patient-2", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 generating for another patient, got %d", st)
		}
	}

	var token string
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/patient-1/emergency-tokens", "patient-1", map[string]any{
			"expiry_hours": 12,
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 generating emergency token, got %d body=%s", st, string(body))
		}
		var resp struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Token == "" {
			t.Fatalf("missing token value: %s", string(body))
		}
		token = resp.Token
	}

	// Sin resumen cargado, el token vigente responde igual que inexistente.
	{
		st, _ := doReq(t, ts.URL, "GET", "/emergency/"+token, "", nil)
		if st != http.StatusNotFound {
			t.Fatalf("expected 404 without summary, got %d", st)
		}
	}

	// Un token inventado tampoco da señal.
	{
		st, _ := doReq(t, ts.URL, "GET", "/emergency/deadbeef", "", nil)
		if st != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown token, got %d", st)
		}
	}
}

func issueToken(t *testing.T, baseURL, adminID, patientID string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/patients/"+patientID+"/access-tokens", adminID, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 issuing token, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("issue token: missing id body=%s", string(body))
	}
	return resp.ID
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
