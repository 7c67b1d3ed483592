package accesscontrol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"health-data-access/internal/domain/accesstokens"
	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/ports/directory"

	"github.com/rs/zerolog"
)

// -------------------------
// Fakes
// -------------------------

type tokensRepo struct {
	mu   sync.Mutex
	byID map[string]accesstokens.AccessToken
}

func (r *tokensRepo) Create(ctx context.Context, t accesstokens.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = t
	return nil
}

func (r *tokensRepo) GetByID(ctx context.Context, id string) (accesstokens.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return accesstokens.AccessToken{}, errors.New("not found")
	}
	return t, nil
}

func (r *tokensRepo) ListByPatient(ctx context.Context, patientID string) ([]accesstokens.AccessToken, error) {
	return nil, nil
}

func (r *tokensRepo) FindUsable(ctx context.Context, clinicianID, patientID string, now time.Time) (accesstokens.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.GrantedTo == clinicianID && t.PatientID == patientID && t.Usable(now) {
			return t, nil
		}
	}
	return accesstokens.AccessToken{}, errors.New("not found")
}

func (r *tokensRepo) Consume(ctx context.Context, id string, now time.Time, ip string) (accesstokens.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || !t.Usable(now) {
		return accesstokens.AccessToken{}, errors.New("not usable")
	}
	t.UsageCount++
	t.LastUsedAt = &now
	t.LastUsedIP = ip
	if t.MaxUsage != nil && t.UsageCount >= *t.MaxUsage {
		t.IsActive = false
	}
	r.byID[id] = t
	return t, nil
}

func (r *tokensRepo) Update(ctx context.Context, t accesstokens.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = t
	return nil
}

type auditRepo struct {
	mu      sync.Mutex
	entries []auditlog.Entry
}

func (r *auditRepo) Append(ctx context.Context, e auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *auditRepo) ListByPatient(ctx context.Context, patientID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return nil, nil
}
func (r *auditRepo) ListByAccessor(ctx context.Context, userID string, f auditlog.Filter) ([]auditlog.Entry, error) {
	return nil, nil
}
func (r *auditRepo) ListFailed(ctx context.Context, f auditlog.Filter) ([]auditlog.Entry, error) {
	return nil, nil
}
func (r *auditRepo) Stats(ctx context.Context, since time.Time) ([]auditlog.StatBucket, error) {
	return nil, nil
}

func (r *auditRepo) all() []auditlog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auditlog.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

type nullDirectory struct{}

func (nullDirectory) Lookup(ctx context.Context, userID string) (directory.User, error) {
	return directory.User{}, errors.New("not found")
}
func (nullDirectory) ListProviders(ctx context.Context, hospitalID string) ([]directory.User, error) {
	return nil, nil
}

type nullBookings struct{}

func (nullBookings) HasAnyBooking(ctx context.Context, patientID string, providerIDs []string) (bool, error) {
	return false, nil
}

// allowN permite las primeras n llamadas y deniega el resto.
type allowN struct {
	mu sync.Mutex
	n  int
}

func (l *allowN) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n <= 0 {
		return false
	}
	l.n--
	return true
}

// -------------------------
// Harness
// -------------------------

type harness struct {
	svc    *Service
	audit  *auditlog.Service
	tokens *tokensRepo
	logs   *auditRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tokens := &tokensRepo{byID: map[string]accesstokens.AccessToken{}}
	logs := &auditRepo{}

	tokensSvc := accesstokens.NewService(tokens, nullDirectory{}, nullBookings{}, zerolog.Nop())
	auditSvc := auditlog.NewService(logs, zerolog.Nop(), 64)

	return &harness{
		svc:    NewService(tokensSvc, auditSvc, nil, zerolog.Nop()),
		audit:  auditSvc,
		tokens: tokens,
		logs:   logs,
	}
}

// drain cierra el audit logger para que las entradas encoladas lleguen al repo.
func (h *harness) drain() { h.audit.Close() }

func (h *harness) seedToken(tok accesstokens.AccessToken) {
	_ = h.tokens.Create(context.Background(), tok)
}

func usableToken(id string) accesstokens.AccessToken {
	now := time.Now()
	return accesstokens.AccessToken{
		ID:               id,
		GrantedTo:        "doctor-1",
		GrantedToRole:    directory.RoleDoctor,
		PatientID:        "patient-1",
		AccessLevel:      accesstokens.ReadOnly,
		AllowedResources: []accesstokens.ResourceType{accesstokens.ResourceHealthRecord},
		IssuedAt:         now,
		ExpiresAt:        now.Add(24 * time.Hour),
		IsActive:         true,
	}
}

func baseRequest(accessor directory.User) Request {
	return Request{
		Accessor:  accessor,
		PatientID: "patient-1",
		Resource:  "HEALTH_RECORD",
		Action:    auditlog.ActionView,
		IP:        "10.0.0.1",
		Endpoint:  "/patients/patient-1/records",
		Method:    "GET",
	}
}

var (
	patientSelf = directory.User{ID: "patient-1", Role: directory.RolePatient}
	otherPatient = directory.User{ID: "patient-2", Role: directory.RolePatient}
	adminUser   = directory.User{ID: "admin-1", Role: directory.RoleAdmin}
	doctorUser  = directory.User{ID: "doctor-1", Role: directory.RoleDoctor, HospitalID: "hosp-1"}
)

// -------------------------
// Tests
// -------------------------

func TestAuthorize_PatientSelf_AllowsReadWrite(t *testing.T) {
	h := newHarness(t)

	d, err := h.svc.Authorize(context.Background(), baseRequest(patientSelf))
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !d.Allowed || d.Level != accesstokens.ReadWrite || d.Reason != auditlog.ReasonSelf {
		t.Fatalf("unexpected decision: %+v", d)
	}

	h.drain()
	entries := h.logs.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(entries))
	}
	if !entries[0].Success || entries[0].Reason != auditlog.ReasonSelf {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
}

func TestAuthorize_PatientOther_DeniedUniform(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Authorize(context.Background(), baseRequest(otherPatient))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	h.drain()
	entries := h.logs.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Success {
		t.Fatalf("expected failed entry")
	}
	if e.ErrorMessage == "" {
		t.Fatalf("expected internal reason recorded in audit")
	}
	// El motivo interno nunca debe coincidir con el mensaje externo.
	if e.ErrorMessage == ErrDenied.Error() {
		t.Fatalf("audit reason must be more specific than external denial")
	}
}

func TestAuthorize_Admin_ForcedReadOnly(t *testing.T) {
	h := newHarness(t)

	req := baseRequest(adminUser)
	req.Action = auditlog.ActionUpdate // pide escritura, no importa

	d, err := h.svc.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if d.Level != accesstokens.ReadOnly || d.Reason != auditlog.ReasonAdminAudit {
		t.Fatalf("expected forced READ_ONLY/ADMIN_AUDIT, got %+v", d)
	}
}

func TestAuthorize_Clinician_WithToken_AllowsAndConsumes(t *testing.T) {
	h := newHarness(t)
	h.seedToken(usableToken("tok-1"))

	d, err := h.svc.Authorize(context.Background(), baseRequest(doctorUser))
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !d.Allowed || d.TokenID != "tok-1" || d.Reason != auditlog.ReasonDirectAccess {
		t.Fatalf("unexpected decision: %+v", d)
	}

	after, _ := h.tokens.GetByID(context.Background(), "tok-1")
	if after.UsageCount != 1 {
		t.Fatalf("expected usage consumed, got %d", after.UsageCount)
	}
	if after.LastUsedIP != "10.0.0.1" {
		t.Fatalf("expected last used IP recorded, got %q", after.LastUsedIP)
	}

	h.drain()
	entries := h.logs.all()
	if len(entries) != 1 || entries[0].AccessTokenID != "tok-1" {
		t.Fatalf("expected 1 audit entry with token id, got %+v", entries)
	}
}

func TestAuthorize_Clinician_BookingProvenance(t *testing.T) {
	h := newHarness(t)
	tok := usableToken("tok-1")
	tok.BookingID = "booking-9"
	h.seedToken(tok)

	d, err := h.svc.Authorize(context.Background(), baseRequest(doctorUser))
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if d.Reason != auditlog.ReasonBookingAssignment || d.BookingID != "booking-9" {
		t.Fatalf("expected booking provenance, got %+v", d)
	}
}

func TestAuthorize_Clinician_NoToken_Denied(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Authorize(context.Background(), baseRequest(doctorUser))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestAuthorize_Clinician_ResourceNotCovered_Denied(t *testing.T) {
	h := newHarness(t)
	h.seedToken(usableToken("tok-1")) // solo HEALTH_RECORD

	req := baseRequest(doctorUser)
	req.Resource = "DOCTOR_NOTE"

	_, err := h.svc.Authorize(context.Background(), req)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	// Denegado pero el intento queda atado al token que lo intentó.
	h.drain()
	entries := h.logs.all()
	if len(entries) != 1 || entries[0].AccessTokenID != "tok-1" {
		t.Fatalf("expected denial audited with token id, got %+v", entries)
	}
	// Una denegación por cobertura no consume usos.
	after, _ := h.tokens.GetByID(context.Background(), "tok-1")
	if after.UsageCount != 0 {
		t.Fatalf("expected no usage consumed on denial, got %d", after.UsageCount)
	}
}

func TestAuthorize_Clinician_FullHistoryWildcard(t *testing.T) {
	h := newHarness(t)
	tok := usableToken("tok-1")
	tok.AllowedResources = []accesstokens.ResourceType{accesstokens.ResourceFullHistory}
	h.seedToken(tok)

	req := baseRequest(doctorUser)
	req.Resource = "DOCTOR_NOTE"

	d, err := h.svc.Authorize(context.Background(), req)
	if err != nil || !d.Allowed {
		t.Fatalf("expected wildcard to cover any resource, got d=%+v err=%v", d, err)
	}
}

func TestAuthorize_Clinician_WriteWithReadOnlyToken_Denied(t *testing.T) {
	h := newHarness(t)
	h.seedToken(usableToken("tok-1")) // READ_ONLY

	req := baseRequest(doctorUser)
	req.Action = auditlog.ActionUpdate

	_, err := h.svc.Authorize(context.Background(), req)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for write with read-only token, got %v", err)
	}
}

func TestAuthorize_Clinician_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.seedToken(usableToken("tok-1"))
	h.svc.limiter = &allowN{n: 1}

	if _, err := h.svc.Authorize(context.Background(), baseRequest(doctorUser)); err != nil {
		t.Fatalf("request #1 should pass: %v", err)
	}
	_, err := h.svc.Authorize(context.Background(), baseRequest(doctorUser))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected rate-limited request denied, got %v", err)
	}

	h.drain()
	entries := h.logs.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
}

func TestAuthorize_UnknownRole_Denied(t *testing.T) {
	h := newHarness(t)

	req := baseRequest(directory.User{ID: "x", Role: directory.Role("superuser")})
	_, err := h.svc.Authorize(context.Background(), req)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for unknown role, got %v", err)
	}
}

func TestAuthorize_MalformedRequest_Denied(t *testing.T) {
	h := newHarness(t)

	req := baseRequest(patientSelf)
	req.PatientID = "  "
	_, err := h.svc.Authorize(context.Background(), req)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for malformed request, got %v", err)
	}
}
