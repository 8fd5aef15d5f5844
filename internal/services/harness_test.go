package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/database/memstore"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	patientEmail    = "jane@example.com"
	patientPassword = "correct-horse-1"
	staffNumber     = "ST-0042"
	staffEmail      = "therapist@clinic.example"
	staffPassword   = "Therapist-pass"
)

var meta = models.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []services.ResetMessage
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, msg services.ResetMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Messages() []services.ResetMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.ResetMessage(nil), n.msgs...)
}

type harness struct {
	clock    *fakeClock
	km       utils.KeyMaterial
	store    *memstore.Store
	sessions *memstore.SessionStore
	notifier *recordingNotifier
	svc      *services.AuthService
}

func newHarness(t *testing.T, opts ...services.TokenOption) *harness {
	t.Helper()
	km, err := utils.GenerateKeyMaterial()
	require.NoError(t, err)

	clock := newFakeClock()
	h := &harness{
		clock:    clock,
		km:       km,
		store:    memstore.New(),
		sessions: memstore.NewSessionStore(clock.Now),
		notifier: &recordingNotifier{},
	}
	h.svc = h.service(t, km, opts...)
	return h
}

// service builds an AuthService over the harness stores with km.
func (h *harness) service(t *testing.T, km utils.KeyMaterial, opts ...services.TokenOption) *services.AuthService {
	t.Helper()
	cipher, err := utils.NewFieldCipher(km)
	require.NoError(t, err)
	creds, err := utils.NewCredentialVerifier(bcrypt.MinCost)
	require.NoError(t, err)

	now := services.Clock(h.clock.Now)
	return services.NewAuthService(services.AuthDeps{
		Store:       h.store,
		Principals:  services.NewPrincipalStore(cipher, utils.NewBlindIndexer(km), creds, now),
		Sessions:    services.NewSessionAuthenticator(h.sessions, now),
		Tokens:      services.NewTokenService(now, opts...),
		Lockout:     services.DefaultLockoutPolicy(),
		Audit:       services.NewAuditLogger(now),
		Assignments: h.store,
		Notifier:    h.notifier,
		Clock:       now,
	})
}

func (h *harness) registerPatient(t *testing.T, email string) uuid.UUID {
	t.Helper()
	summary, err := h.svc.RegisterPatient(context.Background(), models.NewPatientAttrs{
		Name:      "Jane Doe",
		Email:     email,
		BirthDate: "1990-04-01",
		Password:  patientPassword,
	}, meta)
	require.NoError(t, err)
	return uuid.MustParse(summary.ID)
}

func (h *harness) provisionStaff(t *testing.T, number, email string) uuid.UUID {
	t.Helper()
	summary, err := h.svc.ProvisionStaff(context.Background(), models.NewStaffAttrs{
		StaffNumber: number,
		Name:        "Sam Therapist",
		Email:       email,
		Password:    staffPassword,
	}, meta)
	require.NoError(t, err)
	return uuid.MustParse(summary.ID)
}

func (h *harness) loginPatient(t *testing.T) models.Session {
	t.Helper()
	return h.loginPatientWith(t, patientPassword)
}

func (h *harness) loginPatientWith(t *testing.T, password string) models.Session {
	t.Helper()
	res, err := h.svc.Login(context.Background(), models.KindPatient, patientEmail, password, "", meta)
	require.NoError(t, err)
	return res.Session
}

func (h *harness) loginStaff(t *testing.T) models.Session {
	t.Helper()
	res, err := h.svc.Login(context.Background(), models.KindStaff, staffNumber, staffPassword, "", meta)
	require.NoError(t, err)
	return res.Session
}

func (h *harness) lastAudit(t *testing.T) models.AuditEntry {
	t.Helper()
	entries := h.store.AuditEntries()
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func (h *harness) auditCount() int {
	return len(h.store.AuditEntries())
}

// lastResetToken returns the value of the most recent reset link.
func (h *harness) lastResetToken(t *testing.T) string {
	t.Helper()
	msgs := h.notifier.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Token
}
