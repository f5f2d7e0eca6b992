package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthcure/clinic/internal/audit"
	"github.com/healthcure/clinic/internal/crypto"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/platform/auth"
)

// memUsers is an in-memory UserRepository.
type memUsers struct {
	nextID int64
	byName map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, byName: make(map[string]*domain.User)}
}

func (m *memUsers) Create(_ context.Context, req *domain.RegisterRequest, role domain.Role, passwordHash string) (*domain.User, error) {
	if _, ok := m.byName[req.Username]; ok {
		return nil, domain.ErrUsernameTaken
	}
	u := &domain.User{
		ID:           m.nextID,
		Username:     req.Username,
		Role:         role,
		PasswordHash: passwordHash,
		Email:        req.Email,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.nextID++
	m.byName[u.Username] = u
	return u, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := m.byName[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range m.byName {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, newHash string) error {
	for _, u := range m.byName {
		if u.ID == id {
			u.PasswordHash = newHash
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	for name, u := range m.byName {
		if u.ID == id {
			delete(m.byName, name)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memUsers) List(_ context.Context, _, _ int) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.byName {
		out = append(out, *u)
	}
	return out, nil
}

// memChallenges is an in-memory ChallengeRepository.
type memChallenges struct {
	rows map[int64]*domain.OTPChallenge
}

func newMemChallenges() *memChallenges {
	return &memChallenges{rows: make(map[int64]*domain.OTPChallenge)}
}

func (m *memChallenges) Upsert(_ context.Context, ch *domain.OTPChallenge) error {
	cp := *ch
	cp.Attempts = 0
	m.rows[ch.UserID] = &cp
	return nil
}

func (m *memChallenges) Get(_ context.Context, userID int64) (*domain.OTPChallenge, error) {
	ch, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (m *memChallenges) Delete(_ context.Context, userID int64, codeHash string) (bool, error) {
	ch, ok := m.rows[userID]
	if !ok || ch.CodeHash != codeHash {
		return false, nil
	}
	delete(m.rows, userID)
	return true, nil
}

func (m *memChallenges) DeleteAll(_ context.Context, userID int64) error {
	delete(m.rows, userID)
	return nil
}

func (m *memChallenges) IncrementAttempts(_ context.Context, userID int64) (int, error) {
	ch, ok := m.rows[userID]
	if !ok {
		return 0, nil
	}
	ch.Attempts++
	return ch.Attempts, nil
}

// captureMailer records the last code instead of sending it. fail makes every
// delivery error out.
type captureMailer struct {
	lastCode string
	sent     int
	fail     bool
}

func (c *captureMailer) SendLoginCode(_, _, code string, _ time.Duration) error {
	if c.fail {
		return errors.New("smtp connection refused")
	}
	c.lastCode = code
	c.sent++
	return nil
}

// memAudit collects recorded actions. failing simulates a dead audit store.
type memAudit struct {
	actions []string
	failing bool
}

func (m *memAudit) Insert(_ context.Context, action string, _ *int64, _ []byte) error {
	if m.failing {
		return errors.New("audit store unavailable")
	}
	m.actions = append(m.actions, action)
	return nil
}

func (m *memAudit) has(action string) bool {
	for _, a := range m.actions {
		if a == action {
			return true
		}
	}
	return false
}

type fixture struct {
	svc        *AuthService
	users      *memUsers
	challenges *memChallenges
	mail       *captureMailer
	auditLog   *memAudit
	issuer     *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newMemUsers()
	challenges := newMemChallenges()
	mail := &captureMailer{}
	auditLog := &memAudit{}

	issuer := auth.NewIssuer("test-secret-key", 30*time.Minute)
	hasher := crypto.NewPasswordHasher(2)
	manager := NewChallengeManager(challenges, 10*time.Minute, 6, 5)
	recorder := audit.NewRecorder(auditLog, nil)

	return &fixture{
		svc:        NewAuthService(users, hasher, manager, issuer, mail, recorder),
		users:      users,
		challenges: challenges,
		mail:       mail,
		auditLog:   auditLog,
		issuer:     issuer,
	}
}

func registerPatient(t *testing.T, f *fixture, username string) *domain.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Password: "correct horse battery",
		Name:     "Pat Doe",
		Email:    username + "@example.com",
		DOB:      "1990-01-01",
		Address:  "1 Main St",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")

	if !f.auditLog.has(domain.AuditRegister) {
		t.Error("registration not audited")
	}

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.mail.sent != 1 || len(f.mail.lastCode) != 6 {
		t.Fatalf("expected one 6-digit code delivered, got sent=%d code=%q", f.mail.sent, f.mail.lastCode)
	}

	// Wrong code leaves the challenge in place.
	wrong := "000000"
	if wrong == f.mail.lastCode {
		wrong = "000001"
	}
	_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: wrong})
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if !f.auditLog.has(domain.AuditMFAFailed) {
		t.Error("failed code attempt not audited")
	}

	user, token, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: f.mail.lastCode})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	session, err := f.issuer.Verify(token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if session.UserID != user.ID || session.Role != domain.RolePatient {
		t.Errorf("session = %+v, want user %d role patient", session, user.ID)
	}
	if !f.auditLog.has(domain.AuditLoginSuccess) {
		t.Error("successful login not audited")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")

	err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "not the password"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// Unknown user reads the same to the caller.
	err = f.svc.Login(ctx, &domain.LoginRequest{Username: "nobody", Password: "whatever"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if f.mail.sent != 0 {
		t.Error("no code should be sent on a failed first factor")
	}
	if !f.auditLog.has(domain.AuditLoginFailed) {
		t.Error("failed login not audited")
	}
}

func TestVerifyCodeReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	code := f.mail.lastCode

	if _, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: code}); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: code})
	if !errors.Is(err, domain.ErrNoChallenge) {
		t.Fatalf("replayed code: expected ErrNoChallenge, got %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := registerPatient(t, f, "pat")

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.challenges.rows[u.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: f.mail.lastCode})
	if !errors.Is(err, domain.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}

	// The dead challenge is gone; the same code now finds nothing.
	_, _, err = f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: f.mail.lastCode})
	if !errors.Is(err, domain.ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge after expiry cleanup, got %v", err)
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("first login: %v", err)
	}
	firstCode := f.mail.lastCode

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if f.mail.lastCode == firstCode {
		t.Skip("codes collided; cannot distinguish old from new")
	}

	_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: firstCode})
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("old code: expected ErrInvalidCode, got %v", err)
	}

	if _, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: f.mail.lastCode}); err != nil {
		t.Fatalf("new code should verify: %v", err)
	}
}

func TestAttemptCapRetiresChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	realCode := f.mail.lastCode

	wrong := "000000"
	if wrong == realCode {
		wrong = "000001"
	}
	for i := 0; i < 5; i++ {
		_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: wrong})
		if !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}

	// Even the real code is dead after the cap.
	_, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: realCode})
	if !errors.Is(err, domain.ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge after attempt cap, got %v", err)
	}
}

func TestDeliveryFailureKillsChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := registerPatient(t, f, "pat")
	f.mail.fail = true

	err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"})
	if !errors.Is(err, domain.ErrCodeDelivery) {
		t.Fatalf("expected ErrCodeDelivery, got %v", err)
	}
	if _, ok := f.challenges.rows[u.ID]; ok {
		t.Error("undelivered challenge should have been invalidated")
	}
}

func TestLoginSurvivesAuditOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerPatient(t, f, "pat")
	f.auditLog.failing = true

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login must not depend on the audit store: %v", err)
	}
	if _, _, err := f.svc.VerifyCode(ctx, &domain.VerifyCodeRequest{Username: "pat", Code: f.mail.lastCode}); err != nil {
		t.Fatalf("verify must not depend on the audit store: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := registerPatient(t, f, "pat")

	err := f.svc.ChangePassword(ctx, u.ID, &domain.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "new password 123",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong current password: expected ErrInvalidCredentials, got %v", err)
	}

	err = f.svc.ChangePassword(ctx, u.ID, &domain.ChangePasswordRequest{
		CurrentPassword: "correct horse battery",
		NewPassword:     "new password 123",
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	if err := f.svc.Login(ctx, &domain.LoginRequest{Username: "pat", Password: "new password 123"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if !f.auditLog.has(domain.AuditPasswordChanged) {
		t.Error("password change not audited")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	registerPatient(t, f, "pat")

	_, err := f.svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "pat",
		Password: "another password",
		Name:     "Other Pat",
		Email:    "other@example.com",
	})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}
