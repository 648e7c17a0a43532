package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/skulicheck/skulicheck-be/internal/auth"
	"github.com/skulicheck/skulicheck-be/internal/codes"
	"github.com/skulicheck/skulicheck-be/internal/logging"
	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/notify"
	"github.com/skulicheck/skulicheck-be/internal/sessions"
	"github.com/skulicheck/skulicheck-be/internal/storage/sqlite"
)

type recordingGateway struct {
	mu   sync.Mutex
	ok   bool
	sent []notify.Message
}

func (g *recordingGateway) Deliver(_ context.Context, msg notify.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return g.ok
}

func (g *recordingGateway) last(t *testing.T) notify.Message {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.sent, "no message delivered")
	return g.sent[len(g.sent)-1]
}

type harness struct {
	svc   *AuthService
	store *sqlite.Store
	email *recordingGateway
	sms   *recordingGateway
	now   time.Time
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	h := &harness{
		store: store,
		email: &recordingGateway{ok: true},
		sms:   &recordingGateway{ok: true},
		now:   time.Date(2026, 4, 1, 7, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	deps := Dependencies{
		Users:    store,
		Codes:    codes.NewLedger(store, nil).WithClock(clock),
		Sessions: sessions.NewLedger(store, nil).WithClock(clock),
		Hasher:   auth.SHA256Hasher{},
		Email:    h.email,
		SMS:      h.sms,
		Now:      clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewAuthService(deps)
	return h
}

func (h *harness) register(t *testing.T, email string) int64 {
	t.Helper()
	res, err := h.svc.Register(context.Background(), RegisterInput{Email: email, Password: "pw", FullName: "A", Role: models.RoleStudent})
	require.NoError(t, err)
	return res.UserID
}

func (h *harness) registerVerified(t *testing.T, email string) int64 {
	t.Helper()
	id := h.register(t, email)
	require.NoError(t, h.svc.VerifyEmail(context.Background(), id, h.email.last(t).Code))
	return id
}

func TestRegister_CreatesUnverifiedUserAndSendsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw", FullName: "A", Role: "student"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UserID)
	assert.True(t, res.Delivered)

	u, err := h.store.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.False(t, u.Verified)

	msg := h.email.last(t)
	assert.Equal(t, "a@x.com", msg.Recipient)
	assert.Equal(t, "Registration", msg.Purpose)
	assert.Equal(t, 10*time.Minute, msg.TTL)
	assert.Len(t, msg.Code, codes.Digits)
}

func TestRegister_MissingFields(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		in    RegisterInput
		field string
	}{
		{RegisterInput{Password: "pw", FullName: "A", Role: "student"}, "email is required"},
		{RegisterInput{Email: "a@x.com", FullName: "A", Role: "student"}, "password is required"},
		{RegisterInput{Email: "a@x.com", Password: "pw", Role: "student"}, "full_name is required"},
		{RegisterInput{Email: "a@x.com", Password: "pw", FullName: "A", Role: "  "}, "role is required"},
	}
	for _, tc := range cases {
		_, err := h.svc.Register(context.Background(), tc.in)
		assert.ErrorIs(t, err, ErrMissingField)
		assert.EqualError(t, err, tc.field)
	}
	assert.Empty(t, h.email.sent)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")

	_, err := h.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "x", FullName: "B", Role: "staff"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegister_DeliveryFailureKeepsUser(t *testing.T) {
	h := newHarness(t)
	h.email.ok = false

	res, err := h.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "pw", FullName: "A", Role: "student"})
	require.NoError(t, err)
	assert.False(t, res.Delivered)

	_, err = h.store.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	// The code was committed before delivery and is still redeemable.
	require.NoError(t, h.svc.VerifyEmail(context.Background(), res.UserID, h.email.last(t).Code))
}

func TestVerifyEmail_WrongThenCorrectCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, "a@x.com")
	code := h.email.last(t).Code

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err := h.svc.VerifyEmail(ctx, id, wrong)
	assert.ErrorIs(t, err, ErrBadOrExpiredCode)

	require.NoError(t, h.svc.VerifyEmail(ctx, id, code))
	u, err := h.store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.Verified)

	err = h.svc.VerifyEmail(ctx, id, code)
	assert.ErrorIs(t, err, ErrBadOrExpiredCode, "a code cannot be redeemed twice")
}

func TestVerifyEmail_Expired(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "a@x.com")
	code := h.email.last(t).Code

	h.now = h.now.Add(10 * time.Minute)
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), id, code), ErrBadOrExpiredCode)
}

func TestVerifyEmail_RequiresFields(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), 0, "123456"), ErrMissingField)
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), 1, ""), ErrMissingField)
}

func TestVerifyEmail_RejectsResetCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, "a@x.com")

	_, err := h.svc.ResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	resetCode := h.email.last(t).Code

	assert.ErrorIs(t, h.svc.VerifyEmail(ctx, id, resetCode), ErrBadOrExpiredCode)
}

func TestLogin_UnverifiedAccountGetsNoSession(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")

	_, err := h.svc.Login(context.Background(), "a@x.com", "pw", "test")
	assert.ErrorIs(t, err, ErrUnverifiedAccount)

	// The session table stays empty: the first issued session gets id 1.
	probe, err := h.svc.sessions.Issue(context.Background(), 1, time.Hour, "probe")
	require.NoError(t, err)
	assert.Equal(t, int64(1), probe.ID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "a@x.com")

	_, err := h.svc.Login(context.Background(), "a@x.com", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.svc.Login(context.Background(), "nobody@x.com", "pw", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.svc.Login(context.Background(), "", "pw", "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLogin_IssuesSession(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.Tokens = auth.NewTokenManager("secret", "skulicheck")
	})
	id := h.registerVerified(t, "a@x.com")

	res, err := h.svc.Login(context.Background(), "a@x.com", "pw", "Mozilla/5.0")
	require.NoError(t, err)
	assert.Equal(t, id, res.User.ID)
	assert.True(t, res.User.Verified)
	assert.NotEmpty(t, res.Session.Token)
	assert.Equal(t, h.now.Add(7*24*time.Hour), res.Session.ExpiresAt)
	assert.Equal(t, "Mozilla/5.0", res.Session.Device)
	assert.NotEmpty(t, res.AccessToken)

	claims := &auth.AccessClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(res.AccessToken, claims)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Time.Equal(h.now), "token is stamped with the service clock")
	assert.True(t, claims.ExpiresAt.Time.Equal(res.Session.ExpiresAt))
	assert.Equal(t, res.Session.ID, claims.SessionID)

	again, err := h.svc.Login(context.Background(), "a@x.com", "pw", "")
	require.NoError(t, err)
	assert.NotEqual(t, res.Session.Token, again.Session.Token)
}

func TestLogin_WithBcrypt(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.Hasher = auth.NewBcryptHasher(bcrypt.MinCost)
	})
	h.registerVerified(t, "a@x.com")

	_, err := h.svc.Login(context.Background(), "a@x.com", "pw", "")
	require.NoError(t, err)

	_, err = h.svc.Login(context.Background(), "a@x.com", "nope", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_BcryptAcceptsAccountsHashedWithSHA256(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "a@x.com")
	_, err := h.svc.Login(context.Background(), "a@x.com", "pw", "")
	require.NoError(t, err)

	h.svc.hasher = auth.NewBcryptHasher(bcrypt.MinCost)
	_, err = h.svc.Login(context.Background(), "a@x.com", "pw", "")
	require.NoError(t, err, "existing sha256 accounts keep working after the switch")

	_, err = h.svc.Login(context.Background(), "a@x.com", "nope", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	h.registerVerified(t, "b@x.com")
	u, err := h.store.FindByEmail(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.True(t, auth.IsBcrypt(u.PasswordHash), "new accounts are hashed with bcrypt")
	_, err = h.svc.Login(context.Background(), "b@x.com", "pw", "")
	require.NoError(t, err)
}

func TestSendMFACode_Email(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	h.email.ok = false

	res, err := h.svc.SendMFACode(context.Background(), "a@x.com", "email")
	require.NoError(t, err)
	assert.Equal(t, MethodEmail, res.Method)
	assert.False(t, res.Sent, "actual delivery outcome is reported")
	assert.Equal(t, "MFA", h.email.last(t).Purpose)
	assert.Equal(t, 5*time.Minute, h.email.last(t).TTL)
}

func TestSendMFACode_DefaultsToEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")

	res, err := h.svc.SendMFACode(context.Background(), "a@x.com", "")
	require.NoError(t, err)
	assert.Equal(t, MethodEmail, res.Method)
}

func TestSendMFACode_SMSUsesStubGateway(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "pw", FullName: "A", Role: "parent", Phone: "+254711000000"})
	require.NoError(t, err)
	emailsBefore := len(h.email.sent)

	res, err := h.svc.SendMFACode(context.Background(), "a@x.com", "sms")
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "+254711000000", h.sms.last(t).Recipient)
	assert.Len(t, h.email.sent, emailsBefore)
}

func TestSendMFACode_Errors(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()

	_, err := h.svc.SendMFACode(ctx, "", "email")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = h.svc.SendMFACode(ctx, "nobody@x.com", "email")
	assert.ErrorIs(t, err, ErrUserNotFound)

	for _, method := range []string{MethodAuthenticator, "carrier-pigeon"} {
		_, err = h.svc.SendMFACode(ctx, "a@x.com", method)
		assert.ErrorIs(t, err, ErrUnsupportedMethod)
	}
}

func TestVerifyMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com")

	_, err := h.svc.SendMFACode(ctx, "a@x.com", "email")
	require.NoError(t, err)
	code := h.email.last(t).Code

	assert.ErrorIs(t, h.svc.VerifyMFA(ctx, "a@x.com", code, "sms"), ErrBadOrExpiredCode, "method namespaces the code")
	require.NoError(t, h.svc.VerifyMFA(ctx, "a@x.com", code, "email"))
	assert.ErrorIs(t, h.svc.VerifyMFA(ctx, "a@x.com", code, "email"), ErrBadOrExpiredCode)

	assert.ErrorIs(t, h.svc.VerifyMFA(ctx, "nobody@x.com", code, "email"), ErrUserNotFound)
	assert.ErrorIs(t, h.svc.VerifyMFA(ctx, "a@x.com", "", "email"), ErrMissingField)
	assert.ErrorIs(t, h.svc.VerifyMFA(ctx, "a@x.com", code, "authenticator"), ErrUnsupportedMethod)
}

func TestVerifyMFA_ConcurrentRedemptionSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com")
	_, err := h.svc.SendMFACode(ctx, "a@x.com", "email")
	require.NoError(t, err)
	code := h.email.last(t).Code

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.svc.VerifyMFA(ctx, "a@x.com", code, "email")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrBadOrExpiredCode)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com")

	sent, err := h.svc.ResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, sent)
	msg := h.email.last(t)
	assert.Equal(t, "Password Reset", msg.Purpose)
	assert.Equal(t, 15*time.Minute, msg.TTL)

	_, err = h.svc.ResetPassword(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = h.svc.ResetPassword(ctx, " ")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestStorageFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.store.Close()

	_, err := h.svc.ResetPassword(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "internal error", err.Error())

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindInternal, svcErr.Kind)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestStorageFailureLogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness(t, func(d *Dependencies) { d.Logger = zap.New(core) })
	h.store.Close()

	ctx := logging.WithRequestID(context.Background(), "req-42")
	_, err := h.svc.SendMFACode(ctx, "a@x.com", "email")
	require.ErrorIs(t, err, ErrInternal)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "find user", entry.Message)
	assert.Equal(t, "req-42", entry.ContextMap()["request_id"])
}

func TestNewAuthService_Defaults(t *testing.T) {
	s := NewAuthService(Dependencies{})
	assert.Equal(t, DefaultTTLs(), s.ttl)
	assert.IsType(t, auth.SHA256Hasher{}, s.hasher)
	assert.IsType(t, notify.SMSStub{}, s.sms)
	assert.IsType(t, notify.Disabled{}, s.email)
}
