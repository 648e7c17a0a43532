// Package service implements the account flows: registration, email
// verification, login, MFA codes, and password-reset requests.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skulicheck/skulicheck-be/internal/auth"
	"github.com/skulicheck/skulicheck-be/internal/codes"
	"github.com/skulicheck/skulicheck-be/internal/logging"
	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/notify"
	"github.com/skulicheck/skulicheck-be/internal/sessions"
	"github.com/skulicheck/skulicheck-be/internal/storage"
)

// MFA delivery methods.
const (
	MethodEmail = "email"
	MethodSMS   = "sms"
	// MethodAuthenticator is reserved for TOTP apps and currently rejected.
	MethodAuthenticator = "authenticator"
)

// TTLs are the lifetimes of issued codes and sessions.
type TTLs struct {
	RegistrationCode time.Duration
	MFACode          time.Duration
	ResetCode        time.Duration
	Session          time.Duration
}

// DefaultTTLs returns the standard lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		RegistrationCode: 10 * time.Minute,
		MFACode:          5 * time.Minute,
		ResetCode:        15 * time.Minute,
		Session:          7 * 24 * time.Hour,
	}
}

// Dependencies wires an AuthService. Tokens may be nil, in which case login
// returns no access token.
type Dependencies struct {
	Users    storage.UserStore
	Codes    *codes.Ledger
	Sessions *sessions.Ledger
	Hasher   auth.Hasher
	Tokens   *auth.TokenManager
	Email    notify.Gateway
	SMS      notify.Gateway
	TTLs     TTLs
	Logger   *zap.Logger
	Now      func() time.Time
}

// AuthService orchestrates the user store and the code and session ledgers.
type AuthService struct {
	users    storage.UserStore
	codes    *codes.Ledger
	sessions *sessions.Ledger
	hasher   auth.Hasher
	tokens   *auth.TokenManager
	email    notify.Gateway
	sms      notify.Gateway
	ttl      TTLs
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(deps Dependencies) *AuthService {
	s := &AuthService{
		users:    deps.Users,
		codes:    deps.Codes,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		email:    deps.Email,
		sms:      deps.SMS,
		ttl:      deps.TTLs,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if s.hasher == nil {
		s.hasher = auth.SHA256Hasher{}
	}
	if s.sms == nil {
		s.sms = notify.SMSStub{Logger: deps.Logger}
	}
	if s.email == nil {
		s.email = notify.Disabled{Logger: deps.Logger}
	}
	if s.ttl == (TTLs{}) {
		s.ttl = DefaultTTLs()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email      string
	Password   string
	FullName   string
	Role       string
	Phone      string
	EmployeeID string
}

// RegisterResult reports the new user and whether the code email went out.
type RegisterResult struct {
	UserID    int64
	Delivered bool
}

// Register creates an unverified user and emails a registration code. A
// failed delivery leaves the user in place.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Role = strings.TrimSpace(in.Role)
	switch {
	case in.Email == "":
		return RegisterResult{}, missingField("email")
	case in.Password == "":
		return RegisterResult{}, missingField("password")
	case in.FullName == "":
		return RegisterResult{}, missingField("full_name")
	case in.Role == "":
		return RegisterResult{}, missingField("role")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, s.fail(ctx, "hash password", err)
	}
	user, err := s.users.CreateUser(ctx, models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         in.Role,
		Phone:        strings.TrimSpace(in.Phone),
		EmployeeID:   strings.TrimSpace(in.EmployeeID),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return RegisterResult{}, ErrDuplicateEmail
		}
		return RegisterResult{}, s.fail(ctx, "create user", err)
	}

	code, err := s.codes.Issue(ctx, user.ID, models.PurposeRegistration, s.ttl.RegistrationCode)
	if err != nil {
		return RegisterResult{}, s.fail(ctx, "issue registration code", err)
	}
	delivered := s.email.Deliver(ctx, notify.Message{
		Recipient: user.Email,
		Code:      code,
		Purpose:   "Registration",
		TTL:       s.ttl.RegistrationCode,
	})
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("email_sent", delivered))
	return RegisterResult{UserID: user.ID, Delivered: delivered}, nil
}

// VerifyEmail redeems a registration code and marks the user verified.
func (s *AuthService) VerifyEmail(ctx context.Context, userID int64, code string) error {
	code = strings.TrimSpace(code)
	if userID == 0 {
		return missingField("user_id")
	}
	if code == "" {
		return missingField("code")
	}

	ok, err := s.codes.TryConsume(ctx, userID, code, models.PurposeRegistration, s.now())
	if err != nil {
		return s.fail(ctx, "consume registration code", err)
	}
	if !ok {
		return badCode("Invalid or expired verification code")
	}
	if err := s.users.MarkVerified(ctx, userID); err != nil {
		return s.fail(ctx, "mark user verified", err)
	}
	s.logger.Info("email verified", zap.Int64("user_id", userID))
	return nil
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	User        models.User
	Session     models.Session
	AccessToken string
}

// Login checks credentials, refuses unverified accounts, and issues a session
// tagged with device.
func (s *AuthService) Login(ctx context.Context, email, password, device string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return LoginResult{}, missingField("email")
	}
	if password == "" {
		return LoginResult{}, missingField("password")
	}

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	if !user.Verified {
		return LoginResult{}, ErrUnverifiedAccount
	}

	session, err := s.sessions.Issue(ctx, user.ID, s.ttl.Session, device)
	if err != nil {
		return LoginResult{}, s.fail(ctx, "issue session", err)
	}
	result := LoginResult{User: user, Session: session}
	if s.tokens != nil {
		if result.AccessToken, err = s.tokens.Generate(user, session, s.now()); err != nil {
			return LoginResult{}, s.fail(ctx, "sign access token", err)
		}
	}
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.Int64("session_id", session.ID))
	return result, nil
}

// verifyCredentials matches the digest in storage when the hasher is
// deterministic, and compares in process otherwise.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (models.User, error) {
	if s.hasher.Deterministic() {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return models.User{}, s.fail(ctx, "hash password", err)
		}
		user, err := s.users.VerifyCredentials(ctx, email, hash)
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		if err != nil {
			return models.User{}, s.fail(ctx, "verify credentials", err)
		}
		return user, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, s.fail(ctx, "find user", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SendMFAResult reports which channel was used and whether it succeeded.
type SendMFAResult struct {
	Method string
	Sent   bool
}

// SendMFACode issues an MFA code for method and delivers it. SMS delivery is
// a stub that reports success without sending.
func (s *AuthService) SendMFACode(ctx context.Context, email, method string) (SendMFAResult, error) {
	email = strings.TrimSpace(email)
	method = normalizeMethod(method)
	if email == "" {
		return SendMFAResult{}, missingField("email")
	}
	gateway, err := s.gatewayFor(method)
	if err != nil {
		return SendMFAResult{}, err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return SendMFAResult{}, err
	}
	code, err := s.codes.Issue(ctx, user.ID, models.MFAPurpose(method), s.ttl.MFACode)
	if err != nil {
		return SendMFAResult{}, s.fail(ctx, "issue mfa code", err)
	}

	recipient := user.Email
	if method == MethodSMS {
		recipient = user.Phone
	}
	sent := gateway.Deliver(ctx, notify.Message{
		Recipient: recipient,
		Code:      code,
		Purpose:   "MFA",
		TTL:       s.ttl.MFACode,
	})
	s.logger.Info("mfa code issued", zap.Int64("user_id", user.ID), zap.String("method", method), zap.Bool("sent", sent))
	return SendMFAResult{Method: method, Sent: sent}, nil
}

// VerifyMFA redeems an MFA code. Success changes no other state and does not
// log the user in.
func (s *AuthService) VerifyMFA(ctx context.Context, email, code, method string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	method = normalizeMethod(method)
	if email == "" {
		return missingField("email")
	}
	if code == "" {
		return missingField("code")
	}
	if _, err := s.gatewayFor(method); err != nil {
		return err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	ok, err := s.codes.TryConsume(ctx, user.ID, code, models.MFAPurpose(method), s.now())
	if err != nil {
		return s.fail(ctx, "consume mfa code", err)
	}
	if !ok {
		return badCode("Invalid or expired MFA code")
	}
	s.logger.Info("mfa verified", zap.Int64("user_id", user.ID), zap.String("method", method))
	return nil
}

// ResetPassword issues and emails a password-reset code. Redeeming the code
// to set a new password is not offered.
func (s *AuthService) ResetPassword(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, missingField("email")
	}
	user, err := s.lookup(ctx, email)
	if err != nil {
		return false, err
	}
	code, err := s.codes.Issue(ctx, user.ID, models.PurposePasswordReset, s.ttl.ResetCode)
	if err != nil {
		return false, s.fail(ctx, "issue reset code", err)
	}
	sent := s.email.Deliver(ctx, notify.Message{
		Recipient: user.Email,
		Code:      code,
		Purpose:   "Password Reset",
		TTL:       s.ttl.ResetCode,
	})
	s.logger.Info("password reset requested", zap.Int64("user_id", user.ID), zap.Bool("sent", sent))
	return sent, nil
}

func (s *AuthService) lookup(ctx context.Context, email string) (models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, s.fail(ctx, "find user", err)
	}
	return user, nil
}

func (s *AuthService) gatewayFor(method string) (notify.Gateway, error) {
	switch method {
	case MethodEmail:
		return s.email, nil
	case MethodSMS:
		return s.sms, nil
	default:
		return nil, ErrUnsupportedMethod
	}
}

func (s *AuthService) fail(ctx context.Context, op string, err error) error {
	s.logger.Error(op, zap.String("request_id", logging.RequestID(ctx)), zap.Error(err))
	return internal("internal error", err)
}

func normalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return MethodEmail
	}
	return method
}

func badCode(message string) error {
	return &Error{Kind: KindAuthentication, Code: ErrBadOrExpiredCode.Code, Message: message}
}
