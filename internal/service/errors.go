package service

// Kind classifies a flow failure for transport mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindAuthentication
	KindInternal
)

// Error is the structured failure returned by every flow. Message is safe to
// show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so sentinels compare equal to
// instances carrying a field-specific message or a wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMissingField       = &Error{Kind: KindValidation, Code: "missing_field", Message: "required field missing"}
	ErrUnsupportedMethod  = &Error{Kind: KindValidation, Code: "unsupported_method", Message: "Invalid MFA method"}
	ErrDuplicateEmail     = &Error{Kind: KindConflict, Code: "duplicate_email", Message: "User already exists"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "User not found"}
	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Code: "invalid_credentials", Message: "Invalid credentials"}
	ErrUnverifiedAccount  = &Error{Kind: KindAuthentication, Code: "unverified_account", Message: "Please verify your email first"}
	ErrBadOrExpiredCode   = &Error{Kind: KindAuthentication, Code: "bad_or_expired_code", Message: "Invalid or expired verification code"}
	ErrInternal           = &Error{Kind: KindInternal, Code: "internal", Message: "internal error"}
)

func missingField(field string) error {
	return &Error{Kind: KindValidation, Code: ErrMissingField.Code, Message: field + " is required"}
}

func internal(message string, cause error) error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: message, Err: cause}
}
