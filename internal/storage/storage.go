package storage

import (
	"context"
	"errors"
	"time"

	"github.com/skulicheck/skulicheck-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures persistence operations for user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// VerifyCredentials returns the user whose email and stored digest both match.
	VerifyCredentials(ctx context.Context, email, passwordHash string) (models.User, error)
	MarkVerified(ctx context.Context, id int64) error
}

// CodeStore persists one-time verification codes.
type CodeStore interface {
	InsertCode(ctx context.Context, code models.VerificationCode) (models.VerificationCode, error)
	// ConsumeCode marks one unused, unexpired code matching (userID, code, purpose)
	// as used in a single statement. It reports whether a row was consumed.
	ConsumeCode(ctx context.Context, userID int64, code string, purpose models.Purpose, now time.Time) (bool, error)
}

// SessionStore persists issued login sessions.
type SessionStore interface {
	InsertSession(ctx context.Context, session models.Session) (models.Session, error)
}

// Store is the full persistence boundary handed to the service.
type Store interface {
	UserStore
	CodeStore
	SessionStore
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	Close()
}
