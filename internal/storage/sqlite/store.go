// Package sqlite implements the storage interfaces over an embedded SQLite
// database, for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/storage"
	"github.com/skulicheck/skulicheck-be/internal/storage/migrations"
)

var _ storage.Store = (*Store)(nil)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements storage.Store over SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database file at path and applies
// bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db, migrations.SQLite, "up"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Migrate applies migrations to the database file at path without keeping it open.
func Migrate(ctx context.Context, path, direction string) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Run(ctx, db, migrations.SQLite, direction); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func openDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Ping checks the database handle is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

const userColumns = `id, email, password_hash, full_name, role, COALESCE(phone, ''), COALESCE(employee_id, ''), is_verified, created_at`

// CreateUser inserts a new, unverified user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	createdAt := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role, phone, employee_id, is_verified, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), 0, ?)`,
		user.Email, user.PasswordHash, user.FullName, user.Role, user.Phone, user.EmployeeID, toMillis(createdAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return s.FindByID(ctx, id)
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// VerifyCredentials fetches the user matching both email and password digest.
func (s *Store) VerifyCredentials(ctx context.Context, email, passwordHash string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND password_hash = ?`, email, passwordHash))
}

// MarkVerified flags the user as verified. Repeated calls are no-ops.
func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_verified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertCode stores a freshly issued verification code.
func (s *Store) InsertCode(ctx context.Context, code models.VerificationCode) (models.VerificationCode, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_codes (user_id, code, purpose, expires_at, used)
		VALUES (?, ?, ?, ?, 0)`,
		code.UserID, code.Code, string(code.Purpose), toMillis(code.ExpiresAt))
	if err != nil {
		return models.VerificationCode{}, fmt.Errorf("insert verification code: %w", err)
	}
	if code.ID, err = res.LastInsertId(); err != nil {
		return models.VerificationCode{}, fmt.Errorf("insert verification code: %w", err)
	}
	code.Used = false
	return code, nil
}

// ConsumeCode marks one matching code used in a single UPDATE; SQLite
// serializes writers so the used = 0 re-check cannot be raced.
func (s *Store) ConsumeCode(ctx context.Context, userID int64, code string, purpose models.Purpose, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_codes SET used = 1
		WHERE id = (
			SELECT id FROM verification_codes
			WHERE user_id = ? AND code = ? AND purpose = ? AND used = 0 AND expires_at > ?
			ORDER BY id
			LIMIT 1
		) AND used = 0`,
		userID, code, string(purpose), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	return n == 1, nil
}

// InsertSession stores a login session.
func (s *Store) InsertSession(ctx context.Context, session models.Session) (models.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (user_id, session_token, expires_at, device_info)
		VALUES (?, ?, ?, NULLIF(?, ''))`,
		session.UserID, session.Token, toMillis(session.ExpiresAt), session.Device)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Session{}, storage.ErrAlreadyExists
		}
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if session.ID, err = res.LastInsertId(); err != nil {
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func scanUser(row *sql.Row) (models.User, error) {
	var (
		user      models.User
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.Phone, &user.EmployeeID, &user.Verified, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
