package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/storage"
	"github.com/skulicheck/skulicheck-be/internal/storage/migrations"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// Store provides Postgres-backed persistence for users, codes, and sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store and runs migrations.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(ctx, databaseURL, "up"); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate applies the embedded schema through a short-lived database/sql handle.
func Migrate(ctx context.Context, databaseURL, direction string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, migrations.Postgres, direction); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping acquires a pooled connection and round-trips to the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const userColumns = `id, email, password_hash, full_name, role, COALESCE(phone, ''), COALESCE(employee_id, ''), is_verified, created_at`

// CreateUser inserts a new, unverified user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, full_name, role, phone, employee_id, is_verified)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), FALSE)
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, user.Email, user.PasswordHash, user.FullName, user.Role, user.Phone, user.EmployeeID)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// VerifyCredentials fetches the user matching both email and password digest.
func (s *Store) VerifyCredentials(ctx context.Context, email, passwordHash string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND password_hash = $2`, email, passwordHash)
	return scanUser(row)
}

// MarkVerified flags the user as verified. Repeated calls are no-ops.
func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertCode stores a freshly issued verification code.
func (s *Store) InsertCode(ctx context.Context, code models.VerificationCode) (models.VerificationCode, error) {
	const query = `
		INSERT INTO verification_codes (user_id, code, purpose, expires_at, used)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id`
	if err := s.pool.QueryRow(ctx, query, code.UserID, code.Code, string(code.Purpose), code.ExpiresAt).Scan(&code.ID); err != nil {
		return models.VerificationCode{}, fmt.Errorf("insert verification code: %w", err)
	}
	code.Used = false
	return code, nil
}

// ConsumeCode marks a matching code used. The outer used = FALSE predicate is
// re-checked after a concurrent writer commits, so only one caller wins a row.
func (s *Store) ConsumeCode(ctx context.Context, userID int64, code string, purpose models.Purpose, now time.Time) (bool, error) {
	const query = `
		UPDATE verification_codes SET used = TRUE
		WHERE id = (
			SELECT id FROM verification_codes
			WHERE user_id = $1 AND code = $2 AND purpose = $3 AND used = FALSE AND expires_at > $4
			ORDER BY id
			LIMIT 1
		) AND used = FALSE`
	tag, err := s.pool.Exec(ctx, query, userID, code, string(purpose), now)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertSession stores a login session.
func (s *Store) InsertSession(ctx context.Context, session models.Session) (models.Session, error) {
	const query = `
		INSERT INTO user_sessions (user_id, session_token, expires_at, device_info)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id`
	if err := s.pool.QueryRow(ctx, query, session.UserID, session.Token, session.ExpiresAt, session.Device).Scan(&session.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Session{}, storage.ErrAlreadyExists
		}
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.Phone, &user.EmployeeID, &user.Verified, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
