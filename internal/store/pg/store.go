// Package pg implements the credential store on PostgreSQL through pgx's database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sgad.org/internal/auth"
)

const pgErrUniqueViolation = "23505"

// Options tunes the connection pool and per-query deadline.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultOptions are used for zero fields in Options.
var DefaultOptions = Options{
	MaxOpenConns:    25,
	MaxIdleConns:    10,
	ConnMaxLifetime: 15 * time.Minute,
	QueryTimeout:    3 * time.Second,
}

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

var _ auth.CredentialStore = (*Store)(nil)

// Open connects to dsn and applies opts to the pool.
func Open(dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts.QueryTimeout), nil
}

// New wraps an existing handle. A zero timeout falls back to the default.
func New(db *sql.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = DefaultOptions.QueryTimeout
	}
	return &Store{db: db, timeout: queryTimeout}
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = DefaultOptions.MaxOpenConns
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = DefaultOptions.MaxIdleConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = DefaultOptions.ConnMaxLifetime
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultOptions.QueryTimeout
	}
	return o
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity within the query timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, password_hash, role, active,
	first_name, last_name, phone,
	referee_id, referee_license, referee_category,
	last_login_at, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = $1`, auth.NormalizeEmail(email))
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `update users set last_login_at = $2, updated_at = now() where id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// CreateUser inserts u. ID and the timestamps are assigned by the caller or the database defaults.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) (*auth.User, error) {
	if !u.Role.Valid() {
		return nil, fmt.Errorf("create user: invalid role %q", u.Role)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var refID, refLicense, refCategory sql.NullString
	if u.Referee != nil {
		refID = nullIfEmpty(u.Referee.ID)
		refLicense = nullIfEmpty(u.Referee.LicenseNumber)
		refCategory = nullIfEmpty(u.Referee.Category)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, role, active, first_name, last_name, phone,
			referee_id, referee_license, referee_category)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning `+userColumns,
		u.ID, auth.NormalizeEmail(u.Email), u.PasswordHash, string(u.Role), u.Active,
		nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), nullIfEmpty(u.Phone),
		refID, refLicense, refCategory,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                              auth.User
		role                           string
		first, last, phone             sql.NullString
		refID, refLicense, refCategory sql.NullString
		lastLogin                      sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.Active,
		&first, &last, &phone,
		&refID, &refLicense, &refCategory,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = auth.Role(role)
	u.FirstName, u.LastName, u.Phone = first.String, last.String, phone.String
	if refID.Valid {
		u.Referee = &auth.RefereeProfile{ID: refID.String, LicenseNumber: refLicense.String, Category: refCategory.String}
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
