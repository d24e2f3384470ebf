package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	authgate "github.com/hexlattice/authgate"
	"github.com/hexlattice/authgate/userstore/migrations"
)

// Account is an external identity-provider linkage row. The table is
// reserved for future provider support; only linking and listing exist.
type Account struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	CreatedAt         time.Time
}

// Store implements [authgate.UserStore] over a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and applies bundled
// migrations, so callers never coordinate schema evolution themselves.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{db: db}
	if err := store.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the raw handle for callers that need ad-hoc queries
// (statistics, maintenance). Not part of the engine contract.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`,
	); err != nil {
		return err
	}

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, name).Scan(&applied)
		if err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		ddl, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(ddl)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			name, time.Now().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// CreateUser inserts a user. The UNIQUE index on lower(email) is the
// arbiter for duplicates: under concurrent registration exactly one
// insert lands and the rest surface as [authgate.ErrEmailInUse].
func (s *Store) CreateUser(ctx context.Context, email, name, credentialHash string) (*authgate.User, error) {
	// Truncate to the millisecond precision the store persists, so the
	// returned user matches what any subsequent read reports.
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &authgate.User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           name,
		CredentialHash: credentialHash,
		EmailVerified:  false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, credential_hash, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		user.ID, user.Email, user.Name, user.CredentialHash, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, authgate.ErrEmailInUse
		}
		return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}

	return user, nil
}

// FindByEmail looks a user up by case-insensitive email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, credential_hash, email_verified, created_at, updated_at
		 FROM users WHERE lower(email) = lower(?)`,
		email,
	)
	return scanUser(row)
}

// FindByID looks a user up by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*authgate.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, credential_hash, email_verified, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

// UpdateCredential replaces a user's credential hash.
func (s *Store) UpdateCredential(ctx context.Context, id, newHash string) error {
	return s.updateUser(ctx,
		`UPDATE users SET credential_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, toMillis(time.Now().UTC()), id,
	)
}

// SetEmailVerified flags a user as verified. Idempotent: re-flagging a
// verified user succeeds.
func (s *Store) SetEmailVerified(ctx context.Context, id string) error {
	return s.updateUser(ctx,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now().UTC()), id,
	)
}

func (s *Store) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return authgate.ErrUserNotFound
	}

	return nil
}

// LinkAccount records an external provider identity for a user.
func (s *Store) LinkAccount(ctx context.Context, userID, provider, providerAccountID string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:                uuid.NewString(),
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		CreatedAt:         now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, provider, provider_account_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.Provider, account.ProviderAccountID, toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.New("provider account already linked")
		}
		return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}

	return account, nil
}

// AccountsByUser lists the provider linkages of a user.
func (s *Store) AccountsByUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider, provider_account_id, created_at
		 FROM accounts WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			account   Account
			createdAt int64
		)
		if err := rows.Scan(
			&account.ID, &account.UserID, &account.Provider,
			&account.ProviderAccountID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
		}
		account.CreatedAt = fromMillis(createdAt)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}

	return accounts, nil
}

// UserCount reports the number of registered users.
func (s *Store) UserCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*authgate.User, error) {
	var (
		user      authgate.User
		verified  int
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CredentialHash, &verified, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", authgate.ErrStoreUnavailable, err)
	}

	user.EmailVerified = verified != 0
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	return &user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
