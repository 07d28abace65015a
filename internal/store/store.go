// Package store keeps certificate tokens in SQLite.
//
// A token moves UNUSED -> IN_USE when the composer page validates it, and to COMPLETED
// once the certificate captions are recorded or the token is closed explicitly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/menta2k/certificate-composer/internal/store/migrations"
)

// Token states
const (
	StatusUnused    = "UNUSED"
	StatusInUse     = "IN_USE"
	StatusCompleted = "COMPLETED"
)

var (
	// ErrNotFound is returned for unknown tokens.
	ErrNotFound = errors.New("store: token not found")
	// ErrAlreadyUsed is returned when a completed token is used again.
	ErrAlreadyUsed = errors.New("store: token already used")
	// ErrNotInUse is returned when completing a token that was never validated.
	ErrNotInUse = errors.New("store: token not found or not in use")
)

// Token is one certificate token and what was recorded for it.
type Token struct {
	Token       string     `json:"token"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UsedAt      *time.Time `json:"used_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Donor       string     `json:"de,omitempty"`
	Receiver    string     `json:"para,omitempty"`
}

// Store persists tokens in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// Open opens the database at path, creating it if needed, and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create issues a new UNUSED token.
func (s *Store) Create(ctx context.Context) (Token, error) {
	t := Token{
		Token:     uuid.NewString(),
		Status:    StatusUnused,
		CreatedAt: fromMillis(toMillis(s.now())),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, status, created_at) VALUES (?, ?, ?)`,
		t.Token, t.Status, toMillis(t.CreatedAt),
	); err != nil {
		return Token{}, fmt.Errorf("create token: %w", err)
	}
	return t, nil
}

// Get returns a token without changing it.
func (s *Store) Get(ctx context.Context, token string) (Token, error) {
	return get(ctx, s.db, token)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectToken = `SELECT token, status, created_at, used_at, completed_at, de, para FROM tokens`

func get(ctx context.Context, q queryer, token string) (Token, error) {
	t, err := scanToken(q.QueryRowContext(ctx, selectToken+` WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (Token, error) {
	var (
		t         Token
		created   int64
		used      sql.NullInt64
		completed sql.NullInt64
	)
	if err := row.Scan(&t.Token, &t.Status, &created, &used, &completed, &t.Donor, &t.Receiver); err != nil {
		return Token{}, err
	}
	t.CreatedAt = fromMillis(created)
	t.UsedAt = nullableTime(used)
	t.CompletedAt = nullableTime(completed)
	return t, nil
}

// Claim validates a token for use, moving UNUSED to IN_USE. IN_USE tokens stay valid;
// COMPLETED tokens return ErrAlreadyUsed.
func (s *Store) Claim(ctx context.Context, token string) (Token, error) {
	var claimed Token
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := get(ctx, tx, token)
		if err != nil {
			return err
		}
		switch t.Status {
		case StatusCompleted:
			return ErrAlreadyUsed
		case StatusUnused:
			now := fromMillis(toMillis(s.now()))
			if _, err := tx.ExecContext(ctx,
				`UPDATE tokens SET status = ?, used_at = ? WHERE token = ?`,
				StatusInUse, toMillis(now), token,
			); err != nil {
				return fmt.Errorf("claim token: %w", err)
			}
			t.Status = StatusInUse
			t.UsedAt = &now
		}
		claimed = t
		return nil
	})
	return claimed, err
}

// Complete closes an IN_USE token.
func (s *Store) Complete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET status = ?, completed_at = ? WHERE token = ? AND status = ?`,
		StatusCompleted, toMillis(s.now()), token, StatusInUse,
	)
	if err != nil {
		return fmt.Errorf("complete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete token: %w", err)
	}
	if n == 0 {
		return ErrNotInUse
	}
	return nil
}

// Record stores the certificate captions for a token and completes it. Unused tokens
// may be recorded directly; completed tokens return ErrAlreadyUsed.
func (s *Store) Record(ctx context.Context, token, donor, receiver string) (Token, error) {
	var recorded Token
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := get(ctx, tx, token)
		if err != nil {
			return err
		}
		if t.Status == StatusCompleted {
			return ErrAlreadyUsed
		}
		now := fromMillis(toMillis(s.now()))
		if t.UsedAt == nil {
			t.UsedAt = &now
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tokens SET status = ?, used_at = ?, completed_at = ?, de = ?, para = ? WHERE token = ?`,
			StatusCompleted, toMillis(*t.UsedAt), toMillis(now), donor, receiver, token,
		); err != nil {
			return fmt.Errorf("record certificate: %w", err)
		}
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.Donor, t.Receiver = donor, receiver
		recorded = t
		return nil
	})
	return recorded, err
}

// List returns all tokens, newest first.
func (s *Store) List(ctx context.Context) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, selectToken+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := []Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
