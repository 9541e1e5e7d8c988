package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/ports"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const accountColumns = `api_key, secret_hash, active, plan, quota, used, created_at`

// Get retrieves the record for an API key.
func (s *KeyStore) Get(ctx context.Context, apiKey string) (account.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE api_key = ?
	`, apiKey)

	rec, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Record{}, ports.ErrNotFound
	}
	return rec, err
}

// Create inserts a new record without overwriting.
func (s *KeyStore) Create(ctx context.Context, rec account.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.APIKey, rec.SecretHash, rec.Active, rec.Plan, rec.Quota, rec.Used, rec.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ports.ErrAlreadyExists
	}
	return err
}

// Put upserts a record.
func (s *KeyStore) Put(ctx context.Context, rec account.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_key) DO UPDATE SET
			secret_hash = excluded.secret_hash,
			active = excluded.active,
			plan = excluded.plan,
			quota = excluded.quota,
			used = excluded.used
	`, rec.APIKey, rec.SecretHash, rec.Active, rec.Plan, rec.Quota, rec.Used, rec.CreatedAt.UTC())
	return err
}

// SetActive updates only the active column.
func (s *KeyStore) SetActive(ctx context.Context, apiKey string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET active = ? WHERE api_key = ?`, active, apiKey)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// CompareAndCharge increments used inside one IMMEDIATE transaction.
// The conditional UPDATE is the authoritative check; when it matches no
// row the same transaction reads the row back to classify the failure.
func (s *KeyStore) CompareAndCharge(ctx context.Context, apiKey string, expectedUsed int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin charge: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET used = used + 1
		WHERE api_key = ? AND active = 1 AND used = ? AND used < quota
	`, apiKey, expectedUsed)
	if err != nil {
		return 0, fmt.Errorf("charge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("charge rows: %w", err)
	}

	if n == 1 {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit charge: %w", err)
		}
		return expectedUsed + 1, nil
	}

	var used, quota int64
	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active, used, quota FROM accounts WHERE api_key = ?`, apiKey).Scan(&active, &used, &quota)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ports.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read after charge: %w", err)
	}
	if !active {
		return used, ports.ErrInactive
	}
	if used >= quota {
		return used, ports.ErrQuotaExceeded
	}
	return used, ports.ErrConflict
}

// List returns records ordered by creation time.
func (s *KeyStore) List(ctx context.Context, limit, offset int) ([]account.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at ASC, api_key ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []account.Record
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks the database is reachable.
func (s *KeyStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (account.Record, error) {
	var rec account.Record
	err := row.Scan(&rec.APIKey, &rec.SecretHash, &rec.Active, &rec.Plan, &rec.Quota, &rec.Used, &rec.CreatedAt)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
