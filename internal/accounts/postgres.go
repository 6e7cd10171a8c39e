package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/securemsg/accountdir/internal/common"
	"github.com/securemsg/accountdir/internal/dbx"
)

// PostgresStore is the authoritative account store. Accounts live in a
// single table keyed by uuid with a unique number column; the payload is a
// JSONB document.
type PostgresStore struct {
	db dbx.DBTX
}

// NewPostgresStore constructs a store bound to the given DBTX.
func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the account. If the number already belongs to an existing
// account, the existing row keeps its uuid, the payload is replaced, the
// incoming account's UUID is rewritten to the existing one, and false is
// returned.
func (s *PostgresStore) Create(ctx context.Context, account *Account) (bool, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return false, fmt.Errorf("account serialization error: %w", err)
	}

	query := `
		INSERT INTO accounts (uuid, number, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (number)
		DO UPDATE SET data = EXCLUDED.data
		RETURNING uuid, (xmax = 0) AS fresh;
	`

	var id uuid.UUID
	var fresh bool
	if err := s.db.QueryRowContext(ctx, query, account.UUID, account.Number, data).Scan(&id, &fresh); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	account.UUID = id

	return fresh, nil
}

// Update replaces the payload and the number for the account's uuid.
func (s *PostgresStore) Update(ctx context.Context, account *Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("account serialization error: %w", err)
	}

	query := `UPDATE accounts SET number = $2, data = $3 WHERE uuid = $1;`

	res, err := s.db.ExecContext(ctx, query, account.UUID, account.Number, data)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (s *PostgresStore) GetByNumber(ctx context.Context, number string) (*Account, error) {
	query := `SELECT uuid, data FROM accounts WHERE number = $1;`
	return s.scanOne(s.db.QueryRowContext(ctx, query, number))
}

func (s *PostgresStore) GetByUUID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT uuid, data FROM accounts WHERE uuid = $1;`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM accounts WHERE uuid = $1;`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetAllFrom returns the first length accounts in uuid order.
func (s *PostgresStore) GetAllFrom(ctx context.Context, length int) ([]*Account, error) {
	query := `SELECT uuid, data FROM accounts ORDER BY uuid LIMIT $1;`
	rows, err := s.db.QueryContext(ctx, query, length)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s.scanAll(rows)
}

// GetAllFromUUID continues a scan after the given uuid.
func (s *PostgresStore) GetAllFromUUID(ctx context.Context, after uuid.UUID, length int) ([]*Account, error) {
	query := `SELECT uuid, data FROM accounts WHERE uuid > $1 ORDER BY uuid LIMIT $2;`
	rows, err := s.db.QueryContext(ctx, query, after, length)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s.scanAll(rows)
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Account, error) {
	var id uuid.UUID
	var data []byte

	if err := row.Scan(&id, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return decodeAccountRow(id, data)
}

func (s *PostgresStore) scanAll(rows *sql.Rows) ([]*Account, error) {
	defer rows.Close()

	var result []*Account
	for rows.Next() {
		var id uuid.UUID
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		account, err := decodeAccountRow(id, data)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func decodeAccountRow(id uuid.UUID, data []byte) (*Account, error) {
	account := &Account{}
	if err := json.Unmarshal(data, account); err != nil {
		return nil, fmt.Errorf("account deserialization error: %w", err)
	}
	account.UUID = id
	return account, nil
}
