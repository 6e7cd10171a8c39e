// Package assets implements the external asset sinks account deletion fans
// out to: on-box relational tables (usernames, profiles, messages), the
// keys table in DynamoDB, the SQS directory queue, and the off-box blob
// services.
package assets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/securemsg/accountdir/internal/dbx"
)

// UsernamesRepository clears an account's reserved username.
type UsernamesRepository struct {
	db dbx.DBTX
}

func NewUsernamesRepository(db dbx.DBTX) *UsernamesRepository {
	return &UsernamesRepository{db: db}
}

func (r *UsernamesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usernames WHERE uuid = $1;`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ProfilesRepository clears every profile version for an account.
type ProfilesRepository struct {
	db dbx.DBTX
}

func NewProfilesRepository(db dbx.DBTX) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

func (r *ProfilesRepository) DeleteAll(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE uuid = $1;`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MessagesRepository clears an account's queued messages.
type MessagesRepository struct {
	db dbx.DBTX
}

func NewMessagesRepository(db dbx.DBTX) *MessagesRepository {
	return &MessagesRepository{db: db}
}

func (r *MessagesRepository) Clear(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE destination_uuid = $1;`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
