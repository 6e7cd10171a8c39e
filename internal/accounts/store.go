package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Store is the capability set one backing store exposes. Implementations
// report a missing record with common.ErrorNotFound.
//
// Create returns true iff the account was new. The legacy store may rewrite
// the incoming account's UUID when the number already belongs to an existing
// account; the target store must never do that. The target store signals a
// failed version precondition on Update with common.ErrConditionalCheckFailed.
type Store interface {
	GetByNumber(ctx context.Context, number string) (*Account, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, account *Account) (bool, error)
	Update(ctx context.Context, account *Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LegacyStore adds the paged scans only the authoritative store supports.
type LegacyStore interface {
	Store
	GetAllFrom(ctx context.Context, length int) ([]*Account, error)
	GetAllFromUUID(ctx context.Context, after uuid.UUID, length int) ([]*Account, error)
}

// DeletionReason tags deletion metrics.
type DeletionReason string

const (
	DeletionReasonAdmin       DeletionReason = "admin"
	DeletionReasonExpired     DeletionReason = "expired"
	DeletionReasonUserRequest DeletionReason = "userRequest"
)

// The interfaces below are the external asset sinks account deletion fans
// out to. Each is an opaque collaborator; the orchestration order and
// failure accounting live in AccountsManager.Delete.

type UsernamesManager interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProfilesManager interface {
	DeleteAll(ctx context.Context, id uuid.UUID) error
}

type KeysStore interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

type MessagesManager interface {
	Clear(ctx context.Context, id uuid.UUID) error
}

type DirectoryQueue interface {
	DeleteAccount(ctx context.Context, account *Account) error
}

type SecureStorageClient interface {
	DeleteStoredData(ctx context.Context, id uuid.UUID) error
}

type SecureBackupClient interface {
	DeleteBackups(ctx context.Context, id uuid.UUID) error
}
