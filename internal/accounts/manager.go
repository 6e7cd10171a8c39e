package accounts

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uber-go/tally/v4"
	"golang.org/x/sync/errgroup"

	"github.com/securemsg/accountdir/internal/common"
	"github.com/securemsg/accountdir/internal/dynconfig"
	"github.com/securemsg/accountdir/internal/logging"
)

const (
	deleteCounterName      = "deleteCounter"
	deleteErrorCounterName = "deleteError"

	countryCodeTagName    = "country"
	deletionReasonTagName = "reason"
)

// AccountCache is the coherence layer in front of the legacy store.
type AccountCache interface {
	Get(ctx context.Context, number string) *Account
	GetByUUID(ctx context.Context, id uuid.UUID) *Account
	Set(ctx context.Context, account *Account) error
	Delete(ctx context.Context, account *Account) error
}

// ConfigurationProvider supplies the dynamic configuration snapshot steering
// the migration.
type ConfigurationProvider interface {
	Configuration() *dynconfig.Configuration
}

// EnrollmentChecker gates per-account shadow operations.
type EnrollmentChecker interface {
	IsEnrolled(accountID uuid.UUID, experimentName string) bool
}

// ManagerOptions wires the facade's collaborators.
type ManagerOptions struct {
	Legacy LegacyStore
	Target Store
	Cache  AccountCache

	Usernames UsernamesManager
	Directory DirectoryQueue
	Profiles  ProfilesManager
	Keys      KeysStore
	Messages  MessagesManager
	Storage   SecureStorageClient
	Backup    SecureBackupClient

	Config      ConfigurationProvider
	Experiments EnrollmentChecker

	Scope  tally.Scope
	Logger logging.Logger
}

// AccountsManager orchestrates account reads and mutations across the
// cache, the authoritative legacy store, the shadow target store, and the
// external asset sinks. It keeps no mutable state across calls and is safe
// for concurrent use.
type AccountsManager struct {
	legacy LegacyStore
	target Store
	cache  AccountCache

	usernames UsernamesManager
	directory DirectoryQueue
	profiles  ProfilesManager
	keys      KeysStore
	messages  MessagesManager
	storage   SecureStorageClient
	backup    SecureBackupClient

	config      ConfigurationProvider
	experiments EnrollmentChecker

	scope  tally.Scope
	logger logging.Logger

	createTimer      tally.Timer
	updateTimer      tally.Timer
	getByNumberTimer tally.Timer
	getByUUIDTimer   tally.Timer
	deleteTimer      tally.Timer

	comparisonCounter tally.Counter
}

func NewAccountsManager(opts ManagerOptions) *AccountsManager {
	return &AccountsManager{
		legacy:      opts.Legacy,
		target:      opts.Target,
		cache:       opts.Cache,
		usernames:   opts.Usernames,
		directory:   opts.Directory,
		profiles:    opts.Profiles,
		keys:        opts.Keys,
		messages:    opts.Messages,
		storage:     opts.Storage,
		backup:      opts.Backup,
		config:      opts.Config,
		experiments: opts.Experiments,
		scope:       opts.Scope,
		logger:      opts.Logger,

		createTimer:      opts.Scope.Timer("create"),
		updateTimer:      opts.Scope.Timer("update"),
		getByNumberTimer: opts.Scope.Timer("getByNumber"),
		getByUUIDTimer:   opts.Scope.Timer("getByUuid"),
		deleteTimer:      opts.Scope.Timer("delete"),

		comparisonCounter: opts.Scope.Counter(migrationComparisonCounterName),
	}
}

// Create writes the account to the legacy store, shadow-creates it in the
// target store when enabled, and populates the cache. It returns true iff
// the legacy store saw a new account.
//
// The legacy store may rewrite the account's UUID on a number collision.
// The shadow create runs against a copy carrying the pre-call UUID so both
// stores observe the same request, while the caller-visible account keeps
// whatever the legacy store decided.
func (m *AccountsManager) Create(ctx context.Context, account *Account) (bool, error) {
	sw := m.createTimer.Start()
	defer sw.Stop()

	migration := m.migrationConfig()
	originalUUID := account.UUID

	fresh, err := m.legacy.Create(ctx, account)
	if err != nil {
		return false, err
	}

	if migration.IsWriteEnabled() {
		shadow := account.Clone()
		shadow.UUID = originalUUID
		actualUUID := account.UUID

		runShadow(ctx, m, "create", &originalUUID, fresh,
			func(ctx context.Context) (bool, error) {
				targetFresh, err := m.target.Create(ctx, shadow)
				if err != nil {
					return false, err
				}
				if shadow.UUID != actualUUID {
					m.logger.Warn(ctx, "target create ran with a different uuid than the legacy store chose",
						"uuid", actualUUID.String())
				}
				return targetFresh, nil
			},
			classifyCreate)
	}

	if err := m.cache.Set(ctx, account); err != nil {
		return false, err
	}

	return fresh, nil
}

func classifyCreate(legacyFresh, targetFresh bool) (string, bool) {
	if legacyFresh == targetFresh {
		return "", false
	}
	if targetFresh {
		return "dynamoFreshUser", true
	}
	return "dbFreshUser", true
}

// Update bumps the migration version, writes the cache, updates the legacy
// store, and shadow-updates the target when enabled. A target-side version
// conflict falls through to a target create; neither outcome reaches the
// caller.
func (m *AccountsManager) Update(ctx context.Context, account *Account) error {
	sw := m.updateTimer.Start()
	defer sw.Stop()

	migration := m.migrationConfig()
	account.MigrationVersion++

	if err := m.cache.Set(ctx, account); err != nil {
		return err
	}
	if err := m.legacy.Update(ctx, account); err != nil {
		return err
	}

	if migration.IsWriteEnabled() {
		shadow := account.Clone()
		id := account.UUID

		runShadow(ctx, m, "update", &id, true,
			func(ctx context.Context) (bool, error) {
				if err := m.target.Update(ctx, shadow); err != nil {
					if errors.Is(err, common.ErrConditionalCheckFailed) {
						_, err = m.target.Create(ctx, shadow)
					}
					if err != nil {
						return false, err
					}
				}
				return true, nil
			},
			func(bool, bool) (string, bool) { return "", false })
	}

	return nil
}

// GetByNumber resolves an account by phone number: cache, then legacy store.
// A legacy hit repopulates the cache. A miss dispatches a shadow read when
// the read flag is set; this path has no account id and is not gated by
// enrolment.
func (m *AccountsManager) GetByNumber(ctx context.Context, number string) (*Account, error) {
	sw := m.getByNumberTimer.Start()
	defer sw.Stop()

	if account := m.cache.Get(ctx, number); account != nil {
		return account, nil
	}

	account, err := m.legacy.GetByNumber(ctx, number)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if account != nil {
		if err := m.cache.Set(ctx, account); err != nil {
			return nil, err
		}
	}

	if m.migrationConfig().IsReadEnabled() {
		runShadow(ctx, m, "getByNumber", nil, account,
			func(ctx context.Context) (*Account, error) {
				return m.targetGet(ctx, func() (*Account, error) { return m.target.GetByNumber(ctx, number) })
			},
			CompareAccounts)
	}

	if account == nil {
		return nil, common.ErrorNotFound
	}
	return account, nil
}

// GetByUUID resolves an account by id: cache, then legacy store. The shadow
// read additionally requires the account to be enrolled in the migration
// experiment.
func (m *AccountsManager) GetByUUID(ctx context.Context, id uuid.UUID) (*Account, error) {
	sw := m.getByUUIDTimer.Start()
	defer sw.Stop()

	if account := m.cache.GetByUUID(ctx, id); account != nil {
		return account, nil
	}

	account, err := m.legacy.GetByUUID(ctx, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if account != nil {
		if err := m.cache.Set(ctx, account); err != nil {
			return nil, err
		}
	}

	if m.migrationConfig().IsReadEnabled() {
		runShadow(ctx, m, "getByUuid", &id, account,
			func(ctx context.Context) (*Account, error) {
				return m.targetGet(ctx, func() (*Account, error) { return m.target.GetByUUID(ctx, id) })
			},
			CompareAccounts)
	}

	if account == nil {
		return nil, common.ErrorNotFound
	}
	return account, nil
}

// targetGet maps the target store's not-found to an absent result so the
// comparator can classify it.
func (m *AccountsManager) targetGet(ctx context.Context, get func() (*Account, error)) (*Account, error) {
	account, err := get()
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// GetAllFrom pages through the legacy store in uuid order.
func (m *AccountsManager) GetAllFrom(ctx context.Context, length int) ([]*Account, error) {
	return m.legacy.GetAllFrom(ctx, length)
}

// GetAllFromUUID continues a legacy-store scan after the given uuid.
func (m *AccountsManager) GetAllFromUUID(ctx context.Context, after uuid.UUID, length int) ([]*Account, error) {
	return m.legacy.GetAllFromUUID(ctx, after, length)
}

// Delete removes the account everywhere. Off-box asset deletions run
// concurrently while the on-box sinks are cleared in order; only then are
// the cache and the legacy store touched. The target-store delete is a
// shadow concern: its failure is counted and swallowed. Any failure before
// that point aborts and is re-surfaced, leaving re-delete as the remedy
// (every step is idempotent).
func (m *AccountsManager) Delete(ctx context.Context, account *Account, reason DeletionReason) error {
	sw := m.deleteTimer.Start()
	defer sw.Stop()

	migration := m.migrationConfig()

	if err := m.deleteAllData(ctx, account); err != nil {
		m.logger.Warn(ctx, "failed to delete account", "uuid", account.UUID.String(), "error", err)
		m.deletionCounter(deleteErrorCounterName, account, reason).Inc(1)
		return err
	}

	if migration.IsDeleteEnabled() {
		if err := m.target.Delete(ctx, account.UUID); err != nil {
			m.logger.Error(ctx, "could not delete account from target store",
				"uuid", account.UUID.String(), "error", err)
			m.scope.Tagged(map[string]string{"action": "delete"}).Counter(migrationErrorCounterName).Inc(1)
		}
	}

	m.deletionCounter(deleteCounterName, account, reason).Inc(1)
	return nil
}

func (m *AccountsManager) deleteAllData(ctx context.Context, account *Account) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.storage.DeleteStoredData(gctx, account.UUID) })
	g.Go(func() error { return m.backup.DeleteBackups(gctx, account.UUID) })

	seqErr := m.deleteAuxiliaryData(ctx, account)
	waitErr := g.Wait()
	if seqErr != nil {
		return seqErr
	}
	if waitErr != nil {
		return waitErr
	}

	if err := m.cache.Delete(ctx, account); err != nil {
		return err
	}
	return m.legacy.Delete(ctx, account.UUID)
}

func (m *AccountsManager) deleteAuxiliaryData(ctx context.Context, account *Account) error {
	if err := m.usernames.Delete(ctx, account.UUID); err != nil {
		return err
	}
	if err := m.directory.DeleteAccount(ctx, account); err != nil {
		return err
	}
	if err := m.profiles.DeleteAll(ctx, account.UUID); err != nil {
		return err
	}
	if err := m.keys.Delete(ctx, account.UUID); err != nil {
		return err
	}
	return m.messages.Clear(ctx, account.UUID)
}

func (m *AccountsManager) deletionCounter(name string, account *Account, reason DeletionReason) tally.Counter {
	return m.scope.Tagged(map[string]string{
		countryCodeTagName:    countryCode(account.Number),
		deletionReasonTagName: string(reason),
	}).Counter(name)
}

func (m *AccountsManager) migrationConfig() dynconfig.MigrationConfiguration {
	return m.config.Configuration().AccountsMigration
}

// countryCode extracts the E.164 calling code, "0" when unparseable.
func countryCode(number string) string {
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil {
		return "0"
	}
	return strconv.Itoa(int(parsed.GetCountryCode()))
}
