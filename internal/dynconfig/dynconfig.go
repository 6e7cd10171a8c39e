// Package dynconfig manages dynamic runtime configuration: a JSON document
// reloaded periodically from disk and published atomically as an immutable
// snapshot. Callers read the snapshot once per operation and never observe a
// flag flip mid-operation.
package dynconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"context"

	"github.com/securemsg/accountdir/internal/logging"
)

// MigrationConfiguration holds the flags steering the dual-store account
// migration. Shadow writes without shadow deletes would strand records in the
// target store, so the effective write flag re-checks the delete flag.
type MigrationConfiguration struct {
	ReadEnabled   bool `json:"readEnabled"`
	WriteEnabled  bool `json:"writeEnabled"`
	DeleteEnabled bool `json:"deleteEnabled"`
	LogMismatches bool `json:"logMismatches"`
}

func (c MigrationConfiguration) IsReadEnabled() bool   { return c.ReadEnabled }
func (c MigrationConfiguration) IsDeleteEnabled() bool { return c.DeleteEnabled }
func (c MigrationConfiguration) IsLogMismatches() bool { return c.LogMismatches }

// IsWriteEnabled reports whether shadow writes are active. Write implies
// delete; a snapshot that was hand-edited past validation still cannot
// enable writes alone.
func (c MigrationConfiguration) IsWriteEnabled() bool {
	return c.WriteEnabled && c.DeleteEnabled
}

// ExperimentConfiguration describes enrolment for a single experiment:
// explicitly enrolled account ids plus a percentage bucket for the rest.
type ExperimentConfiguration struct {
	EnrolledUUIDs        []string `json:"enrolledUuids"`
	EnrollmentPercentage int      `json:"enrollmentPercentage"`
}

// Configuration is one immutable snapshot of the dynamic config document.
type Configuration struct {
	AccountsMigration MigrationConfiguration             `json:"accountsDynamoDbMigration"`
	Experiments       map[string]ExperimentConfiguration `json:"experiments"`
}

// Validate rejects flag combinations that would corrupt the migration.
func (c *Configuration) Validate() error {
	if c.AccountsMigration.WriteEnabled && !c.AccountsMigration.DeleteEnabled {
		return errors.New("accountsDynamoDbMigration: writeEnabled requires deleteEnabled")
	}
	for name, e := range c.Experiments {
		if e.EnrollmentPercentage < 0 || e.EnrollmentPercentage > 100 {
			return fmt.Errorf("experiment %q: enrollmentPercentage out of range", name)
		}
	}
	return nil
}

// Manager loads the dynamic configuration file and republishes it on an
// interval. Configuration() is safe to call from any goroutine.
type Manager struct {
	path     string
	interval time.Duration
	logger   logging.Logger

	snapshot atomic.Pointer[Configuration]
}

// NewManager reads and validates the file at path. The returned manager
// serves that snapshot until Run refreshes it.
func NewManager(path string, interval time.Duration, logger logging.Logger) (*Manager, error) {
	m := &Manager{path: path, interval: interval, logger: logger}

	c, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("dynamic config load error: %w", err)
	}
	m.snapshot.Store(c)

	return m, nil
}

// Configuration returns the current snapshot. The returned value must be
// treated as read-only; callers should capture it once per operation.
func (m *Manager) Configuration() *Configuration {
	return m.snapshot.Load()
}

// Run refreshes the snapshot every interval until ctx is cancelled. A reload
// failure keeps the previous snapshot and logs a warning.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c, err := load(m.path)
			if err != nil {
				m.logger.Warn(ctx, "dynamic config reload failed, keeping previous snapshot", "error", err)
				continue
			}
			m.snapshot.Store(c)
		}
	}
}

func load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &Configuration{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
