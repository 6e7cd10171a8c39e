package accounts

import (
	"context"

	"github.com/google/uuid"
)

const (
	migrationExperimentName = "accountsDynamoDbMigration"

	migrationErrorCounterName      = "migration.error"
	migrationComparisonCounterName = "migration.comparisons"
	migrationMismatchCounterName   = "migration.mismatches"
)

// runShadow executes a target-store operation off the authoritative path.
// If accountID is known and not enrolled in the migration experiment, the
// operation is skipped entirely. Failures are counted and swallowed: a
// shadow operation never fails the caller. On success the result pair is
// classified and any mismatch is counted and, when configured, logged.
//
// getByNumber has no account id before the lookup completes, so it passes a
// nil accountID and is gated by the global read flag alone.
func runShadow[T any](
	ctx context.Context,
	m *AccountsManager,
	action string,
	accountID *uuid.UUID,
	legacyResult T,
	op func(ctx context.Context) (T, error),
	classify func(legacy, target T) (string, bool),
) {
	if accountID != nil && !m.experiments.IsEnrolled(*accountID, migrationExperimentName) {
		return
	}

	targetResult, err := op(ctx)
	if err != nil {
		m.logger.Error(ctx, "shadow operation failed", "action", action, "error", err)
		m.scope.Tagged(map[string]string{"action": action}).Counter(migrationErrorCounterName).Inc(1)
		return
	}

	recordComparison(ctx, m, action, accountID, legacyResult, targetResult, classify)
}

func recordComparison[T any](
	ctx context.Context,
	m *AccountsManager,
	action string,
	accountID *uuid.UUID,
	legacyResult, targetResult T,
	classify func(legacy, target T) (string, bool),
) {
	m.comparisonCounter.Inc(1)

	tag, mismatch := classify(legacyResult, targetResult)
	if !mismatch {
		return
	}

	description := action + ":" + tag
	m.scope.Tagged(map[string]string{"mismatchType": description}).Counter(migrationMismatchCounterName).Inc(1)

	if accountID != nil && m.config.Configuration().AccountsMigration.IsLogMismatches() {
		m.logger.Info(ctx, "mismatched account data",
			"type", description,
			"uuid", accountID.String(),
			"callChain", abbreviatedCallChain(),
		)
	}
}
