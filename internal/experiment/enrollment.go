// Package experiment decides per-account enrolment in named experiments
// driven by dynamic configuration.
package experiment

import (
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/securemsg/accountdir/internal/dynconfig"
)

// ConfigurationProvider supplies the current dynamic configuration snapshot.
type ConfigurationProvider interface {
	Configuration() *dynconfig.Configuration
}

// EnrollmentManager answers enrolment checks against the experiments table
// of the dynamic configuration.
type EnrollmentManager struct {
	config ConfigurationProvider
}

func NewEnrollmentManager(config ConfigurationProvider) *EnrollmentManager {
	return &EnrollmentManager{config: config}
}

// IsEnrolled reports whether the account id participates in the experiment.
// Explicitly listed ids are always enrolled; the remainder is bucketed by a
// stable hash of the experiment name and the id, so an account's answer does
// not change between calls unless the percentage moves.
func (m *EnrollmentManager) IsEnrolled(accountID uuid.UUID, experimentName string) bool {
	c := m.config.Configuration()
	if c == nil {
		return false
	}

	e, ok := c.Experiments[experimentName]
	if !ok {
		return false
	}

	for _, s := range e.EnrolledUUIDs {
		if id, err := uuid.Parse(s); err == nil && id == accountID {
			return true
		}
	}

	if e.EnrollmentPercentage <= 0 {
		return false
	}

	return bucket(experimentName, accountID) < e.EnrollmentPercentage
}

// bucket maps (experiment, id) onto [0, 100).
func bucket(experimentName string, accountID uuid.UUID) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(experimentName))
	_, _ = h.Write(accountID[:])
	return int(h.Sum64() % 100)
}
