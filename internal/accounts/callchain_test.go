package accounts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbbreviateFrame(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"github.com/securemsg/accountdir/internal/accounts.(*AccountsManager).GetByUUID", "AccountsManager:GetByUUID"},
		{"github.com/securemsg/accountdir/internal/accounts.(Cache).Get", "Cache:Get"},
		{"github.com/securemsg/accountdir/internal/accounts.countryCode", "accounts:countryCode"},
		{"main.main", "main:main"},
		{"noDotsAtAll", "noDotsAtAll"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, abbreviateFrame(tt.in), tt.in)
	}
}

func TestIsComparisonFrame(t *testing.T) {
	assert.True(t, isComparisonFrame("github.com/securemsg/accountdir/internal/accounts.CompareAccounts"))
	assert.True(t, isComparisonFrame("github.com/securemsg/accountdir/internal/accounts.recordComparison"))
	assert.False(t, isComparisonFrame("github.com/securemsg/accountdir/internal/accounts.(*AccountsManager).GetByUUID"))
	assert.False(t, isComparisonFrame("noDotsAtAll"))
}

func firstHop() string  { return secondHop() }
func secondHop() string { return abbreviatedCallChain() }

func TestAbbreviatedCallChain_ProjectFramesOnly(t *testing.T) {
	chain := firstHop()

	assert.Contains(t, chain, "accounts:firstHop")
	assert.Contains(t, chain, "accounts:secondHop")
	// deepest frame first
	assert.Less(t, strings.Index(chain, "accounts:secondHop"), strings.Index(chain, "accounts:firstHop"))
	assert.NotContains(t, chain, "testing")
}
