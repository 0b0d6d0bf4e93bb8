package aml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePowers(t *testing.T) {
	p, err := ParsePowers(uint32(PowerFreezeAccounts | PowerModifyBlacklist))
	assert.NoError(t, err)
	assert.True(t, p.Has(PowerFreezeAccounts))
	assert.False(t, p.Has(PowerSeizeFunds))

	_, err = ParsePowers(1 << 30)
	assert.Error(t, err)
}

func TestPowerString(t *testing.T) {
	assert.Equal(t, "none", Power(0).String())
	assert.Equal(t, "freeze_accounts|modify_blacklist",
		(PowerFreezeAccounts | PowerModifyBlacklist).String())
}

func TestAlertTransitions(t *testing.T) {
	assert.True(t, AlertOpen.CanTransition(AlertClosed))
	assert.True(t, AlertInvestigating.CanTransition(AlertEscalated))
	assert.False(t, AlertEscalated.CanTransition(AlertInvestigating))
	assert.False(t, AlertClosed.CanTransition(AlertOpen))
	assert.False(t, AlertClosed.CanTransition(AlertClosed))
}
