package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusDismissed.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusAcknowledged.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusEscalated.IsTerminal())
}

func TestStatusCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusActive:       {StatusAcknowledged, StatusResolved, StatusEscalated, StatusDismissed},
		StatusAcknowledged: {StatusInProgress, StatusResolved, StatusDismissed},
		StatusInProgress:   {StatusResolved, StatusDismissed},
		StatusEscalated:    {StatusAcknowledged, StatusResolved, StatusDismissed},
		StatusResolved:     nil,
		StatusDismissed:    nil,
	}
	all := []Status{
		StatusActive, StatusAcknowledged, StatusInProgress,
		StatusResolved, StatusDismissed, StatusEscalated,
	}

	for from, targets := range allowed {
		permitted := make(map[Status]bool, len(targets))
		for _, target := range targets {
			permitted[target] = true
		}
		for _, to := range all {
			assert.Equal(t, permitted[to], from.CanTransition(to),
				"transition %s -> %s", from, to)
		}
	}
}
