package lru

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvisorStaysUnderBudget(t *testing.T) {
	a, err := New(1000, 50)
	require.NoError(t, err)

	var totalVictims int
	for i := uint64(0); i < 100; i++ {
		victims := a.AccessedReuseBuffer(i, 20)
		totalVictims += len(victims)
	}
	require.Greater(t, totalVictims, 0, "advisor should have started evicting once over budget")
	require.LessOrEqual(t, a.hotBytes+a.warmBytes, int64(1000)+20, "resident bytes should track near the configured budget")
}

func TestAdvisorReaccessDoesNotDoubleCount(t *testing.T) {
	a, err := New(1000, 100)
	require.NoError(t, err)

	a.AccessedReuseBuffer(1, 500)
	a.AccessedReuseBuffer(1, 500)
	require.Equal(t, int64(500), a.hotBytes, "re-access of the same id must not double its accounted size")
}
