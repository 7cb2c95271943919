package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedRepo_ServesFromCacheUntilWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepo(tier("a", 1, nil, "1"))
	repo, err := NewCachedRepo(mem, time.Minute)
	require.NoError(t, err)
	defer repo.Close()

	for range 5 {
		tiers, err := repo.ActiveTiers(ctx)
		require.NoError(t, err)
		require.Len(t, tiers, 1)
	}
	assert.Less(t, mem.Reads, 5)

	updated := tier("a", 1, nil, "0.75")
	require.NoError(t, repo.UpdateTier(ctx, updated))

	tiers, err := repo.ActiveTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.True(t, tiers[0].PricePerSms.Equal(decimal.RequireFromString("0.75")))
}
