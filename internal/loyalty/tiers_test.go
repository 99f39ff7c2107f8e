package loyalty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	ladder := NewLadder(nil)

	tests := []struct {
		visits int
		want   Tier
	}{
		{0, TierBronze},
		{4, TierBronze},
		{5, TierSilver},
		{14, TierSilver},
		{15, TierGold},
		{29, TierGold},
		{30, TierPlatinum},
		{1000, TierPlatinum},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ladder.TierFor(tt.visits), "visits=%d", tt.visits)
	}
}

func TestTierForIsIdempotent(t *testing.T) {
	ladder := NewLadder(nil)
	for v := 0; v <= 40; v++ {
		first := ladder.TierFor(v)
		assert.Equal(t, first, ladder.TierFor(v))
	}
}

func TestTierForMonotonic(t *testing.T) {
	ladder := NewLadder(nil)
	rank := map[Tier]int{TierBronze: 0, TierSilver: 1, TierGold: 2, TierPlatinum: 3}

	prev := ladder.TierFor(0)
	for v := 1; v <= 60; v++ {
		current := ladder.TierFor(v)
		assert.GreaterOrEqual(t, rank[current], rank[prev], "visits=%d", v)
		prev = current
	}
}

func TestTierForCustomBands(t *testing.T) {
	ladder := NewLadder([]Band{
		{Tier: TierBronze, Min: 0, Max: 1},
		{Tier: TierPlatinum, Min: 2, Max: 1 << 30},
	})
	assert.Equal(t, TierBronze, ladder.TierFor(1))
	assert.Equal(t, TierPlatinum, ladder.TierFor(2))
	// outside all bands falls back to the lowest tier
	assert.Equal(t, TierBronze, ladder.TierFor(-1))
}

func TestProgressMidBand(t *testing.T) {
	ladder := NewLadder(nil)

	p := ladder.Progress(7)
	assert.Equal(t, TierSilver, p.CurrentTier)
	require.NotNil(t, p.NextTier)
	assert.Equal(t, TierGold, *p.NextTier)
	assert.Equal(t, 8, p.VisitsToNext)
	assert.Equal(t, 20, p.ProgressPercent)
}

func TestProgressAtBandStart(t *testing.T) {
	ladder := NewLadder(nil)

	p := ladder.Progress(0)
	assert.Equal(t, TierBronze, p.CurrentTier)
	require.NotNil(t, p.NextTier)
	assert.Equal(t, TierSilver, *p.NextTier)
	assert.Equal(t, 5, p.VisitsToNext)
	assert.Equal(t, 0, p.ProgressPercent)
}

func TestProgressTopTier(t *testing.T) {
	ladder := NewLadder(nil)

	p := ladder.Progress(45)
	assert.Equal(t, TierPlatinum, p.CurrentTier)
	assert.Nil(t, p.NextTier)
	assert.Equal(t, 0, p.VisitsToNext)
	assert.Equal(t, 100, p.ProgressPercent)
}
