// Package loyalty computes visit-based tiers and evaluates reward triggers.
package loyalty

import "math"

// Tier is a loyalty rank derived purely from cumulative visit count.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Band is one contiguous visit-count range mapped to a tier. Max is
// inclusive; the top band uses math.MaxInt.
type Band struct {
	Tier Tier
	Min  int
	Max  int
}

// DefaultBands returns the production tier boundaries.
func DefaultBands() []Band {
	return []Band{
		{Tier: TierBronze, Min: 0, Max: 4},
		{Tier: TierSilver, Min: 5, Max: 14},
		{Tier: TierGold, Min: 15, Max: 29},
		{Tier: TierPlatinum, Min: 30, Max: math.MaxInt},
	}
}

// Progress describes where a visit count sits within the tier ladder.
type Progress struct {
	CurrentTier     Tier
	NextTier        *Tier
	VisitsToNext    int
	ProgressPercent int
}

// Ladder maps visit counts to tiers. Bands are ordered ascending by Min.
type Ladder struct {
	bands []Band
}

// NewLadder builds a ladder from explicit bands, or the defaults when none
// are given.
func NewLadder(bands []Band) *Ladder {
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	return &Ladder{bands: bands}
}

// TierFor returns the tier for a visit count. Counts outside every band fall
// back to the lowest tier; with the open-ended top band this is unreachable,
// but the function stays total.
func (l *Ladder) TierFor(visitCount int) Tier {
	for _, band := range l.bands {
		if visitCount >= band.Min && visitCount <= band.Max {
			return band.Tier
		}
	}
	return l.bands[0].Tier
}

// Progress computes ladder position for a visit count. At the top tier
// NextTier is nil, VisitsToNext is 0, and the percentage is pinned at 100.
func (l *Ladder) Progress(visitCount int) Progress {
	idx := 0
	for i, band := range l.bands {
		if visitCount >= band.Min && visitCount <= band.Max {
			idx = i
			break
		}
	}
	current := l.bands[idx]

	if idx == len(l.bands)-1 {
		return Progress{CurrentTier: current.Tier, VisitsToNext: 0, ProgressPercent: 100}
	}

	next := l.bands[idx+1]
	percent := 100 * (visitCount - current.Min) / (next.Min - current.Min)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Progress{
		CurrentTier:     current.Tier,
		NextTier:        &next.Tier,
		VisitsToNext:    next.Min - visitCount,
		ProgressPercent: percent,
	}
}
