package domain

import "time"

// IsAtLeastYears returns true if the person with the given birth date has
// reached the given age at the reference time. Uses calendar arithmetic
// (AddDate) for accurate birthday-boundary handling.
func IsAtLeastYears(birthDate, now time.Time, years int) bool {
	threshold := birthDate.UTC().AddDate(years, 0, 0)
	return !now.UTC().Before(threshold)
}

// SameDate reports whether two timestamps fall on the same calendar date
// in UTC. Used for date-only comparisons such as date-of-birth checks.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// SameMonthDay reports whether two timestamps share month and day,
// ignoring the year. Used for birthday reward matching.
func SameMonthDay(a, b time.Time) bool {
	_, am, ad := a.UTC().Date()
	_, bm, bd := b.UTC().Date()
	return am == bm && ad == bd
}
