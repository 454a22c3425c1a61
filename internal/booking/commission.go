package booking

import "math"

// DefaultCommissionRate is the platform share of every session rate.
const DefaultCommissionRate = 0.15

// Commission splits a session rate between psychologist and platform. It is
// applied at read time and never persisted per session.
type Commission struct {
	Rate float64
}

// NewCommission returns a Commission, falling back to DefaultCommissionRate
// when rate is outside [0, 1).
func NewCommission(rate float64) Commission {
	if rate < 0 || rate >= 1 {
		rate = DefaultCommissionRate
	}
	return Commission{Rate: rate}
}

// Split returns the psychologist and platform shares of rate, rounded to
// cents. The two shares always add back up to the rounded rate.
func (c Commission) Split(rate float64) (psychologistShare, platformShare float64) {
	total := roundCents(rate)
	platformShare = roundCents(total * c.Rate)
	psychologistShare = roundCents(total - platformShare)
	return psychologistShare, platformShare
}

// PlatformShare is the platform half of Split.
func (c Commission) PlatformShare(rate float64) float64 {
	_, p := c.Split(rate)
	return p
}

// PsychologistShare is the psychologist half of Split.
func (c Commission) PsychologistShare(rate float64) float64 {
	s, _ := c.Split(rate)
	return s
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
