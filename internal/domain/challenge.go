package domain

import "time"

// OTPChallenge is the pending second factor for one user. At most one exists
// per user; issuing a new one replaces it. The raw code is never stored, only
// its hash.
type OTPChallenge struct {
	UserID    int64
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
