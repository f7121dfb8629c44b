package models

import "time"

// DefaultSafetyMargin is subtracted from the access token lifetime to absorb
// clock skew and in-flight request latency.
const DefaultSafetyMargin = 5 * time.Minute

// TokenPair is the access/refresh pair issued by the backend.
type TokenPair struct {
	IssuedAt  time.Time
	Access    string
	Refresh   string
	ExpiresIn time.Duration
}

// ExpiresAt возвращает момент истечения access token
func (p TokenPair) ExpiresAt() time.Time {
	return p.IssuedAt.Add(p.ExpiresIn)
}

// Usable reports whether the access token may still be sent:
// now < IssuedAt + ExpiresIn - margin.
func (p TokenPair) Usable(now time.Time, margin time.Duration) bool {
	if p.Access == "" {
		return false
	}
	return now.Before(p.ExpiresAt().Add(-margin))
}

// IsZero reports whether no pair has been issued.
func (p TokenPair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}
