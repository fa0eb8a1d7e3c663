package security

import "time"

// DefaultClockSkewGracePeriod is the leeway applied to token expiry checks so
// small clock differences between hosts do not reject fresh tokens.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired reports whether expiresAt lies more than grace before now.
// A zero expiresAt never expires.
func IsExpired(expiresAt, now time.Time, grace time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(grace))
}

// IsOlderThan reports whether createdAt lies strictly more than maxAge before now.
func IsOlderThan(createdAt, now time.Time, maxAge time.Duration) bool {
	return now.Sub(createdAt) > maxAge
}
