// Package security holds the cross-cutting security utilities of the
// authorization server:
//
//   - Auditor: structured security event log with hashed account ids
//   - RateLimiter: per-IP token buckets (golang.org/x/time/rate) with LRU eviction
//   - Encryptor: AES-256-GCM sealing of the signing key file
//   - GetClientIP: proxy-aware client address extraction
//   - SetSecurityHeaders / SetLoginPageHeaders: response hardening
//   - IsExpired: expiry checks with a clock skew grace period
//
// Example:
//
//	limiter := security.NewRateLimiter(5, 20, 0, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(security.GetClientIP(r, false, 0)) {
//		// 429
//	}
package security
