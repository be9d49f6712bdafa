package services

import "time"

const (
	KeyUserSession     = "user:%s:session:%s"
	KeyAuthChallenge   = "auth:challenge:%s"
	KeySpinSession     = "spin:session:%s"
	KeySpinLock        = "spin:lock:%s"
	KeyStats           = "stats:%s"
	KeySubmission      = "submission:%s"
	KeyUserSubmissions = "user:%s:submissions"
	KeyPayout          = "payout:%s"
	KeyUserPayouts     = "user:%s:payouts"
	KeyRateLimit       = "ratelimit:%s:%s"

	TTLUserSession   = 24 * time.Hour
	TTLAuthChallenge = 5 * time.Minute
	TTLSpinSession   = 7 * 24 * time.Hour  // 7 days
	TTLSubmission    = 30 * 24 * time.Hour // 30 days
	TTLPayout        = 90 * 24 * time.Hour // 90 days
	TTLSpinLock      = 5 * time.Minute

	MaxHistory = 100

	DefaultRateLimitSpins  = 10 // per minute
	DefaultRateLimitClaims = 30 // per minute
)
