package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ancient-spinner-backend/internal/models"
)

// Store is the game state the engine needs. RedisService implements it.
type Store interface {
	GetSpinSession(ctx context.Context, wallet string) (*models.SpinSession, error)
	SaveSpinSession(ctx context.Context, session *models.SpinSession) error
	// AcquireSpinLock returns an empty token when the lock is already held.
	AcquireSpinLock(ctx context.Context, wallet string, ttl time.Duration) (string, error)
	ReleaseSpinLock(ctx context.Context, wallet, token string) error

	RecordRound(ctx context.Context, wallet string, wagered, won decimal.Decimal) (*models.GameStats, error)
	GetStats(ctx context.Context, wallet string) (*models.GameStats, error)

	SaveSubmission(ctx context.Context, record *models.SubmissionRecord) error
	GetUserSubmissions(ctx context.Context, wallet string, limit int64) ([]*models.SubmissionRecord, error)

	SavePayout(ctx context.Context, payout *models.PendingPayout) error
	GetPayout(ctx context.Context, id string) (*models.PendingPayout, error)
	GetUserPayouts(ctx context.Context, wallet string, limit int64) ([]*models.PendingPayout, error)

	CheckRateLimit(ctx context.Context, subject, action string, limit int, window time.Duration) (bool, error)
}
