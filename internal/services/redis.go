package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ancient-spinner-backend/internal/config"
	"ancient-spinner-backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const maxWatchRetries = 5

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) StoreUserSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, session.Wallet, session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, expiry).Err()
}

func (s *RedisService) GetUserSession(ctx context.Context, wallet, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, wallet, sessionID)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}

	session.LastAccessed = time.Now()
	updatedData, _ := json.Marshal(session)
	s.client.Set(ctx, key, updatedData, redis.KeepTTL)

	return &session, nil
}

func (s *RedisService) DeleteUserSession(ctx context.Context, wallet, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, wallet, sessionID)
	return s.client.Del(ctx, key).Err()
}

func (s *RedisService) StoreAuthChallenge(ctx context.Context, challenge *models.AuthChallenge) error {
	key := fmt.Sprintf(KeyAuthChallenge, challenge.Wallet)

	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, time.Until(challenge.ExpiresAt)).Err()
}

// TakeAuthChallenge returns the wallet's outstanding challenge and deletes it,
// so every challenge can be answered once.
func (s *RedisService) TakeAuthChallenge(ctx context.Context, wallet string) (*models.AuthChallenge, error) {
	key := fmt.Sprintf(KeyAuthChallenge, wallet)

	data, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrChallengeMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %v", err)
	}

	var challenge models.AuthChallenge
	if err := json.Unmarshal([]byte(data), &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %v", err)
	}
	if time.Now().After(challenge.ExpiresAt) {
		return nil, ErrChallengeMissing
	}

	return &challenge, nil
}

func (s *RedisService) GetSpinSession(ctx context.Context, wallet string) (*models.SpinSession, error) {
	key := fmt.Sprintf(KeySpinSession, wallet)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return models.NewSpinSession(wallet), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spin session: %v", err)
	}

	var session models.SpinSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spin session: %v", err)
	}

	return &session, nil
}

func (s *RedisService) SaveSpinSession(ctx context.Context, session *models.SpinSession) error {
	key := fmt.Sprintf(KeySpinSession, session.Wallet)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal spin session: %v", err)
	}

	return s.client.Set(ctx, key, data, TTLSpinSession).Err()
}

func (s *RedisService) DeleteSpinSession(ctx context.Context, wallet string) error {
	key := fmt.Sprintf(KeySpinSession, wallet)
	return s.client.Del(ctx, key).Err()
}

func (s *RedisService) AcquireSpinLock(ctx context.Context, wallet string, ttl time.Duration) (string, error) {
	key := fmt.Sprintf(KeySpinLock, wallet)
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire spin lock: %v", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

var releaseLockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

func (s *RedisService) ReleaseSpinLock(ctx context.Context, wallet, token string) error {
	key := fmt.Sprintf(KeySpinLock, wallet)
	return releaseLockScript.Run(ctx, s.client, []string{key}, token).Err()
}

// RecordRound folds one round into the wallet's stats under WATCH so
// concurrent rounds are never lost.
func (s *RedisService) RecordRound(ctx context.Context, wallet string, wagered, won decimal.Decimal) (*models.GameStats, error) {
	key := fmt.Sprintf(KeyStats, wallet)
	var next models.GameStats

	txf := func(tx *redis.Tx) error {
		stats, err := readStats(ctx, tx.Get, key)
		if err != nil {
			return err
		}
		next = stats.Record(wagered, won)

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("failed to record round: %v", err)
	}

	return nil, fmt.Errorf("failed to record round: stats key contended")
}

func (s *RedisService) GetStats(ctx context.Context, wallet string) (*models.GameStats, error) {
	stats, err := readStats(ctx, s.client.Get, fmt.Sprintf(KeyStats, wallet))
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *RedisService) DeleteStats(ctx context.Context, wallet string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyStats, wallet)).Err()
}

func readStats(ctx context.Context, get func(context.Context, string) *redis.StringCmd, key string) (models.GameStats, error) {
	stats := models.GameStats{
		TotalWagered: decimal.Zero,
		TotalWon:     decimal.Zero,
		BiggestWin:   decimal.Zero,
	}

	data, err := get(ctx, key).Result()
	if err == redis.Nil {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to get stats: %v", err)
	}

	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return stats, fmt.Errorf("failed to unmarshal stats: %v", err)
	}
	return stats, nil
}

func (s *RedisService) SaveSubmission(ctx context.Context, record *models.SubmissionRecord) error {
	key := fmt.Sprintf(KeySubmission, record.ID)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %v", err)
	}

	if err := s.client.Set(ctx, key, data, TTLSubmission).Err(); err != nil {
		return fmt.Errorf("failed to save submission: %v", err)
	}

	return s.index(ctx, fmt.Sprintf(KeyUserSubmissions, record.Wallet), record.ID, record.CreatedAt)
}

func (s *RedisService) GetUserSubmissions(ctx context.Context, wallet string, limit int64) ([]*models.SubmissionRecord, error) {
	keys, err := s.recent(ctx, fmt.Sprintf(KeyUserSubmissions, wallet), KeySubmission, limit)
	if err != nil {
		return nil, err
	}

	records := make([]*models.SubmissionRecord, 0, len(keys))
	for _, data := range s.bulkGet(ctx, keys) {
		var record models.SubmissionRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}

	return records, nil
}

func (s *RedisService) SavePayout(ctx context.Context, payout *models.PendingPayout) error {
	key := fmt.Sprintf(KeyPayout, payout.ID)

	data, err := json.Marshal(payout)
	if err != nil {
		return fmt.Errorf("failed to marshal payout: %v", err)
	}

	if err := s.client.Set(ctx, key, data, TTLPayout).Err(); err != nil {
		return fmt.Errorf("failed to save payout: %v", err)
	}

	return s.index(ctx, fmt.Sprintf(KeyUserPayouts, payout.Wallet), payout.ID, payout.CreatedAt)
}

func (s *RedisService) GetPayout(ctx context.Context, id string) (*models.PendingPayout, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyPayout, id)).Result()
	if err == redis.Nil {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %v", err)
	}

	var payout models.PendingPayout
	if err := json.Unmarshal([]byte(data), &payout); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payout: %v", err)
	}
	return &payout, nil
}

func (s *RedisService) GetUserPayouts(ctx context.Context, wallet string, limit int64) ([]*models.PendingPayout, error) {
	keys, err := s.recent(ctx, fmt.Sprintf(KeyUserPayouts, wallet), KeyPayout, limit)
	if err != nil {
		return nil, err
	}

	payouts := make([]*models.PendingPayout, 0, len(keys))
	for _, data := range s.bulkGet(ctx, keys) {
		var payout models.PendingPayout
		if err := json.Unmarshal([]byte(data), &payout); err != nil {
			continue
		}
		payouts = append(payouts, &payout)
	}

	return payouts, nil
}

func (s *RedisService) CheckRateLimit(ctx context.Context, subject, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, subject, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, subject, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, subject, action)).Err()
}

// index adds id to a per-wallet history, keeping only the newest MaxHistory.
func (s *RedisService) index(ctx context.Context, listKey, id string, at time.Time) error {
	if err := s.client.ZAdd(ctx, listKey, redis.Z{
		Score:  float64(at.UnixNano()),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index %s: %v", id, err)
	}

	s.client.ZRemRangeByRank(ctx, listKey, 0, -(MaxHistory + 1))
	return nil
}

func (s *RedisService) recent(ctx context.Context, listKey, itemKey string, limit int64) ([]string, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, listKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get ids from %s: %v", listKey, err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf(itemKey, id)
	}
	return keys, nil
}

// bulkGet fetches keys in one pipeline and skips the ones that expired.
func (s *RedisService) bulkGet(ctx context.Context, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil
	}

	values := make([]string, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}
		values = append(values, data)
	}
	return values
}
