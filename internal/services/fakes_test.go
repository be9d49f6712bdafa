package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

var errRPC = errors.New("rpc: connection reset")

// fakeNetwork fails the first submitFails sends (all of them when negative)
// and the first confirmFails confirmations.
type fakeNetwork struct {
	mu           sync.Mutex
	submitFails  int
	confirmFails int
	balance      uint64

	freshnessCalls int
	submitCalls    int
	confirmCalls   int
	submitted      []*solana.Transaction
}

func (f *fakeNetwork) LatestFreshness(ctx context.Context) (models.Freshness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshnessCalls++
	return models.Freshness{Blockhash: solana.Hash{1, 2, 3, byte(f.freshnessCalls)}, LastValidBlockHeight: 150}, nil
}

func (f *fakeNetwork) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitFails < 0 || f.submitCalls <= f.submitFails {
		return solana.Signature{}, errRPC
	}
	f.submitted = append(f.submitted, tx)
	return tx.Signatures[0], nil
}

func (f *fakeNetwork) AwaitConfirmation(ctx context.Context, sig solana.Signature, freshness models.Freshness) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmCalls <= f.confirmFails {
		return services.ErrBlockhashExpired
	}
	return nil
}

func (f *fakeNetwork) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeNetwork) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freshnessCalls + f.submitCalls + f.confirmCalls
}

type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

// scriptedRand replays fixed draws and repeats the last one when exhausted.
type scriptedRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (s *scriptedRand) Float64() float64 {
	v := s.floats[min(s.fi, len(s.floats)-1)]
	s.fi++
	return v
}

func (s *scriptedRand) IntN(n int) int {
	v := 0
	if len(s.ints) > 0 {
		v = s.ints[min(s.ii, len(s.ints)-1)]
	}
	s.ii++
	return v % n
}

type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.SpinSession
	stats       map[string]models.GameStats
	locks       map[string]string
	submissions map[string][]*models.SubmissionRecord
	payouts     map[string]*models.PendingPayout
	rate        map[string]int
	recordErr   error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    make(map[string]*models.SpinSession),
		stats:       make(map[string]models.GameStats),
		locks:       make(map[string]string),
		submissions: make(map[string][]*models.SubmissionRecord),
		payouts:     make(map[string]*models.PendingPayout),
		rate:        make(map[string]int),
	}
}

func (m *memStore) GetSpinSession(ctx context.Context, wallet string) (*models.SpinSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[wallet]; ok {
		cp := *s
		return &cp, nil
	}
	return models.NewSpinSession(wallet), nil
}

func (m *memStore) SaveSpinSession(ctx context.Context, session *models.SpinSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.Wallet] = &cp
	return nil
}

func (m *memStore) AcquireSpinLock(ctx context.Context, wallet string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[wallet]; held {
		return "", nil
	}
	token := uuid.New().String()
	m.locks[wallet] = token
	return token, nil
}

func (m *memStore) ReleaseSpinLock(ctx context.Context, wallet, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[wallet] == token {
		delete(m.locks, wallet)
	}
	return nil
}

func (m *memStore) RecordRound(ctx context.Context, wallet string, wagered, won decimal.Decimal) (*models.GameStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	next := m.stats[wallet].Record(wagered, won)
	m.stats[wallet] = next
	return &next, nil
}

func (m *memStore) GetStats(ctx context.Context, wallet string) (*models.GameStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[wallet]
	return &s, nil
}

func (m *memStore) SaveSubmission(ctx context.Context, record *models.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[record.Wallet] = append(m.submissions[record.Wallet], record)
	return nil
}

func (m *memStore) GetUserSubmissions(ctx context.Context, wallet string, limit int64) ([]*models.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*models.SubmissionRecord(nil), m.submissions[wallet]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SavePayout(ctx context.Context, payout *models.PendingPayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *payout
	m.payouts[payout.ID] = &cp
	return nil
}

func (m *memStore) GetPayout(ctx context.Context, id string) (*models.PendingPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, services.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetUserPayouts(ctx context.Context, wallet string, limit int64) ([]*models.PendingPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PendingPayout
	for _, p := range m.payouts {
		if p.Wallet == wallet {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CheckRateLimit(ctx context.Context, subject, action string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subject + ":" + action
	m.rate[key]++
	return m.rate[key] <= limit, nil
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	statuses []models.TxStatusUpdate
	results  []*services.SpinResult
	sessions []*services.SessionView
}

func (b *recordingBroadcaster) BroadcastTxStatus(wallet string, update models.TxStatusUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, update)
}

func (b *recordingBroadcaster) BroadcastSpinResult(wallet string, result *services.SpinResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, result)
}

func (b *recordingBroadcaster) BroadcastSession(wallet string, session *services.SessionView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, session)
}
