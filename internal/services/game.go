package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EngineConfig struct {
	Segments           []models.OutcomeSegment
	SpinFee            decimal.Decimal
	HouseWallet        solana.PublicKey
	MaxSpinsPerSession int
	Retry              RetryOptions
	Cluster            string
	LockTTL            time.Duration
}

type GameEngine struct {
	store       Store
	network     Network
	signers     SignerSource
	submitter   *TransactionSubmitter
	selector    *OutcomeSelector
	broadcaster Broadcaster
	metrics     *Metrics
	cfg         EngineConfig
}

type EngineOption func(*GameEngine)

func WithSubmitter(s *TransactionSubmitter) EngineOption {
	return func(ge *GameEngine) { ge.submitter = s }
}

func WithSelector(s *OutcomeSelector) EngineOption {
	return func(ge *GameEngine) { ge.selector = s }
}

func WithBroadcaster(b Broadcaster) EngineOption {
	return func(ge *GameEngine) {
		if b != nil {
			ge.broadcaster = b
		}
	}
}

func WithMetrics(m *Metrics) EngineOption {
	return func(ge *GameEngine) { ge.metrics = m }
}

// SpinResult is what a paid spin or a replay produced.
type SpinResult struct {
	ID           string                   `json:"id"`
	Payment      models.SubmissionOutcome `json:"payment"`
	ExplorerURL  string                   `json:"explorer_url,omitempty"`
	SegmentIndex int                      `json:"segment_index"`
	Segment      models.OutcomeSegment    `json:"segment"`
	Rotation     float64                  `json:"rotation"`
	Won          decimal.Decimal          `json:"won"`
	Replay       bool                     `json:"replay"`
	Stake        decimal.Decimal          `json:"stake"`
	Stats        *models.GameStats        `json:"stats"`
	Session      *SessionView             `json:"session"`
}

// SessionView is the spin session plus the figures the front-end shows.
type SessionView struct {
	*models.SpinSession
	Claimable      decimal.Decimal `json:"claimable"`
	SpinsRemaining int             `json:"spins_remaining"`
}

type ClaimResult struct {
	Amount  decimal.Decimal       `json:"amount"`
	Payout  *models.PendingPayout `json:"payout,omitempty"`
	Session *SessionView          `json:"session"`
}

type WheelInfo struct {
	Segments       []models.OutcomeSegment `json:"segments"`
	SegmentAngle   float64                 `json:"segment_angle"`
	SpinTurns      int                     `json:"spin_turns"`
	SpinDurationMs int                     `json:"spin_duration_ms"`
	SpinFee        decimal.Decimal         `json:"spin_fee"`
	HouseWallet    string                  `json:"house_wallet"`
	WinThreshold   float64                 `json:"win_threshold"`
	MaxSpins       int                     `json:"max_spins"`
	MaxAttempts    int                     `json:"max_attempts"`
}

func NewGameEngine(store Store, network Network, signers SignerSource, cfg EngineConfig, opts ...EngineOption) (*GameEngine, error) {
	if len(cfg.Segments) == 0 {
		return nil, fmt.Errorf("wheel has no segments")
	}
	if !cfg.SpinFee.IsPositive() {
		return nil, fmt.Errorf("spin fee must be positive")
	}
	if cfg.HouseWallet.IsZero() {
		return nil, fmt.Errorf("house wallet is required")
	}
	if cfg.MaxSpinsPerSession < 1 {
		cfg.MaxSpinsPerSession = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = TTLSpinLock
	}

	ge := &GameEngine{
		store:       store,
		network:     network,
		signers:     signers,
		broadcaster: nopBroadcaster{},
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(ge)
	}
	if ge.submitter == nil {
		ge.submitter = NewTransactionSubmitter(network, WithSubmitterMetrics(ge.metrics))
	}
	if ge.selector == nil {
		ge.selector = NewOutcomeSelector(DefaultWinThreshold, nil)
	}

	return ge, nil
}

func (ge *GameEngine) Wheel() WheelInfo {
	return WheelInfo{
		Segments:       ge.cfg.Segments,
		SegmentAngle:   models.SegmentAngle(len(ge.cfg.Segments)),
		SpinTurns:      models.SpinTurns,
		SpinDurationMs: models.SpinDuration,
		SpinFee:        ge.cfg.SpinFee,
		HouseWallet:    ge.cfg.HouseWallet.String(),
		WinThreshold:   ge.selector.Threshold(),
		MaxSpins:       ge.cfg.MaxSpinsPerSession,
		MaxAttempts:    ge.cfg.Retry.MaxAttempts,
	}
}

// Spin pays the participation fee from the player's wallet and, once the
// payment is confirmed, spins the wheel. A failed payment returns the
// outcome together with ErrPaymentFailed and leaves the session untouched.
func (ge *GameEngine) Spin(ctx context.Context, wallet string) (*SpinResult, error) {
	sender, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	unlock, err := ge.lock(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := ge.store.GetSpinSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if session.HasPendingResult() {
		return nil, ErrResultPending
	}
	if session.SpinsUsed >= ge.cfg.MaxSpinsPerSession {
		return nil, ErrSpinLimitReached
	}

	intent := models.NewPaymentIntent(ge.cfg.SpinFee, sender, ge.cfg.HouseWallet)
	signer := ge.signers.SignerFor(sender)

	// The payment may already be on its way to the network, so it is not
	// abandoned when the caller goes away.
	payCtx := context.WithoutCancel(ctx)
	outcome := ge.submitter.SubmitWithRetry(payCtx, intent, signer, ge.cfg.Retry, ge.txStatusObserver(wallet))

	explorer := models.ExplorerURL(outcome.Signature, ge.cfg.Cluster)
	record := &models.SubmissionRecord{
		ID:          intent.ID,
		Wallet:      wallet,
		Amount:      intent.Amount,
		Recipient:   intent.Recipient.String(),
		Outcome:     outcome,
		ExplorerURL: explorer,
		CreatedAt:   intent.CreatedAt,
	}
	if err := ge.store.SaveSubmission(payCtx, record); err != nil {
		logger.Error("Failed to save submission", zap.String("wallet", wallet), zap.Error(err))
	}

	if !outcome.Succeeded() {
		return &SpinResult{ID: intent.ID, Payment: outcome}, fmt.Errorf("%w: %s", ErrPaymentFailed, outcome.Error)
	}

	result, err := ge.land(payCtx, session, ge.cfg.SpinFee, false)
	if err != nil {
		logger.Error("Spin failed after confirmed payment",
			zap.String("wallet", wallet),
			zap.String("signature", outcome.Signature),
			zap.Error(err),
		)
		return &SpinResult{ID: intent.ID, Payment: outcome, ExplorerURL: explorer}, err
	}
	result.ID = intent.ID
	result.Stake = ge.cfg.SpinFee
	result.Payment = outcome
	result.ExplorerURL = explorer

	ge.broadcaster.BroadcastSpinResult(wallet, result)
	return result, nil
}

// Replay puts the pending result back at stake and spins again without a
// new payment.
func (ge *GameEngine) Replay(ctx context.Context, wallet string) (*SpinResult, error) {
	unlock, err := ge.lock(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := ge.store.GetSpinSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !session.HasPendingResult() {
		return nil, ErrNoPendingResult
	}
	if session.SpinsUsed >= ge.cfg.MaxSpinsPerSession {
		return nil, ErrSpinLimitReached
	}

	stake, err := session.Replay(ge.cfg.Segments, ge.cfg.SpinFee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPendingResult, err)
	}

	result, err := ge.land(ctx, session, ge.cfg.SpinFee, true)
	if err != nil {
		return nil, err
	}
	result.ID = uuid.New().String()
	result.Stake = stake

	logger.Info("Stake replayed",
		zap.String("wallet", wallet),
		zap.String("stake", stake.String()),
		zap.String("landed", result.Segment.Label),
	)

	ge.broadcaster.BroadcastSpinResult(wallet, result)
	return result, nil
}

// land picks the slot, records the round and leaves it pending on the session.
func (ge *GameEngine) land(ctx context.Context, session *models.SpinSession, wagered decimal.Decimal, replay bool) (*SpinResult, error) {
	index := ge.selector.SelectOutcome(ge.cfg.Segments)
	if index < 0 {
		return nil, fmt.Errorf("wheel has no segments")
	}
	segment := ge.cfg.Segments[index]
	won := segment.WinningPayout()

	stats, err := ge.store.RecordRound(ctx, session.Wallet, wagered, won)
	if err != nil {
		return nil, err
	}

	session.Land(index)
	if err := ge.store.SaveSpinSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save spin session: %v", err)
	}

	ge.metrics.RecordSpin(won.IsPositive(), replay)

	return &SpinResult{
		SegmentIndex: index,
		Segment:      segment,
		Rotation:     models.RotationForIndex(index, len(ge.cfg.Segments)),
		Won:          won,
		Replay:       replay,
		Stats:        stats,
		Session:      ge.view(session),
	}, nil
}

// Claim banks the pending result. A winning claim is recorded as a pending
// payout to the player's wallet; nothing transfers it.
func (ge *GameEngine) Claim(ctx context.Context, wallet string) (*ClaimResult, error) {
	unlock, err := ge.lock(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := ge.store.GetSpinSession(ctx, wallet)
	if err != nil {
		return nil, err
	}

	amount, err := session.Claim(ge.cfg.Segments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPendingResult, err)
	}

	result := &ClaimResult{Amount: amount}
	if amount.IsPositive() {
		now := time.Now()
		payout := &models.PendingPayout{
			ID:        models.GeneratePayoutID(),
			Wallet:    wallet,
			Amount:    amount,
			ToAddress: wallet,
			Status:    models.PayoutPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := ge.store.SavePayout(ctx, payout); err != nil {
			return nil, err
		}
		ge.metrics.RecordPayout(models.PayoutPending)
		result.Payout = payout

		logger.Info("Payout recorded",
			zap.String("wallet", wallet),
			zap.String("payout_id", payout.ID),
			zap.String("amount", models.FormatSOL(amount)),
		)
	}

	if err := ge.store.SaveSpinSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save spin session: %v", err)
	}

	result.Session = ge.view(session)
	ge.broadcaster.BroadcastSession(wallet, result.Session)
	return result, nil
}

func (ge *GameEngine) Session(ctx context.Context, wallet string) (*SessionView, error) {
	session, err := ge.store.GetSpinSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return ge.view(session), nil
}

// StartSession opens a fresh spin session for a new login. A session holding
// an unresolved result is kept so the result can still be claimed or replayed.
func (ge *GameEngine) StartSession(ctx context.Context, wallet string) (*SessionView, error) {
	unlock, err := ge.lock(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := ge.store.GetSpinSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if session.HasPendingResult() {
		return ge.view(session), nil
	}

	session = models.NewSpinSession(wallet)
	if err := ge.store.SaveSpinSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save spin session: %v", err)
	}

	view := ge.view(session)
	ge.broadcaster.BroadcastSession(wallet, view)
	return view, nil
}

func (ge *GameEngine) Stats(ctx context.Context, wallet string) (*models.GameStats, error) {
	return ge.store.GetStats(ctx, wallet)
}

func (ge *GameEngine) History(ctx context.Context, wallet string, limit int64) ([]*models.SubmissionRecord, error) {
	return ge.store.GetUserSubmissions(ctx, wallet, limit)
}

// Payouts lists the wallet's payouts, optionally only those with status.
func (ge *GameEngine) Payouts(ctx context.Context, wallet string, status models.PayoutStatus, limit int64) ([]*models.PendingPayout, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}

	payouts, err := ge.store.GetUserPayouts(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return payouts, nil
	}

	filtered := make([]*models.PendingPayout, 0, len(payouts))
	for _, p := range payouts {
		if p.Status == status {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (ge *GameEngine) UpdatePayoutStatus(ctx context.Context, wallet, id string, status models.PayoutStatus) (*models.PendingPayout, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	payout, err := ge.store.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Wallet != wallet {
		return nil, ErrPayoutNotFound
	}

	payout.Status = status
	payout.UpdatedAt = time.Now()
	if err := ge.store.SavePayout(ctx, payout); err != nil {
		return nil, err
	}
	ge.metrics.RecordPayout(status)

	return payout, nil
}

// Balance reads the wallet's on-chain balance in SOL.
func (ge *GameEngine) Balance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	lamports, err := ge.network.Balance(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	return models.FromLamports(lamports), nil
}

func (ge *GameEngine) view(session *models.SpinSession) *SessionView {
	remaining := ge.cfg.MaxSpinsPerSession - session.SpinsUsed
	if remaining < 0 {
		remaining = 0
	}
	return &SessionView{
		SpinSession:    session,
		Claimable:      session.Claimable(),
		SpinsRemaining: remaining,
	}
}

func (ge *GameEngine) lock(ctx context.Context, wallet string) (func(), error) {
	token, err := ge.store.AcquireSpinLock(ctx, wallet, ge.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrSpinInFlight
	}

	return func() {
		if err := ge.store.ReleaseSpinLock(context.WithoutCancel(ctx), wallet, token); err != nil {
			logger.Warn("Failed to release spin lock", zap.String("wallet", wallet), zap.Error(err))
		}
	}, nil
}

// txStatusObserver turns submission events into TX_STATUS pushes.
func (ge *GameEngine) txStatusObserver(wallet string) SubmissionObserver {
	return func(ev SubmissionEvent) {
		update := models.TxStatusUpdate{
			IntentID:    ev.IntentID,
			Attempt:     ev.Attempt + 1,
			MaxAttempts: ev.MaxAttempts,
			Signature:   ev.Signature,
		}

		switch ev.State {
		case models.SubmissionAttempting:
			update.Status = models.TxStatusPending
			update.Message = fmt.Sprintf("Transaction en cours (tentative %d/%d)", ev.Attempt+1, ev.MaxAttempts)
		case models.SubmissionRetrying:
			update.Status = models.TxStatusPending
			update.Message = fmt.Sprintf("Nouvelle tentative: %v", ev.Err)
		case models.SubmissionSucceeded:
			update.Status = models.TxStatusSuccess
			update.Message = "Transaction confirmée"
			update.ExplorerURL = models.ExplorerURL(ev.Signature, ge.cfg.Cluster)
		case models.SubmissionFailed:
			update.Status = models.TxStatusError
			update.Message = "Transaction échouée"
			if errors.Is(ev.Err, ErrNoSigner) {
				update.Message = "Wallet non connecté"
			} else if ev.Err != nil {
				update.Message = fmt.Sprintf("Transaction échouée: %v", ev.Err)
			}
		default:
			return
		}

		ge.broadcaster.BroadcastTxStatus(wallet, update)
	}
}
