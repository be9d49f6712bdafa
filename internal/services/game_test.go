package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

type engineFixture struct {
	engine      *services.GameEngine
	store       *memStore
	network     *fakeNetwork
	broadcaster *recordingBroadcaster
	player      *services.KeypairSigner
	wallet      string
}

// newEngineFixture builds an engine whose wheel lands on the given slots in order.
func newEngineFixture(t *testing.T, network *fakeNetwork, maxSpins int, landings ...int) *engineFixture {
	t.Helper()

	segments := models.DefaultSegments()
	winning, losing := models.PartitionSegments(segments)

	src := &scriptedRand{}
	for _, idx := range landings {
		if segments[idx].IsWinning {
			src.floats = append(src.floats, 0)
			src.ints = append(src.ints, indexOf(winning, idx))
		} else {
			src.floats = append(src.floats, 0.99)
			src.ints = append(src.ints, indexOf(losing, idx))
		}
	}

	player := services.NewKeypairSigner(solana.NewWallet().PrivateKey)
	store := newMemStore()
	broadcaster := &recordingBroadcaster{}
	sleeper := &recordedSleep{}

	engine, err := services.NewGameEngine(store, network, services.NewLocalSigners(player), services.EngineConfig{
		Segments:           segments,
		SpinFee:            decimal.RequireFromString("0.1"),
		HouseWallet:        solana.MustPublicKeyFromBase58("J9jajCmn8JRbF2E2Je5HPLJgjExFyf6Zf93B2CE146wV"),
		MaxSpinsPerSession: maxSpins,
		Retry:              services.RetryOptions{MaxAttempts: 3, BaseDelay: time.Second},
		Cluster:            "devnet",
	},
		services.WithSubmitter(services.NewTransactionSubmitter(network, services.WithSleep(sleeper.sleep))),
		services.WithSelector(services.NewOutcomeSelector(0.2, src)),
		services.WithBroadcaster(broadcaster),
	)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}

	return &engineFixture{
		engine:      engine,
		store:       store,
		network:     network,
		broadcaster: broadcaster,
		player:      player,
		wallet:      player.PublicKey().String(),
	}
}

func indexOf(list []int, v int) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func TestSpinPaysAndLands(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 1)
	ctx := context.Background()

	result, err := f.engine.Spin(ctx, f.wallet)
	if err != nil {
		t.Fatalf("Spin failed: %v", err)
	}

	if result.SegmentIndex != 1 || !result.Won.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected to land on 0.5 SOL, got slot %d won %s", result.SegmentIndex, result.Won)
	}
	if result.Rotation != models.RotationForIndex(1, 8) {
		t.Errorf("Unexpected rotation %f", result.Rotation)
	}
	if !result.Payment.Succeeded() || result.ExplorerURL == "" {
		t.Errorf("Expected a confirmed payment with explorer link, got %+v", result.Payment)
	}
	if result.Stats.TotalGames != 1 || result.Stats.TotalWins != 1 {
		t.Errorf("Unexpected stats %+v", result.Stats)
	}
	if !result.Stats.TotalWagered.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected wagered 0.1, got %s", result.Stats.TotalWagered)
	}

	session, _ := f.engine.Session(ctx, f.wallet)
	if !session.HasPendingResult() || session.SpinsUsed != 1 || session.SpinsRemaining != 9 {
		t.Errorf("Unexpected session after spin: %+v", session)
	}

	history, _ := f.engine.History(ctx, f.wallet, 10)
	if len(history) != 1 || !history[0].Outcome.Succeeded() {
		t.Errorf("Expected one successful submission in history, got %d", len(history))
	}

	last := f.broadcaster.statuses[len(f.broadcaster.statuses)-1]
	if last.Status != models.TxStatusSuccess || last.Signature == "" {
		t.Errorf("Last TX_STATUS should be success, got %+v", last)
	}
	if len(f.broadcaster.results) != 1 {
		t.Errorf("Expected one SPIN_RESULT, got %d", len(f.broadcaster.results))
	}
}

func TestSpinPaymentFailureLeavesSessionUntouched(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{submitFails: -1}, 10, 1)
	ctx := context.Background()

	result, err := f.engine.Spin(ctx, f.wallet)
	if !errors.Is(err, services.ErrPaymentFailed) {
		t.Fatalf("Expected ErrPaymentFailed, got %v", err)
	}
	if result == nil || len(result.Payment.Attempts) != 3 {
		t.Fatalf("Failed spin should return the payment outcome, got %+v", result)
	}

	session, _ := f.engine.Session(ctx, f.wallet)
	if session.SpinsUsed != 0 || session.HasPendingResult() {
		t.Errorf("Session should not change on failed payment: %+v", session)
	}
	stats, _ := f.engine.Stats(ctx, f.wallet)
	if stats.TotalGames != 0 {
		t.Errorf("Failed payment should not count a game, got %d", stats.TotalGames)
	}

	history, _ := f.engine.History(ctx, f.wallet, 10)
	if len(history) != 1 || history[0].Outcome.Succeeded() {
		t.Errorf("Failed submission should be kept in history")
	}

	last := f.broadcaster.statuses[len(f.broadcaster.statuses)-1]
	if last.Status != models.TxStatusError {
		t.Errorf("Last TX_STATUS should be error, got %s", last.Status)
	}
}

func TestSpinWithoutSigner(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 1)
	stranger := solana.NewWallet().PublicKey().String()

	_, err := f.engine.Spin(context.Background(), stranger)
	if !errors.Is(err, services.ErrPaymentFailed) {
		t.Fatalf("Expected ErrPaymentFailed, got %v", err)
	}
	if f.network.calls() != 0 {
		t.Errorf("Expected zero network calls, got %d", f.network.calls())
	}
}

func TestSpinRejectsInvalidWallet(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10)
	if _, err := f.engine.Spin(context.Background(), "not-a-wallet"); !errors.Is(err, services.ErrInvalidWallet) {
		t.Errorf("Expected ErrInvalidWallet, got %v", err)
	}
}

func TestSpinRequiresResolvedResult(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 2, 2)
	ctx := context.Background()

	if _, err := f.engine.Spin(ctx, f.wallet); err != nil {
		t.Fatalf("Spin failed: %v", err)
	}
	if _, err := f.engine.Spin(ctx, f.wallet); !errors.Is(err, services.ErrResultPending) {
		t.Errorf("Expected ErrResultPending, got %v", err)
	}
}

func TestSpinInFlight(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 1)
	ctx := context.Background()

	if _, err := f.store.AcquireSpinLock(ctx, f.wallet, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Spin(ctx, f.wallet); !errors.Is(err, services.ErrSpinInFlight) {
		t.Errorf("Expected ErrSpinInFlight, got %v", err)
	}
	if f.network.calls() != 0 {
		t.Error("Locked spin should not touch the network")
	}
}

func TestClaimRecordsPayout(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 0, 4)
	ctx := context.Background()

	if _, err := f.engine.Claim(ctx, f.wallet); !errors.Is(err, services.ErrNoPendingResult) {
		t.Errorf("Claim without result should fail, got %v", err)
	}

	f.engine.Spin(ctx, f.wallet)
	claim, err := f.engine.Claim(ctx, f.wallet)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claim.Amount.Equal(decimal.NewFromInt(1)) || claim.Payout == nil {
		t.Fatalf("Expected a 1 SOL payout, got %+v", claim)
	}
	if claim.Payout.Status != models.PayoutPending || claim.Payout.ToAddress != f.wallet {
		t.Errorf("Unexpected payout %+v", claim.Payout)
	}
	if !claim.Session.Claimable.Equal(decimal.NewFromInt(1)) || claim.Session.HasPendingResult() {
		t.Errorf("Unexpected session after claim %+v", claim.Session)
	}

	f.engine.Spin(ctx, f.wallet)
	claim, err = f.engine.Claim(ctx, f.wallet)
	if err != nil {
		t.Fatalf("Claim of a loss failed: %v", err)
	}
	if !claim.Amount.IsZero() || claim.Payout != nil {
		t.Errorf("Losing claim should not create a payout, got %+v", claim)
	}

	pending, _ := f.engine.Payouts(ctx, f.wallet, models.PayoutPending, 50)
	if len(pending) != 1 {
		t.Errorf("Expected one pending payout, got %d", len(pending))
	}
}

func TestReplaySpinsWithoutPayment(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 1, 5)
	ctx := context.Background()

	if _, err := f.engine.Replay(ctx, f.wallet); !errors.Is(err, services.ErrNoPendingResult) {
		t.Errorf("Replay without result should fail, got %v", err)
	}

	f.engine.Spin(ctx, f.wallet)
	sends := f.network.submitCalls

	result, err := f.engine.Replay(ctx, f.wallet)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if f.network.submitCalls != sends {
		t.Error("Replay should not submit a payment")
	}
	if !result.Replay || !result.Stake.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected a replay staking 0.5, got %+v", result)
	}
	if result.SegmentIndex != 5 {
		t.Errorf("Expected to land on slot 5, got %d", result.SegmentIndex)
	}
	if result.Stats.TotalGames != 2 || !result.Stats.TotalWagered.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("Replay should count a round at the fee, got %+v", result.Stats)
	}
	if !result.Session.Replayed.Equal(decimal.RequireFromString("0.5")) || result.Session.SpinsUsed != 2 {
		t.Errorf("Unexpected session after replay %+v", result.Session)
	}
}

func TestSpinLimit(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 1, 2, 2)
	ctx := context.Background()

	f.engine.Spin(ctx, f.wallet)
	if _, err := f.engine.Replay(ctx, f.wallet); !errors.Is(err, services.ErrSpinLimitReached) {
		t.Errorf("Expected ErrSpinLimitReached on replay, got %v", err)
	}
	f.engine.Claim(ctx, f.wallet)
	if _, err := f.engine.Spin(ctx, f.wallet); !errors.Is(err, services.ErrSpinLimitReached) {
		t.Errorf("Expected ErrSpinLimitReached, got %v", err)
	}
}

func TestStartSessionResetsSpinLimit(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 2, 2, 4, 6)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.engine.Spin(ctx, f.wallet); err != nil {
			t.Fatalf("Spin %d failed: %v", i+1, err)
		}
		if _, err := f.engine.Claim(ctx, f.wallet); err != nil {
			t.Fatalf("Claim %d failed: %v", i+1, err)
		}
	}
	if _, err := f.engine.Spin(ctx, f.wallet); !errors.Is(err, services.ErrSpinLimitReached) {
		t.Fatalf("Expected ErrSpinLimitReached, got %v", err)
	}

	view, err := f.engine.StartSession(ctx, f.wallet)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if view.SpinsUsed != 0 || view.SpinsRemaining != 2 {
		t.Errorf("Expected a fresh session, got %+v", view)
	}

	if _, err := f.engine.Spin(ctx, f.wallet); err != nil {
		t.Errorf("Spin after a new login should be allowed, got %v", err)
	}

	stats, _ := f.engine.Stats(ctx, f.wallet)
	if stats.TotalGames != 3 {
		t.Errorf("Stats should survive a new login, got %d games", stats.TotalGames)
	}
}

func TestStartSessionKeepsPendingResult(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 0)
	ctx := context.Background()

	if _, err := f.engine.Spin(ctx, f.wallet); err != nil {
		t.Fatalf("Spin failed: %v", err)
	}

	view, err := f.engine.StartSession(ctx, f.wallet)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if !view.HasPendingResult() || view.SpinsUsed != 1 {
		t.Errorf("Pending result should be kept, got %+v", view)
	}

	claim, err := f.engine.Claim(ctx, f.wallet)
	if err != nil || !claim.Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected to claim 1 SOL after re-login, got %v, %v", claim, err)
	}
}

func TestSpinKeepsReceiptWhenRecordingFails(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 1)
	f.store.recordErr = errors.New("redis: connection refused")
	ctx := context.Background()

	result, err := f.engine.Spin(ctx, f.wallet)
	if err == nil {
		t.Fatal("Expected an error when the round cannot be recorded")
	}
	if result == nil || !result.Payment.Succeeded() || result.ExplorerURL == "" {
		t.Fatalf("Charged spin should still return its payment receipt, got %+v", result)
	}
	if result.Payment.Signature == "" {
		t.Error("Receipt should carry the payment signature")
	}
}

func TestUpdatePayoutStatus(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{}, 10, 7)
	ctx := context.Background()

	f.engine.Spin(ctx, f.wallet)
	claim, err := f.engine.Claim(ctx, f.wallet)
	if err != nil || claim.Payout == nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if _, err := f.engine.UpdatePayoutStatus(ctx, "someone-else", claim.Payout.ID, models.PayoutCompleted); !errors.Is(err, services.ErrPayoutNotFound) {
		t.Errorf("Foreign payout should be hidden, got %v", err)
	}
	if _, err := f.engine.UpdatePayoutStatus(ctx, f.wallet, claim.Payout.ID, "paid"); !errors.Is(err, services.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	updated, err := f.engine.UpdatePayoutStatus(ctx, f.wallet, claim.Payout.ID, models.PayoutCompleted)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != models.PayoutCompleted {
		t.Errorf("Expected completed, got %s", updated.Status)
	}

	pending, _ := f.engine.Payouts(ctx, f.wallet, models.PayoutPending, 50)
	if len(pending) != 0 {
		t.Errorf("Expected no pending payouts, got %d", len(pending))
	}
}

func TestBalance(t *testing.T) {
	f := newEngineFixture(t, &fakeNetwork{balance: 1_500_000_000}, 10)

	balance, err := f.engine.Balance(context.Background(), f.wallet)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected 1.5 SOL, got %s", balance)
	}
}

func TestNewGameEngineRejectsEmptyWheel(t *testing.T) {
	_, err := services.NewGameEngine(newMemStore(), &fakeNetwork{}, services.LocalSigners{}, services.EngineConfig{
		SpinFee:     decimal.RequireFromString("0.1"),
		HouseWallet: solana.NewWallet().PublicKey(),
	})
	if err == nil {
		t.Error("Engine should reject an empty wheel")
	}
}
