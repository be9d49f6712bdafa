package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
)

type RetryOptions struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number: base, 2*base, 3*base...
	BaseDelay time.Duration
	// AttemptTimeout bounds one attempt including confirmation. Zero means no bound.
	AttemptTimeout time.Duration
}

// SubmissionEvent is emitted on every state change of a submission.
type SubmissionEvent struct {
	IntentID    string
	State       models.SubmissionState
	Attempt     int
	MaxAttempts int
	Signature   string
	Err         error
}

type SubmissionObserver func(SubmissionEvent)

type SleepFunc func(ctx context.Context, d time.Duration) error

type TransactionSubmitter struct {
	network Network
	metrics *Metrics
	sleep   SleepFunc
	now     func() time.Time
}

type SubmitterOption func(*TransactionSubmitter)

func WithSleep(fn SleepFunc) SubmitterOption {
	return func(s *TransactionSubmitter) { s.sleep = fn }
}

func WithSubmitterMetrics(m *Metrics) SubmitterOption {
	return func(s *TransactionSubmitter) { s.metrics = m }
}

func NewTransactionSubmitter(network Network, opts ...SubmitterOption) *TransactionSubmitter {
	s := &TransactionSubmitter{
		network: network,
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitWithRetry signs, sends and confirms the payment, retrying failed
// attempts with a linearly growing delay. It never returns an error: every
// path ends in a Success or Failure outcome.
func (s *TransactionSubmitter) SubmitWithRetry(
	ctx context.Context,
	intent *models.PaymentIntent,
	signer Signer,
	opts RetryOptions,
	observers ...SubmissionObserver,
) models.SubmissionOutcome {
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	intentID := ""
	if intent != nil {
		intentID = intent.ID
	}
	emit := func(ev SubmissionEvent) {
		ev.IntentID = intentID
		ev.MaxAttempts = maxAttempts
		for _, obs := range observers {
			obs(ev)
		}
	}

	if err := checkSubmission(intent, signer); err != nil {
		return s.finish(nil, err, emit)
	}

	attempts := make([]models.SubmissionAttempt, 0, maxAttempts)
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		emit(SubmissionEvent{State: models.SubmissionAttempting, Attempt: i})

		attempt := models.SubmissionAttempt{Index: i, StartedAt: s.now()}
		sig, err := s.attempt(ctx, intent, signer, opts.AttemptTimeout)
		if !sig.IsZero() {
			attempt.Signature = sig.String()
		}

		if err == nil {
			attempts = append(attempts, attempt)
			s.metrics.RecordAttempt("success")
			s.metrics.RecordSubmission(models.OutcomeSuccess, len(attempts))
			emit(SubmissionEvent{State: models.SubmissionSucceeded, Attempt: i, Signature: attempt.Signature})

			logger.Info("Transaction confirmed",
				zap.String("intent_id", intent.ID),
				zap.String("signature", attempt.Signature),
				zap.Int("attempts", len(attempts)),
			)
			return models.SubmissionOutcome{
				Kind:      models.OutcomeSuccess,
				Signature: attempt.Signature,
				Attempts:  attempts,
			}
		}

		attempt.Error = err.Error()
		attempts = append(attempts, attempt)
		lastErr = err
		s.metrics.RecordAttempt("error")

		logger.Warn("Transaction attempt failed",
			zap.String("intent_id", intent.ID),
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)

		if errors.Is(err, ErrNoSigner) || i == maxAttempts-1 {
			break
		}

		emit(SubmissionEvent{State: models.SubmissionRetrying, Attempt: i, Err: err})

		if err := s.sleep(ctx, opts.BaseDelay*time.Duration(i+1)); err != nil {
			lastErr = fmt.Errorf("%w (after: %v)", err, lastErr)
			break
		}
	}

	return s.finish(attempts, lastErr, emit)
}

func (s *TransactionSubmitter) finish(attempts []models.SubmissionAttempt, err error, emit func(SubmissionEvent)) models.SubmissionOutcome {
	msg := err.Error()
	if len(attempts) > 0 {
		msg = fmt.Sprintf("transaction failed after %d attempts. last error: %v", len(attempts), err)
	}

	s.metrics.RecordSubmission(models.OutcomeFailure, len(attempts))
	emit(SubmissionEvent{State: models.SubmissionFailed, Attempt: len(attempts) - 1, Err: err})

	logger.Error("Transaction submission failed", zap.Int("attempts", len(attempts)), zap.Error(err))

	if attempts == nil {
		attempts = []models.SubmissionAttempt{}
	}
	return models.SubmissionOutcome{
		Kind:     models.OutcomeFailure,
		Error:    msg,
		Attempts: attempts,
	}
}

func checkSubmission(intent *models.PaymentIntent, signer Signer) error {
	if intent == nil {
		return fmt.Errorf("%w: missing intent", ErrInvalidIntent)
	}
	if err := intent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if signer == nil {
		return ErrNoSigner
	}
	if !signer.PublicKey().Equals(intent.Sender) {
		return fmt.Errorf("%w: signer %s, sender %s", ErrSignerMismatch, signer.PublicKey(), intent.Sender)
	}
	return nil
}

// attempt runs one pass: fresh blockhash, build, sign, send, confirm.
func (s *TransactionSubmitter) attempt(ctx context.Context, intent *models.PaymentIntent, signer Signer, timeout time.Duration) (solana.Signature, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	freshness, err := s.network.LatestFreshness(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to fetch blockhash: %w", err)
	}
	intent.Freshness = freshness

	tx, err := intent.Transaction()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	signed, err := signer.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.network.Submit(ctx, signed)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := s.network.AwaitConfirmation(ctx, sig, freshness); err != nil {
		return sig, fmt.Errorf("failed to confirm %s: %w", sig, err)
	}
	return sig, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
