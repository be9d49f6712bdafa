package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
)

// Network is the chain endpoint the submitter talks to.
type Network interface {
	LatestFreshness(ctx context.Context) (models.Freshness, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature, freshness models.Freshness) error
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

const maxConsecutivePollErrors = 10

type SolanaNetwork struct {
	client       *rpc.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
}

func NewSolanaNetwork(endpoint string, requestsPerSecond float64, pollInterval time.Duration) *SolanaNetwork {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &SolanaNetwork{
		client:       rpc.New(endpoint),
		limiter:      rate.NewLimiter(limit, burst),
		pollInterval: pollInterval,
	}
}

func (n *SolanaNetwork) LatestFreshness(ctx context.Context) (models.Freshness, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return models.Freshness{}, err
	}

	out, err := n.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return models.Freshness{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return models.Freshness{}, fmt.Errorf("get latest blockhash: empty response")
	}

	return models.Freshness{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (n *SolanaNetwork) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return solana.Signature{}, err
	}

	sig, err := n.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// AwaitConfirmation polls until the signature is confirmed, rejected, or its
// blockhash can no longer land. Status and block height failures share one
// consecutive error budget.
func (n *SolanaNetwork) AwaitConfirmation(ctx context.Context, sig solana.Signature, freshness models.Freshness) error {
	pollErrors := 0

	for {
		confirmed, err := n.pollStatus(ctx, sig)
		if err != nil && !isTransient(err) {
			return err
		}
		if confirmed {
			return nil
		}

		if err == nil && freshness.LastValidBlockHeight > 0 {
			var height uint64
			height, err = n.blockHeight(ctx)
			if err != nil && !isTransient(err) {
				return err
			}
			if err == nil && height > freshness.LastValidBlockHeight {
				return ErrBlockhashExpired
			}
		}

		if err != nil {
			pollErrors++
			logger.Debug("Confirmation poll failed", zap.String("signature", sig.String()), zap.Error(err))
			if pollErrors >= maxConsecutivePollErrors {
				return fmt.Errorf("confirmation polling failed %d times: %w", pollErrors, err)
			}
		} else {
			pollErrors = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.pollInterval):
		}
	}
}

func (n *SolanaNetwork) blockHeight(ctx context.Context) (uint64, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	height, err := n.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, transientError{err}
	}
	return height, nil
}

func (n *SolanaNetwork) pollStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return false, err
	}

	out, err := n.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return false, transientError{err}
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransactionRejected, status.Err)
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

func (n *SolanaNetwork) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	out, err := n.client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	_, ok := err.(transientError)
	return ok
}
