package services

import "errors"

var (
	// ErrNoSigner means no signing capability is bound to the wallet. It is a
	// configuration error and is never retried.
	ErrNoSigner = errors.New("wallet not connected")

	ErrInvalidIntent       = errors.New("invalid payment intent")
	ErrSignerMismatch      = errors.New("signer does not match payment sender")
	ErrSignatureTimeout    = errors.New("timed out waiting for wallet signature")
	ErrSignatureRejected   = errors.New("wallet rejected signature request")
	ErrSignatureMismatch   = errors.New("wallet returned a different transaction")
	ErrTransactionRejected = errors.New("transaction rejected by the network")
	ErrBlockhashExpired    = errors.New("blockhash expired before confirmation")

	ErrInvalidWallet    = errors.New("invalid wallet address")
	ErrSpinInFlight     = errors.New("a spin is already in progress")
	ErrResultPending    = errors.New("claim or replay the previous result first")
	ErrNoPendingResult  = errors.New("no pending result")
	ErrSpinLimitReached = errors.New("maximum spins per session reached")
	ErrPaymentFailed    = errors.New("spin payment failed")
	ErrPayoutNotFound   = errors.New("payout not found")
	ErrInvalidStatus    = errors.New("invalid payout status")
	ErrChallengeMissing = errors.New("login challenge missing or expired")
	ErrBadLogin         = errors.New("wallet signature does not match challenge")
	ErrSessionNotFound  = errors.New("session expired or logged out")
)
