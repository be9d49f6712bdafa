package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var lamportsPerSOL = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))

// Freshness is the short-lived network stamp a transaction is signed against.
type Freshness struct {
	Blockhash            solana.Hash `json:"blockhash"`
	LastValidBlockHeight uint64      `json:"last_valid_block_height"`
}

type PaymentIntent struct {
	ID        string           `json:"id"`
	Amount    decimal.Decimal  `json:"amount"`
	Sender    solana.PublicKey `json:"sender"`
	Recipient solana.PublicKey `json:"recipient"`
	Freshness Freshness        `json:"freshness"`
	CreatedAt time.Time        `json:"created_at"`
}

func NewPaymentIntent(amount decimal.Decimal, sender, recipient solana.PublicKey) *PaymentIntent {
	return &PaymentIntent{
		ID:        uuid.New().String(),
		Amount:    amount,
		Sender:    sender,
		Recipient: recipient,
		CreatedAt: time.Now(),
	}
}

func (p *PaymentIntent) Validate() error {
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", p.Amount)
	}
	if p.Sender.IsZero() {
		return fmt.Errorf("sender is required")
	}
	if p.Recipient.IsZero() {
		return fmt.Errorf("recipient is required")
	}
	if _, err := ToLamports(p.Amount); err != nil {
		return err
	}
	return nil
}

// Transaction builds the unsigned system transfer stamped with the intent's freshness.
func (p *PaymentIntent) Transaction() (*solana.Transaction, error) {
	lamports, err := ToLamports(p.Amount)
	if err != nil {
		return nil, err
	}
	if p.Freshness.Blockhash.IsZero() {
		return nil, fmt.Errorf("intent %s has no blockhash", p.ID)
	}

	return solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, p.Sender, p.Recipient).Build(),
		},
		p.Freshness.Blockhash,
		solana.TransactionPayer(p.Sender),
	)
}

func ToLamports(amount decimal.Decimal) (uint64, error) {
	lamports := amount.Mul(lamportsPerSOL)
	if !lamports.IsInteger() {
		return 0, fmt.Errorf("amount %s is finer than one lamport", amount)
	}
	if lamports.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount)
	}
	return uint64(lamports.IntPart()), nil
}

func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOL)
}

type SubmissionState string

const (
	SubmissionIdle       SubmissionState = "idle"
	SubmissionAttempting SubmissionState = "attempting"
	SubmissionRetrying   SubmissionState = "retrying"
	SubmissionSucceeded  SubmissionState = "success"
	SubmissionFailed     SubmissionState = "failure"
)

type SubmissionAttempt struct {
	Index     int       `json:"index"`
	Error     string    `json:"error,omitempty"`
	Signature string    `json:"signature,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

type SubmissionOutcome struct {
	Kind      OutcomeKind         `json:"kind"`
	Signature string              `json:"signature,omitempty"`
	Error     string              `json:"error,omitempty"`
	Attempts  []SubmissionAttempt `json:"attempts"`
}

func (o SubmissionOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// SubmissionRecord is the persisted form of one submission for the history panel.
type SubmissionRecord struct {
	ID          string            `json:"id"`
	Wallet      string            `json:"wallet"`
	Amount      decimal.Decimal   `json:"amount"`
	Recipient   string            `json:"recipient"`
	Outcome     SubmissionOutcome `json:"outcome"`
	ExplorerURL string            `json:"explorer_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type TxStatus string

const (
	TxStatusIdle    TxStatus = "idle"
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusError   TxStatus = "error"
)

// TxStatusUpdate feeds the transaction status panel.
type TxStatusUpdate struct {
	IntentID    string   `json:"intent_id"`
	Status      TxStatus `json:"status"`
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
	Message     string   `json:"message,omitempty"`
	Signature   string   `json:"signature,omitempty"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
}
