package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
)

// RelayTransport delivers sign requests to a connected wallet.
type RelayTransport interface {
	IsConnected(wallet string) bool
	SendSignRequest(wallet string, req SignRequest) error
}

type SignRequest struct {
	RequestID   string `json:"request_id"`
	Transaction string `json:"transaction"`
	ExpiresAt   int64  `json:"expires_at"`
}

type SignResponse struct {
	RequestID   string `json:"request_id"`
	Transaction string `json:"transaction,omitempty"`
	Error       string `json:"error,omitempty"`
}

type signResult struct {
	resp SignResponse
	err  error
}

type pendingSign struct {
	wallet string
	result chan signResult
}

// SignatureRelay forwards transactions to the player's browser wallet and
// waits for them to come back signed. A wallet only has a signer while its
// websocket is connected.
type SignatureRelay struct {
	mu        sync.Mutex
	transport RelayTransport
	timeout   time.Duration
	pending   map[string]*pendingSign
}

func NewSignatureRelay(timeout time.Duration) *SignatureRelay {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SignatureRelay{
		timeout: timeout,
		pending: make(map[string]*pendingSign),
	}
}

// Attach sets the transport. The hub and the relay reference each other, so
// this happens after both are built.
func (r *SignatureRelay) Attach(t RelayTransport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

func (r *SignatureRelay) SignerFor(wallet solana.PublicKey) Signer {
	r.mu.Lock()
	t := r.transport
	r.mu.Unlock()

	if t == nil || !t.IsConnected(wallet.String()) {
		return nil
	}
	return &relaySigner{relay: r, wallet: wallet}
}

// Resolve hands a wallet's answer to the waiting request. It reports false
// for unknown ids and for answers from another wallet.
func (r *SignatureRelay) Resolve(wallet string, resp SignResponse) bool {
	r.mu.Lock()
	p, ok := r.pending[resp.RequestID]
	if ok && p.wallet == wallet {
		delete(r.pending, resp.RequestID)
	}
	r.mu.Unlock()

	if !ok || p.wallet != wallet {
		return false
	}
	p.result <- signResult{resp: resp}
	return true
}

// Disconnected fails every request still waiting on the wallet.
func (r *SignatureRelay) Disconnected(wallet string) {
	r.mu.Lock()
	var dropped []*pendingSign
	for id, p := range r.pending {
		if p.wallet == wallet {
			dropped = append(dropped, p)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, p := range dropped {
		p.result <- signResult{err: ErrNoSigner}
	}
}

func (r *SignatureRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *SignatureRelay) register(wallet string) (string, *pendingSign) {
	id := uuid.New().String()
	p := &pendingSign{wallet: wallet, result: make(chan signResult, 1)}

	r.mu.Lock()
	r.pending[id] = p
	r.mu.Unlock()
	return id, p
}

func (r *SignatureRelay) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

type relaySigner struct {
	relay  *SignatureRelay
	wallet solana.PublicKey
}

func (s *relaySigner) PublicKey() solana.PublicKey {
	return s.wallet
}

func (s *relaySigner) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	r := s.relay
	r.mu.Lock()
	transport := r.transport
	r.mu.Unlock()

	wallet := s.wallet.String()
	if transport == nil || !transport.IsConnected(wallet) {
		return nil, ErrNoSigner
	}

	id, p := r.register(wallet)
	defer r.forget(id)

	req := SignRequest{
		RequestID:   id,
		Transaction: base64.StdEncoding.EncodeToString(raw),
		ExpiresAt:   time.Now().Add(r.timeout).Unix(),
	}
	if err := transport.SendSignRequest(wallet, req); err != nil {
		return nil, fmt.Errorf("failed to deliver sign request: %w", err)
	}

	logger.Debug("Sign request sent", zap.String("wallet", wallet), zap.String("request_id", id))

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var res signResult
	select {
	case res = <-p.result:
	case <-timer.C:
		return nil, ErrSignatureTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, res.err
	}
	if res.resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSignatureRejected, res.resp.Error)
	}

	return verifySigned(res.resp.Transaction, message, s.wallet)
}

// verifySigned decodes the wallet's answer and checks it signs exactly the
// message that was sent.
func verifySigned(encoded string, message []byte, wallet solana.PublicKey) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrSignatureMismatch, err)
	}

	signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable transaction: %v", ErrSignatureMismatch, err)
	}

	signedMessage, err := signed.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if !bytes.Equal(signedMessage, message) {
		return nil, ErrSignatureMismatch
	}
	if len(signed.Signatures) == 0 || !signed.Signatures[0].Verify(wallet, signedMessage) {
		return nil, fmt.Errorf("%w: missing or invalid signature", ErrSignatureMismatch)
	}
	return signed, nil
}
