package services

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer holds the signing capability for one wallet.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// SignerSource resolves the signer bound to a wallet, or nil when the wallet
// has no signing capability right now.
type SignerSource interface {
	SignerFor(wallet solana.PublicKey) Signer
}

type KeypairSigner struct {
	key solana.PrivateKey
}

func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// LoadKeypairSigner reads a solana-keygen JSON keypair file.
func LoadKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %v", path, err)
	}
	return NewKeypairSigner(key), nil
}

func (k *KeypairSigner) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

func (k *KeypairSigner) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	pub := k.key.PublicKey()
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &k.key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// LocalSigners serves keypairs held by this process.
type LocalSigners map[solana.PublicKey]*KeypairSigner

func NewLocalSigners(signers ...*KeypairSigner) LocalSigners {
	out := make(LocalSigners, len(signers))
	for _, s := range signers {
		out[s.PublicKey()] = s
	}
	return out
}

func (l LocalSigners) SignerFor(wallet solana.PublicKey) Signer {
	if s, ok := l[wallet]; ok {
		return s
	}
	return nil
}

// ChainedSigners asks each source in order and returns the first match.
type ChainedSigners []SignerSource

func (c ChainedSigners) SignerFor(wallet solana.PublicKey) Signer {
	for _, src := range c {
		if src == nil {
			continue
		}
		if s := src.SignerFor(wallet); s != nil {
			return s
		}
	}
	return nil
}
