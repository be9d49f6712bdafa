package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
)

const ExplorerBaseURL = "https://solscan.io/tx/"

func GenerateSessionID() string {
	return uuid.New().String()
}

// GeneratePayoutID returns a short id like the ones shown in the payouts panel.
func GeneratePayoutID() string {
	id, err := gonanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 10)
	if err != nil {
		return fmt.Sprintf("payout_%d", uuid.New().ID())
	}
	return id
}

func GenerateNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

// ChallengeMessage is the text the wallet signs to log in.
func ChallengeMessage(wallet, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("Sign in to AncientSpinner\nwallet: %s\nnonce: %s\nissued: %s",
		wallet, nonce, issuedAt.UTC().Format(time.RFC3339))
}

// ExplorerURL links a signature on solscan; non-mainnet clusters get a suffix.
func ExplorerURL(signature, cluster string) string {
	if signature == "" {
		return ""
	}
	url := ExplorerBaseURL + signature
	if cluster != "" && cluster != "mainnet-beta" {
		url += "?cluster=" + cluster
	}
	return url
}

func FormatSOL(amount decimal.Decimal) string {
	return fmt.Sprintf("%s SOL", amount.StringFixed(2))
}

// ShortAddress renders "ABCD...WXYZ".
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
