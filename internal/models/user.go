package models

import "time"

type UserSession struct {
	Wallet       string    `json:"wallet" redis:"wallet"`
	SessionID    string    `json:"session_id" redis:"session_id"`
	CreatedAt    time.Time `json:"created_at" redis:"created_at"`
	LastAccessed time.Time `json:"last_accessed" redis:"last_accessed"`
}

type AuthChallenge struct {
	Wallet    string    `json:"wallet"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type WalletLoginRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type PayoutStatusRequest struct {
	Status PayoutStatus `json:"status" binding:"required"`
}
