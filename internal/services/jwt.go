package services

import (
	"fmt"
	"time"

	"ancient-spinner-backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Wallet    string `json:"wallet"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	expiry time.Duration
}

func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
	}
}

func (j *JWTService) GenerateToken(wallet, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Wallet:    wallet,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Wallet == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("token is missing wallet or session")
	}
	return claims, nil
}

func (j *JWTService) Expiry() time.Duration {
	return j.expiry
}
