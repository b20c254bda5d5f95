package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates the session tokens embedded in
// websocket URLs
type TokenService struct {
	secretKey   []byte
	issuer      string
	tokenExpiry time.Duration
}

// SessionClaims are the claims carried by a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// NewTokenService creates a token service. An empty secret generates a
// random one, which is fine for a single-process gateway.
func NewTokenService(secretKey, issuer string, expiry time.Duration) *TokenService {
	if secretKey == "" {
		secretKey = randomSecret()
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenService{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		tokenExpiry: expiry,
	}
}

// TokenExpiry returns the configured token lifetime
func (t *TokenService) TokenExpiry() time.Duration {
	return t.tokenExpiry
}

// GenerateToken creates a signed token for one session
func (t *TokenService) GenerateToken(sessionID, deviceID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.tokenExpiry)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
		SessionID: sessionID,
		DeviceID:  deviceID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims
func (t *TokenService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("drover-gateway-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
