// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session manages the authenticated, time-limited right to use the
// backend's connection endpoint. Sessions are minted by an external authority
// and renewed transparently before they expire.
package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drover/internal/logger"
)

const (
	// DefaultRenewalBuffer is how long before expiry a session is treated
	// as no longer usable.
	DefaultRenewalBuffer = 5 * time.Minute

	// DefaultTTL is assumed when the issued token carries no expiry of its
	// own.
	DefaultTTL = time.Hour
)

// Session is an issued connection grant. It is immutable once created;
// renewal produces a new Session rather than mutating this one.
type Session struct {
	ID        string
	Endpoint  string // websocket URL with the token embedded as a query parameter
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Config configures a session Store.
type Config struct {
	AuthorityURL  string
	DeviceID      string
	Provider      string
	Platform      string
	RenewalBuffer time.Duration
	TTL           time.Duration
}

// Store owns the current session and knows how to mint a replacement from
// the authority. All access goes through the store; renewal is serialized.
type Store struct {
	authority *AuthorityClient
	deviceID  string
	provider  string
	platform  string
	buffer    time.Duration
	ttl       time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	current *Session

	// now is replaceable in tests
	now func() time.Time
}

// NewStore creates a session store for one device identity.
func NewStore(cfg Config) *Store {
	if cfg.Provider == "" {
		cfg.Provider = "LOCAL_CLIENT"
	}
	if cfg.RenewalBuffer <= 0 {
		cfg.RenewalBuffer = DefaultRenewalBuffer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = fmt.Sprintf("drover-agent-%s", shortID(8))
	}

	return &Store{
		authority: NewAuthorityClient(cfg.AuthorityURL),
		deviceID:  cfg.DeviceID,
		provider:  cfg.Provider,
		platform:  cfg.Platform,
		buffer:    cfg.RenewalBuffer,
		ttl:       cfg.TTL,
		logger:    logger.New(),
		now:       time.Now,
	}
}

// DeviceID returns the device identity this store authenticates as.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// Create mints a new session from the authority and replaces the current one.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx)
}

func (s *Store) createLocked(ctx context.Context) (*Session, error) {
	sessionID := fmt.Sprintf("drover-session-%s", shortID(16))

	issued, err := s.authority.CreateSession(ctx, s.deviceID, sessionID, s.provider, s.platform)
	if err != nil {
		return nil, err
	}

	endpoint, err := authenticatedEndpoint(issued.WebsocketURL, issued.AuthenticationToken)
	if err != nil {
		return nil, &AuthorityError{Op: "create", Err: err}
	}

	created := s.now()
	sess := &Session{
		ID:        issued.SessionID,
		Endpoint:  endpoint,
		Token:     issued.AuthenticationToken,
		CreatedAt: created,
		ExpiresAt: tokenExpiry(issued.AuthenticationToken, created, s.ttl),
	}
	s.current = sess

	s.logger.Info().
		Str("session_id", sess.ID).
		Time("expires_at", sess.ExpiresAt).
		Msg("Session created")

	return sess, nil
}

// Current returns the stored session. A session expired or inside the renewal
// buffer is replaced transparently when autoRenew is set, otherwise nil is
// returned.
func (s *Store) Current(ctx context.Context, autoRenew bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}

	remaining := s.current.ExpiresAt.Sub(s.now())
	if remaining > s.buffer {
		return s.current
	}

	s.logger.Info().
		Str("session_id", s.current.ID).
		Dur("remaining", remaining).
		Msg("Session expired or about to expire")

	if !autoRenew {
		return nil
	}

	sess, err := s.createLocked(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to renew session")
		return nil
	}
	return sess
}

// Reset discards the held session without telling the authority. The next
// Create or auto-renewing Current mints a fresh one. Used when a lost or
// rejected connection makes the held token suspect.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.logger.Info().
			Str("session_id", s.current.ID).
			Msg("Discarding local session")
		s.current = nil
	}
}

// Delete revokes the current session best-effort. Local state is always
// cleared; a revocation failure is logged and reported as false, never
// raised. Deleting with no session held is a success.
func (s *Store) Delete(ctx context.Context) bool {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current == nil {
		return true
	}

	deleted, err := s.authority.DeleteSession(ctx, current.ID)
	if err != nil {
		s.logger.Warn().
			Str("session_id", current.ID).
			Err(err).
			Msg("Failed to delete session")
		return false
	}
	if deleted {
		s.logger.Info().
			Str("session_id", current.ID).
			Msg("Session deleted")
	}
	return deleted
}

// authenticatedEndpoint appends the issued token to the endpoint as a
// connection query parameter, defaulting the scheme to ws:// when the
// authority returned a bare host.
func authenticatedEndpoint(rawURL, token string) (string, error) {
	if !strings.HasPrefix(rawURL, "ws://") && !strings.HasPrefix(rawURL, "wss://") {
		rawURL = "ws://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL %q: %w", rawURL, err)
	}

	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// tokenExpiry extracts the authority-supplied expiry from the token's exp
// claim. The token is not verified here; only the backend checks signatures.
// Tokens without a usable exp claim fall back to the configured TTL.
func tokenExpiry(token string, createdAt time.Time, ttl time.Duration) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return createdAt.Add(ttl)
}

func shortID(length int) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if length > 0 && length < len(id) {
		return id[:length]
	}
	return id
}
