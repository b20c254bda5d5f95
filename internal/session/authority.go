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

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"drover/internal/logger"
)

// AuthorityError reports a failure talking to the session-issuing authority.
// It is distinct from connection failures: a dead socket is handled by the
// transport layer, while an AuthorityError means no usable session exists.
type AuthorityError struct {
	Op  string
	Err error
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("session authority %s: %v", e.Op, e.Err)
}

func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// IssuedSession is the raw grant returned by the authority.
type IssuedSession struct {
	SessionID           string `json:"session_id"`
	WebsocketURL        string `json:"websocket_url"`
	AuthenticationToken string `json:"authentication_token"`
}

type createSessionRequest struct {
	DeviceID      string               `json:"device_id"`
	SessionID     string               `json:"session_id"`
	Provider      string               `json:"provider"`
	Configuration sessionConfiguration `json:"configuration"`
}

type sessionConfiguration struct {
	Platform string `json:"platform"`
}

type sessionEnvelope struct {
	Status string        `json:"status"`
	Data   IssuedSession `json:"data"`
}

// AuthorityClient talks to the session REST API of the backend.
type AuthorityClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewAuthorityClient creates a client for the authority base URL.
func NewAuthorityClient(baseURL string) *AuthorityClient {
	return &AuthorityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.New(),
	}
}

// CreateSession requests a new session grant for the given device identity.
func (ac *AuthorityClient) CreateSession(ctx context.Context, deviceID, sessionID, provider, platform string) (*IssuedSession, error) {
	payload, err := json.Marshal(&createSessionRequest{
		DeviceID:  deviceID,
		SessionID: sessionID,
		Provider:  provider,
		Configuration: sessionConfiguration{
			Platform: platform,
		},
	})
	if err != nil {
		return nil, &AuthorityError{Op: "create", Err: err}
	}

	url := ac.baseURL + "/v1/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthorityError{Op: "create", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ac.client.Do(req)
	if err != nil {
		return nil, &AuthorityError{Op: "create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &AuthorityError{Op: "create", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	var envelope sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &AuthorityError{Op: "create", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if envelope.Status != "success" {
		return nil, &AuthorityError{Op: "create", Err: fmt.Errorf("status %q", envelope.Status)}
	}

	ac.logger.Debug().
		Str("session_id", envelope.Data.SessionID).
		Msg("Authority issued session")

	return &envelope.Data, nil
}

// DeleteSession revokes a session. A 404 means the session is already gone
// and counts as success; any other non-200 status is a soft failure.
func (ac *AuthorityClient) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := ac.baseURL + "/v1/sessions/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := ac.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	return false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
}
