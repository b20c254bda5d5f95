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

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"drover/internal/logger"
)

// APIServer handles the session REST API
type APIServer struct {
	database *Database
	tokens   *TokenService
	hub      *AgentHub
	logger   zerolog.Logger

	// websocketURL is the externally reachable websocket endpoint handed
	// out with each session
	websocketURL string
}

// NewAPIServer creates the REST side of the gateway
func NewAPIServer(database *Database, tokens *TokenService, hub *AgentHub, websocketURL string) *APIServer {
	return &APIServer{
		database:     database,
		tokens:       tokens,
		hub:          hub,
		logger:       logger.New(),
		websocketURL: websocketURL,
	}
}

// Router builds the HTTP router with all gateway routes
func (api *APIServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(api.loggingMiddleware)

	router.HandleFunc("/v1/sessions", api.handleCreateSession).Methods("POST")
	router.HandleFunc("/v1/sessions", api.handleListSessions).Methods("GET")
	router.HandleFunc("/v1/sessions/{session_id}", api.handleDeleteSession).Methods("DELETE")
	router.HandleFunc("/v1/health", api.handleHealth).Methods("GET")
	router.HandleFunc("/v1/ws", api.hub.HandleWebsocket).Methods("GET")

	return router
}

// Middleware
func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		api.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

type createSessionRequest struct {
	DeviceID      string `json:"device_id"`
	SessionID     string `json:"session_id"`
	Provider      string `json:"provider"`
	Configuration struct {
		Platform string `json:"platform"`
	} `json:"configuration"`
}

func (api *APIServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DeviceID == "" {
		api.writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	token, expiresAt, err := api.tokens.GenerateToken(req.SessionID, req.DeviceID)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to generate session token")
		api.writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	record, err := api.database.CreateSession(
		req.SessionID, req.DeviceID, req.Provider,
		req.Configuration.Platform, token, expiresAt,
	)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to persist session")
		api.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	api.logger.Info().
		Str("session_id", record.SessionID).
		Str("device_id", record.DeviceID).
		Time("expires_at", record.ExpiresAt).
		Msg("Session created")

	api.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"session_id":           record.SessionID,
			"websocket_url":        api.websocketURL,
			"authentication_token": token,
		},
	})
}

// handleDeleteSession revokes a session. Deleting a session that is already
// gone returns 404; the client treats both outcomes as success.
func (api *APIServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if err := api.database.DeleteSession(sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			api.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		api.logger.Error().Err(err).Msg("Failed to delete session")
		api.writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	api.hub.DisconnectAgent(sessionID)

	api.logger.Info().
		Str("session_id", sessionID).
		Msg("Session deleted")

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}

func (api *APIServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := api.database.ActiveSessions()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to list sessions")
		api.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"sessions":  sessions,
			"connected": api.hub.ConnectedSessions(),
		},
	})
}

func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *APIServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (api *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  message,
	})
}
