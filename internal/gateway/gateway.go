package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"drover/internal/logger"
)

// Config configures the gateway process
type Config struct {
	// Address is the listen address, e.g. ":8080"
	Address string
	// WebsocketURL is the externally reachable websocket endpoint. Derived
	// from Address when empty.
	WebsocketURL string
	// DBPath is the SQLite database path; ":memory:" keeps sessions ephemeral
	DBPath string
	// TokenSecret signs session tokens; empty generates a random secret
	TokenSecret string
	// TokenTTL is the session token lifetime
	TokenTTL time.Duration
}

// Gateway is the backend the agent talks to: the session REST API plus the
// agent websocket hub, sharing one HTTP listener.
type Gateway struct {
	config   Config
	database *Database
	tokens   *TokenService
	hub      *AgentHub
	api      *APIServer
	server   *http.Server
	logger   zerolog.Logger
}

// NewGateway wires up a gateway from config
func NewGateway(config Config) (*Gateway, error) {
	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.DBPath == "" {
		config.DBPath = ":memory:"
	}
	if config.WebsocketURL == "" {
		config.WebsocketURL = fmt.Sprintf("ws://localhost%s/v1/ws", config.Address)
	}

	database, err := NewDatabase(config.DBPath)
	if err != nil {
		return nil, err
	}

	tokens := NewTokenService(config.TokenSecret, "drover-gateway", config.TokenTTL)
	hub := NewAgentHub(tokens, database)
	api := NewAPIServer(database, tokens, hub, config.WebsocketURL)

	return &Gateway{
		config:   config,
		database: database,
		tokens:   tokens,
		hub:      hub,
		api:      api,
		logger:   logger.New(),
	}, nil
}

// Hub returns the agent hub for command relay
func (g *Gateway) Hub() *AgentHub {
	return g.hub
}

// Database returns the session store
func (g *Gateway) Database() *Database {
	return g.database
}

// Start runs the HTTP listener until Stop is called. It blocks.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         g.config.Address,
		Handler:      g.api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.logger.Info().
		Str("address", g.config.Address).
		Str("websocket_url", g.config.WebsocketURL).
		Msg("Starting gateway")

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the gateway down gracefully
func (g *Gateway) Stop() error {
	g.logger.Info().Msg("Stopping gateway")

	g.hub.Shutdown()

	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("Server shutdown incomplete")
		}
	}

	if err := g.database.Close(); err != nil {
		return err
	}

	g.logger.Info().Msg("Gateway stopped")
	return nil
}
