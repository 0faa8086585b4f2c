package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
)

// AuthClient talks to the auth service. It lives on a separate base URL
// from the device directory and attaches no bearer credential: login and
// refresh are themselves the exchanges that produce tokens.
type AuthClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewAuthClient creates an auth client for baseURL.
func NewAuthClient(baseURL string) (*AuthClient, error) {
	if baseURL == "" {
		return nil, &InvalidEndpointError{URL: baseURL}
	}

	return &AuthClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "auth-client").Logger(),
	}, nil
}

// Login performs the full credential exchange.
func (c *AuthClient) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.post(ctx, "/oauth/token", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *AuthClient) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenResponse, error) {
	var resp models.TokenResponse
	if err := c.post(ctx, "/api/refreshtoken", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends one unauthenticated JSON exchange with the shared error
// taxonomy. Auth endpoints are never replayed.
func (c *AuthClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &InvalidEndpointError{URL: endpoint}
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("url", endpoint).Msg("Auth request")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &DecodingError{Err: err}
	}

	return nil
}
