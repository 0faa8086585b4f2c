package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
)

// TokenSource supplies valid access tokens. Token may return a cached
// token; ForceRefresh always performs an exchange, bypassing the
// cached-validity check.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client executes authenticated exchanges against the device directory.
// Each logical request is sent at most twice: once, and once more after a
// 401-triggered token refresh. Nothing else is retried.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	conn    ConnectivityChecker
	log     zerolog.Logger
}

// NewClient creates a directory client for baseURL.
func NewClient(baseURL string, tokens TokenSource, conn ConnectivityChecker) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, &InvalidEndpointError{URL: baseURL}
	}

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: tokens,
		conn:   conn,
		log:    log.With().Str("component", "directory-client").Logger(),
	}, nil
}

// FetchDevice fetches one device by its directory id. Failures degrade to
// absence: the caller keeps whatever cached state it already has.
func (c *Client) FetchDevice(ctx context.Context, id string) *models.Device {
	var device models.Device
	if err := c.do(ctx, http.MethodGet, "/api/devices/"+id, nil, &device); err != nil {
		c.log.Warn().Err(err).Str("device_id", id).Msg("Fetch device failed")
		return nil
	}
	return &device
}

// UpdateDevice issues a device command. The error is propagated so the
// caller can decide between clearing its loading flag and waiting for the
// reconciliation poll.
func (c *Client) UpdateDevice(ctx context.Context, id string, req models.DeviceUpdateRequest) (*models.UpdateDeviceResponse, error) {
	var resp models.UpdateDeviceResponse
	if err := c.do(ctx, http.MethodPut, "/api/devices/"+id, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchCognitoCredentials fetches the push-channel bootstrap credentials
// for one asset.
func (c *Client) FetchCognitoCredentials(ctx context.Context, assetID string) (*models.CognitoCredentials, error) {
	var creds models.CognitoCredentials
	path := fmt.Sprintf("/api/properties/%s/cognito_credentials", assetID)
	if err := c.do(ctx, http.MethodGet, path, nil, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// do runs one logical request: connectivity pre-flight, token attach,
// exchange, single replay on 401, status mapping, decode.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if !c.conn.Online() {
		return ErrNoConnectivity
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("No valid token available")
		return ErrUnauthenticated
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			return ErrUnauthenticated
		}

		c.log.Debug().Str("path", path).Msg("Replaying request with refreshed token")
		status, respBody, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return ErrUnauthenticated
		}
	}

	if status < 200 || status >= 300 {
		return &ServerError{Status: status, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &DecodingError{Err: err}
		}
	}

	return nil
}

// send performs exactly one HTTP exchange.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	endpoint := c.baseURL + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, &InvalidEndpointError{URL: endpoint}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Msg("API request")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}

	return resp.StatusCode, respBody, nil
}
