package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/smarthome-bridge/smarthome-bridge/internal/api"
	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
	"github.com/smarthome-bridge/smarthome-bridge/internal/storage"
)

// API is the slice of the auth service the session manager needs.
type API interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenResponse, error)
}

// Credentials is the slice of the credential store the session manager
// needs. It is consulted, not owned.
type Credentials interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// SessionManager owns the access/refresh token pair. It hands out a
// currently valid access token, refreshing or re-authenticating as needed,
// and coalesces concurrent exchanges so N simultaneous 401s trigger at
// most one network exchange.
type SessionManager struct {
	store Credentials
	auth  API
	group singleflight.Group
	now   func() time.Time
	log   zerolog.Logger
}

// NewSessionManager creates a session manager over the given credential
// store and auth API.
func NewSessionManager(store Credentials, authAPI API) *SessionManager {
	return &SessionManager{
		store: store,
		auth:  authAPI,
		now:   time.Now,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// Token returns a currently valid access token. A cached token with a
// future exp claim is returned without any network call; otherwise the
// refresh/login ladder runs. Returns api.ErrUnauthenticated when the
// ladder is exhausted.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	if token := m.storedAccessToken(); token != "" && !m.expired(token) {
		return token, nil
	}
	return m.ForceRefresh(ctx)
}

// ForceRefresh performs the refresh/login ladder regardless of the cached
// token's claimed validity. Concurrent callers share one exchange and all
// observe its result.
func (m *SessionManager) ForceRefresh(ctx context.Context) (string, error) {
	v, err, shared := m.group.Do("token-exchange", func() (interface{}, error) {
		return m.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.log.Debug().Msg("Token exchange coalesced with concurrent caller")
	}
	return v.(string), nil
}

// exchange runs the ladder: refresh-token exchange first, full login as
// fallback, unauthenticated when neither is possible. Issued tokens are
// persisted before being returned.
func (m *SessionManager) exchange(ctx context.Context) (string, error) {
	if refresh, err := m.store.Get(storage.KeyRefreshToken); err == nil && refresh != "" {
		resp, err := m.auth.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: refresh})
		if err == nil && resp.AccessToken != "" {
			m.persist(resp.AccessToken, resp.RefreshToken)
			m.log.Info().Msg("Access token refreshed")
			return resp.AccessToken, nil
		}
		m.log.Warn().Err(err).Msg("Refresh exchange failed, falling back to login")
	}

	email, _ := m.store.Get(storage.KeyEmail)
	password, _ := m.store.Get(storage.KeyPassword)
	if email != "" && password != "" {
		resp, err := m.auth.Login(ctx, models.LoginRequest{Email: email, Password: password})
		if err == nil && resp.AccessToken != "" {
			m.persist(resp.AccessToken, resp.RefreshToken)
			m.log.Info().Msg("Logged in with stored credentials")
			return resp.AccessToken, nil
		}
		m.log.Warn().Err(err).Msg("Login exchange failed")
	}

	return "", api.ErrUnauthenticated
}

// persist writes the new access token and, when the server rotated one,
// the new refresh token.
func (m *SessionManager) persist(access, refresh string) {
	if err := m.store.Set(storage.KeyAccessToken, access); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist access token")
	}
	if refresh != "" {
		if err := m.store.Set(storage.KeyRefreshToken, refresh); err != nil {
			m.log.Error().Err(err).Msg("Failed to persist refresh token")
		}
	}
}

func (m *SessionManager) storedAccessToken() string {
	token, err := m.store.Get(storage.KeyAccessToken)
	if err != nil {
		return ""
	}
	return token
}

// expired reports whether the token's exp claim is at or before now.
// Malformed tokens (wrong segment count, undecodable payload, missing exp)
// count as expired: fail toward re-authentication, never toward trusting a
// broken token. The signature is deliberately not verified; the client
// only inspects the claim the server put there.
func (m *SessionManager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return !m.now().Before(exp.Time)
}
