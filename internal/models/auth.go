package models

// LoginRequest is the body for the full credential exchange.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /oauth/token.
type LoginResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// RefreshTokenRequest is the body for the refresh exchange. The upstream
// expects the key spelled exactly "refreshtoken".
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshtoken"`
}

// TokenResponse is returned by POST /api/refreshtoken. The refresh token
// is only present when the server rotates it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// CognitoCredentials bootstraps the push channel for one asset.
type CognitoCredentials struct {
	IdentityPoolID string `json:"identity_pool_id"`
	IdentityID     string `json:"identity_id"`
	Token          string `json:"token"`
	AWSEndpoint    string `json:"aws_endpoint"`
	Region         string `json:"region"`
	AccountID      string `json:"account_id"`
	ProviderName   string `json:"provider_name"`
}
