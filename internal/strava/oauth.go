package strava

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
)

// TokenRefresher refreshes Strava access tokens through the SDK.
type TokenRefresher struct {
	SDK sdk.StravaSDK
	now func() time.Time
}

var _ credentials.Refresher = (*TokenRefresher)(nil)

func NewTokenRefresher(stravaSDK sdk.StravaSDK) *TokenRefresher {
	return &TokenRefresher{SDK: stravaSDK, now: time.Now}
}

func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error) {
	tokens, err := r.SDK.RefreshAuthToken(ctx, refreshToken)
	if err != nil {
		var httpErr *sdk.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusBadRequest || httpErr.StatusCode == http.StatusUnauthorized) {
			return nil, &credentials.CredentialError{
				Service: credentials.ServiceStrava,
				Reason:  "token endpoint rejected refresh",
				Err:     err,
			}
		}
		return nil, err
	}
	return credentialFromTokens(tokens, r.now()), nil
}

// ExchangeCode completes the one-time authorization code flow.
func ExchangeCode(ctx context.Context, stravaSDK sdk.StravaSDK, code, scope string) (*credentials.Credential, error) {
	res, err := stravaSDK.ExchangeAuthToken(ctx, &sdk.TokenExchangeCode{Code: code})
	if err != nil {
		return nil, err
	}
	cred := credentialFromTokens(res.Tokens(), time.Now())
	cred.Scope = scope
	return cred, nil
}

func credentialFromTokens(tokens *sdk.StravaTokens, now time.Time) *credentials.Credential {
	cred := &credentials.Credential{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}
	switch {
	case tokens.ExpiresIn > 0:
		cred.ExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second).UTC()
	case tokens.ExpiresAt > 0:
		cred.ExpiresAt = time.Unix(tokens.ExpiresAt, 0).UTC()
	}
	return cred
}
