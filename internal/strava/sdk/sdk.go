package sdk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPError is returned for any non 2xx response. The response headers are
// kept so callers can inspect rate limit metadata.
type HTTPError struct {
	StatusCode int
	Header     http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP status = %d", e.StatusCode)
}

// Is matches on status code so the sentinels below work with errors.Is.
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.StatusCode == e.StatusCode
}

func makeHTTPError(code int) *HTTPError {
	return &HTTPError{StatusCode: code}
}

// Common error codes for HTTP responses
var (
	ErrorBadRequest          = makeHTTPError(http.StatusBadRequest)
	ErrorUnauthorized        = makeHTTPError(http.StatusUnauthorized)
	ErrorNotFound            = makeHTTPError(http.StatusNotFound)
	ErrorTooManyRequests     = makeHTTPError(http.StatusTooManyRequests)
	ErrorInternalServerError = makeHTTPError(http.StatusInternalServerError)
)

// StravaSDK wraps API calls to Strava
type StravaSDK interface {
	// authentication APIs
	ExchangeAuthToken(ctx context.Context, request *TokenExchangeCode) (*AuthorizationCodeResponse, error)
	RefreshAuthToken(ctx context.Context, refreshToken string) (*StravaTokens, error)

	// athlete APIs
	GetActivitiesByPage(ctx context.Context, token string, page int, perPage int) ([]*ActivitySummary, error)
	GetActivity(ctx context.Context, token string, activityID int64) (*ActivityDetail, error)
}

type StravaSDKConfig struct {
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	// APIRootURL defaults to the public v3 API and must end with a slash.
	APIRootURL string
	// Log receives resty's retry and failure messages.
	Log logrus.FieldLogger
}

// NewStravaSDK create a new SDK
func NewStravaSDK(config StravaSDKConfig) StravaSDK {
	root := config.APIRootURL
	if root == "" {
		root = DefaultAPIRootURL
	}
	return sdkImpl{
		client:       newHTTPClient(config.Timeout, config.Log),
		apiRootURL:   root,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
	}
}
