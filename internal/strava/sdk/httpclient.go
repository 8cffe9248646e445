package sdk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// determine whether or not to retry a request. Only timeouts are retried, and
// only once (see SetRetryCount below).
func retryConditionFunc(r *resty.Response, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// convert non 2xx status code responses into error
func afterResponseConvertNon2xxToError(c *resty.Client, r *resty.Response) error {
	code := r.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return &HTTPError{StatusCode: code, Header: r.Header().Clone()}
}

// NewHTTPClient builds the resty client shared by the Strava and Drive
// clients: explicit timeout, a single immediate retry on timeouts and typed
// errors for non 2xx responses. A nil log keeps resty's own logger.
func NewHTTPClient(timeout time.Duration, log logrus.FieldLogger) *resty.Client {
	return newHTTPClient(timeout, log)
}

func newHTTPClient(timeout time.Duration, log logrus.FieldLogger) *resty.Client {
	http := &http.Client{Timeout: timeout}
	client := resty.
		NewWithClient(http).
		SetRetryCount(1).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		AddRetryCondition(retryConditionFunc).
		OnAfterResponse(afterResponseConvertNon2xxToError)
	if log != nil {
		client.SetLogger(log)
	}
	return client
}
