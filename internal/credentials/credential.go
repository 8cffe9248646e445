package credentials

import (
	"fmt"
	"time"
)

// Service identifies which API a credential authorizes.
type Service string

const (
	ServiceStrava Service = "strava"
	ServiceDrive  Service = "drive"
)

// Credential is a bearer token pair for one service.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	TokenType    string
}

// ValidAt reports whether the access token can still be used at now, keeping
// margin in reserve.
func (c *Credential) ValidAt(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.After(now.Add(margin))
}

// CredentialError is fatal for the run: once returned for a service no more
// calls are made against that service.
type CredentialError struct {
	Service Service
	Reason  string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s credential: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s credential: %s", e.Service, e.Reason)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
