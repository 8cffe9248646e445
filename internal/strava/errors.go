package strava

import (
	"fmt"
	"time"
)

// FetchError is a non 2xx response other than a rate limit. ActivityID is 0
// when the failing request was a listing page.
type FetchError struct {
	Status     int
	ActivityID int64
	Page       int
	Err        error
}

func (e *FetchError) Error() string {
	if e.ActivityID != 0 {
		return fmt.Sprintf("fetching activity %d: status %d: %v", e.ActivityID, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching activities page %d: status %d: %v", e.Page, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RateLimitExceeded is returned when waiting out a rate limit would take
// longer than the configured maximum.
type RateLimitExceeded struct {
	Wait time.Duration
	Max  time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limited for %s, longer than the allowed %s", e.Wait, e.Max)
}
