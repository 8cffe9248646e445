package strava

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize         = 100
	DefaultMaxRateLimitWait = 15 * time.Minute
	DefaultRateLimitBackoff = 60 * time.Second

	minRateLimitWait = time.Second
)

type FetcherConfig struct {
	PageSize          int
	MaxRateLimitWait  time.Duration
	RateLimitBackoff  time.Duration
	RequestsPerSecond float64
}

// Fetcher walks the athlete's activity history.
type Fetcher struct {
	sdk     sdk.StravaSDK
	tokens  credentials.Provider
	cfg     FetcherConfig
	limiter *rate.Limiter
	log     logrus.FieldLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(stravaSDK sdk.StravaSDK, tokens credentials.Provider, cfg FetcherConfig, log logrus.FieldLogger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > sdk.MaxPaginatedResults {
		cfg.PageSize = sdk.MaxPaginatedResults
	}
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = DefaultMaxRateLimitWait
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = DefaultRateLimitBackoff
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		sdk:     stravaSDK,
		tokens:  tokens,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Cursor is the resume token of an Iterator: the next page to request and
// the since cutoff in effect.
type Cursor struct {
	Page  int
	Since *time.Time
}

// Iterator is a lazy, finite sequence of activity summaries, most recent
// first. It is not safe for concurrent use.
type Iterator struct {
	f      *Fetcher
	cursor Cursor
	buf    []*sdk.ActivitySummary
	cur    *sdk.ActivitySummary
	done   bool
	err    error
}

// Activities starts a walk from the first page. A nil since walks the full
// history.
func (f *Fetcher) Activities(since *time.Time) *Iterator {
	return f.Resume(Cursor{Page: 1, Since: since})
}

// Resume continues a walk from a cursor previously returned by
// Iterator.Cursor.
func (f *Fetcher) Resume(c Cursor) *Iterator {
	if c.Page < 1 {
		c.Page = 1
	}
	return &Iterator{f: f, cursor: c}
}

// Next advances to the next activity. It returns false at the end of the
// history, at the since cutoff, or on error; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	for {
		if it.err != nil {
			return false
		}

		if len(it.buf) > 0 {
			a := it.buf[0]
			it.buf = it.buf[1:]
			if it.cursor.Since != nil {
				if start, ok := a.StartDate(); ok && start.Before(*it.cursor.Since) {
					it.finish()
					return false
				}
			}
			it.cur = a
			return true
		}

		if it.done {
			it.cur = nil
			return false
		}

		page, err := it.f.fetchPage(ctx, it.cursor.Page)
		if err != nil {
			it.err = err
			it.cur = nil
			return false
		}
		it.cursor.Page++
		if len(page) < it.f.cfg.PageSize {
			it.done = true
		}
		it.buf = page
	}
}

func (it *Iterator) finish() {
	it.done = true
	it.buf = nil
	it.cur = nil
}

// Activity returns the current activity after a successful Next.
func (it *Iterator) Activity() *sdk.ActivitySummary {
	return it.cur
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Cursor returns the position of the next unfetched page.
func (it *Iterator) Cursor() Cursor {
	return it.cursor
}

// FetchActivities collects the whole sequence.
func (f *Fetcher) FetchActivities(ctx context.Context, since *time.Time) ([]*sdk.ActivitySummary, error) {
	it := f.Activities(since)
	activities := []*sdk.ActivitySummary{}
	for it.Next(ctx) {
		activities = append(activities, it.Activity())
	}
	return activities, it.Err()
}

// FetchDetail fetches the full activity including splits.
func (f *Fetcher) FetchDetail(ctx context.Context, activityID int64) (*sdk.ActivityDetail, error) {
	var detail *sdk.ActivityDetail
	err := f.call(ctx, func(token string) error {
		var err error
		detail, err = f.sdk.GetActivity(ctx, token, activityID)
		return err
	})
	if err != nil {
		return nil, classify(err, 0, activityID)
	}
	return detail, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, page int) ([]*sdk.ActivitySummary, error) {
	var activities []*sdk.ActivitySummary
	err := f.call(ctx, func(token string) error {
		var err error
		activities, err = f.sdk.GetActivitiesByPage(ctx, token, page, f.cfg.PageSize)
		return err
	})
	if err != nil {
		return nil, classify(err, page, 0)
	}
	f.log.Debugf("fetched page %d with %d activities", page, len(activities))
	return activities, nil
}

// call runs one API request, waiting out rate limits and retrying once with a
// refreshed token after a 401.
func (f *Fetcher) call(ctx context.Context, do func(token string) error) error {
	refreshed := false
	var waited time.Duration

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		cred, err := f.tokens.GetValidCredential(ctx, credentials.ServiceStrava)
		if err != nil {
			return err
		}

		err = do(cred.AccessToken)
		if err == nil {
			return nil
		}

		var httpErr *sdk.HTTPError
		if !errors.As(err, &httpErr) {
			return err
		}

		switch httpErr.StatusCode {
		case http.StatusTooManyRequests:
			wait := f.rateLimitWait(httpErr.Header)
			if waited+wait > f.cfg.MaxRateLimitWait {
				return &RateLimitExceeded{Wait: waited + wait, Max: f.cfg.MaxRateLimitWait}
			}
			f.log.Warnf("rate limited by strava, waiting %s before retrying", wait)
			if err := f.sleep(ctx, wait); err != nil {
				return err
			}
			waited += wait
		case http.StatusUnauthorized:
			if refreshed {
				return &credentials.CredentialError{
					Service: credentials.ServiceStrava,
					Reason:  "access token rejected after refresh",
					Err:     err,
				}
			}
			refreshed = true
			if _, err := f.tokens.ForceRefresh(ctx, credentials.ServiceStrava); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (f *Fetcher) rateLimitWait(h http.Header) time.Duration {
	wait, ok := sdk.RateLimitReset(h, f.now())
	if !ok {
		wait = f.cfg.RateLimitBackoff
	}
	if wait < minRateLimitWait {
		wait = minRateLimitWait
	}
	return wait
}

// classify turns transport errors into FetchError, leaving run level errors
// untouched.
func classify(err error, page int, activityID int64) error {
	var credErr *credentials.CredentialError
	var rateErr *RateLimitExceeded
	if errors.As(err, &credErr) || errors.As(err, &rateErr) ||
		errors.Is(err, context.Canceled) {
		return err
	}

	fetchErr := &FetchError{Page: page, ActivityID: activityID, Err: err}
	var httpErr *sdk.HTTPError
	if errors.As(err, &httpErr) {
		fetchErr.Status = httpErr.StatusCode
	}
	return fetchErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
