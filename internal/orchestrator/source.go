package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/strava"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
)

// Activities is a lazy sequence of listing entries, most recent first.
type Activities interface {
	Next(ctx context.Context) bool
	Activity() *sdk.ActivitySummary
	Err() error
}

// positioned is implemented by listings that can report where they stopped.
type positioned interface {
	Cursor() strava.Cursor
}

type Source interface {
	List(since *time.Time) Activities
	FetchDetail(ctx context.Context, activityID int64) (*sdk.ActivityDetail, error)
}

type fetcherSource struct {
	fetcher *strava.Fetcher
	log     logrus.FieldLogger
}

// NewFetcherSource lists activities through the Strava fetcher. A listing page
// that fails with a server error is requested once more before the listing
// gives up.
func NewFetcherSource(f *strava.Fetcher, log logrus.FieldLogger) Source {
	return fetcherSource{fetcher: f, log: log}
}

func (s fetcherSource) List(since *time.Time) Activities {
	return &resumingActivities{Iterator: s.fetcher.Activities(since), fetcher: s.fetcher, log: s.log}
}

func (s fetcherSource) FetchDetail(ctx context.Context, activityID int64) (*sdk.ActivityDetail, error) {
	return s.fetcher.FetchDetail(ctx, activityID)
}

type resumingActivities struct {
	*strava.Iterator
	fetcher *strava.Fetcher
	log     logrus.FieldLogger
	resumed bool
}

func (a *resumingActivities) Next(ctx context.Context) bool {
	if a.Iterator.Next(ctx) {
		return true
	}
	var fetchErr *strava.FetchError
	if a.resumed || !errors.As(a.Iterator.Err(), &fetchErr) || fetchErr.Status < http.StatusInternalServerError {
		return false
	}
	a.resumed = true
	cursor := a.Iterator.Cursor()
	a.log.Warnf("listing page %d failed with status %d, retrying once", cursor.Page, fetchErr.Status)
	a.Iterator = a.fetcher.Resume(cursor)
	return a.Iterator.Next(ctx)
}
