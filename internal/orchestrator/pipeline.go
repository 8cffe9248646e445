package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/export"
	"github.com/nmiodice/strava-drive-export/internal/state"
	"github.com/nmiodice/strava-drive-export/internal/storage"
	"github.com/nmiodice/strava-drive-export/internal/strava"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
)

type Uploader interface {
	Upload(ctx context.Context, targetPath string, r *export.Record) (*storage.UploadTarget, error)
}

// Reporter receives the summary of every run, failed runs included.
type Reporter interface {
	Report(ctx context.Context, s *Summary) error
}

type Config struct {
	// Services are checked for a usable credential before listing starts.
	Services     []credentials.Service
	Root         string
	Layout       storage.Layout
	FetchDetails bool
}

type Pipeline struct {
	Tokens    credentials.Provider
	Source    Source
	Uploader  Uploader
	Cursors   state.CursorStore
	Reporters []Reporter
	Config    Config
	Log       logrus.FieldLogger

	now      func() time.Time
	newRunID func() string
}

// RunOptions selects where the run starts. Since wins over Incremental; with
// neither the full history is exported.
type RunOptions struct {
	Since       *time.Time
	Incremental bool
}

type run struct {
	*Pipeline
	summary *Summary
	log     logrus.FieldLogger
	now     func() time.Time
	details bool
	newest  *time.Time
}

// Run performs one export. The returned summary is never nil; its State is
// either state.Done or state.Failed.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) *Summary {
	now := p.now
	if now == nil {
		now = time.Now
	}
	newRunID := p.newRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	r := &run{
		Pipeline: p,
		summary: &Summary{
			RunID:     newRunID(),
			State:     state.Init,
			StartedAt: now().UTC(),
			Failures:  []Failure{},
		},
		now:     now,
		details: p.Config.FetchDetails,
	}
	r.log = p.Log.WithField("run_id", r.summary.RunID)

	if err := r.execute(ctx, opts); err != nil {
		r.log.Errorf("export failed in state %s: %+v", r.summary.State, err)
		r.summary.State = state.Failed
		r.summary.Error = err.Error()
	}
	r.summary.FinishedAt = now().UTC()

	for _, reporter := range p.Reporters {
		if err := reporter.Report(ctx, r.summary); err != nil {
			r.log.Warnf("error reporting run summary: %+v", err)
		}
	}
	return r.summary
}

func (r *run) execute(ctx context.Context, opts RunOptions) error {
	r.transition(state.Authenticating)
	for _, svc := range r.Config.Services {
		if _, err := r.Tokens.GetValidCredential(ctx, svc); err != nil {
			return err
		}
	}

	since, err := r.resolveSince(ctx, opts)
	if err != nil {
		return err
	}
	r.summary.Since = since

	r.transition(state.Listing)
	if since != nil {
		r.log.Infof("listing activities since %s", since.Format(time.RFC3339))
	} else {
		r.log.Infof("listing full activity history")
	}
	activities, err := r.list(ctx, since)
	if err != nil {
		return err
	}
	r.summary.Fetched = len(activities)

	r.transition(state.Uploading)
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.export(ctx, a)
	}

	r.transition(state.Summarizing)
	r.summary.NextSince = r.summary.nextSince(r.newest)
	if r.summary.NextSince != nil && r.Cursors != nil {
		cursor := state.Cursor{
			Since:     *r.summary.NextSince,
			RunID:     r.summary.RunID,
			UpdatedAt: r.now().UTC(),
		}
		if err := r.Cursors.SaveCursor(ctx, cursor); err != nil {
			r.log.Warnf("error saving export cursor: %+v", err)
		}
	}

	r.log.Infof("exported %d of %d activities (%d skipped, %d failed)",
		r.summary.Uploaded, r.summary.Fetched, r.summary.Skipped, r.summary.Failed)
	r.transition(state.Done)
	return nil
}

func (r *run) transition(s state.State) {
	r.log.Debugf("state %s -> %s", r.summary.State, s)
	r.summary.State = s
}

func (r *run) resolveSince(ctx context.Context, opts RunOptions) (*time.Time, error) {
	if opts.Since != nil {
		since := opts.Since.UTC()
		return &since, nil
	}
	if !opts.Incremental || r.Cursors == nil {
		return nil, nil
	}
	cursor, err := r.Cursors.LastCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading export cursor: %w", err)
	}
	if cursor == nil {
		return nil, nil
	}
	since := cursor.Since.UTC()
	return &since, nil
}

func (r *run) list(ctx context.Context, since *time.Time) ([]*sdk.ActivitySummary, error) {
	it := r.Source.List(since)
	activities := []*sdk.ActivitySummary{}
	for it.Next(ctx) {
		a := it.Activity()
		activities = append(activities, a)
		if start, ok := a.StartDate(); ok && (r.newest == nil || start.After(*r.newest)) {
			r.newest = &start
		}
	}
	if err := it.Err(); err != nil {
		if p, ok := it.(positioned); ok {
			r.log.Warnf("listing stopped before page %d after %d activities", p.Cursor().Page, len(activities))
		}
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return activities, nil
}

func (r *run) export(ctx context.Context, a *sdk.ActivitySummary) {
	id := a.ID()
	if id == 0 {
		r.log.Warnf("skipping activity without an id")
		r.summary.Skipped++
		return
	}
	log := r.log.WithField("activity_id", id)

	var startDate *time.Time
	if start, ok := a.StartDate(); ok {
		startDate = &start
	}

	detail := r.detail(ctx, log, id)
	record := export.Normalize(a, detail)
	if len(record.Defaulted) > 0 {
		log.Warnf("left malformed fields empty: %v", record.Defaulted)
	}

	targetPath := storage.PathFor(r.Config.Root, r.Config.Layout, record)
	target, err := r.upload(ctx, log, targetPath, record)
	if err != nil {
		log.Errorf("error uploading activity: %+v", err)
		r.summary.fail(id, startDate, err)
		return
	}

	r.summary.Uploaded++
	if target.Created {
		log.Infof("created %s", target.Path)
	} else {
		log.Infof("replaced %s", target.Path)
	}
}

// detail returns nil when the detail fetch is disabled or fails. A rate limit
// or credential failure turns detail fetching off for the rest of the run.
func (r *run) detail(ctx context.Context, log logrus.FieldLogger, id int64) *sdk.ActivityDetail {
	if !r.details {
		return nil
	}
	detail, err := r.Source.FetchDetail(ctx, id)
	if err == nil {
		return detail
	}

	var rateErr *strava.RateLimitExceeded
	var credErr *credentials.CredentialError
	if errors.As(err, &rateErr) || errors.As(err, &credErr) {
		log.Warnf("no longer fetching activity details: %+v", err)
		r.details = false
	} else {
		log.Warnf("exporting without splits: %+v", err)
	}
	return nil
}

func (r *run) upload(ctx context.Context, log logrus.FieldLogger, targetPath string, record *export.Record) (*storage.UploadTarget, error) {
	target, err := r.Uploader.Upload(ctx, targetPath, record)

	var uploadErr *storage.UploadError
	if err == nil || !errors.As(err, &uploadErr) || !uploadErr.Unauthorized {
		return target, err
	}

	log.Warnf("destination rejected the access token, refreshing")
	if _, err := r.Tokens.ForceRefresh(ctx, credentials.ServiceDrive); err != nil {
		return nil, err
	}
	return r.Uploader.Upload(ctx, targetPath, record)
}
