package orchestrator

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/nmiodice/strava-drive-export/internal/state"
)

// Failure is one activity that could not be exported.
type Failure struct {
	ActivityID int64  `json:"activity_id"`
	Reason     string `json:"reason"`

	err       error
	startDate *time.Time
}

// Summary is the outcome of one run.
type Summary struct {
	RunID      string      `json:"run_id"`
	State      state.State `json:"state"`
	Since      *time.Time  `json:"since"`
	NextSince  *time.Time  `json:"next_since"`
	Fetched    int         `json:"fetched"`
	Uploaded   int         `json:"uploaded"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Failures   []Failure   `json:"failures"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Error      string      `json:"error,omitempty"`
}

// Err aggregates the per activity failures. It is nil when every fetched
// activity was exported or skipped.
func (s *Summary) Err() error {
	var errs *multierror.Error
	for _, f := range s.Failures {
		err := f.err
		if err == nil {
			err = fmt.Errorf("%s", f.Reason)
		}
		errs = multierror.Append(errs, fmt.Errorf("activity %d: %w", f.ActivityID, err))
	}
	return errs.ErrorOrNil()
}

func (s *Summary) fail(activityID int64, startDate *time.Time, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{
		ActivityID: activityID,
		Reason:     err.Error(),
		err:        err,
		startDate:  startDate,
	})
}

// nextSince is where the following incremental run starts: the oldest failed
// activity when there were failures, otherwise the newest activity seen. An
// undated failure cannot be placed, so the window does not move.
func (s *Summary) nextSince(newest *time.Time) *time.Time {
	if s.Fetched == 0 {
		return s.Since
	}

	if len(s.Failures) > 0 {
		var oldest *time.Time
		for _, f := range s.Failures {
			if f.startDate == nil {
				return s.Since
			}
			if oldest == nil || f.startDate.Before(*oldest) {
				oldest = f.startDate
			}
		}
		return oldest
	}

	if newest == nil {
		return s.Since
	}
	return newest
}
