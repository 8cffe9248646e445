package state

import (
	"context"
	"time"
)

// State is a step of an export run.
type State string

const (
	Init           State = "Init"
	Authenticating State = "Authenticating"
	Listing        State = "Listing"
	Uploading      State = "Uploading"
	Summarizing    State = "Summarizing"
	Done           State = "Done"
	Failed         State = "Failed"
)

// Cursor is what one run leaves for the next: where the next incremental
// export should start.
type Cursor struct {
	Since     time.Time `json:"since"`
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CursorStore interface {
	// LastCursor returns nil when no run has saved a cursor yet.
	LastCursor(ctx context.Context) (*Cursor, error)
	SaveCursor(ctx context.Context, c Cursor) error
}

// NoopCursorStore never remembers anything, so every run is a full export
// unless an explicit since is given.
type NoopCursorStore struct{}

func (NoopCursorStore) LastCursor(ctx context.Context) (*Cursor, error) {
	return nil, nil
}

func (NoopCursorStore) SaveCursor(ctx context.Context, c Cursor) error {
	return nil
}
