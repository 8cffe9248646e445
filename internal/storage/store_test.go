package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/export"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps files keyed by folder and name.
type memStore struct {
	files       map[string][]byte
	ids         map[string]string
	ensureCalls int
	failFind    error
	failCreate  error
	failEnsure  error
	creates     int
	updates     int
	nextFileID  int
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, ids: map[string]string{}}
}

func (m *memStore) EnsureFolder(ctx context.Context, folderPath string) (string, error) {
	m.ensureCalls++
	if m.failEnsure != nil {
		return "", m.failEnsure
	}
	return "folder:" + folderPath, nil
}

func (m *memStore) Find(ctx context.Context, folderID, name string) (string, bool, error) {
	if m.failFind != nil {
		return "", false, m.failFind
	}
	id, ok := m.ids[folderID+"/"+name]
	return id, ok, nil
}

func (m *memStore) Create(ctx context.Context, folderID, name string, content []byte) (string, error) {
	if m.failCreate != nil {
		return "", m.failCreate
	}
	m.creates++
	m.nextFileID++
	id := fmt.Sprintf("file-%d", m.nextFileID)
	m.ids[folderID+"/"+name] = id
	m.files[id] = content
	return id, nil
}

func (m *memStore) Update(ctx context.Context, fileID string, content []byte) error {
	m.updates++
	m.files[fileID] = content
	return nil
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func record(id int64, start *time.Time) *export.Record {
	r := export.Normalize(nil, nil)
	r.ID = &id
	r.StartDate = start
	return r
}

func TestUpload_IsIdempotent(t *testing.T) {
	store := newMemStore()
	log, _ := test.NewNullLogger()
	u := NewUploader(store, log)
	r := record(123, nil)

	first, err := u.Upload(context.Background(), "strava-export/123.json", r)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "folder:strava-export", first.FolderID)
	assert.Equal(t, "123.json", first.Name)

	second, err := u.Upload(context.Background(), "strava-export/123.json", r)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.FileID, second.FileID)

	assert.Len(t, store.files, 1)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, store.ensureCalls, "folder lookups are cached")

	want, err := export.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, want, store.files[first.FileID])
}

func TestUpload_ReplacesContent(t *testing.T) {
	store := newMemStore()
	log, _ := test.NewNullLogger()
	u := NewUploader(store, log)

	r := record(1, nil)
	target, err := u.Upload(context.Background(), "root/1.json", r)
	require.NoError(t, err)

	name := "renamed"
	r.Name = &name
	_, err = u.Upload(context.Background(), "root/1.json", r)
	require.NoError(t, err)

	got, err := export.Unmarshal(store.files[target.FileID])
	require.NoError(t, err)
	assert.Equal(t, "renamed", *got.Name)
}

func TestUpload_Errors(t *testing.T) {
	log, _ := test.NewNullLogger()

	store := newMemStore()
	store.failFind = fmt.Errorf("listing: %w", &sdk.HTTPError{StatusCode: 401})
	_, err := NewUploader(store, log).Upload(context.Background(), "root/1.json", record(1, nil))
	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.True(t, uploadErr.Unauthorized)
	assert.Equal(t, "root/1.json", uploadErr.Path)

	store = newMemStore()
	store.failCreate = sdk.ErrorInternalServerError
	_, err = NewUploader(store, log).Upload(context.Background(), "root/1.json", record(1, nil))
	require.True(t, errors.As(err, &uploadErr))
	assert.False(t, uploadErr.Unauthorized)
	assert.Empty(t, store.files)

	store = newMemStore()
	store.failEnsure = errors.New("boom")
	u := NewUploader(store, log)
	_, err = u.Upload(context.Background(), "root/1.json", record(1, nil))
	require.Error(t, err)
	store.failEnsure = nil
	_, err = u.Upload(context.Background(), "root/1.json", record(1, nil))
	require.NoError(t, err, "failed folder lookups are not cached")
}

func TestPathFor(t *testing.T) {
	start := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)

	assert.Equal(t, "strava-export/42.json", PathFor("strava-export", LayoutFlat, record(42, &start)))
	assert.Equal(t, "strava-export/2024/03/42.json", PathFor("strava-export", LayoutMonthly, record(42, &start)))
	assert.Equal(t, "strava-export/42.json", PathFor("strava-export", LayoutMonthly, record(42, nil)))
	assert.Equal(t, "42.json", PathFor("", LayoutFlat, record(42, nil)))
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutFlat, l)

	l, err = ParseLayout("Monthly")
	require.NoError(t, err)
	assert.Equal(t, LayoutMonthly, l)

	_, err = ParseLayout("weekly")
	assert.Error(t, err)
}
