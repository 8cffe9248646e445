package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s staticTokens) GetValidCredential(ctx context.Context, service credentials.Service) (*credentials.Credential, error) {
	return &credentials.Credential{AccessToken: s.token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s staticTokens) ForceRefresh(ctx context.Context, service credentials.Service) (*credentials.Credential, error) {
	return s.GetValidCredential(ctx, service)
}

type fakeDriveFile struct {
	id, name, parent, mimeType string
	content                    []byte
}

// fakeDrive implements the subset of the Drive v3 API used by DriveStore.
type fakeDrive struct {
	t             *testing.T
	mu            sync.Mutex
	files         []*fakeDriveFile
	folderCreates int
	queries       []string
}

var queryPattern = regexp.MustCompile(`^name = '(.*)' and '(.*)' in parents and trashed = false( and mimeType = '(.*)')?$`)

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer drive-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files":
		q := r.URL.Query().Get("q")
		f.queries = append(f.queries, q)
		m := queryPattern.FindStringSubmatch(q)
		if !assert.NotNil(f.t, m, "unexpected query %q", q) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list := driveFileList{Files: []driveFile{}}
		for _, file := range f.files {
			if file.name == m[1] && file.parent == m[2] && (m[4] == "" || file.mimeType == m[4]) {
				list.Files = append(list.Files, driveFile{ID: file.id, Name: file.name})
			}
		}
		writeJSON(w, list)

	case r.Method == http.MethodPost && r.URL.Path == "/drive/v3/files":
		meta := driveFile{}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&meta))
		assert.Equal(f.t, folderMimeType, meta.MimeType)
		assert.Len(f.t, meta.Parents, 1)
		f.folderCreates++
		writeJSON(w, driveFile{ID: f.add(meta, nil)})

	case r.Method == http.MethodPost && r.URL.Path == "/upload/drive/v3/files":
		assert.Equal(f.t, "multipart", r.URL.Query().Get("uploadType"))
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		assert.NoError(f.t, err)
		assert.Equal(f.t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		metaPart, err := mr.NextPart()
		assert.NoError(f.t, err)
		meta := driveFile{}
		assert.NoError(f.t, json.NewDecoder(metaPart).Decode(&meta))
		mediaPart, err := mr.NextPart()
		assert.NoError(f.t, err)
		assert.Equal(f.t, "application/json", mediaPart.Header.Get("Content-Type"))
		content, err := io.ReadAll(mediaPart)
		assert.NoError(f.t, err)
		writeJSON(w, driveFile{ID: f.add(meta, content)})

	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/upload/drive/v3/files/"):
		assert.Equal(f.t, "media", r.URL.Query().Get("uploadType"))
		id := strings.TrimPrefix(r.URL.Path, "/upload/drive/v3/files/")
		content, err := io.ReadAll(r.Body)
		assert.NoError(f.t, err)
		for _, file := range f.files {
			if file.id == id {
				file.content = content
				writeJSON(w, driveFile{ID: id})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeDrive) add(meta driveFile, content []byte) string {
	id := fmt.Sprintf("id-%d", len(f.files)+1)
	f.files = append(f.files, &fakeDriveFile{id: id, name: meta.Name, parent: meta.Parents[0], mimeType: meta.MimeType, content: content})
	return id
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newDriveTest(t *testing.T, token string) (*DriveStore, *fakeDrive) {
	fake := &fakeDrive{t: t}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewDriveStore(DriveStoreConfig{Timeout: 5 * time.Second, APIRootURL: server.URL}, staticTokens{token}), fake
}

func TestDriveStore_EnsureFolderCreatesOnce(t *testing.T) {
	store, fake := newDriveTest(t, "drive-token")
	ctx := context.Background()

	id, err := store.EnsureFolder(ctx, "strava-export/2024/03")
	require.NoError(t, err)
	assert.Equal(t, "id-3", id)
	assert.Equal(t, 3, fake.folderCreates)
	assert.Equal(t, "root", fake.files[0].parent)
	assert.Equal(t, "id-1", fake.files[1].parent)

	again, err := store.EnsureFolder(ctx, "strava-export/2024/03")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 3, fake.folderCreates)
}

func TestDriveStore_CreateFindUpdate(t *testing.T) {
	store, fake := newDriveTest(t, "drive-token")
	ctx := context.Background()

	folder, err := store.EnsureFolder(ctx, "strava-export")
	require.NoError(t, err)

	_, found, err := store.Find(ctx, folder, "1.json")
	require.NoError(t, err)
	assert.False(t, found)

	fileID, err := store.Create(ctx, folder, "1.json", []byte(`{"id": 1}`))
	require.NoError(t, err)

	got, found, err := store.Find(ctx, folder, "1.json")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fileID, got)

	require.NoError(t, store.Update(ctx, fileID, []byte(`{"id": 1, "name": "x"}`)))
	assert.Len(t, fake.files, 2)
	assert.Equal(t, `{"id": 1, "name": "x"}`, string(fake.files[1].content))
	assert.Equal(t, "application/json", fake.files[1].mimeType)
}

func TestDriveStore_UploaderEndToEnd(t *testing.T) {
	store, fake := newDriveTest(t, "drive-token")
	u := NewUploader(store, nullLogger())
	start := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)
	r := record(77, &start)

	p := PathFor("strava-export", LayoutMonthly, r)
	first, err := u.Upload(context.Background(), p, r)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := u.Upload(context.Background(), p, r)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.FileID, second.FileID)
	assert.Equal(t, 3, fake.folderCreates)
}

func TestDriveStore_Unauthorized(t *testing.T) {
	store, _ := newDriveTest(t, "stale")

	_, err := store.EnsureFolder(context.Background(), "strava-export")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdk.ErrorUnauthorized))

	_, err = NewUploader(store, nullLogger()).Upload(context.Background(), "strava-export/1.json", record(1, nil))
	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.True(t, uploadErr.Unauthorized)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s a \\ folder`, escapeQuery(`it's a \ folder`))
}
