package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/nmiodice/strava-drive-export/internal/export"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
)

// Store is a destination that holds files inside folders. Folder and file ids
// are opaque to callers.
type Store interface {
	// EnsureFolder resolves a slash separated folder path, creating missing
	// folders, and returns the id of the last one.
	EnsureFolder(ctx context.Context, folderPath string) (string, error)
	// Find returns the id of the file called name directly inside folderID.
	Find(ctx context.Context, folderID, name string) (fileID string, found bool, err error)
	Create(ctx context.Context, folderID, name string, content []byte) (fileID string, err error)
	Update(ctx context.Context, fileID string, content []byte) error
}

type UploadTarget struct {
	Path     string `json:"path"`
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`
	FileID   string `json:"file_id"`
	Created  bool   `json:"created"`
}

// UploadError is returned for any failed upload. Unauthorized is set when the
// destination rejected the access token, in which case a retry with a fresh
// token may succeed.
type UploadError struct {
	Path         string
	Unauthorized bool
	Err          error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Layout string

const (
	LayoutFlat    Layout = "flat"
	LayoutMonthly Layout = "monthly"
)

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case "", LayoutFlat:
		return LayoutFlat, nil
	case LayoutMonthly:
		return LayoutMonthly, nil
	default:
		return "", fmt.Errorf("unknown destination layout %q", s)
	}
}

// PathFor returns the destination path of a record. The name depends only on
// the activity id so re-exports overwrite the same file.
func PathFor(root string, layout Layout, r *export.Record) string {
	name := "unknown.json"
	if r.ID != nil {
		name = strconv.FormatInt(*r.ID, 10) + ".json"
	}
	if layout == LayoutMonthly && r.StartDate != nil {
		return path.Join(root, r.StartDate.Format("2006"), r.StartDate.Format("01"), name)
	}
	return path.Join(root, name)
}

// Uploader writes records onto a Store, replacing files that already exist.
// Resolved folders are cached for the lifetime of the Uploader.
type Uploader struct {
	store   Store
	folders map[string]string
	log     logrus.FieldLogger
}

func NewUploader(store Store, log logrus.FieldLogger) *Uploader {
	return &Uploader{
		store:   store,
		folders: map[string]string{},
		log:     log,
	}
}

func (u *Uploader) Upload(ctx context.Context, targetPath string, r *export.Record) (*UploadTarget, error) {
	content, err := export.Marshal(r)
	if err != nil {
		return nil, &UploadError{Path: targetPath, Err: fmt.Errorf("serializing record: %w", err)}
	}

	dir, name := path.Split(targetPath)
	dir = strings.Trim(dir, "/")
	target := &UploadTarget{Path: targetPath, Name: name}

	folderID, err := u.folder(ctx, dir)
	if err != nil {
		return nil, uploadError(targetPath, err)
	}
	target.FolderID = folderID

	fileID, found, err := u.store.Find(ctx, folderID, name)
	if err != nil {
		return nil, uploadError(targetPath, err)
	}

	if found {
		if err := u.store.Update(ctx, fileID, content); err != nil {
			return nil, uploadError(targetPath, err)
		}
		u.log.Debugf("replaced %s (%s)", targetPath, fileID)
	} else {
		if fileID, err = u.store.Create(ctx, folderID, name, content); err != nil {
			return nil, uploadError(targetPath, err)
		}
		target.Created = true
		u.log.Debugf("created %s (%s)", targetPath, fileID)
	}
	target.FileID = fileID

	return target, nil
}

func (u *Uploader) folder(ctx context.Context, dir string) (string, error) {
	if id, ok := u.folders[dir]; ok {
		return id, nil
	}
	id, err := u.store.EnsureFolder(ctx, dir)
	if err != nil {
		return "", err
	}
	u.folders[dir] = id
	return id, nil
}

func uploadError(targetPath string, err error) *UploadError {
	return &UploadError{
		Path:         targetPath,
		Unauthorized: errors.Is(err, sdk.ErrorUnauthorized),
		Err:          err,
	}
}
