package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDriveAPIRootURL = "https://www.googleapis.com/"

	folderMimeType = "application/vnd.google-apps.folder"
	fileMimeType   = "application/json"
	driveRootID    = "root"
)

type DriveStoreConfig struct {
	Timeout    time.Duration
	APIRootURL string
	Log        logrus.FieldLogger
}

// DriveStore is a Store backed by the Google Drive v3 REST API. The access
// token is taken from the credential provider on every request.
type DriveStore struct {
	client     *resty.Client
	apiRootURL string
	tokens     credentials.Provider
}

var _ Store = (*DriveStore)(nil)

func NewDriveStore(config DriveStoreConfig, tokens credentials.Provider) *DriveStore {
	root := config.APIRootURL
	if root == "" {
		root = DefaultDriveAPIRootURL
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &DriveStore{
		client:     sdk.NewHTTPClient(config.Timeout, config.Log),
		apiRootURL: root,
		tokens:     tokens,
	}
}

type driveFile struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type driveFileList struct {
	Files []driveFile `json:"files"`
}

func (d *DriveStore) request(ctx context.Context) (*resty.Request, error) {
	cred, err := d.tokens.GetValidCredential(ctx, credentials.ServiceDrive)
	if err != nil {
		return nil, err
	}
	return d.client.R().SetContext(ctx).SetAuthToken(cred.AccessToken), nil
}

func (d *DriveStore) EnsureFolder(ctx context.Context, folderPath string) (string, error) {
	parent := driveRootID
	for _, name := range strings.Split(folderPath, "/") {
		if name == "" {
			continue
		}
		id, found, err := d.find(ctx, parent, name, true)
		if err != nil {
			return "", err
		}
		if !found {
			if id, err = d.createFolder(ctx, parent, name); err != nil {
				return "", err
			}
		}
		parent = id
	}
	return parent, nil
}

func (d *DriveStore) Find(ctx context.Context, folderID, name string) (string, bool, error) {
	return d.find(ctx, folderID, name, false)
}

func (d *DriveStore) find(ctx context.Context, parentID, name string, folder bool) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID))
	if folder {
		q += fmt.Sprintf(" and mimeType = '%s'", folderMimeType)
	}

	req, err := d.request(ctx)
	if err != nil {
		return "", false, err
	}
	list := &driveFileList{}
	_, err = req.
		SetQueryParams(map[string]string{
			"q":        q,
			"spaces":   "drive",
			"fields":   "files(id,name)",
			"pageSize": "10",
		}).
		SetResult(list).
		Get(d.apiRootURL + "drive/v3/files")
	if err != nil {
		return "", false, fmt.Errorf("listing %q in %s: %w", name, parentID, err)
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].ID, true, nil
}

func (d *DriveStore) createFolder(ctx context.Context, parentID, name string) (string, error) {
	req, err := d.request(ctx)
	if err != nil {
		return "", err
	}
	created := &driveFile{}
	_, err = req.
		SetQueryParam("fields", "id").
		SetBody(&driveFile{Name: name, MimeType: folderMimeType, Parents: []string{parentID}}).
		SetResult(created).
		Post(d.apiRootURL + "drive/v3/files")
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}
	return created.ID, nil
}

func (d *DriveStore) Create(ctx context.Context, folderID, name string, content []byte) (string, error) {
	body, contentType, err := multipartRelated(&driveFile{Name: name, MimeType: fileMimeType, Parents: []string{folderID}}, content)
	if err != nil {
		return "", err
	}

	req, err := d.request(ctx)
	if err != nil {
		return "", err
	}
	created := &driveFile{}
	_, err = req.
		SetQueryParams(map[string]string{"uploadType": "multipart", "fields": "id"}).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		SetResult(created).
		Post(d.apiRootURL + "upload/drive/v3/files")
	if err != nil {
		return "", fmt.Errorf("creating file %q: %w", name, err)
	}
	return created.ID, nil
}

func (d *DriveStore) Update(ctx context.Context, fileID string, content []byte) error {
	req, err := d.request(ctx)
	if err != nil {
		return err
	}
	_, err = req.
		SetQueryParams(map[string]string{"uploadType": "media", "fields": "id"}).
		SetHeader("Content-Type", fileMimeType).
		SetBody(content).
		Patch(d.apiRootURL + "upload/drive/v3/files/" + fileID)
	if err != nil {
		return fmt.Errorf("updating file %s: %w", fileID, err)
	}
	return nil
}

// multipartRelated builds a metadata plus media upload body.
func multipartRelated(meta *driveFile, content []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", err
	}

	mediaPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {fileMimeType}})
	if err != nil {
		return nil, "", err
	}
	if _, err := mediaPart.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
