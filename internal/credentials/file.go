package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists one credential as a JSON document.
type FileStore struct {
	Path string
}

// fileDocument is the on-disk shape. The Strava token dump and the Google
// authorized-user file written by earlier tooling are both accepted on read.
type fileDocument struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at,omitempty"`
	Scope        string   `json:"scope,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	Token        string   `json:"token,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
}

// ClientConfig holds OAuth client settings some credential files carry.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURI     string
}

func (f FileStore) read() (*fileDocument, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	doc := &fileDocument{}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Path, err)
	}
	return doc, nil
}

// Load reads the credential. A document without an expiry yields a zero
// ExpiresAt, which forces a refresh before first use.
func (f FileStore) Load() (*Credential, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		Scope:        doc.Scope,
		TokenType:    doc.TokenType,
	}
	if cred.AccessToken == "" {
		cred.AccessToken = doc.Token
	}
	if cred.Scope == "" && len(doc.Scopes) > 0 {
		cred.Scope = strings.Join(doc.Scopes, " ")
	}
	switch {
	case doc.ExpiresAt > 0:
		cred.ExpiresAt = time.Unix(doc.ExpiresAt, 0).UTC()
	case doc.Expiry != "":
		if t, err := time.Parse(time.RFC3339, doc.Expiry); err == nil {
			cred.ExpiresAt = t.UTC()
		}
	}
	return cred, nil
}

// ClientConfig returns the OAuth client settings stored next to the token,
// if any.
func (f FileStore) ClientConfig() (ClientConfig, error) {
	doc, err := f.read()
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		ClientID:     doc.ClientID,
		ClientSecret: doc.ClientSecret,
		TokenURI:     doc.TokenURI,
	}, nil
}

// Save writes the credential through a temporary file and a rename so a
// crash never leaves a truncated document behind. Client settings already in
// the file are kept.
func (f FileStore) Save(cred *Credential) error {
	doc := fileDocument{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Scope:        cred.Scope,
		TokenType:    cred.TokenType,
	}
	if !cred.ExpiresAt.IsZero() {
		doc.ExpiresAt = cred.ExpiresAt.Unix()
	}
	if prev, err := f.read(); err == nil {
		doc.ClientID = prev.ClientID
		doc.ClientSecret = prev.ClientSecret
		doc.TokenURI = prev.TokenURI
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
