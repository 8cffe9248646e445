package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileCursorStore keeps the cursor in a JSON file.
type FileCursorStore struct {
	Path string
}

var _ CursorStore = (*FileCursorStore)(nil)

func (s *FileCursorStore) LastCursor(ctx context.Context) (*Cursor, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading export state: %w", err)
	}

	c := &Cursor{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing export state %s: %w", s.Path, err)
	}
	return c, nil
}

func (s *FileCursorStore) SaveCursor(ctx context.Context, c Cursor) error {
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-state-*")
	if err != nil {
		return fmt.Errorf("writing export state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing export state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing export state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replacing export state: %w", err)
	}
	return nil
}
