package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"onboardbot/internal/logger"
	"onboardbot/internal/model"
)

const (
	usersFileName = "users.json"
	documentsDir  = "documents"
)

// FileStore is the reference implementation: a single JSON array of records
// plus a directory of document blobs. It rewrites the whole collection on
// every save, which is acceptable only for small record volumes.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) usersPath() string {
	return filepath.Join(s.dir, usersFileName)
}

func (s *FileStore) docsPath() string {
	return filepath.Join(s.dir, documentsDir)
}

// Init creates the storage and document directories and an empty collection
// if none exists yet.
func (s *FileStore) Init(ctx context.Context) error {
	start := time.Now()
	if err := os.MkdirAll(s.docsPath(), 0o755); err != nil {
		return fmt.Errorf("%w: create document dir: %v", ErrStorageUnavailable, err)
	}
	if _, err := os.Stat(s.usersPath()); os.IsNotExist(err) {
		if err := s.writeAtomic([]byte("[]\n")); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("%w: stat collection: %v", ErrStorageUnavailable, err)
	}
	logger.Debug(ctx, "store", "store.init",
		slog.String("status", "ok"),
		slog.String("backend", "file"),
		slog.String("path", s.dir),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// GetAll reads and parses the full collection.
func (s *FileStore) GetAll(ctx context.Context) ([]model.UserRecord, error) {
	data, err := os.ReadFile(s.usersPath())
	if err != nil {
		return nil, fmt.Errorf("%w: read collection: %v", ErrStorageUnavailable, err)
	}
	var records []model.UserRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Error(ctx, "store", "store.corrupt",
			slog.String("path", s.usersPath()),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return records, nil
}

// SaveAll replaces the persisted collection via write-to-temp-then-rename.
func (s *FileStore) SaveAll(ctx context.Context, records []model.UserRecord) error {
	if records == nil {
		records = []model.UserRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode collection: %w", err)
	}
	if err := s.writeAtomic(append(data, '\n')); err != nil {
		return err
	}
	logger.Debug(ctx, "store", "store.save",
		slog.String("status", "ok"),
		slog.String("backend", "file"),
		slog.Int("count", len(records)),
	)
	return nil
}

// SaveDocument writes the blob into the documents directory and returns the
// file path as the stable reference.
func (s *FileStore) SaveDocument(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.docsPath(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write document: %v", ErrStorageUnavailable, err)
	}
	logger.Debug(ctx, "store", "store.document",
		slog.String("status", "ok"),
		slog.String("doc", name),
		slog.Int("bytes", len(data)),
	)
	return path, nil
}

// writeAtomic writes the collection to a temp file in the same directory and
// renames it over the live file so readers never see a partial write.
func (s *FileStore) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, usersFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, s.usersPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename temp: %v", ErrStorageUnavailable, err)
	}
	return nil
}
