package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"onboardbot/internal/logger"
	"onboardbot/internal/model"
)

// PostgresStore keeps records in a table keyed by record id while preserving
// the GetAll/SaveAll contract of the file store. Document blobs still live on
// the filesystem next to the configured storage directory.
type PostgresStore struct {
	db  *sqlx.DB
	dir string
}

// NewPostgresStore wraps an open connection. dir hosts the documents
// directory, mirroring the file backend layout.
func NewPostgresStore(db *sqlx.DB, dir string) *PostgresStore {
	return &PostgresStore{db: db, dir: dir}
}

func (s *PostgresStore) docsPath() string {
	return filepath.Join(s.dir, documentsDir)
}

// Init creates the document directory and verifies connectivity. The table
// itself is created by migrations at bootstrap.
func (s *PostgresStore) Init(ctx context.Context) error {
	start := time.Now()
	if err := os.MkdirAll(s.docsPath(), 0o755); err != nil {
		return fmt.Errorf("%w: create document dir: %v", ErrStorageUnavailable, err)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStorageUnavailable, err)
	}
	logger.Debug(ctx, "store", "store.init",
		slog.String("status", "ok"),
		slog.String("backend", "postgres"),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// GetAll returns all records in insertion order.
func (s *PostgresStore) GetAll(ctx context.Context) ([]model.UserRecord, error) {
	var records []model.UserRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, address, name, district, city, state, document_ref,
		       conversation_state, created_at, updated_at
		FROM user_records
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: select records: %v", ErrStorageUnavailable, err)
	}
	return records, nil
}

// SaveAll replaces the persisted collection inside a single transaction:
// every record is upserted by id and rows absent from the new collection are
// removed.
func (s *PostgresStore) SaveAll(ctx context.Context, records []model.UserRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO user_records (id, address, name, district, city, state,
			                          document_ref, conversation_state,
			                          created_at, updated_at)
			VALUES (:id, :address, :name, :district, :city, :state,
			        :document_ref, :conversation_state, :created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				address            = EXCLUDED.address,
				name               = EXCLUDED.name,
				district           = EXCLUDED.district,
				city               = EXCLUDED.city,
				state              = EXCLUDED.state,
				document_ref       = EXCLUDED.document_ref,
				conversation_state = EXCLUDED.conversation_state,
				updated_at         = EXCLUDED.updated_at`, rec); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", ErrStorageUnavailable, rec.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_records WHERE NOT (id = ANY($1))`, pq.Array(ids)); err != nil {
		return fmt.Errorf("%w: prune: %v", ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	logger.Debug(ctx, "store", "store.save",
		slog.String("status", "ok"),
		slog.String("backend", "postgres"),
		slog.Int("count", len(records)),
	)
	return nil
}

// SaveDocument stores the blob on the filesystem, identical to the file
// backend.
func (s *PostgresStore) SaveDocument(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.docsPath(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write document: %v", ErrStorageUnavailable, err)
	}
	return path, nil
}
