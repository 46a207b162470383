package respcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scenecraft/internal/sqlitestore"
	"scenecraft/internal/stage"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE responses (
    fingerprint TEXT PRIMARY KEY,
    stage TEXT NOT NULL,
    provider TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX idx_responses_stage ON responses(stage);
`

// Store is a Cache persisted in SQLite.
type Store struct {
	db *sqlitestore.DB
}

// Open creates or connects to the cache database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Schema{
		Name:    "response cache",
		SQL:     schemaSQL,
		Version: schemaVersion,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	var (
		stageName, providerName, payloadJSON, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT stage, provider, payload_json, created_at FROM responses WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&stageName, &providerName, &payloadJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("respcache: get: %w", err)
	}
	entry := Entry{
		Fingerprint: fingerprint,
		Stage:       stage.ID(stageName),
		Provider:    providerName,
	}
	if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
		return Entry{}, false, fmt.Errorf("respcache: decode payload: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = ts
	}
	return entry, true, nil
}

func (s *Store) Put(ctx context.Context, entry Entry) error {
	if entry.Fingerprint == "" {
		return errors.New("respcache: missing fingerprint")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("respcache: encode payload: %w", err)
	}
	err = s.db.ExecRetry(ctx,
		`INSERT INTO responses (fingerprint, stage, provider, payload_json, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(fingerprint) DO UPDATE SET
             stage = excluded.stage,
             provider = excluded.provider,
             payload_json = excluded.payload_json,
             created_at = excluded.created_at`,
		string(entry.Stage),
		entry.Provider,
		string(payload),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("respcache: put: %w", err)
	}
	return nil
}

// Purge removes entries for the given stage, or every entry when id is empty.
func (s *Store) Purge(ctx context.Context, id stage.ID) (int64, error) {
	var (
		res sql.Result
		err error
	)
	op := func() error {
		if id == "" {
			res, err = s.db.ExecContext(ctx, `DELETE FROM responses`)
		} else {
			res, err = s.db.ExecContext(ctx, `DELETE FROM responses WHERE stage = ?`, string(id))
		}
		return err
	}
	if err := sqlitestore.RetryOnBusy(ctx, op); err != nil {
		return 0, fmt.Errorf("respcache: purge: %w", err)
	}
	return res.RowsAffected()
}
