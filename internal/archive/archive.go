package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"scenecraft/internal/artifact"
	"scenecraft/internal/sqlitestore"
	"scenecraft/internal/stage"
)

// FormatVersion is written into every saved record.
const FormatVersion = "1.0.0"

const compatibleFormats = "^1"

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE sessions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    title TEXT,
    format_version TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE artifacts (
    archive_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    stage TEXT NOT NULL,
    artifact_id TEXT NOT NULL,
    demoted INTEGER NOT NULL DEFAULT 0,
    slot_json TEXT NOT NULL,
    PRIMARY KEY (archive_id, stage)
);

CREATE INDEX idx_sessions_created ON sessions(created_at);
`

var (
	// ErrIncompatibleFormat marks a record written by an unsupported format.
	ErrIncompatibleFormat = errors.New("incompatible archive format")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("archive record not found")
)

// Summary describes a saved record without its artifacts.
type Summary struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Title         string    `json:"title,omitempty"`
	FormatVersion string    `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	Stages        int       `json:"stages"`
}

// Record is a saved session snapshot.
type Record struct {
	Summary
	Snapshot artifact.Snapshot `json:"snapshot"`
}

// Store is the SQLite archive.
type Store struct {
	db    *sqlitestore.DB
	clock func() time.Time
	newID func() string
}

// Open creates or connects to the archive database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Schema{
		Name:    "archive",
		SQL:     schemaSQL,
		Version: schemaVersion,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, clock: time.Now, newID: uuid.NewString}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes snap as a new record and returns its summary.
func (s *Store) Save(ctx context.Context, sessionID, title string, snap artifact.Snapshot) (Summary, error) {
	summary := Summary{
		ID:            s.newID(),
		SessionID:     sessionID,
		Title:         title,
		FormatVersion: FormatVersion,
		CreatedAt:     s.clock().UTC(),
		Stages:        len(snap.Slots),
	}
	slots := make([]string, len(snap.Slots))
	for i, slot := range snap.Slots {
		encoded, err := json.Marshal(slot)
		if err != nil {
			return Summary{}, fmt.Errorf("archive: encode %s slot: %w", slot.Artifact.Stage, err)
		}
		slots[i] = string(encoded)
	}

	err := sqlitestore.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, session_id, title, format_version, created_at) VALUES (?, ?, ?, ?, ?)`,
			summary.ID, summary.SessionID, summary.Title, summary.FormatVersion,
			summary.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
		for i, slot := range snap.Slots {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO artifacts (archive_id, stage, artifact_id, demoted, slot_json) VALUES (?, ?, ?, ?, ?)`,
				summary.ID, string(slot.Artifact.Stage), slot.Artifact.ID, boolToInt(slot.Demoted), slots[i],
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return Summary{}, fmt.Errorf("archive: save: %w", err)
	}
	return summary, nil
}

// List returns every record summary, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT s.id, s.session_id, COALESCE(s.title, ''), s.format_version, s.created_at, COUNT(a.stage)
        FROM sessions s
        LEFT JOIN artifacts a ON a.archive_id = s.id
        GROUP BY s.id
        ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary   Summary
			createdAt string
		)
		if err := rows.Scan(&summary.ID, &summary.SessionID, &summary.Title, &summary.FormatVersion, &createdAt, &summary.Stages); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		summary.CreatedAt = parseTime(createdAt)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Load returns the record with id. Records outside the supported format range
// fail with ErrIncompatibleFormat.
func (s *Store) Load(ctx context.Context, id string) (Record, error) {
	var (
		rec       Record
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, COALESCE(title, ''), format_version, created_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.SessionID, &rec.Title, &rec.FormatVersion, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("archive: load: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	if err := CheckFormat(rec.FormatVersion); err != nil {
		return Record{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT stage, slot_json FROM artifacts WHERE archive_id = ?`, id)
	if err != nil {
		return Record{}, fmt.Errorf("archive: load artifacts: %w", err)
	}
	defer rows.Close()

	byStage := make(map[stage.ID]artifact.SlotSnapshot)
	for rows.Next() {
		var stageName, slotJSON string
		if err := rows.Scan(&stageName, &slotJSON); err != nil {
			return Record{}, fmt.Errorf("archive: scan artifact: %w", err)
		}
		var slot artifact.SlotSnapshot
		if err := json.Unmarshal([]byte(slotJSON), &slot); err != nil {
			return Record{}, fmt.Errorf("archive: decode %s slot: %w", stageName, err)
		}
		byStage[stage.ID(stageName)] = slot
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("archive: load artifacts: %w", err)
	}
	for _, id := range stage.All() {
		if slot, ok := byStage[id]; ok {
			rec.Snapshot.Slots = append(rec.Snapshot.Slots, slot)
		}
	}
	rec.Stages = len(rec.Snapshot.Slots)
	return rec, nil
}

// Delete removes a record and its artifacts.
func (s *Store) Delete(ctx context.Context, id string) error {
	var res sql.Result
	err := sqlitestore.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("archive: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CheckFormat reports whether version can be loaded by this build.
func CheckFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q is not a semantic version", ErrIncompatibleFormat, version)
	}
	constraint, err := semver.NewConstraint(compatibleFormats)
	if err != nil {
		return fmt.Errorf("archive: format constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleFormat, v, compatibleFormats)
	}
	return nil
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
