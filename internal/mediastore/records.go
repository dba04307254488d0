package mediastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/services"
)

// Kind classifies a media record.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Record describes one media file known to reelsmith.
type Record struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id,omitempty"`
	Kind      Kind            `json:"kind"`
	Path      string          `json:"path"`
	JobID     string          `json:"job_id,omitempty"`
	MimeType  string          `json:"mime_type,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const recordColumns = `id, project_id, kind, path, job_id, mime_type, duration, width, height, metadata, created_at`

// Insert stores rec, assigning an id and creation time when missing.
func (s *Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.Path = strings.TrimSpace(rec.Path)
	if rec.Path == "" {
		return Record{}, services.Wrap(services.ErrValidation, "mediastore", "insert", "path is required", nil)
	}
	if rec.Kind == "" {
		return Record{}, services.Wrap(services.ErrValidation, "mediastore", "insert", "kind is required", nil)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO media_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ProjectID,
		string(rec.Kind),
		rec.Path,
		nullableString(rec.JobID),
		nullableString(rec.MimeType),
		rec.Duration,
		rec.Width,
		rec.Height,
		nullableString(string(rec.Metadata)),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert media record: %w", err)
	}
	return rec, nil
}

// Get fetches a record by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM media_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, services.Wrap(services.ErrNotFound, "mediastore", "get", "media "+id, nil)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get media record: %w", err)
	}
	return rec, nil
}

// HasPath reports whether a record already points at path.
func (s *Store) HasPath(ctx context.Context, path string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM media_records WHERE path = ?`, path).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup media path: %w", err)
	}
	return count > 0, nil
}

// List returns records newest first. An empty projectID lists everything.
func (s *Store) List(ctx context.Context, projectID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM media_records`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		kind      string
		jobID     sql.NullString
		mimeType  sql.NullString
		metadata  sql.NullString
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.ProjectID, &kind, &rec.Path, &jobID, &mimeType,
		&rec.Duration, &rec.Width, &rec.Height, &metadata, &createdAt); err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.JobID = jobID.String
	rec.MimeType = mimeType.String
	if metadata.Valid && metadata.String != "" {
		rec.Metadata = json.RawMessage(metadata.String)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	return rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
