package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"formkit/internal/model"
	"formkit/internal/prepop"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("db: not found")

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
	log *zap.Logger
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool, log *zap.Logger) *Queries {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queries{Pool: pool, log: log}
}

// Form queries

// PutForm stores the schema document of a form, replacing an earlier version
func (q *Queries) PutForm(ctx context.Context, id string, schema []byte) error {
	_, err := q.Pool.Exec(ctx,
		`INSERT INTO forms (id, schema) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET schema = EXCLUDED.schema, updated_at = NOW()`,
		id, json.RawMessage(schema),
	)
	return err
}

func (q *Queries) GetForm(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := q.Pool.QueryRow(ctx, "SELECT schema FROM forms WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return raw, err
}

// Submission queries

const submissionColumns = "id, form_id, data, COALESCE(email, ''), COALESCE(ip, ''), created_at"

// InsertSubmission stores sub under a fresh ULID and returns the stored row
func (q *Queries) InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	sub.ID = ulid.Make().String()
	if sub.Data == nil {
		sub.Data = map[string]any{}
	}
	row := q.Pool.QueryRow(ctx,
		`INSERT INTO submissions (id, form_id, data, email, ip)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		 RETURNING `+submissionColumns,
		sub.ID, sub.FormID, sub.Data, strings.ToLower(sub.Email), sub.IP,
	)
	out, err := scanSubmission(row)
	if err != nil {
		return model.Submission{}, err
	}
	q.log.Debug("Submission stored", zap.String("form_id", out.FormID), zap.String("submission_id", out.ID))
	return out, nil
}

func (q *Queries) GetSubmission(ctx context.Context, formID, id string) (model.Submission, error) {
	row := q.Pool.QueryRow(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE form_id = $1 AND id = $2",
		formID, id,
	)
	return scanSubmission(row)
}

// ListSubmissions returns every submission of a form, oldest first
func (q *Queries) ListSubmissions(ctx context.Context, formID string) ([]model.Submission, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE form_id = $1 ORDER BY created_at, id",
		formID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ prepop.SubmissionLookup = (*Queries)(nil)

// Latest finds the respondent's most recent submission of a form
func (q *Queries) Latest(ctx context.Context, formID string, m prepop.Match) (*model.Submission, error) {
	var (
		where string
		args  = []any{formID}
	)
	switch m.By {
	case model.MatchEmail:
		where = "lower(email) = lower($2)"
		args = append(args, m.Value)
	case model.MatchIP:
		where = "ip = $2"
		args = append(args, m.Value)
	case model.MatchCustom:
		where = "data->>$2 = $3"
		args = append(args, m.Field, m.Value)
	default:
		return nil, fmt.Errorf("db: unsupported match %q", m.By)
	}

	row := q.Pool.QueryRow(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE form_id = $1 AND "+where+
			" ORDER BY created_at DESC, id DESC LIMIT 1",
		args...,
	)
	s, err := scanSubmission(row)
	if errors.Is(err, ErrNotFound) {
		return nil, prepop.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var (
		s       model.Submission
		created time.Time
	)
	err := row.Scan(&s.ID, &s.FormID, &s.Data, &s.Email, &s.IP, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, err
	}
	s.CreatedAt = created.UTC().Format(time.RFC3339Nano)
	return s, nil
}
