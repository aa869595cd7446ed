// Package store persists predictions so they can be fetched by id and
// re-normalized later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"callsense/internal/disposition"
)

const (
	StatusOK              = "ok"
	StatusExtractionError = "extraction_error"
)

var ErrNotFound = errors.New("prediction not found")

type dialect int

const (
	postgres dialect = iota
	sqlite
)

func (d dialect) goose() string {
	if d == sqlite {
		return "sqlite3"
	}
	return "postgres"
}

func (d dialect) dir() string {
	if d == sqlite {
		return "sqlite"
	}
	return "postgres"
}

type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to dsn. "sqlite://path", "file:" DSNs and bare paths ending
// in .db use the embedded SQLite driver; everything else goes to postgres.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	if path, ok := sqlitePath(dsn); ok {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		// one writer; sqlite serializes anyway
		db.SetMaxOpenConns(1)
		return &Store{db: db, dialect: sqlite}, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, dialect: postgres}, nil
}

func sqlitePath(dsn string) (string, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://"), true
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:", strings.HasSuffix(dsn, ".db"):
		return dsn, true
	}
	return "", false
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Prediction is one logged inference. Result is zero when Status is
// StatusExtractionError.
type Prediction struct {
	ID          string
	JobID       string
	Transcript  string
	CurrentDate string
	RawOutput   string
	Status      string
	Result      disposition.Result
	Engine      string
	Latency     time.Duration
	CreatedAt   time.Time
}

const predictionColumns = `id, job_id, transcript, as_of_date, raw_output, status, disposition,
	payment_disposition, reason_for_not_paying, ptp_amount, ptp_date, remarks, confidence_score,
	engine, latency_ms, created_at`

// RecordPrediction inserts p and returns its id, generating one when p.ID is
// empty.
func (s *Store) RecordPrediction(ctx context.Context, p Prediction) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = StatusOK
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO dispositions (`+predictionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`),
		p.ID, nullString(p.JobID), p.Transcript, p.CurrentDate, p.RawOutput, p.Status,
		p.Result.Disposition, p.Result.PaymentDisposition, p.Result.ReasonForNotPaying,
		optional(p.Result.PtpDetails.Amount), optional(p.Result.PtpDetails.Date), p.Result.Remarks, p.Result.ConfidenceScore,
		p.Engine, p.Latency.Milliseconds(), p.CreatedAt)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// GetPrediction looks up a prediction by its id or by the job id it was
// recorded under.
func (s *Store) GetPrediction(ctx context.Context, id string) (Prediction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+predictionColumns+`
		FROM dispositions WHERE id = $1 OR job_id = $1
		ORDER BY created_at DESC LIMIT 1`), id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Prediction{}, ErrNotFound
	}
	return p, err
}

// ListRaw returns predictions oldest first. limit <= 0 returns every row.
func (s *Store) ListRaw(ctx context.Context, limit int) ([]Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM dispositions ORDER BY created_at, id`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateResult overwrites the normalized fields of a stored prediction.
func (s *Store) UpdateResult(ctx context.Context, id, status string, res disposition.Result) error {
	out, err := s.db.ExecContext(ctx, s.rebind(`UPDATE dispositions SET status = $2, disposition = $3,
		payment_disposition = $4, reason_for_not_paying = $5, ptp_amount = $6, ptp_date = $7,
		remarks = $8, confidence_score = $9 WHERE id = $1`),
		id, status, res.Disposition, res.PaymentDisposition, res.ReasonForNotPaying,
		optional(res.PtpDetails.Amount), optional(res.PtpDetails.Date), res.Remarks, res.ConfidenceScore)
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispositions`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (Prediction, error) {
	var (
		p         Prediction
		jobID     sql.NullString
		amount    sql.NullString
		date      sql.NullString
		latencyMS int64
	)
	err := row.Scan(&p.ID, &jobID, &p.Transcript, &p.CurrentDate, &p.RawOutput, &p.Status,
		&p.Result.Disposition, &p.Result.PaymentDisposition, &p.Result.ReasonForNotPaying,
		&amount, &date, &p.Result.Remarks, &p.Result.ConfidenceScore,
		&p.Engine, &latencyMS, &p.CreatedAt)
	if err != nil {
		return Prediction{}, err
	}
	p.JobID = jobID.String
	if amount.Valid {
		p.Result.PtpDetails.Amount = &amount.String
	}
	if date.Valid {
		p.Result.PtpDetails.Date = &date.String
	}
	p.Latency = time.Duration(latencyMS) * time.Millisecond
	return p, nil
}

// rebind rewrites $N placeholders to ? for sqlite. Queries here never hold
// a literal '$'.
func (s *Store) rebind(query string) string {
	if s.dialect != sqlite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			continue
		}
		n, _ := strconv.Atoi(query[i+1 : j])
		b.WriteString("?" + strconv.Itoa(n))
		i = j - 1
	}
	return b.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optional(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
