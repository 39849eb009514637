// Package store provides the Postgres-backed permit store.
//
// Expected schema:
//
//	CREATE TABLE permits (
//		status_no            TEXT PRIMARY KEY,
//		status_date          TEXT NOT NULL DEFAULT '',
//		api_no               TEXT NOT NULL DEFAULT '',
//		operator_name        TEXT NOT NULL DEFAULT '',
//		operator_no          TEXT NOT NULL DEFAULT '',
//		lease_name           TEXT NOT NULL DEFAULT '',
//		well_no              TEXT NOT NULL DEFAULT '',
//		district             TEXT NOT NULL DEFAULT '',
//		county               TEXT NOT NULL DEFAULT '',
//		wellbore_profile     TEXT NOT NULL DEFAULT '',
//		filing_purpose       TEXT NOT NULL DEFAULT '',
//		amend                BOOLEAN,
//		total_depth          TEXT NOT NULL DEFAULT '',
//		current_queue        TEXT NOT NULL DEFAULT '',
//		detail_url           TEXT NOT NULL DEFAULT '',
//		horizontal_wellbore  TEXT,
//		field_name           TEXT,
//		acres                DOUBLE PRECISION,
//		section              TEXT,
//		block                TEXT,
//		survey               TEXT,
//		abstract_no          TEXT,
//		reservoir_well_count INTEGER,
//		pdf_url              TEXT,
//		parse_status         TEXT NOT NULL DEFAULT 'unprocessed',
//		parse_confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
//		text_snippet         TEXT NOT NULL DEFAULT '',
//		last_enriched_at     TIMESTAMPTZ,
//		first_seen_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//		last_seen_at         TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drillwatch/permit-pipeline/internal/permits"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PermitStore persists permit rows in Postgres. Every method runs as its own
// implicit transaction: one permit's failure never rolls back another's.
type PermitStore struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed PermitStore and verifies connectivity.
func New(ctx context.Context, cfg Config) (*PermitStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "permits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PermitStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*PermitStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "permits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PermitStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PermitStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertPermits writes one row per permit, keyed by status_no. On conflict,
// non-empty incoming values replace stored ones; status_date, current_queue
// and last_seen_at always refresh since those are exactly the fields the
// portal mutates as a filing moves through its queue.
func (s *PermitStore) UpsertPermits(ctx context.Context, rows []permits.PermitRecord) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	status_no, status_date, api_no, operator_name, operator_no,
	lease_name, well_no, district, county, wellbore_profile,
	filing_purpose, amend, total_depth, current_queue, detail_url
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (status_no) DO UPDATE SET
	status_date      = EXCLUDED.status_date,
	current_queue    = EXCLUDED.current_queue,
	api_no           = COALESCE(NULLIF(EXCLUDED.api_no, ''), %[1]s.api_no),
	operator_name    = COALESCE(NULLIF(EXCLUDED.operator_name, ''), %[1]s.operator_name),
	operator_no      = COALESCE(NULLIF(EXCLUDED.operator_no, ''), %[1]s.operator_no),
	lease_name       = COALESCE(NULLIF(EXCLUDED.lease_name, ''), %[1]s.lease_name),
	well_no          = COALESCE(NULLIF(EXCLUDED.well_no, ''), %[1]s.well_no),
	district         = COALESCE(NULLIF(EXCLUDED.district, ''), %[1]s.district),
	county           = COALESCE(NULLIF(EXCLUDED.county, ''), %[1]s.county),
	wellbore_profile = COALESCE(NULLIF(EXCLUDED.wellbore_profile, ''), %[1]s.wellbore_profile),
	filing_purpose   = COALESCE(NULLIF(EXCLUDED.filing_purpose, ''), %[1]s.filing_purpose),
	amend            = COALESCE(EXCLUDED.amend, %[1]s.amend),
	total_depth      = COALESCE(NULLIF(EXCLUDED.total_depth, ''), %[1]s.total_depth),
	detail_url       = COALESCE(NULLIF(EXCLUDED.detail_url, ''), %[1]s.detail_url),
	last_seen_at     = now()`, s.table)

	written := 0
	for _, row := range rows {
		if row.StatusNo == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, query,
			row.StatusNo,
			row.StatusDate,
			row.APINo,
			row.OperatorName,
			row.OperatorNo,
			row.LeaseName,
			row.WellNo,
			row.District,
			row.County,
			row.WellboreProfile,
			row.FilingPurpose,
			row.Amend,
			row.TotalDepth,
			row.CurrentQueue,
			row.DetailURL,
		); err != nil {
			return written, fmt.Errorf("upsert permit %s: %w", row.StatusNo, err)
		}
		written++
	}
	return written, nil
}

// SelectNeedingEnrichment returns permits with a detail URL that are either
// unprocessed or sitting in a retryable status last attempted before
// retryBefore, most recently seen first.
func (s *PermitStore) SelectNeedingEnrichment(ctx context.Context, limit int, retryBefore time.Time) ([]permits.PermitRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	retryable := make([]string, len(permits.RetryableStatuses))
	for i, st := range permits.RetryableStatuses {
		retryable[i] = string(st)
	}

	query := fmt.Sprintf(`
SELECT
	status_no, status_date, api_no, operator_name, operator_no,
	lease_name, well_no, district, county, wellbore_profile,
	filing_purpose, amend, total_depth, current_queue, detail_url,
	horizontal_wellbore, field_name, acres, section, block,
	survey, abstract_no, reservoir_well_count, pdf_url,
	parse_status, parse_confidence, text_snippet, last_enriched_at
FROM %s
WHERE detail_url <> ''
  AND (parse_status = $1
       OR (parse_status = ANY($2)
           AND (last_enriched_at IS NULL OR last_enriched_at < $3)))
ORDER BY last_seen_at DESC
LIMIT $4`, s.table)

	rows, err := s.pool.Query(ctx, query, string(permits.StatusUnprocessed), retryable, retryBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("select needing enrichment: %w", err)
	}
	defer rows.Close()

	var out []permits.PermitRecord
	for rows.Next() {
		var rec permits.PermitRecord
		var status string
		if err := rows.Scan(
			&rec.StatusNo, &rec.StatusDate, &rec.APINo, &rec.OperatorName, &rec.OperatorNo,
			&rec.LeaseName, &rec.WellNo, &rec.District, &rec.County, &rec.WellboreProfile,
			&rec.FilingPurpose, &rec.Amend, &rec.TotalDepth, &rec.CurrentQueue, &rec.DetailURL,
			&rec.Enrichment.HorizontalWellbore, &rec.Enrichment.FieldName, &rec.Enrichment.Acres,
			&rec.Enrichment.Section, &rec.Enrichment.Block, &rec.Enrichment.Survey,
			&rec.Enrichment.AbstractNo, &rec.Enrichment.ReservoirWellCount, &rec.Enrichment.PDFURL,
			&status, &rec.Enrichment.ParseConfidence, &rec.Enrichment.TextSnippet,
			&rec.Enrichment.LastEnrichedAt,
		); err != nil {
			return nil, fmt.Errorf("scan permit row: %w", err)
		}
		rec.Enrichment.ParseStatus = permits.ParseStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permit rows: %w", err)
	}
	return out, nil
}

// UpdateEnrichment applies one enrichment result with set-if-present
// semantics: nil data fields keep whatever an earlier run stored, while
// status, confidence, snippet and timestamp always refresh.
func (s *PermitStore) UpdateEnrichment(ctx context.Context, statusNo string, result permits.EnrichmentResult) error {
	if statusNo == "" {
		return fmt.Errorf("status_no is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	horizontal_wellbore  = COALESCE($2, horizontal_wellbore),
	field_name           = COALESCE($3, field_name),
	acres                = COALESCE($4, acres),
	section              = COALESCE($5, section),
	block                = COALESCE($6, block),
	survey               = COALESCE($7, survey),
	abstract_no          = COALESCE($8, abstract_no),
	reservoir_well_count = COALESCE($9, reservoir_well_count),
	pdf_url              = COALESCE($10, pdf_url),
	parse_status         = $11,
	parse_confidence     = $12,
	text_snippet         = $13,
	last_enriched_at     = $14
WHERE status_no = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		statusNo,
		result.HorizontalWellbore,
		result.FieldName,
		result.Acres,
		result.Section,
		result.Block,
		result.Survey,
		result.AbstractNo,
		result.ReservoirWellCount,
		result.PDFURL,
		string(result.ParseStatus),
		result.ParseConfidence,
		result.TextSnippet,
		result.LastEnrichedAt,
	)
	if err != nil {
		return fmt.Errorf("update enrichment for %s: %w", statusNo, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update enrichment for %s: permit not found", statusNo)
	}
	return nil
}
