package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	root_url   TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analyses (
	run_id         TEXT PRIMARY KEY,
	site_id        TEXT NOT NULL,
	root_url       TEXT NOT NULL,
	overall_score  REAL NOT NULL DEFAULT 0,
	grade          TEXT NOT NULL DEFAULT '',
	incomplete     INTEGER NOT NULL DEFAULT 0,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	completed_at   DATETIME NOT NULL,
	result         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_scores (
	run_id   TEXT PRIMARY KEY,
	priority REAL NOT NULL,
	tier     TEXT NOT NULL,
	data     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_site_id ON analyses(site_id);
CREATE INDEX IF NOT EXISTS idx_analyses_completed_at ON analyses(completed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sites WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "site %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get site %s", id)
	}
	return unmarshal[model.Site]("site", []byte(data))
}

func (s *SQLiteStore) UpsertSite(ctx context.Context, site *model.Site) error {
	data, err := marshal("site", site)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sites (id, root_url, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET root_url = excluded.root_url, data = excluded.data, updated_at = excluded.updated_at`,
		site.ID, site.RootURL, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert site %s", site.ID)
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, result *model.AnalysisResult) error {
	data, err := marshal("analysis", result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (run_id, site_id, root_url, overall_score, grade, incomplete, total_cost_usd, completed_at, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			site_id = excluded.site_id,
			root_url = excluded.root_url,
			overall_score = excluded.overall_score,
			grade = excluded.grade,
			incomplete = excluded.incomplete,
			total_cost_usd = excluded.total_cost_usd,
			completed_at = excluded.completed_at,
			result = excluded.result`,
		result.RunID, result.SiteID, result.RootURL, result.OverallScore, result.Grade,
		result.Incomplete, result.TotalCostUSD, result.CompletedAt.UTC(), string(data),
	)
	return eris.Wrapf(err, "sqlite: save analysis %s", result.RunID)
}

func (s *SQLiteStore) SaveLeadScore(ctx context.Context, runID string, lead *model.LeadScore) error {
	data, err := marshal("lead score", lead)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_scores (run_id, priority, tier, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET priority = excluded.priority, tier = excluded.tier, data = excluded.data`,
		runID, lead.Priority, string(lead.Tier), string(data),
	)
	return eris.Wrapf(err, "sqlite: save lead score %s", runID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, runID string) (*model.AnalysisResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analyses WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "analysis %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", runID)
	}
	return unmarshal[model.AnalysisResult]("analysis", []byte(data))
}

func (s *SQLiteStore) GetLeadScore(ctx context.Context, runID string) (*model.LeadScore, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM lead_scores WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead score %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead score %s", runID)
	}
	return unmarshal[model.LeadScore]("lead score", []byte(data))
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT a.run_id, a.site_id, a.root_url, a.overall_score, a.grade, a.incomplete, a.total_cost_usd, a.completed_at,
		COALESCE(l.tier, ''), COALESCE(l.priority, 0)
		FROM analyses a LEFT JOIN lead_scores l ON l.run_id = a.run_id`
	var args []any
	if filter.SiteID != "" {
		query += ` WHERE a.site_id = ?`
		args = append(args, filter.SiteID)
	}
	query += ` ORDER BY a.completed_at DESC, a.run_id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var (
			r    model.RunSummary
			tier string
		)
		if err := rows.Scan(&r.RunID, &r.SiteID, &r.RootURL, &r.OverallScore, &r.Grade, &r.Incomplete,
			&r.TotalCostUSD, &r.CompletedAt, &tier, &r.Priority); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Tier = model.Tier(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
