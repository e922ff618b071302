package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_site":       `SELECT data FROM sites WHERE id = $1`,
	"get_analysis":   `SELECT result FROM analyses WHERE run_id = $1`,
	"get_lead_score": `SELECT data FROM lead_scores WHERE run_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	root_url   TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analyses (
	run_id         TEXT PRIMARY KEY,
	site_id        TEXT NOT NULL,
	root_url       TEXT NOT NULL,
	overall_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	grade          TEXT NOT NULL DEFAULT '',
	incomplete     BOOLEAN NOT NULL DEFAULT false,
	total_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	completed_at   TIMESTAMPTZ NOT NULL,
	result         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_scores (
	run_id   TEXT PRIMARY KEY,
	priority DOUBLE PRECISION NOT NULL,
	tier     TEXT NOT NULL,
	data     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_site_id ON analyses(site_id);
CREATE INDEX IF NOT EXISTS idx_analyses_completed_at ON analyses(completed_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sites WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "site %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get site %s", id)
	}
	return unmarshal[model.Site]("site", data)
}

func (s *PostgresStore) UpsertSite(ctx context.Context, site *model.Site) error {
	data, err := marshal("site", site)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sites (id, root_url, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET root_url = EXCLUDED.root_url, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		site.ID, site.RootURL, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert site %s", site.ID)
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, result *model.AnalysisResult) error {
	data, err := marshal("analysis", result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (run_id, site_id, root_url, overall_score, grade, incomplete, total_cost_usd, completed_at, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (run_id) DO UPDATE SET
			site_id = EXCLUDED.site_id,
			root_url = EXCLUDED.root_url,
			overall_score = EXCLUDED.overall_score,
			grade = EXCLUDED.grade,
			incomplete = EXCLUDED.incomplete,
			total_cost_usd = EXCLUDED.total_cost_usd,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result`,
		result.RunID, result.SiteID, result.RootURL, result.OverallScore, result.Grade,
		result.Incomplete, result.TotalCostUSD, result.CompletedAt.UTC(), data,
	)
	return eris.Wrapf(err, "postgres: save analysis %s", result.RunID)
}

func (s *PostgresStore) SaveLeadScore(ctx context.Context, runID string, lead *model.LeadScore) error {
	data, err := marshal("lead score", lead)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_scores (run_id, priority, tier, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO UPDATE SET priority = EXCLUDED.priority, tier = EXCLUDED.tier, data = EXCLUDED.data`,
		runID, lead.Priority, string(lead.Tier), data,
	)
	return eris.Wrapf(err, "postgres: save lead score %s", runID)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, runID string) (*model.AnalysisResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM analyses WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "analysis %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", runID)
	}
	return unmarshal[model.AnalysisResult]("analysis", data)
}

func (s *PostgresStore) GetLeadScore(ctx context.Context, runID string) (*model.LeadScore, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM lead_scores WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead score %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead score %s", runID)
	}
	return unmarshal[model.LeadScore]("lead score", data)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT a.run_id, a.site_id, a.root_url, a.overall_score, a.grade, a.incomplete, a.total_cost_usd, a.completed_at,
		COALESCE(l.tier, ''), COALESCE(l.priority, 0)
		FROM analyses a LEFT JOIN lead_scores l ON l.run_id = a.run_id`
	args := []any{}
	if filter.SiteID != "" {
		query += ` WHERE a.site_id = $1`
		args = append(args, filter.SiteID)
	}
	args = append(args, filter.limit(), filter.Offset)
	if filter.SiteID != "" {
		query += ` ORDER BY a.completed_at DESC, a.run_id LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY a.completed_at DESC, a.run_id LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
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
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Tier = model.Tier(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
