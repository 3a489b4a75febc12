package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/lead"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                      BIGSERIAL PRIMARY KEY,
	source                  TEXT NOT NULL DEFAULT 'manual',
	handle                  TEXT NOT NULL,
	profile_url             TEXT NOT NULL DEFAULT '',
	name                    TEXT NOT NULL DEFAULT '',
	bio                     TEXT NOT NULL DEFAULT '',
	followers               INTEGER,
	location                TEXT NOT NULL DEFAULT '',
	website                 TEXT NOT NULL DEFAULT '',
	phone                   TEXT NOT NULL DEFAULT '',
	email                   TEXT NOT NULL DEFAULT '',
	recent_post_snippet     TEXT NOT NULL DEFAULT '',
	signal_keywords_matched TEXT NOT NULL DEFAULT '',
	score                   INTEGER,
	reason                  TEXT NOT NULL DEFAULT '',
	website_score           INTEGER,
	website_verdict         TEXT NOT NULL DEFAULT '',
	website_findings        TEXT NOT NULL DEFAULT '',
	website_checked_at      TIMESTAMPTZ,
	website_final_url       TEXT NOT NULL DEFAULT '',
	website_http_status     INTEGER,
	status                  TEXT NOT NULL DEFAULT 'new',
	notes                   TEXT NOT NULL DEFAULT '',
	tags                    JSONB NOT NULL DEFAULT '[]',
	last_seen_at            TIMESTAMPTZ NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL,
	UNIQUE(source, handle)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	params     JSONB NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_needs_audit ON leads(website_checked_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgLeadColumns = `id, source, handle, profile_url, name, bio, followers, location, website,
	phone, email, recent_post_snippet, signal_keywords_matched, score, reason,
	website_score, website_verdict, website_findings, website_checked_at,
	website_final_url, website_http_status, status, notes, tags, last_seen_at, created_at`

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*lead.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgLeadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanPgLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %d", id)
	}
	return l, nil
}

func (s *PostgresStore) GetLeadByIdentity(ctx context.Context, source, handle string) (*lead.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgLeadColumns+` FROM leads WHERE source = $1 AND handle = $2`, source, handle)
	l, err := scanPgLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s/%s", source, handle)
	}
	return l, nil
}

func (s *PostgresStore) UpsertLead(ctx context.Context, l *lead.Lead) (int64, error) {
	tags, err := marshalTags(l.Tags)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal tags")
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO leads (
			source, handle, profile_url, name, bio, followers, location, website,
			phone, email, recent_post_snippet, signal_keywords_matched, score, reason,
			website_score, website_verdict, website_findings, website_checked_at,
			website_final_url, website_http_status, status, notes, tags, last_seen_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (source, handle) DO UPDATE SET
			profile_url=excluded.profile_url,
			name=excluded.name,
			bio=excluded.bio,
			followers=excluded.followers,
			location=excluded.location,
			website=excluded.website,
			phone=excluded.phone,
			email=excluded.email,
			recent_post_snippet=excluded.recent_post_snippet,
			signal_keywords_matched=excluded.signal_keywords_matched,
			score=excluded.score,
			reason=excluded.reason,
			website_score=excluded.website_score,
			website_verdict=excluded.website_verdict,
			website_findings=excluded.website_findings,
			website_checked_at=excluded.website_checked_at,
			website_final_url=excluded.website_final_url,
			website_http_status=excluded.website_http_status,
			status=excluded.status,
			notes=excluded.notes,
			tags=excluded.tags,
			last_seen_at=excluded.last_seen_at
		RETURNING id`,
		l.Source, l.Handle, l.ProfileURL, l.Name, l.Bio, l.Followers,
		l.Location, l.Website, l.Phone, l.Email, l.RecentPostSnippet,
		l.SignalKeywords, l.Score, l.Reason,
		l.WebsiteScore, l.WebsiteVerdict, l.WebsiteFindings, l.WebsiteCheckedAt,
		l.WebsiteFinalURL, l.WebsiteHTTPStatus, l.Status, l.Notes, tags,
		l.LastSeenAt, l.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert lead %s/%s", l.Source, l.Handle)
	}
	return id, nil
}

func (s *PostgresStore) UpdateOperatorFields(ctx context.Context, id int64, patch lead.OperatorPatch) (*lead.Lead, error) {
	if patch.Empty() {
		return s.GetLead(ctx, id)
	}

	var sets []string
	var args []any
	n := 0
	next := func() string {
		n++
		return "$" + strconv.Itoa(n)
	}
	if patch.Status != nil {
		sets = append(sets, "status="+next())
		args = append(args, *patch.Status)
	}
	if patch.Notes != nil {
		sets = append(sets, "notes="+next())
		args = append(args, *patch.Notes)
	}
	if patch.Tags != nil {
		tags, err := marshalTags(*patch.Tags)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal tags")
		}
		sets = append(sets, "tags="+next())
		args = append(args, tags)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id=`+next(), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.GetLead(ctx, id)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter Filter) ([]lead.Lead, error) {
	where, args := buildLeadFilter(filter, dollarPlaceholder)

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + pgLeadColumns + ` FROM leads WHERE ` + where +
		` ORDER BY score DESC NULLS LAST, followers DESC NULLS LAST, last_seen_at DESC` +
		` LIMIT ` + dollarPlaceholder(len(args)+1) + ` OFFSET ` + dollarPlaceholder(len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) StatusCounts(ctx context.Context, source string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM leads WHERE 1=1`
	var args []any
	if strings.TrimSpace(source) != "" {
		query += ` AND source = $1`
		args = append(args, strings.TrimSpace(source))
	}
	query += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var c int64
		if err := rows.Scan(&status, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[status] = int(c)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status counts iterate")
}

func (s *PostgresStore) LeadsNeedingAudit(ctx context.Context, limit int) ([]AuditCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, handle, website
		FROM leads
		WHERE website_checked_at IS NULL
		ORDER BY score DESC NULLS LAST, followers DESC NULLS LAST, last_seen_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: leads needing audit")
	}
	defer rows.Close()

	var out []AuditCandidate
	for rows.Next() {
		var c AuditCandidate
		if err := rows.Scan(&c.ID, &c.Handle, &c.Website); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: leads needing audit iterate")
}

func (s *PostgresStore) SaveWebsiteAudit(ctx context.Context, id int64, result audit.Result) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads
		SET website_score=$1, website_verdict=$2, website_findings=$3,
		    website_checked_at=$4, website_final_url=$5, website_http_status=$6
		WHERE id=$7`,
		result.Score, result.Verdict, result.Findings,
		result.CheckedAt, result.FinalURL, result.HTTPStatus, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: save website audit %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind string, params map[string]any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, params, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, kind, string(paramsJSON), RunStatusRunning, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{ID: id, Kind: kind, Params: params, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status=$1, error=$2, ended_at=$3 WHERE id=$4`,
		status, errMsg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, params, status, error, started_at, ended_at FROM runs WHERE id = $1`, runID)

	var r Run
	var paramsJSON []byte
	err := row.Scan(&r.ID, &r.Kind, &paramsJSON, &r.Status, &r.Error, &r.StartedAt, &r.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		r.Params = map[string]any{}
	}
	return &r, nil
}

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func scanPgLead(row pgx.Row) (*lead.Lead, error) {
	var l lead.Lead
	var tags []byte

	err := row.Scan(
		&l.ID, &l.Source, &l.Handle, &l.ProfileURL, &l.Name, &l.Bio,
		&l.Followers, &l.Location, &l.Website, &l.Phone, &l.Email,
		&l.RecentPostSnippet, &l.SignalKeywords, &l.Score, &l.Reason,
		&l.WebsiteScore, &l.WebsiteVerdict, &l.WebsiteFindings, &l.WebsiteCheckedAt,
		&l.WebsiteFinalURL, &l.WebsiteHTTPStatus, &l.Status, &l.Notes, &tags,
		&l.LastSeenAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Tags = unmarshalTags(string(tags))
	return &l, nil
}
