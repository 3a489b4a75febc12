package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/lead"
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
CREATE TABLE IF NOT EXISTS leads (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
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
	website_checked_at      INTEGER,
	website_final_url       TEXT NOT NULL DEFAULT '',
	website_http_status     INTEGER,
	status                  TEXT NOT NULL DEFAULT 'new',
	notes                   TEXT NOT NULL DEFAULT '',
	tags                    TEXT NOT NULL DEFAULT '[]',
	last_seen_at            INTEGER NOT NULL,
	created_at              INTEGER NOT NULL,
	UNIQUE(source, handle)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	params     TEXT NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_needs_audit ON leads(website_checked_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteLeadColumns = `id, source, handle, profile_url, name, bio, followers, location, website,
	phone, email, recent_post_snippet, signal_keywords_matched, score, reason,
	website_score, website_verdict, website_findings, website_checked_at,
	website_final_url, website_http_status, status, notes, tags, last_seen_at, created_at`

func (s *SQLiteStore) GetLead(ctx context.Context, id int64) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanSQLiteLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", id)
	}
	return l, nil
}

func (s *SQLiteStore) GetLeadByIdentity(ctx context.Context, source, handle string) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE source = ? AND handle = ?`, source, handle)
	l, err := scanSQLiteLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s/%s", source, handle)
	}
	return l, nil
}

func (s *SQLiteStore) UpsertLead(ctx context.Context, l *lead.Lead) (int64, error) {
	tags, err := marshalTags(l.Tags)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal tags")
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO leads (
			source, handle, profile_url, name, bio, followers, location, website,
			phone, email, recent_post_snippet, signal_keywords_matched, score, reason,
			website_score, website_verdict, website_findings, website_checked_at,
			website_final_url, website_http_status, status, notes, tags, last_seen_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, handle) DO UPDATE SET
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
		l.Source, l.Handle, l.ProfileURL, l.Name, l.Bio, nullInt(l.Followers),
		l.Location, l.Website, l.Phone, l.Email, l.RecentPostSnippet,
		l.SignalKeywords, nullInt(l.Score), l.Reason,
		nullInt(l.WebsiteScore), l.WebsiteVerdict, l.WebsiteFindings,
		nullUnix(l.WebsiteCheckedAt), l.WebsiteFinalURL, nullInt(l.WebsiteHTTPStatus),
		l.Status, l.Notes, tags, l.LastSeenAt.Unix(), l.CreatedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert lead %s/%s", l.Source, l.Handle)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateOperatorFields(ctx context.Context, id int64, patch lead.OperatorPatch) (*lead.Lead, error) {
	if patch.Empty() {
		return s.GetLead(ctx, id)
	}

	var sets []string
	var args []any
	if patch.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *patch.Status)
	}
	if patch.Notes != nil {
		sets = append(sets, "notes=?")
		args = append(args, *patch.Notes)
	}
	if patch.Tags != nil {
		tags, err := marshalTags(*patch.Tags)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal tags")
		}
		sets = append(sets, "tags=?")
		args = append(args, tags)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %d", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return s.GetLead(ctx, id)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter Filter) ([]lead.Lead, error) {
	where, args := buildLeadFilter(filter, qmarkPlaceholder)

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + sqliteLeadColumns + ` FROM leads WHERE ` + where +
		` ORDER BY score DESC, followers DESC, last_seen_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) StatusCounts(ctx context.Context, source string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM leads WHERE 1=1`
	var args []any
	if strings.TrimSpace(source) != "" {
		query += ` AND source = ?`
		args = append(args, strings.TrimSpace(source))
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var c int
		if err := rows.Scan(&status, &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[status] = c
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: status counts iterate")
}

func (s *SQLiteStore) LeadsNeedingAudit(ctx context.Context, limit int) ([]AuditCandidate, error) {
	// Higher-scoring leads first. NULL scores sort lowest, so unaudited
	// but unscored leads land at the end of the sweep.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handle, website
		FROM leads
		WHERE website_checked_at IS NULL
		ORDER BY score DESC, followers DESC, last_seen_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: leads needing audit")
	}
	defer rows.Close()

	var out []AuditCandidate
	for rows.Next() {
		var c AuditCandidate
		if err := rows.Scan(&c.ID, &c.Handle, &c.Website); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: leads needing audit iterate")
}

func (s *SQLiteStore) SaveWebsiteAudit(ctx context.Context, id int64, result audit.Result) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET website_score=?, website_verdict=?, website_findings=?,
		    website_checked_at=?, website_final_url=?, website_http_status=?
		WHERE id=?`,
		result.Score, result.Verdict, result.Findings,
		result.CheckedAt.Unix(), result.FinalURL, nullInt(result.HTTPStatus), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save website audit %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("lead not found: %d", id)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind string, params map[string]any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, params, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, kind, string(paramsJSON), RunStatusRunning, now.Unix())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{ID: id, Kind: kind, Params: params, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, error=?, ended_at=? WHERE id=?`,
		status, errMsg, time.Now().UTC().Unix(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, params, status, error, started_at, ended_at FROM runs WHERE id = ?`, runID)

	var r Run
	var paramsJSON string
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&r.ID, &r.Kind, &paramsJSON, &r.Status, &r.Error, &started, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		r.Params = map[string]any{}
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	if ended.Valid {
		t := time.Unix(ended.Int64, 0).UTC()
		r.EndedAt = &t
	}
	return &r, nil
}

// helpers

type placeholderFn func(n int) string

func qmarkPlaceholder(int) string { return "?" }

// buildLeadFilter renders the WHERE clause shared by both stores. The
// clause fragments are hardcoded; only values are bound.
func buildLeadFilter(filter Filter, ph placeholderFn) (string, []any) {
	where := []string{"1=1"}
	var args []any
	n := 0
	next := func() string {
		n++
		return ph(n)
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		needle := "%" + q + "%"
		var likes []string
		for _, col := range []string{"handle", "name", "bio", "location", "website", "profile_url", "phone", "email"} {
			likes = append(likes, col+" LIKE "+next())
			args = append(args, needle)
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	if s := strings.TrimSpace(filter.Status); s != "" {
		where = append(where, "status = "+next())
		args = append(args, s)
	}
	if s := strings.TrimSpace(filter.Source); s != "" {
		where = append(where, "source = "+next())
		args = append(args, s)
	}
	if filter.MinScore != nil {
		where = append(where, "score >= "+next())
		args = append(args, *filter.MinScore)
	}
	if v := strings.TrimSpace(filter.WebsiteVerdict); v != "" {
		where = append(where, "website_verdict = "+next())
		args = append(args, v)
	}
	if filter.MaxWebsiteScore != nil {
		where = append(where, "website_score <= "+next())
		args = append(args, *filter.MaxWebsiteScore)
	}

	return strings.Join(where, " AND "), args
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*lead.Lead, error) {
	var l lead.Lead
	var followers, score, websiteScore, websiteHTTPStatus sql.NullInt64
	var websiteCheckedAt sql.NullInt64
	var tags string
	var lastSeen, created int64

	err := row.Scan(
		&l.ID, &l.Source, &l.Handle, &l.ProfileURL, &l.Name, &l.Bio,
		&followers, &l.Location, &l.Website, &l.Phone, &l.Email,
		&l.RecentPostSnippet, &l.SignalKeywords, &score, &l.Reason,
		&websiteScore, &l.WebsiteVerdict, &l.WebsiteFindings, &websiteCheckedAt,
		&l.WebsiteFinalURL, &websiteHTTPStatus, &l.Status, &l.Notes, &tags,
		&lastSeen, &created,
	)
	if err != nil {
		return nil, err
	}

	l.Followers = fromNullInt(followers)
	l.Score = fromNullInt(score)
	l.WebsiteScore = fromNullInt(websiteScore)
	l.WebsiteHTTPStatus = fromNullInt(websiteHTTPStatus)
	if websiteCheckedAt.Valid {
		t := time.Unix(websiteCheckedAt.Int64, 0).UTC()
		l.WebsiteCheckedAt = &t
	}
	l.Tags = unmarshalTags(tags)
	l.LastSeenAt = time.Unix(lastSeen, 0).UTC()
	l.CreatedAt = time.Unix(created, 0).UTC()
	return &l, nil
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
