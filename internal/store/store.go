// Package store persists leads and run bookkeeping. Two implementations:
// SQLite (default, local) and Postgres. The rest of the application
// depends only on the Store contract, never on engine specifics.
package store

import (
	"context"
	"time"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/lead"
)

// Filter specifies criteria for listing leads. Nil numeric members mean
// "no bound"; unset scores are excluded by score bounds, never treated
// as zero.
type Filter struct {
	Query           string `json:"q,omitempty"`
	Status          string `json:"status,omitempty"`
	Source          string `json:"source,omitempty"`
	MinScore        *int   `json:"min_score,omitempty"`
	WebsiteVerdict  string `json:"website_verdict,omitempty"`
	MaxWebsiteScore *int   `json:"max_website_score,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Offset          int    `json:"offset,omitempty"`
}

// AuditCandidate is a lead still missing a website audit.
type AuditCandidate struct {
	ID      int64
	Handle  string
	Website string
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusError   = "error"
)

// Run records one background job invocation (audit sweep, maps import,
// commenter pull).
type Run struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Params    map[string]any `json:"params"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// Store is the persistence contract for the lead pipeline.
type Store interface {
	// Leads
	GetLead(ctx context.Context, id int64) (*lead.Lead, error)
	GetLeadByIdentity(ctx context.Context, source, handle string) (*lead.Lead, error)
	UpsertLead(ctx context.Context, l *lead.Lead) (int64, error)
	UpdateOperatorFields(ctx context.Context, id int64, patch lead.OperatorPatch) (*lead.Lead, error)
	ListLeads(ctx context.Context, filter Filter) ([]lead.Lead, error)
	StatusCounts(ctx context.Context, source string) (map[string]int, error)

	// Website audit sweep
	LeadsNeedingAudit(ctx context.Context, limit int) ([]AuditCandidate, error)
	SaveWebsiteAudit(ctx context.Context, id int64, res audit.Result) error

	// Runs
	CreateRun(ctx context.Context, kind string, params map[string]any) (*Run, error)
	FinishRun(ctx context.Context, runID, status, errMsg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
