// Package ingest ties normalization, scoring, merging, and persistence
// into one write path. Every record from any source enters through here,
// so the duplicate-handling and operator-field guarantees hold globally.
package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/scoring"
	"github.com/galzu/leadfinder/internal/store"
)

// maxReasons caps how many scoring reasons are persisted per lead.
const maxReasons = 18

// Resolver is the single write path for lead records. It serializes
// merges per (source, handle) so concurrent batches never lose updates.
type Resolver struct {
	store   store.Store
	scoreFn scoring.Func
	nowFn   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResolver creates a Resolver using the given store and scoring
// function. A nil scoreFn disables scoring of unscored rows.
func NewResolver(s store.Store, scoreFn scoring.Func) *Resolver {
	return &Resolver{
		store:   s,
		scoreFn: scoreFn,
		nowFn:   func() time.Time { return time.Now().UTC() },
		locks:   make(map[string]*sync.Mutex),
	}
}

// identityLock returns the mutex serializing merges for one identity.
// Locks are never evicted; identity cardinality is bounded by the lead
// table itself.
func (r *Resolver) identityLock(identity string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		r.locks[identity] = l
	}
	return l
}

// IngestBatch normalizes, scores, and upserts a batch of raw rows from
// one source. Rows that yield no usable handle are skipped, not errors.
// Returns the number of rows actually written.
func (r *Resolver) IngestBatch(ctx context.Context, source string, rows []lead.RawRow) (int, error) {
	written := 0
	skipped := 0
	for _, raw := range rows {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "ingest: batch interrupted")
		}
		row := lead.Normalize(raw, source)
		if row.Handle == "" {
			skipped++
			continue
		}
		if _, err := r.ingestRow(ctx, source, row); err != nil {
			return written, err
		}
		written++
	}
	if skipped > 0 {
		zap.L().Warn("skipped rows without a usable handle",
			zap.String("source", source),
			zap.Int("skipped", skipped),
			zap.Int("written", written))
	}
	return written, nil
}

// IngestRow ingests a single normalized row. The same merge and scoring
// rules as IngestBatch apply.
func (r *Resolver) IngestRow(ctx context.Context, source string, row lead.Row) (int64, error) {
	if row.Handle == "" {
		return 0, eris.New("ingest: row has no usable handle")
	}
	return r.ingestRow(ctx, source, row)
}

func (r *Resolver) ingestRow(ctx context.Context, source string, row lead.Row) (int64, error) {
	now := r.nowFn()
	incoming := lead.New(source, row, now)

	// Source-provided scores win; only unscored rows get the classifier.
	if incoming.Score == nil && r.scoreFn != nil {
		res := r.scoreFn(row)
		score := res.Score
		incoming.Score = &score
		reasons := res.Reasons
		if len(reasons) > maxReasons {
			reasons = reasons[:maxReasons]
		}
		incoming.Reason = strings.Join(reasons, " | ")
	}

	lock := r.identityLock(incoming.Identity())
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.GetLeadByIdentity(ctx, incoming.Source, incoming.Handle)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: lookup %s/%s", incoming.Source, incoming.Handle)
	}

	target := &incoming
	if existing != nil {
		lead.Merge(existing, &incoming, now)
		target = existing
	}

	id, err := r.store.UpsertLead(ctx, target)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: upsert %s/%s", incoming.Source, incoming.Handle)
	}
	zap.L().Debug("ingested lead",
		zap.String("source", incoming.Source),
		zap.String("handle", incoming.Handle),
		zap.Int64("id", id),
		zap.Bool("merged", existing != nil))
	return id, nil
}

// UpdateOperator applies an operator edit to a lead. This is the only
// path that may change status, notes, or tags.
func (r *Resolver) UpdateOperator(ctx context.Context, id int64, patch lead.OperatorPatch) (*lead.Lead, error) {
	l, err := r.store.UpdateOperatorFields(ctx, id, patch)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: operator update %d", id)
	}
	return l, nil
}
