package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/scoring"
	"github.com/galzu/leadfinder/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return NewResolver(s, scoring.Score), s
}

func TestIngestBatch_SkipsRowsWithoutHandle(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	rows := []lead.RawRow{
		{"handle": "sparkyjoe", "bio": "electrician, DM to book"},
		{"bio": "no identity at all"},
		{"profile_url": "https://instagram.com/plainplumber/", "bio": "plumber"},
	}

	written, err := r.IngestBatch(ctx, lead.SourceInstagram, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	all, err := s.ListLeads(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestIngestRow_ScoresWhenUnscored(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle": "sparkyjoe",
		"bio":    "Electrician. DM to book. Owner operated.",
		"phone":  "+61 400 000 000",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Score)
	assert.Positive(t, *got.Score)
	assert.NotEmpty(t, got.Reason)
}

func TestIngestRow_SourceScoreWins(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id, err := r.IngestRow(ctx, lead.SourceManual, lead.Normalize(lead.RawRow{
		"handle": "prescored",
		"score":  "55",
		"reason": "curated list",
	}, lead.SourceManual))
	require.NoError(t, err)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Score)
	assert.Equal(t, 55, *got.Score)
	assert.Equal(t, "curated list", got.Reason)
}

func TestIngestRow_ReingestMergesWithoutDuplicating(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id1, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle":  "sparkyjoe",
		"bio":     "electrician",
		"website": "https://sparky.example",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	// Second observation lacks the website; enrichment must not regress.
	id2, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle":    "sparkyjoe",
		"bio":       "electrician, DM to book",
		"followers": "912",
	}, lead.SourceInstagram))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetLead(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "electrician, DM to book", got.Bio)
	assert.Equal(t, "https://sparky.example", got.Website)
	require.NotNil(t, got.Followers)
	assert.Equal(t, 912, *got.Followers)

	all, err := s.ListLeads(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIngestRow_OperatorFieldsSurviveReingestion(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle": "sparkyjoe",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	status := "contacted"
	notes := "spoke to Joe, call back Friday"
	tags := []string{"hot"}
	_, err = r.UpdateOperator(ctx, id, lead.OperatorPatch{Status: &status, Notes: &notes, Tags: &tags})
	require.NoError(t, err)

	_, err = r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle": "sparkyjoe",
		"bio":    "fresh scrape of the same profile",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "contacted", got.Status)
	assert.Equal(t, "spoke to Joe, call back Friday", got.Notes)
	assert.Equal(t, []string{"hot"}, got.Tags)
	assert.Equal(t, "fresh scrape of the same profile", got.Bio)
}

func TestIngestRow_AuditFieldsSurviveReingestion(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle":  "sparkyjoe",
		"website": "https://sparky.example",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	checked := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveWebsiteAudit(ctx, id, audit.Result{
		Score:     20,
		Verdict:   audit.VerdictWeakSite,
		Findings:  "No title tag",
		CheckedAt: checked,
	}))

	_, err = r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
		"handle": "sparkyjoe",
		"bio":    "re-scraped",
	}, lead.SourceInstagram))
	require.NoError(t, err)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.WebsiteScore)
	assert.Equal(t, 20, *got.WebsiteScore)
	assert.Equal(t, audit.VerdictWeakSite, got.WebsiteVerdict)
	require.NotNil(t, got.WebsiteCheckedAt)
	assert.Equal(t, checked, *got.WebsiteCheckedAt)
}

func TestIngestRow_ConcurrentSameIdentity(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.IngestRow(ctx, lead.SourceInstagram, lead.Normalize(lead.RawRow{
				"handle":  "sparkyjoe",
				"website": "https://sparky.example",
			}, lead.SourceInstagram))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.ListLeads(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://sparky.example", all[0].Website)
}

func TestIngestBatch_EmptyBatch(t *testing.T) {
	r, _ := newTestResolver(t)

	written, err := r.IngestBatch(context.Background(), lead.SourceManual, nil)
	require.NoError(t, err)
	assert.Zero(t, written)
}
