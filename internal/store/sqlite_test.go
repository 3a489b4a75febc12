package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/lead"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func intPtr(v int) *int { return &v }

func testLead(handle string) *lead.Lead {
	now := time.Now().UTC().Truncate(time.Second)
	return &lead.Lead{
		Source:     lead.SourceInstagram,
		Handle:     handle,
		ProfileURL: "https://instagram.com/" + handle,
		Status:     lead.DefaultStatus,
		Tags:       []string{},
		LastSeenAt: now,
		CreatedAt:  now,
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	l := testLead("sparkyjoe")
	l.Name = "Sparky Joe Electrical"
	l.Followers = intPtr(830)
	l.Score = intPtr(72)

	id, err := s.UpsertLead(ctx, l)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sparkyjoe", got.Handle)
	assert.Equal(t, "Sparky Joe Electrical", got.Name)
	require.NotNil(t, got.Followers)
	assert.Equal(t, 830, *got.Followers)
	require.NotNil(t, got.Score)
	assert.Equal(t, 72, *got.Score)
	assert.Nil(t, got.WebsiteScore)
	assert.Nil(t, got.WebsiteCheckedAt)
	assert.Equal(t, []string{}, got.Tags)

	byIdentity, err := s.GetLeadByIdentity(ctx, lead.SourceInstagram, "sparkyjoe")
	require.NoError(t, err)
	require.NotNil(t, byIdentity)
	assert.Equal(t, id, byIdentity.ID)
}

func TestSQLiteStore_GetLead_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetLead(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)

	byIdentity, err := s.GetLeadByIdentity(context.Background(), lead.SourceInstagram, "missing")
	require.NoError(t, err)
	assert.Nil(t, byIdentity)
}

func TestSQLiteStore_UpsertConflictUpdatesNotDuplicates(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testLead("sparkyjoe")
	id1, err := s.UpsertLead(ctx, first)
	require.NoError(t, err)

	second := testLead("sparkyjoe")
	second.Bio = "24/7 emergency call-outs"
	second.Followers = intPtr(900)
	id2, err := s.UpsertLead(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetLead(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "24/7 emergency call-outs", got.Bio)
	require.NotNil(t, got.Followers)
	assert.Equal(t, 900, *got.Followers)

	all, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_UpsertConflictPreservesCreatedAt(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testLead("sparkyjoe")
	first.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first.LastSeenAt = first.CreatedAt
	id, err := s.UpsertLead(ctx, first)
	require.NoError(t, err)

	second := testLead("sparkyjoe")
	_, err = s.UpsertLead(ctx, second)
	require.NoError(t, err)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)
	assert.True(t, got.LastSeenAt.After(first.CreatedAt))
}

func TestSQLiteStore_UpdateOperatorFields(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.UpsertLead(ctx, testLead("sparkyjoe"))
	require.NoError(t, err)

	status := "contacted"
	notes := "left a voicemail"
	tags := []string{"hot", "electrician"}
	got, err := s.UpdateOperatorFields(ctx, id, lead.OperatorPatch{
		Status: &status,
		Notes:  &notes,
		Tags:   &tags,
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "contacted", got.Status)
	assert.Equal(t, "left a voicemail", got.Notes)
	assert.Equal(t, tags, got.Tags)

	// Partial patch leaves the other operator fields alone.
	status2 := "replied"
	got, err = s.UpdateOperatorFields(ctx, id, lead.OperatorPatch{Status: &status2})
	require.NoError(t, err)
	assert.Equal(t, "replied", got.Status)
	assert.Equal(t, "left a voicemail", got.Notes)
	assert.Equal(t, tags, got.Tags)
}

func TestSQLiteStore_UpdateOperatorFields_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	status := "contacted"
	got, err := s.UpdateOperatorFields(context.Background(), 404, lead.OperatorPatch{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ListLeads_Filters(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testLead("sparkyjoe")
	a.Name = "Sparky Joe Electrical"
	a.Score = intPtr(80)
	_, err := s.UpsertLead(ctx, a)
	require.NoError(t, err)

	b := testLead("plainplumber")
	b.Score = intPtr(40)
	b.Status = "contacted"
	_, err = s.UpsertLead(ctx, b)
	require.NoError(t, err)

	c := testLead("unscored")
	c.Source = lead.SourceGoogleMaps
	_, err = s.UpsertLead(ctx, c)
	require.NoError(t, err)

	t.Run("query matches name substring", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{Query: "electrical"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sparkyjoe", got[0].Handle)
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{Status: "contacted"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "plainplumber", got[0].Handle)
	})

	t.Run("source filter", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{Source: lead.SourceGoogleMaps})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "unscored", got[0].Handle)
	})

	t.Run("min score excludes unscored", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{MinScore: intPtr(50)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sparkyjoe", got[0].Handle)
	})

	t.Run("ordering puts unscored last", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "sparkyjoe", got[0].Handle)
		assert.Equal(t, "plainplumber", got[1].Handle)
		assert.Equal(t, "unscored", got[2].Handle)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "plainplumber", got[0].Handle)
	})
}

func TestSQLiteStore_StatusCounts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, h := range []string{"a", "b", "c"} {
		_, err := s.UpsertLead(ctx, testLead(h))
		require.NoError(t, err)
	}
	contacted := testLead("d")
	contacted.Status = "contacted"
	_, err := s.UpsertLead(ctx, contacted)
	require.NoError(t, err)

	counts, err := s.StatusCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"new": 3, "contacted": 1}, counts)
}

func TestSQLiteStore_AuditRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	withSite := testLead("sparkyjoe")
	withSite.Website = "https://sparky.example"
	withSite.Score = intPtr(70)
	id, err := s.UpsertLead(ctx, withSite)
	require.NoError(t, err)

	_, err = s.UpsertLead(ctx, testLead("plainplumber"))
	require.NoError(t, err)

	candidates, err := s.LeadsNeedingAudit(ctx, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	// Scored lead comes first.
	assert.Equal(t, id, candidates[0].ID)
	assert.Equal(t, "https://sparky.example", candidates[0].Website)

	status := 200
	checked := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveWebsiteAudit(ctx, id, audit.Result{
		Score:      68,
		Verdict:    audit.VerdictGoodSite,
		Findings:   "Has meta description; Mentions reviews/testimonials",
		HTTPStatus: &status,
		FinalURL:   "https://sparky.example/",
		CheckedAt:  checked,
	}))

	candidates, err = s.LeadsNeedingAudit(ctx, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "plainplumber", candidates[0].Handle)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.WebsiteScore)
	assert.Equal(t, 68, *got.WebsiteScore)
	assert.Equal(t, audit.VerdictGoodSite, got.WebsiteVerdict)
	require.NotNil(t, got.WebsiteHTTPStatus)
	assert.Equal(t, 200, *got.WebsiteHTTPStatus)
	require.NotNil(t, got.WebsiteCheckedAt)
	assert.Equal(t, checked, *got.WebsiteCheckedAt)

	t.Run("filter by verdict and max website score", func(t *testing.T) {
		got, err := s.ListLeads(ctx, Filter{WebsiteVerdict: audit.VerdictGoodSite})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = s.ListLeads(ctx, Filter{MaxWebsiteScore: intPtr(50)})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSQLiteStore_SaveWebsiteAudit_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.SaveWebsiteAudit(context.Background(), 404, audit.Result{
		Verdict:   audit.VerdictNoWebsite,
		Findings:  "No website listed.",
		CheckedAt: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "audit-websites", map[string]any{"limit": 25})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "audit-websites", got.Kind)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, s.FinishRun(ctx, run.ID, RunStatusOK, ""))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusOK, got.Status)
	require.NotNil(t, got.EndedAt)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.FinishRun(ctx, "nope", RunStatusError, "boom")
	require.Error(t, err)
}
