package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/ingest"
	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/scoring"
	"github.com/galzu/leadfinder/internal/store"
)

func newTestAPI(t *testing.T) (*apiServer, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	api := &apiServer{
		store:      s,
		resolver:   ingest.NewResolver(s, scoring.Score),
		auditor:    audit.New(audit.Config{Delay: time.Millisecond}),
		auditLimit: 25,
		jobCtx:     context.Background(),
	}
	return api, s
}

func doRequest(api *apiServer, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	api.router().ServeHTTP(rr, req)
	return rr
}

func TestServe_Health(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
}

func TestServe_ImportThenList(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodPost, "/api/import/leads-json", map[string]any{
		"source": "instagram",
		"rows": []map[string]any{
			{"handle": "sparkyjoe", "bio": "Electrician. DM to book."},
			{"bio": "no handle, skipped"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var importResp map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &importResp))
	assert.Equal(t, 2, importResp["received"])
	assert.Equal(t, 1, importResp["written"])

	rr = doRequest(api, http.MethodGet, "/api/leads?source=instagram", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listResp struct {
		Leads []lead.Lead `json:"leads"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)
	assert.Equal(t, "sparkyjoe", listResp.Leads[0].Handle)
	assert.NotNil(t, listResp.Leads[0].Score)
}

func TestServe_ImportRequiresRows(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodPost, "/api/import/leads-json", map[string]any{"source": "manual"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_ListLeads_BadMinScore(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodGet, "/api/leads?min_score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_UpdateLead(t *testing.T) {
	api, s := newTestAPI(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := s.UpsertLead(ctx, &lead.Lead{
		Source: "instagram", Handle: "sparkyjoe", Status: "new",
		Tags: []string{}, LastSeenAt: now, CreatedAt: now,
	})
	require.NoError(t, err)

	rr := doRequest(api, http.MethodPatch, "/api/leads/"+strconv.FormatInt(id, 10), map[string]any{
		"status": "contacted",
		"tags":   []string{"hot"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var got lead.Lead
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "contacted", got.Status)
	assert.Equal(t, []string{"hot"}, got.Tags)
}

func TestServe_UpdateLead_NotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodPatch, "/api/leads/999", map[string]any{"status": "contacted"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_UpdateLead_EmptyPatch(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodPatch, "/api/leads/1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_Stats(t *testing.T) {
	api, _ := newTestAPI(t)

	doRequest(api, http.MethodPost, "/api/import/leads-json", map[string]any{
		"rows": []map[string]any{{"handle": "a"}, {"handle": "b"}},
	})

	rr := doRequest(api, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		ByStatus map[string]int `json:"by_status"`
		Total    int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.ByStatus["new"])
}

func TestServe_AuditRunLifecycle(t *testing.T) {
	api, s := newTestAPI(t)

	rr := doRequest(api, http.MethodPost, "/api/runs/audit-websites", map[string]any{"limit": 5})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["run_id"])
	assert.Equal(t, store.RunStatusRunning, resp["status"])

	// Empty store: the background sweep finishes immediately.
	require.Eventually(t, func() bool {
		run, err := s.GetRun(context.Background(), resp["run_id"])
		return err == nil && run != nil && run.Status == store.RunStatusOK
	}, 2*time.Second, 10*time.Millisecond)

	rr = doRequest(api, http.MethodGet, "/api/runs/"+resp["run_id"], nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServe_GetRun_NotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := doRequest(api, http.MethodGet, "/api/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
