package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuditor() *Auditor {
	return New(Config{Timeout: 5 * time.Second, Delay: 0})
}

const goodHTML = `<!doctype html>
<html><head>
<title>Sparky Joe Electrical - Brunswick</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="description" content="Licensed electrician, same-day call-outs.">
</head><body>
<h1>Brunswick's trusted electrician</h1>
<p>Book a free quote today. Rated 4.9 from 120 reviews.</p>
<a href="tel:+61400000000">Call now</a>
<a href="https://wa.me/61400000000">WhatsApp us</a>
<a href="mailto:joe@sparky.example">Email</a>
</body></html>`

func TestAudit_EmptyURL(t *testing.T) {
	res := newTestAuditor().Audit(context.Background(), "  ")

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, VerdictNoWebsite, res.Verdict)
	assert.Equal(t, "No website listed.", res.Findings)
	assert.Nil(t, res.HTTPStatus)
	assert.Empty(t, res.FinalURL)
}

func TestAudit_WeakLinkHostNoFetch(t *testing.T) {
	a := newTestAuditor()

	for _, u := range []string{"https://linktr.ee/joe", "linktr.ee/joe", "https://shop.stan.store/joe"} {
		res := a.Audit(context.Background(), u)
		assert.Equal(t, 20, res.Score, u)
		assert.Equal(t, VerdictWeakLink, res.Verdict, u)
	}
}

func TestAudit_GoodSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "leadfinder")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(goodHTML))
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)

	assert.Equal(t, VerdictGoodSite, res.Verdict)
	assert.Equal(t, 100, res.Score)
	require.NotNil(t, res.HTTPStatus)
	assert.Equal(t, 200, *res.HTTPStatus)
	assert.Contains(t, res.Findings, "Has WhatsApp contact.")
	assert.Contains(t, res.Findings, "Has phone link.")
}

func TestAudit_BareWeakSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>hello</body></html>`))
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)

	// 50 - viewport 10 - title 6 - CTA 6 = 28.
	assert.Equal(t, 28, res.Score)
	assert.Equal(t, VerdictWeakSite, res.Verdict)
	assert.True(t, strings.HasPrefix(res.Findings, "No obvious contact links"), res.Findings)
}

func TestAudit_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)

	assert.Equal(t, 5, res.Score)
	assert.Equal(t, VerdictUnreachable, res.Verdict)
	assert.Equal(t, "HTTP error 404.", res.Findings)
	require.NotNil(t, res.HTTPStatus)
	assert.Equal(t, 404, *res.HTTPStatus)
}

func TestAudit_NetworkError(t *testing.T) {
	res := newTestAuditor().Audit(context.Background(), "http://127.0.0.1:1")

	assert.Equal(t, 5, res.Score)
	assert.Equal(t, VerdictUnreachable, res.Verdict)
	assert.Contains(t, res.Findings, "Could not fetch site")
}

func TestAudit_Parked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Coming Soon</h1></body></html>`))
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)

	assert.Equal(t, 10, res.Score)
	assert.Equal(t, VerdictParked, res.Verdict)
}

func TestAudit_NonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)

	assert.Equal(t, 45, res.Score)
	assert.Equal(t, VerdictBasicSite, res.Verdict)
	assert.Contains(t, res.Findings, "Non-HTML content-type: application/json")
}

func TestAudit_ScriptHeavy(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><head><title>Heavy Page Title</title></head><body>`)
	for i := 0; i < 40; i++ {
		b.WriteString(`<script src="x.js"></script>`)
	}
	b.WriteString(`</body></html>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	res := newTestAuditor().Audit(context.Background(), srv.URL)
	assert.Contains(t, res.Findings, "Very script-heavy (40 scripts).")
}

func TestAudit_Truncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>` + strings.Repeat("x", 5000) + `</body></html>`))
	}))
	defer srv.Close()

	a := New(Config{Timeout: 5 * time.Second, MaxBytes: 1000, Delay: 0})
	res := a.Audit(context.Background(), srv.URL)
	assert.Contains(t, res.Findings, "HTML is large/truncated")
}

func TestAudit_SchemeDefaulting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(goodHTML))
	}))
	defer srv.Close()

	// Bare host gets https:// which this test server won't serve; just
	// verify normalization itself.
	assert.Equal(t, "https://sparky.example", normalizeURL("sparky.example"))
	assert.Equal(t, srv.URL, normalizeURL(srv.URL))
}

func TestAuditAll_OrderAndResilience(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(goodHTML))
	}))
	defer srv.Close()

	a := newTestAuditor()
	outcomes := a.AuditAll(context.Background(), []Target{
		{ID: 1, URL: srv.URL},
		{ID: 2, URL: "http://127.0.0.1:1"}, // unreachable, must not abort
		{ID: 3, URL: ""},
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, int64(1), outcomes[0].ID)
	assert.Equal(t, VerdictGoodSite, outcomes[0].Result.Verdict)
	assert.Equal(t, VerdictUnreachable, outcomes[1].Result.Verdict)
	assert.Equal(t, VerdictNoWebsite, outcomes[2].Result.Verdict)
}

func TestAuditAll_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(Config{Timeout: time.Second, Delay: time.Hour})
	outcomes := a.AuditAll(ctx, []Target{{ID: 1, URL: "https://x.example"}})
	assert.Empty(t, outcomes)
}
