// Package audit fetches candidate websites and classifies their quality
// into a 0-100 score, a verdict label, and actionable findings. It never
// returns an error for a bad site: every failure mode degrades into a
// complete, well-typed result.
package audit

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

// Verdict labels, in decision order.
const (
	VerdictNoWebsite   = "no_website"
	VerdictWeakLink    = "weak_link_in_bio"
	VerdictUnreachable = "unreachable"
	VerdictParked      = "parked_or_placeholder"
	VerdictWeakSite    = "weak_site"
	VerdictBasicSite   = "basic_site"
	VerdictGoodSite    = "good_site"
)

// Config holds the immutable parameters for one audit pass.
type Config struct {
	Timeout  time.Duration // per-request timeout
	MaxBytes int           // byte cap per page; content beyond it is discarded
	Delay    time.Duration // inter-request politeness delay in batch mode
}

// DefaultConfig mirrors the defaults of an operator-triggered sweep.
func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second, MaxBytes: 450_000, Delay: time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// Result is the complete outcome of auditing one URL.
type Result struct {
	Score      int       `json:"website_score"`
	Verdict    string    `json:"website_verdict"`
	Findings   string    `json:"website_findings"`
	HTTPStatus *int      `json:"website_http_status,omitempty"`
	FinalURL   string    `json:"website_final_url"`
	CheckedAt  time.Time `json:"website_checked_at"`
}

// Target pairs a lead identity with the URL to audit.
type Target struct {
	ID  int64
	URL string
}

// Outcome is one batch result, in input order.
type Outcome struct {
	ID     int64
	Result Result
}

// Link-in-bio and hosted booking-page hosts. A website on one of these is
// a weak substitute for an owned site; no fetch is needed to know that.
var weakLinkHosts = []string{
	"linktr.ee",
	"carrd.co",
	"notion.site",
	"beacons.ai",
	"taplink.cc",
	"stan.store",
	"gumroad.com",
	"calendly.com",
}

var parkedPhrases = []string{
	"domain parked",
	"this domain is parked",
	"buy this domain",
	"this website is coming soon",
	"coming soon",
	"under construction",
	"site is not configured",
	"account suspended",
}

var bookingKeywords = []string{"book", "booking", "quote", "estimate", "call", "whatsapp", "appointment", "schedule"}

var trustKeywords = []string{"review", "reviews", "testimonial", "testimonials", "before and after", "before & after", "rated"}

var (
	schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+\-.]*://`)
	titleRe  = regexp.MustCompile(`<title>\s*[^<]{3,}</title>`)
	h1Re     = regexp.MustCompile(`<h1[^>]*>\s*[^<]{2,}`)
	scriptRe = regexp.MustCompile(`<script\b`)
)

// Auditor runs website audits under one Config.
type Auditor struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	nowFn   func() time.Time
}

// New creates an Auditor. Zero config values fall back to defaults.
func New(cfg Config) *Auditor {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Auditor{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		nowFn:   time.Now,
	}
}

// Audit classifies one URL. It never returns an error; network and HTTP
// failures become the unreachable verdict with a diagnostic finding.
func (a *Auditor) Audit(ctx context.Context, rawURL string) Result {
	checkedAt := a.nowFn().UTC()
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Result{
			Score:     0,
			Verdict:   VerdictNoWebsite,
			Findings:  "No website listed.",
			CheckedAt: checkedAt,
		}
	}

	norm := normalizeURL(raw)
	if isWeakLinkHost(hostOf(norm)) {
		return Result{
			Score:     20,
			Verdict:   VerdictWeakLink,
			Findings:  "Link-in-bio page (Linktree/Carrd/Notion/etc). Strong upgrade opportunity.",
			FinalURL:  norm,
			CheckedAt: checkedAt,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, norm, nil)
	if err != nil {
		return Result{
			Score:     5,
			Verdict:   VerdictUnreachable,
			Findings:  fmt.Sprintf("Could not fetch site (%s).", shortErr(err)),
			FinalURL:  norm,
			CheckedAt: checkedAt,
		}
	}
	req.Header.Set("User-Agent", "leadfinder/1.0 (+local dashboard)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{
			Score:     5,
			Verdict:   VerdictUnreachable,
			Findings:  fmt.Sprintf("Could not fetch site (%s).", shortErr(err)),
			FinalURL:  norm,
			CheckedAt: checkedAt,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		status := resp.StatusCode
		return Result{
			Score:      5,
			Verdict:    VerdictUnreachable,
			Findings:   fmt.Sprintf("HTTP error %d.", status),
			HTTPStatus: &status,
			FinalURL:   norm,
			CheckedAt:  checkedAt,
		}
	}

	status := resp.StatusCode
	finalURL := norm
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	ctype := strings.ToLower(resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(a.cfg.MaxBytes)+1))
	if err != nil {
		return Result{
			Score:     5,
			Verdict:   VerdictUnreachable,
			Findings:  fmt.Sprintf("Could not fetch site (%s).", shortErr(err)),
			FinalURL:  norm,
			CheckedAt: checkedAt,
		}
	}

	// Non-HTML sites are usually still workable but harder to judge.
	if !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "application/xhtml") {
		label := ctype
		if label == "" {
			label = "unknown"
		}
		return Result{
			Score:      45,
			Verdict:    VerdictBasicSite,
			Findings:   "Non-HTML content-type: " + label,
			HTTPStatus: &status,
			FinalURL:   finalURL,
			CheckedAt:  checkedAt,
		}
	}

	truncated := len(data) > a.cfg.MaxBytes
	if truncated {
		data = data[:a.cfg.MaxBytes]
	}
	html := strings.ToLower(decodePermissive(data, ctype))

	if containsAnyOf(html, parkedPhrases) {
		return Result{
			Score:      10,
			Verdict:    VerdictParked,
			Findings:   "Looks parked/placeholder/coming-soon.",
			HTTPStatus: &status,
			FinalURL:   finalURL,
			CheckedAt:  checkedAt,
		}
	}

	score := 50
	var findings []string

	hasViewport := strings.Contains(html, `name="viewport"`) || strings.Contains(html, `name='viewport'`)
	if hasViewport {
		score += 10
		findings = append(findings, "Has mobile viewport meta.")
	} else {
		score -= 10
		findings = append(findings, "Missing mobile viewport meta (mobile UX risk).")
	}

	if titleRe.MatchString(html) {
		score += 5
	} else {
		score -= 6
		findings = append(findings, "Missing/empty <title>.")
	}

	hasMetaDesc := strings.Contains(html, `name="description"`) || strings.Contains(html, `name='description'`)
	if hasMetaDesc {
		score += 5
	} else {
		findings = append(findings, "Missing meta description (SEO baseline).")
	}

	if h1Re.MatchString(html) {
		score += 5
	} else {
		findings = append(findings, "Missing/weak H1 (clarity).")
	}

	hasTel := strings.Contains(html, `href="tel:`) || strings.Contains(html, `href='tel:`)
	hasMail := strings.Contains(html, `href="mailto:`) || strings.Contains(html, `href='mailto:`)
	hasWhatsapp := strings.Contains(html, "wa.me/") || strings.Contains(html, "api.whatsapp.com") || strings.Contains(html, "whatsapp")
	if hasWhatsapp {
		score += 10
		findings = append(findings, "Has WhatsApp contact.")
	}
	if hasTel {
		score += 8
		findings = append(findings, "Has phone link.")
	}
	if hasMail {
		score += 4
	}

	if containsAnyOf(html, bookingKeywords) {
		score += 6
	} else {
		score -= 6
		findings = append(findings, "No obvious booking/quote CTA language.")
	}

	if containsAnyOf(html, trustKeywords) {
		score += 6
		findings = append(findings, "Has trust signals (reviews/testimonials).")
	} else {
		findings = append(findings, "Weak trust signals (no clear reviews/testimonials found).")
	}

	scripts := len(scriptRe.FindAllStringIndex(html, -1))
	switch {
	case scripts >= 35:
		score -= 8
		findings = append(findings, fmt.Sprintf("Very script-heavy (%d scripts).", scripts))
	case scripts >= 20:
		score -= 4
		findings = append(findings, fmt.Sprintf("Somewhat script-heavy (%d scripts).", scripts))
	}

	if truncated {
		score -= 6
		findings = append(findings, "HTML is large/truncated (page weight risk).")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	verdict := VerdictGoodSite
	switch {
	case score <= 35:
		verdict = VerdictWeakSite
	case score <= 65:
		verdict = VerdictBasicSite
	}

	// Keep findings short and actionable.
	if len(findings) > 8 {
		findings = findings[:8]
	}
	if (verdict == VerdictWeakSite || verdict == VerdictBasicSite) && !hasTel && !hasWhatsapp && !hasMail {
		findings = append([]string{"No obvious contact links (phone/WhatsApp/email)."}, findings...)
	}

	return Result{
		Score:      score,
		Verdict:    verdict,
		Findings:   strings.Join(findings, "; "),
		HTTPStatus: &status,
		FinalURL:   finalURL,
		CheckedAt:  checkedAt,
	}
}

// AuditAll processes targets strictly sequentially with the configured
// inter-request delay. One unreachable site never aborts the batch;
// results come back in input order.
func (a *Auditor) AuditAll(ctx context.Context, targets []Target) []Outcome {
	log := zap.L().With(zap.String("component", "audit"))
	outcomes := make([]Outcome, 0, len(targets))
	for _, t := range targets {
		if err := a.limiter.Wait(ctx); err != nil {
			log.Warn("audit batch stopped", zap.Error(err))
			break
		}
		res := a.Audit(ctx, t.URL)
		log.Debug("audited website",
			zap.Int64("lead_id", t.ID),
			zap.String("verdict", res.Verdict),
			zap.Int("score", res.Score),
		)
		outcomes = append(outcomes, Outcome{ID: t.ID, Result: res})
	}
	return outcomes
}

// normalizeURL defaults a bare domain to an https:// scheme.
func normalizeURL(raw string) string {
	if !schemeRe.MatchString(raw) {
		return "https://" + raw
	}
	return raw
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// isWeakLinkHost matches exact hosts and their subdomains.
func isWeakLinkHost(host string) bool {
	for _, h := range weakLinkHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// decodePermissive converts the fetched bytes to a string, honoring a
// declared charset when one is present and decodable, and falling back to
// the raw bytes otherwise. ASCII markup survives either way.
func decodePermissive(data []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
			if enc, err := htmlindex.Get(cs); err == nil {
				if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
					return string(decoded)
				}
			}
		}
	}
	return string(data)
}

func containsAnyOf(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// shortErr truncates an error's description so findings stay readable.
func shortErr(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
