// Package enrich augments leads with contact details mined from their
// websites. Currently that means a best-effort email hunt over the
// homepage HTML.
package enrich

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes caps how much of a page is scanned for addresses.
const maxBodyBytes = 200_000

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// skipEmailDomains are addresses that show up in markup but never belong
// to the business (schema boilerplate, error-tracking SDKs, avatars).
var skipEmailDomains = []string{
	"example.com",
	"example.org",
	"sentry.io",
	"w3.org",
	"schema.org",
	"gravatar.com",
}

// imageSuffixes filter out matches like "logo@2x.png" that the regex
// mistakes for addresses.
var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Fetcher finds contact emails on lead websites.
type Fetcher struct {
	client  *http.Client
	workers int
}

// NewFetcher builds a Fetcher with the given timeout and pool size.
func NewFetcher(timeout time.Duration, workers int) *Fetcher {
	if workers <= 0 {
		workers = 4
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		workers: workers,
	}
}

// EmailFromSite fetches the page at url and returns the first plausible
// email address, or "" when none is found. Fetch failures are not
// errors; enrichment is opportunistic.
func (f *Fetcher) EmailFromSite(ctx context.Context, url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "leadfinder/1.0 (+local dashboard)")

	resp, err := f.client.Do(req)
	if err != nil {
		zap.L().Debug("email enrichment fetch failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return FirstEmail(string(body))
}

// FirstEmail returns the first plausible email in the text, skipping
// boilerplate domains and image filenames.
func FirstEmail(text string) string {
	for _, match := range emailRe.FindAllString(text, 20) {
		if plausibleEmail(match) {
			return match
		}
	}
	return ""
}

func plausibleEmail(addr string) bool {
	lower := strings.ToLower(addr)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	_, domain, ok := strings.Cut(lower, "@")
	if !ok {
		return false
	}
	for _, skip := range skipEmailDomains {
		if domain == skip || strings.HasSuffix(domain, "."+skip) {
			return false
		}
	}
	return true
}

// Result pairs an input index with the email found for it.
type Result struct {
	Index int
	Email string
}

// EmailsFromSites runs EmailFromSite over the urls with a bounded worker
// pool. The returned slice is index-aligned with the input; sites without
// a findable email map to "".
func (f *Fetcher) EmailsFromSites(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, url := range urls {
		if strings.TrimSpace(url) == "" {
			continue
		}
		g.Go(func() error {
			out[i] = f.EmailFromSite(ctx, url)
			return nil
		})
	}
	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()
	return out
}
