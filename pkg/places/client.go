// Package places is a minimal Google Places API (new) client covering
// the text-search surface used to source local-business leads.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask limits the response to the fields lead sourcing needs.
const fieldMask = "places.displayName,places.formattedAddress,places.websiteUri,places.nationalPhoneNumber,places.googleMapsUri,nextPageToken"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query string, maxResults int) ([]Place, error)
}

// Place is one business returned by text search.
type Place struct {
	DisplayName         DisplayName `json:"displayName"`
	FormattedAddress    string      `json:"formattedAddress"`
	WebsiteURI          string      `json:"websiteUri"`
	NationalPhoneNumber string      `json:"nationalPhoneNumber"`
	GoogleMapsURI       string      `json:"googleMapsUri"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type textSearchRequest struct {
	TextQuery string `json:"textQuery"`
	PageToken string `json:"pageToken,omitempty"`
}

type textSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// TextSearch runs a text query and follows page tokens until maxResults
// places are collected or results run out. maxResults <= 0 means one page.
func (c *httpClient) TextSearch(ctx context.Context, query string, maxResults int) ([]Place, error) {
	var out []Place
	pageToken := ""
	for {
		page, err := c.searchPage(ctx, query, pageToken)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Places...)
		if maxResults > 0 && len(out) >= maxResults {
			return out[:maxResults], nil
		}
		if page.NextPageToken == "" || maxResults <= 0 {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *httpClient) searchPage(ctx context.Context, query, pageToken string) (*textSearchResponse, error) {
	body, err := json.Marshal(textSearchRequest{TextQuery: query, PageToken: pageToken})
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result textSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	return &result, nil
}
