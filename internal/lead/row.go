package lead

import (
	"fmt"
	"strconv"
	"strings"
)

// RawRow is one record as a source emits it: arbitrary-cased string keys,
// arbitrary scalar values. CSV, XLSX, and JSON imports arrive in this
// shape directly; the typed source rows below convert into it.
type RawRow = map[string]any

// Row is the canonical normalized input produced by Normalize. Numeric
// fields stay raw strings here; coercion to integers happens at merge
// time so "", "42" and "42.0" are all accepted.
type Row struct {
	Handle            string
	ProfileURL        string
	Name              string
	Bio               string
	Followers         string
	Location          string
	Website           string
	Phone             string
	Email             string
	RecentPostSnippet string
	SignalKeywords    string
	Score             string
	Reason            string
}

// profileMarkers are the social-domain substrings a generic `url` column
// must contain to be accepted as a profile URL, and the markers handles
// are derived from.
var profileMarkers = []string{"instagram.com/", "facebook.com/"}

// mapSources are sources without account handles; for these the profile
// URL (or failing that the business name) substitutes as the identity.
var mapSources = map[string]bool{
	"google_maps": true,
	"gmb":         true,
	"maps":        true,
	"local":       true,
}

// Normalize maps one raw row into the canonical field set, best effort.
// It never fails: missing or wrong-typed fields normalize to the empty
// string. A row that yields no usable handle after all fallbacks comes
// back with Handle == "" and must be skipped by the caller.
func Normalize(raw RawRow, source string) Row {
	src := strings.ToLower(strings.TrimSpace(source))

	// CSV headers vary in casing ("Phone" vs "phone"); fold keys first.
	m := make(map[string]any, len(raw))
	for k, v := range raw {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}

	handle := first(m, "handle", "username", "user", "page")
	handle = strings.TrimSpace(strings.TrimPrefix(handle, "@"))

	profileURL := first(m, "profile_url", "profile", "profilelink", "profile_link")
	if profileURL == "" {
		// Some exports use `url` as the profile URL; accept it only when
		// it looks like a known platform URL.
		if u := stringAt(m, "url"); containsAny(u, profileMarkers...) {
			profileURL = u
		}
	}

	if handle == "" && profileURL != "" {
		handle = handleFromProfileURL(profileURL)
	}

	if handle == "" && mapSources[src] {
		handle = profileURL
		if handle == "" {
			handle = stringAt(m, "name")
		}
	}

	return Row{
		Handle:            handle,
		ProfileURL:        profileURL,
		Name:              stringAt(m, "name"),
		Bio:               first(m, "bio", "description", "about"),
		Followers:         stringAt(m, "followers"),
		Location:          stringAt(m, "location"),
		Website:           first(m, "website", "website_url", "site"),
		Phone:             first(m, "phone", "phone_number", "tel", "mobile"),
		Email:             stringAt(m, "email"),
		RecentPostSnippet: first(m, "recent_post_snippet", "snippet", "caption", "post_text"),
		SignalKeywords:    stringAt(m, "signal_keywords_matched"),
		Score:             stringAt(m, "score"),
		Reason:            stringAt(m, "reason"),
	}
}

// handleFromProfileURL extracts the path segment following the first
// recognized social-domain marker, trimmed of query string and slashes,
// keeping only the first path segment.
func handleFromProfileURL(profileURL string) string {
	for _, marker := range profileMarkers {
		idx := strings.Index(profileURL, marker)
		if idx < 0 {
			continue
		}
		seg := profileURL[idx+len(marker):]
		seg, _, _ = strings.Cut(seg, "?")
		seg = strings.Trim(seg, "/")
		seg, _, _ = strings.Cut(seg, "/")
		return strings.TrimSpace(seg)
	}
	return ""
}

// first returns the first non-empty value among the given keys.
// Each fallback alias is only consulted when the preceding ones are empty.
func first(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringAt(m, k); s != "" {
			return s
		}
	}
	return ""
}

func stringAt(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SocialCommentRow is one commenter pulled from a chat/comments API,
// optionally enriched with profile details.
type SocialCommentRow struct {
	Username  string
	Name      string
	Bio       string
	Website   string
	Followers string
	Location  string
	Comment   string
	SignalTag string
}

// maxSnippetLen caps the stored comment snippet.
const maxSnippetLen = 240

// Raw converts the comment row into the normalizer's input shape.
func (r SocialCommentRow) Raw() RawRow {
	username := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(r.Username), "@"))
	snippet := strings.TrimSpace(r.Comment)
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	tag := r.SignalTag
	if tag == "" {
		tag = "ig_commenter"
	}
	return RawRow{
		"handle":                  username,
		"profile_url":             "https://www.instagram.com/" + username + "/",
		"name":                    r.Name,
		"bio":                     r.Bio,
		"website":                 r.Website,
		"followers":               r.Followers,
		"location":                r.Location,
		"recent_post_snippet":     snippet,
		"signal_keywords_matched": tag,
	}
}

// MapListingRow is one business scraped or fetched from a map-search
// source. Map listings have no account handle; the profile URL (or the
// business name) becomes the identity via the normalizer fallback.
type MapListingRow struct {
	Name       string
	ProfileURL string
	Website    string
	Phone      string
	Email      string
	Location   string
}

// Raw converts the map listing into the normalizer's input shape.
func (r MapListingRow) Raw() RawRow {
	return RawRow{
		"name":                    r.Name,
		"profile_url":             r.ProfileURL,
		"website":                 r.Website,
		"phone":                   r.Phone,
		"email":                   r.Email,
		"location":                r.Location,
		"signal_keywords_matched": "google_maps",
	}
}
