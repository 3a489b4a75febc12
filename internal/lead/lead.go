// Package lead defines the canonical lead record, the source-row
// normalizer, and the field-level merge policy applied on re-ingestion.
package lead

import (
	"time"
)

// Known source tags. Any string is accepted as a source; these are the
// ones the CLI produces itself.
const (
	SourceInstagram  = "instagram"
	SourceFacebook   = "facebook"
	SourceGoogleMaps = "google_maps"
	SourceManual     = "manual"
)

// DefaultStatus is the workflow state assigned to newly created leads.
const DefaultStatus = "new"

// Lead is the canonical entity. (Source, Handle) is the only stable
// identity: re-ingesting the same pair updates, never duplicates.
//
// Pointer-typed numeric fields distinguish unset from zero; that
// distinction survives into ordering and filtering.
type Lead struct {
	ID         int64  `json:"id" db:"id"`
	Source     string `json:"source" db:"source"`
	Handle     string `json:"handle" db:"handle"`
	ProfileURL string `json:"profile_url,omitempty" db:"profile_url"`

	Name              string `json:"name,omitempty" db:"name"`
	Bio               string `json:"bio,omitempty" db:"bio"`
	Followers         *int   `json:"followers,omitempty" db:"followers"`
	Location          string `json:"location,omitempty" db:"location"`
	Website           string `json:"website,omitempty" db:"website"`
	Phone             string `json:"phone,omitempty" db:"phone"`
	Email             string `json:"email,omitempty" db:"email"`
	RecentPostSnippet string `json:"recent_post_snippet,omitempty" db:"recent_post_snippet"`
	SignalKeywords    string `json:"signal_keywords_matched,omitempty" db:"signal_keywords_matched"`

	Score  *int   `json:"score,omitempty" db:"score"`
	Reason string `json:"reason,omitempty" db:"reason"`

	WebsiteScore      *int       `json:"website_score,omitempty" db:"website_score"`
	WebsiteVerdict    string     `json:"website_verdict,omitempty" db:"website_verdict"`
	WebsiteFindings   string     `json:"website_findings,omitempty" db:"website_findings"`
	WebsiteCheckedAt  *time.Time `json:"website_checked_at,omitempty" db:"website_checked_at"`
	WebsiteFinalURL   string     `json:"website_final_url,omitempty" db:"website_final_url"`
	WebsiteHTTPStatus *int       `json:"website_http_status,omitempty" db:"website_http_status"`

	// Operator-owned: never touched by ingestion merge.
	Status string   `json:"status" db:"status"`
	Notes  string   `json:"notes" db:"notes"`
	Tags   []string `json:"tags" db:"tags"`

	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Identity returns the (source, handle) pair as a single key, usable for
// per-identity serialization of merges.
func (l *Lead) Identity() string {
	return l.Source + "\x00" + l.Handle
}

// OperatorPatch carries the only fields an operator edit may change.
// Nil members are left untouched.
type OperatorPatch struct {
	Status *string   `json:"status,omitempty"`
	Notes  *string   `json:"notes,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p OperatorPatch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.Tags == nil
}
