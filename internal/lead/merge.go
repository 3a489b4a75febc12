package lead

import (
	"strconv"
	"strings"
	"time"
)

// Policy says what happens to one field when a new observation merges
// into an existing lead.
type Policy int

const (
	// AlwaysOverwrite: the incoming value wins even when blank. These
	// fields reflect the most recent observation of a mutable profile.
	AlwaysOverwrite Policy = iota
	// KeepIfNewNonEmpty: the incoming value wins only when non-empty.
	// These fields are enriched over time and must never regress to blank.
	KeepIfNewNonEmpty
	// OperatorOnly: never touched by ingestion; only a direct operator
	// edit may change them.
	OperatorOnly
)

// fieldRule binds a field name to its merge policy and the assignment
// implementing it. Rules are ordered; Merge applies them in order.
type fieldRule struct {
	name   string
	policy Policy
	apply  func(dst *Lead, src *Lead)
}

// mergeRules is the declarative per-field merge table. This is the single
// place reconciliation behavior lives; keep it in sync with the Lead type.
var mergeRules = []fieldRule{
	{"profile_url", KeepIfNewNonEmpty, func(dst, src *Lead) {
		if src.ProfileURL != "" {
			dst.ProfileURL = src.ProfileURL
		}
	}},
	{"name", AlwaysOverwrite, func(dst, src *Lead) { dst.Name = src.Name }},
	{"bio", AlwaysOverwrite, func(dst, src *Lead) { dst.Bio = src.Bio }},
	{"followers", AlwaysOverwrite, func(dst, src *Lead) { dst.Followers = src.Followers }},
	{"location", AlwaysOverwrite, func(dst, src *Lead) { dst.Location = src.Location }},
	{"website", KeepIfNewNonEmpty, func(dst, src *Lead) {
		if src.Website != "" {
			dst.Website = src.Website
		}
	}},
	{"phone", KeepIfNewNonEmpty, func(dst, src *Lead) {
		if src.Phone != "" {
			dst.Phone = src.Phone
		}
	}},
	{"email", KeepIfNewNonEmpty, func(dst, src *Lead) {
		if src.Email != "" {
			dst.Email = src.Email
		}
	}},
	{"recent_post_snippet", AlwaysOverwrite, func(dst, src *Lead) { dst.RecentPostSnippet = src.RecentPostSnippet }},
	{"signal_keywords_matched", AlwaysOverwrite, func(dst, src *Lead) { dst.SignalKeywords = src.SignalKeywords }},
	{"score", AlwaysOverwrite, func(dst, src *Lead) { dst.Score = src.Score }},
	{"reason", AlwaysOverwrite, func(dst, src *Lead) { dst.Reason = src.Reason }},
	{"status", OperatorOnly, nil},
	{"notes", OperatorOnly, nil},
	{"tags", OperatorOnly, nil},
}

// PolicyFor returns the merge policy for a field, defaulting to
// AlwaysOverwrite for fields without an explicit rule.
func PolicyFor(field string) Policy {
	for _, r := range mergeRules {
		if r.name == field {
			return r.policy
		}
	}
	return AlwaysOverwrite
}

// Merge folds a new observation into an existing lead under the per-field
// policy table. Operator-owned fields are untouched, created_at is
// preserved, last_seen_at is set to now.
func Merge(existing *Lead, incoming *Lead, now time.Time) {
	for _, r := range mergeRules {
		if r.policy == OperatorOnly {
			continue
		}
		r.apply(existing, incoming)
	}
	existing.LastSeenAt = now
}

// New builds a lead from a first observation: created_at and last_seen_at
// are both now, operator fields get their defaults.
func New(source string, row Row, now time.Time) Lead {
	return Lead{
		Source:            source,
		Handle:            row.Handle,
		ProfileURL:        strings.TrimSpace(row.ProfileURL),
		Name:              strings.TrimSpace(row.Name),
		Bio:               strings.TrimSpace(row.Bio),
		Followers:         ToInt(row.Followers),
		Location:          strings.TrimSpace(row.Location),
		Website:           strings.TrimSpace(row.Website),
		Phone:             strings.TrimSpace(row.Phone),
		Email:             strings.TrimSpace(row.Email),
		RecentPostSnippet: strings.TrimSpace(row.RecentPostSnippet),
		SignalKeywords:    strings.TrimSpace(row.SignalKeywords),
		Score:             ToInt(row.Score),
		Reason:            strings.TrimSpace(row.Reason),
		Status:            DefaultStatus,
		Notes:             "",
		Tags:              []string{},
		LastSeenAt:        now,
		CreatedAt:         now,
	}
}

// ApplyOperatorPatch applies a restricted operator edit. Only status,
// notes, and tags can change through this path.
func ApplyOperatorPatch(l *Lead, patch OperatorPatch) {
	if patch.Status != nil {
		l.Status = *patch.Status
	}
	if patch.Notes != nil {
		l.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		l.Tags = tags
	}
}

// ToInt coerces a value destined for an integer column. Integers,
// floats, and numeric strings (including float strings) are accepted;
// empty or non-numeric input normalizes to unset, never zero.
func ToInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		i := int(f)
		return &i
	default:
		return nil
	}
}
