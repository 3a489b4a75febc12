// Package scoring implements the fast-close lead quality classifier: a
// weighted, additive heuristic over free-text and structured signals.
//
// The target segment: owner-operators who decide alone, already value
// calls/messages/bookings, and run on a weak or missing website. Builders
// (devs/agencies/makers) and committee-driven buyers rank down.
package scoring

import (
	"regexp"
	"strings"

	"github.com/galzu/leadfinder/internal/lead"
)

// Result is the transient outcome of scoring one row. Reasons are ordered
// by rule firing order, each prefixed with its category tag.
type Result struct {
	Score   int
	Reasons []string
}

// Func is the scoring invocation point. Callers may substitute an
// alternate implementation with the same signature.
type Func func(row lead.Row) Result

var tokenRe = regexp.MustCompile(`[a-z0-9@#.\-+]+`)

// Strong "buy now" language: optimize for closing in days, not weeks.
var bookingPhrases = []string{
	"taking new clients",
	"available this week",
	"dm to book",
	"dm to schedule",
	"book a job",
	"book now",
	"free quote",
	"get a quote",
	"estimate",
	"same day",
	"next day",
	"emergency",
	"call",
	"whatsapp",
	"text me",
	"message me",
	"appointment",
	"booking",
}

var painPhrases = []string{
	"lost leads",
	"missing leads",
	"missed calls",
	"too many dms",
	"need more calls",
	"need more leads",
	"need more bookings",
	"need a website",
	"my website is old",
	"website is outdated",
	"link in bio",
}

type weightedToken struct {
	token  string
	points int
}

// Core local services: heavy weighting. Order fixes reason order.
var serviceTokens = []weightedToken{
	{"electrician", 32},
	{"electrical", 22},
	{"plumber", 32},
	{"plumbing", 22},
	{"handyman", 32},
	{"handy-man", 32},
	{"carpenter", 30},
	{"carpentry", 20},
	{"gardener", 30},
	{"gardening", 20},
	{"painter", 18},
	{"installer", 16},
	{"hvac", 18},
	{"roofing", 14},
	{"contractor", 12},
	{"landscaper", 16},
	{"landscaping", 12},
	{"cleaner", 12},
	{"cleaning", 10},
	{"flooring", 10},
	{"tiler", 10},
	{"locksmith", 12},
	{"mechanic", 12},
}

// Secondary: solo sellers who book calls/messages.
var soloSellerTokens = []weightedToken{
	{"coach", 16},
	{"consultant", 14},
	{"therapist", 14},
	{"trainer", 12},
	{"mentor", 10},
	{"advisor", 10},
	{"copywriter", 8},
	{"designer", 4}, // light: many designers DIY
}

var ownerPhrases = []string{
	"owner", "owneroperator", "selfemployed", "self-employed",
	"solo", "smallbusiness", "small business",
}

// Hosts that are a link-in-bio page rather than an owned website.
var weakHosts = []string{
	"linktr.ee", "carrd.co", "notion.site", "beacons.ai", "taplink.cc", "stan.store",
}

// "Website" columns sometimes hold an IG/FB/Maps link. Treat as weak.
var weakishExtra = []string{
	"instagram.com", "facebook.com", "tiktok.com", "maps.google.", "g.page", "goo.gl/maps",
}

// Down-rank: builders/agencies/makers. They DIY or want long cycles.
var negativeTokens = []weightedToken{
	{"developer", -22},
	{"engineer", -18},
	{"software", -14},
	{"github", -22},
	{"agency", -16},
	{"webdev", -14},
	{"freelance", -6},
	{"forhire", -10},
	{"buildinginpublic", -14},
	{"buildinpublic", -14},
	{"webflow", -16},
	{"wordpress", -10},
	{"wix", -10},
	{"squarespace", -10},
	{"framer", -12},
	{"bubble", -12},
	{"nocode", -12},
	{"no-code", -12},
	{"indiehackers", -14},
	{"indiehacker", -14},
	{"growthhacker", -14},
	{"prompt", -10},
}

// Committees / corporate titles / proposal culture.
var committeePhrases = []string{
	"marketing team",
	"head of",
	"director",
	"vp ",
	"cmo",
	"manager",
	"procurement",
	"rfp",
	"enterprise",
	"stakeholders",
	"proposal",
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Score is a pure function from a normalized row to a 0-100 fit score
// plus ranked reason codes. Deterministic given identical input; no I/O.
func Score(row lead.Row) Result {
	text := strings.TrimSpace(strings.Join([]string{
		row.Name, row.Bio, row.Location, row.Website, row.Phone,
		row.RecentPostSnippet, row.SignalKeywords, row.ProfileURL,
	}, " "))
	textL := strings.ToLower(text)

	toks := make(map[string]bool)
	for _, t := range tokenRe.FindAllString(textL, -1) {
		toks[t] = true
	}

	var reasons []string
	score := 0

	if matched := phraseMatches(textL, bookingPhrases); len(matched) > 0 {
		score += min(44, 14+6*min(5, len(matched)))
		reasons = append(reasons, "intent:"+strings.Join(firstN(matched, 5), ", "))
	}

	if matched := phraseMatches(textL, painPhrases); len(matched) > 0 {
		score += min(18, 8+3*min(4, len(matched)))
		reasons = append(reasons, "pain:"+strings.Join(firstN(matched, 4), ", "))
	}

	hasLocalService := false
	for _, wt := range serviceTokens {
		if toks[wt.token] {
			score += wt.points
			reasons = append(reasons, "svc:"+wt.token)
			hasLocalService = true
		}
	}

	for _, wt := range soloSellerTokens {
		if toks[wt.token] {
			score += wt.points
			reasons = append(reasons, "role:"+wt.token)
		}
	}

	// Owner-operator signals: decides alone, minimal committee risk.
	if containsAny(textL, ownerPhrases) || toks["owner"] {
		score += 8
		reasons = append(reasons, "decision:solo")
	}

	// Website state: none | weak | strong. No/weak website is the best
	// fit for the offer, so it boosts rather than penalizes.
	websiteState := "unknown"
	website := strings.TrimSpace(row.Website)
	if website == "" {
		if containsAny(textL, []string{"whatsapp", "call", "dm", "book", "quote"}) {
			score += 16
			reasons = append(reasons, "no_website_but_contact")
		} else {
			score += 10
			reasons = append(reasons, "no_website")
		}
		websiteState = "none"
	} else {
		wl := strings.ToLower(website)
		weakish := append(append([]string{}, weakHosts...), weakishExtra...)
		if containsAny(wl, weakish) {
			score += 16
			reasons = append(reasons, "weak_link_in_bio")
			websiteState = "weak"
		} else {
			score += 3
			reasons = append(reasons, "has_website")
			websiteState = "strong"
		}
	}

	// Heavy compounding weight: local service provider with weak/no web
	// presence is the highest-probability close-fast segment.
	if hasLocalService && (websiteState == "none" || websiteState == "weak") {
		if websiteState == "none" {
			score += 22
		} else {
			score += 18
		}
		reasons = append(reasons, "fit:local_service_weak_web")
	}

	// Contact channel boosts, each independently additive.
	if toks["whatsapp"] || strings.Contains(textL, "wa.me") {
		score += 18
		reasons = append(reasons, "contact:whatsapp")
	}
	if strings.TrimSpace(row.Phone) != "" {
		score += 14
		reasons = append(reasons, "contact:phone")
	}
	if strings.Contains(textL, "tel:") {
		score += 8
		reasons = append(reasons, "contact:phone_link")
	}
	if emailRe.MatchString(text) {
		score += 6
		reasons = append(reasons, "contact:email")
	}

	for _, wt := range negativeTokens {
		if toks[wt.token] {
			score += wt.points
			reasons = append(reasons, "neg:"+wt.token)
		}
	}

	if matched := phraseMatches(textL, committeePhrases); len(matched) > 0 {
		score -= min(26, 12+4*min(4, len(matched)))
		reasons = append(reasons, "neg:committee")
	}

	return Result{Score: clamp(score), Reasons: reasons}
}

func phraseMatches(text string, phrases []string) []string {
	var matched []string
	for _, p := range phrases {
		if strings.Contains(text, p) {
			matched = append(matched, p)
		}
	}
	return matched
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
