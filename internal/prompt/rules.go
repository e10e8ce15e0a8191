// Package prompt holds the ordered rule tables that map free-text feature
// requests to entity names, roles, artifact categories and naming choices.
// Every function here is pure: the same text always yields the same answer.
package prompt

import (
	"regexp"
	"strings"
)

// Rule yields Tag when any of its patterns matches at a word start of the
// lower-cased prompt.
type Rule struct {
	Tag string
	re  *regexp.Regexp
}

// NewRule compiles patterns into a rule. Patterns are regexp fragments
// anchored at a word start, so "complaint" also matches "complaints". A
// pattern that must not run into a longer word ends in \b.
func NewRule(tag string, patterns ...string) Rule {
	return Rule{Tag: tag, re: regexp.MustCompile(`\b(?:` + strings.Join(patterns, "|") + `)`)}
}

func (r Rule) Match(lower string) bool {
	return r.re.MatchString(lower)
}

// Table is an ordered list of rules.
type Table []Rule

// First returns the tag of the first matching rule, or fallback.
func (t Table) First(lower, fallback string) string {
	for _, r := range t {
		if r.Match(lower) {
			return r.Tag
		}
	}
	return fallback
}

// All returns the tags of every matching rule in table order, without
// duplicates.
func (t Table) All(lower string) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range t {
		if seen[r.Tag] || !r.Match(lower) {
			continue
		}
		seen[r.Tag] = true
		out = append(out, r.Tag)
	}
	return out
}

// Normalize lower-cases and trims a prompt before rule evaluation.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Artifact category keywords, in the order categories are reported.
var Categories = Table{
	NewRule("table_schema", "complaint", "feedback", "track", "store", "record", "database", `tables?\b`, "submit",
		"registry", "data", "rating", "report", "petition", "survey", "manage"),
	NewRule("form_component", `forms?\b`, "submit", "register", "apply", "application"),
	NewRule("dashboard_component", "dashboard", "analytics", `charts?\b`, "monitor", "overview", `list\b`, "listing", `view\b`, "views"),
	NewRule("edge_function", "scrap", "crawl", `apis?\b`, "webhook", "integration", "integrate", `sync(?:s|ed|ing)?\b`, "service", "notify", "notification",
		`import(?:s|ed|ing)?\b`),
}

// Roles maps prompt words to role tags.
var Roles = Table{
	NewRule("public", `public\b`, "citizen", "everyone", "villager", "anyone", "resident"),
	NewRule("admin", "admin", "moderator", "staff"),
	NewRule("minister", "minister", `(?:government )?officials?\b`),
	NewRule("researcher", "research", "analyst"),
}

// LinkedModules maps prompt words to the platform subsystems an artifact
// touches.
var LinkedModules = Table{
	NewRule("village_profiles", "village"),
	NewRule("citizen_feedback", "complaint", "feedback"),
	NewRule("events", `events?\b`),
	NewRule("debt_admin", "debt"),
	NewRule("investment_portal", "invest"),
	NewRule("sentiment_tracker", "sentiment"),
	NewRule("feed", `feeds?\b`),
}

// Component kinds selected by the component generator.
const (
	KindForm      = "form"
	KindDashboard = "dashboard"
	KindGeneric   = "generic"
)

var ComponentKinds = Table{
	NewRule(KindForm, `forms?\b`),
	NewRule(KindDashboard, "dashboard"),
}

// ComponentCategories chooses the directory a component is filed under.
var ComponentCategories = Table{
	NewRule("Admin", "admin", "minister", "manage"),
	NewRule("Public", "citizen", `public\b`, "village"),
}

const CategoryShared = "Shared"

// Integration kinds selected by the integration generator.
const (
	IntegrationScraper = "scraper"
	IntegrationAPI     = "api"
	IntegrationWebhook = "webhook"
	IntegrationService = "service"
)

var IntegrationKinds = Table{
	NewRule(IntegrationScraper, "scrap", "crawl"),
	NewRule(IntegrationAPI, `apis?\b`, "endpoint", "fetch"),
	NewRule(IntegrationWebhook, "webhook", "callback", "notify"),
}

// Schema column triggers.
var (
	FeedbackColumns = NewRule("feedback", "complaint", "feedback")
	RegionColumn    = NewRule("region", "region", "location")
	RatingColumn    = NewRule("rating", "rating", "score")
)
