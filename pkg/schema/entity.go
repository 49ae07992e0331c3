package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EntityType classifies a resolved entity.
type EntityType string

const (
	EntityPerson  EntityType = "PERSON"
	EntityEmail   EntityType = "EMAIL"
	EntityOrg     EntityType = "ORG"
	EntityDate    EntityType = "DATE"
	EntityUnknown EntityType = "UNKNOWN"
)

// CachedEntity is an extracted and (possibly) resolved entity, cached
// externally keyed by (scope, type, value).
type CachedEntity struct {
	Type                 EntityType `json:"type"`
	Value                string     `json:"value"`
	Email                string     `json:"email,omitempty"`
	DisplayName          string     `json:"display_name,omitempty"`
	PhoneNumber          string     `json:"phone_number,omitempty"`
	NeedsEmailResolution bool       `json:"needs_email_resolution,omitempty"`
	ResolvedAt           time.Time  `json:"resolved_at"`
	Confidence           float64    `json:"confidence,omitempty"`
}

// Address returns the value a placeholder should be patched with:
// the resolved email when present, otherwise the raw value.
func (e CachedEntity) Address() string {
	if e.Email != "" {
		return e.Email
	}
	return e.Value
}

// placeholderPattern matches {{ENTITY:<slug>}} tokens, slug = [a-z0-9-]+,
// case-insensitive on the ENTITY keyword and the slug.
var placeholderPattern = regexp.MustCompile(`\{\{(?i:ENTITY):([a-zA-Z0-9-]+)\}\}`)

// PlaceholderPattern returns the compiled placeholder grammar.
func PlaceholderPattern() *regexp.Regexp {
	return placeholderPattern
}

// Placeholder renders the placeholder token for a value.
func Placeholder(value string) string {
	return fmt.Sprintf("{{ENTITY:%s}}", Slugify(value))
}

var slugCollapse = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the value, collapses non-alphanumeric runs to a single
// hyphen, and trims leading/trailing hyphens.
func Slugify(value string) string {
	s := slugCollapse.ReplaceAllString(strings.ToLower(value), "-")
	return strings.Trim(s, "-")
}
