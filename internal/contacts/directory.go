// Package contacts maps free-text names to directory contacts with a
// confidence score. Resolution tries cheap direct lookups first and falls
// back to scoring every cached contact against the search term.
package contacts

import "context"

// Contact is one entry in the external contact directory.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Directory is the read-only contract against the external contact service.
// All queries are lookups; the core never writes to the directory.
type Directory interface {
	// LookupByName returns contacts whose name matches exactly.
	LookupByName(ctx context.Context, name string) ([]Contact, error)

	// Search returns contacts matching a case-insensitive partial query.
	Search(ctx context.Context, query string) ([]Contact, error)

	// SearchContains runs the broadened "contains"/"like" query.
	SearchContains(ctx context.Context, query string) ([]Contact, error)

	// All returns the bounded full contact set.
	All(ctx context.Context) ([]Contact, error)
}

// VariantSuggester is an optional semantic-reasoning collaborator proposing
// additional name variants (nicknames, phonetic or cultural variants).
// Variant scores can only raise a match's confidence, never lower it, so the
// resolver stays correct if the collaborator is absent or failing.
type VariantSuggester interface {
	Variants(ctx context.Context, name string) ([]string, error)
}
