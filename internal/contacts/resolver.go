package contacts

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/pkg/schema"
)

const (
	allContactsCacheKey = "all-contacts"
	allContactsCacheTTL = 3 * time.Minute
	maxSuggestions      = 3
)

// Suggestion is one ranked candidate for the intervention flow.
type Suggestion struct {
	Contact    Contact `json:"contact"`
	Confidence float64 `json:"confidence"`
}

// Resolution is the outcome of resolving a free-text name.
// Exactly one of Resolved / Suggestions / nothing is populated:
// Resolved when the top score clears the auto-resolve threshold, Suggestions
// when candidates clear the floor, neither when resolution failed outright.
type Resolution struct {
	Resolved    *schema.CachedEntity `json:"resolved,omitempty"`
	Suggestions []Suggestion         `json:"suggestions,omitempty"`
	Searched    int                  `json:"searched"`
}

// Failed reports whether no candidate cleared the suggestion floor.
func (r *Resolution) Failed() bool {
	return r.Resolved == nil && len(r.Suggestions) == 0
}

// Resolver maps a free-text name to zero-or-one directory contact with a
// confidence score. Lookups are read-only; the bounded all-contacts set is
// cached in-process for a few minutes.
type Resolver struct {
	dir      Directory
	variants VariantSuggester // optional, may be nil
	cache    *gocache.Cache
	logger   *slog.Logger
}

// NewResolver creates a Resolver. suggester may be nil to disable the
// semantic variant collaborator.
func NewResolver(dir Directory, suggester VariantSuggester, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:      dir,
		variants: suggester,
		cache:    gocache.New(allContactsCacheTTL, 10*time.Minute),
		logger:   logger,
	}
}

// Resolve runs the lookup cascade for name, short-circuiting on the first
// confident result:
//
//  1. exact-name lookup
//  2. case-insensitive partial lookup
//  3. broadened "contains" query
//  4. scored scan of the cached all-contacts set
//  5. optional semantic name variants, scored the same way with a small boost
//
// If the top score clears the auto-resolve threshold the match is returned as
// an EMAIL entity; otherwise up to three ranked suggestions are returned for
// the intervention flow. A Resolution with neither is an expected outcome,
// reported by Failed(); the error return is reserved for directory and input
// failures.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Resolution, error) {
	log := logging.LogWith(ctx, r.logger)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty contact name")
	}

	// Direct lookups, cheapest first.
	for _, lookup := range []func(context.Context, string) ([]Contact, error){
		r.dir.LookupByName,
		r.dir.Search,
		r.dir.SearchContains,
	} {
		hits, err := lookup(ctx, name)
		if err != nil {
			log.Warn("directory lookup failed, continuing cascade", slog.String("error", err.Error()))
			continue
		}
		if res := r.decide(name, hits, scoreAll(name, hits, 0)); res.Resolved != nil {
			return res, nil
		}
	}

	// Scored scan of the full set.
	all, err := r.allContacts(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "contact directory unavailable").WithCause(err)
	}

	scored := scoreAll(name, all, 0)

	// Semantic variants can only raise confidence.
	if r.variants != nil {
		variants, err := r.variants.Variants(ctx, name)
		if err != nil {
			log.Warn("variant suggester failed, ignoring", slog.String("error", err.Error()))
		}
		for _, variant := range variants {
			for i, vs := range scoreAll(variant, all, variantBoost) {
				if vs.Confidence > scored[i].Confidence {
					scored[i] = vs
				}
			}
		}
	}

	res := r.decide(name, all, scored)
	res.Searched = len(all)
	if res.Failed() {
		log.Info("contact resolution failed",
			slog.String("name", name),
			slog.Int("searched", len(all)))
	}
	return res, nil
}

// decide applies the decision policy to scored candidates.
func (r *Resolver) decide(name string, candidates []Contact, scored []Suggestion) *Resolution {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})

	res := &Resolution{Searched: len(candidates)}
	if len(scored) == 0 {
		return res
	}

	if top := scored[0]; top.Confidence >= AutoResolveScore {
		res.Resolved = &schema.CachedEntity{
			Type:        schema.EntityEmail,
			Value:       name,
			Email:       top.Contact.Email,
			DisplayName: top.Contact.Name,
			PhoneNumber: top.Contact.Phone,
			ResolvedAt:  time.Now().UTC(),
			Confidence:  top.Confidence,
		}
		// A match without an address still needs email resolution downstream.
		res.Resolved.NeedsEmailResolution = top.Contact.Email == ""
		return res
	}

	for _, s := range scored {
		if s.Confidence < SuggestionFloor {
			break
		}
		res.Suggestions = append(res.Suggestions, s)
		if len(res.Suggestions) == maxSuggestions {
			break
		}
	}
	return res
}

// scoreAll scores every candidate against the search term, adding boost
// (capped at 1.0) to non-zero scores.
func scoreAll(search string, candidates []Contact, boost float64) []Suggestion {
	scored := make([]Suggestion, len(candidates))
	for i, c := range candidates {
		conf := Score(search, c.Name)
		if conf > 0 && boost > 0 {
			conf += boost
			if conf > 1.0 {
				conf = 1.0
			}
		}
		scored[i] = Suggestion{Contact: c, Confidence: conf}
	}
	return scored
}

// allContacts fetches the bounded full contact set, cached for a few minutes.
func (r *Resolver) allContacts(ctx context.Context) ([]Contact, error) {
	if cached, ok := r.cache.Get(allContactsCacheKey); ok {
		return cached.([]Contact), nil
	}
	all, err := r.dir.All(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(allContactsCacheKey, all, gocache.DefaultExpiration)
	return all, nil
}
