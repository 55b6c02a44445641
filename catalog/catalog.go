// Package catalog is the content side of the server: it lists the cases a
// host can choose from and opens a fresh world for a new session. Listings
// are served through a ListingCache so repeated lobby requests do not reload
// content.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/protocol"
)

var (
	// ErrUnknownCase is returned for a case id the catalog does not have.
	ErrUnknownCase = errors.New("unknown case")
	// ErrUnsupportedLanguage is returned when a case is not available in the requested language.
	ErrUnsupportedLanguage = errors.New("language not available for case")
)

// Provider supplies content.
type Provider interface {
	// Cases lists the playable cases.
	Cases(ctx context.Context) ([]protocol.CaseInfo, error)

	// Open prepares a new world for caseID in language.
	Open(ctx context.Context, caseID, language string) (game.World, error)
}

// Cached wraps a Provider so that case listings come from a ListingCache.
type Cached struct {
	source Provider
	cache  ListingCache
}

// NewCached creates a Cached provider.
//
// Parameters:
//   - source: The provider that actually reads content
//   - cache: Where the listing is kept, and for how long
//
// Returns:
//   - The caching provider
func NewCached(source Provider, cache ListingCache) *Cached {
	return &Cached{source: source, cache: cache}
}

// Cases implements Provider.
func (c *Cached) Cases(ctx context.Context) ([]protocol.CaseInfo, error) {
	return c.cache.Listing(ctx, c.source.Cases)
}

// Open implements Provider. The case and language are validated against the
// cached listing before the source is asked to load anything.
func (c *Cached) Open(ctx context.Context, caseID, language string) (game.World, error) {
	cases, err := c.Cases(ctx)
	if err != nil {
		return nil, err
	}

	info, err := Find(cases, caseID)
	if err != nil {
		return nil, err
	}

	if language != "" && len(info.Languages) > 0 && !slices.Contains(info.Languages, language) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedLanguage, caseID, language)
	}

	return c.source.Open(ctx, caseID, language)
}

// Invalidate drops the cached listing so the next Cases call reloads it.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx)
}

// Find returns the case with id from cases.
func Find(cases []protocol.CaseInfo, id string) (protocol.CaseInfo, error) {
	for _, info := range cases {
		if info.ID == id {
			return info, nil
		}
	}

	return protocol.CaseInfo{}, fmt.Errorf("%w: %s", ErrUnknownCase, id)
}
