// Package catalog holds the navigation catalog: named portal features, each
// with a link and an optional spoken description. The intent router searches
// it with the topics it extracted from a transcript.
//
// Two [Store] implementations exist: [MemStore], seeded from YAML and
// swappable at runtime, and [PostgresStore] backed by pgx.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ErrInvalidEntry is returned by [Entry.Validate] and by stores rejecting a
// malformed entry.
var ErrInvalidEntry = errors.New("catalog: invalid entry")

// Entry is one catalog row. Entries are read-only to the request path.
type Entry struct {
	// Name is the feature name topics are matched against.
	Name string `yaml:"name"`

	// URL is the link opened for this feature.
	URL string `yaml:"url"`

	// Description is an optional sentence spoken after the action answer.
	Description string `yaml:"description,omitempty"`
}

// Validate checks that the entry has a name and an absolute http(s) URL.
func (e Entry) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Name) == "" {
		errs = append(errs, fmt.Errorf("%w: name must not be empty", ErrInvalidEntry))
	}
	u, err := url.Parse(e.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%w: %q: url %q must be an absolute http(s) URL", ErrInvalidEntry, e.Name, e.URL))
	}
	return errors.Join(errs...)
}

// Match is a search hit. Score is the number of topics found in the entry
// name.
type Match struct {
	Entry Entry
	Score int
}

// Lookup is the read side used by the intent router.
type Lookup interface {
	// Search returns entries whose name contains at least one topic as a
	// case-insensitive substring, ordered by score descending, then catalog
	// position, then name. limit <= 0 returns every match. No match is not an
	// error: the result is empty.
	Search(ctx context.Context, topics []string, limit int) ([]Match, error)
}

// Store is a full catalog backend.
//
// All implementations must be safe for concurrent use.
type Store interface {
	Lookup

	// All returns every entry in catalog order.
	All(ctx context.Context) ([]Entry, error)

	// Replace swaps the catalog contents for entries, whose slice order
	// becomes the catalog position.
	Replace(ctx context.Context, entries []Entry) error
}

// NormalizeTopics trims and lower-cases topics, dropping empties and
// duplicates while keeping first-seen order.
func NormalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Score counts how many topics occur in name, case-insensitively. Topics
// are expected to be normalized.
func Score(name string, topics []string) int {
	lower := strings.ToLower(name)
	n := 0
	for _, t := range topics {
		if t != "" && strings.Contains(lower, t) {
			n++
		}
	}
	return n
}

// ValidateEntries checks every entry and rejects case-insensitive duplicate
// names. All problems are reported together.
func ValidateEntries(entries []Entry) error {
	var errs []error
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("entry %d: %w: duplicate name %q", i, ErrInvalidEntry, e.Name))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}
