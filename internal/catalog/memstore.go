package catalog

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. The whole catalog is swapped
// atomically by [MemStore.Replace], which is how configuration reloads reach
// running requests. The zero value is an empty catalog.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemStore returns a MemStore holding entries. It returns an error if any
// entry is invalid.
func NewMemStore(entries []Entry) (*MemStore, error) {
	s := &MemStore{}
	if err := s.Replace(context.Background(), entries); err != nil {
		return nil, err
	}
	return s, nil
}

// Search implements [Lookup.Search].
func (s *MemStore) Search(_ context.Context, topics []string, limit int) ([]Match, error) {
	topics = NormalizeTopics(topics)
	if len(topics) == 0 {
		return nil, nil
	}

	type ranked struct {
		Match
		pos int
	}

	s.mu.RLock()
	hits := make([]ranked, 0)
	for i, e := range s.entries {
		if score := Score(e.Name, topics); score > 0 {
			hits = append(hits, ranked{Match: Match{Entry: e, Score: score}, pos: i})
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(hits, func(a, b ranked) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(a.pos, b.pos),
			cmp.Compare(a.Entry.Name, b.Entry.Name),
		)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = h.Match
	}
	return out, nil
}

// All implements [Store.All].
func (s *MemStore) All(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), nil
}

// Replace implements [Store.Replace]. On a validation error the previous
// contents are kept.
func (s *MemStore) Replace(_ context.Context, entries []Entry) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	cp := slices.Clone(entries)
	s.mu.Lock()
	s.entries = cp
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
