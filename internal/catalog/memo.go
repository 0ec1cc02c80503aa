package catalog

import (
	"context"
	"strings"
	"sync"
)

// LookupMemo remembers live lookup outcomes, including misses, for the
// duration of one reconciliation run. Failed lookups are not remembered.
type LookupMemo struct {
	mu      sync.Mutex
	results map[string]LiveMatch
	calls   int
}

func NewLookupMemo() *LookupMemo {
	return &LookupMemo{results: make(map[string]LiveMatch)}
}

// Resolve returns the remembered outcome for term, or performs ResolveLive once.
func (m *LookupMemo) Resolve(ctx context.Context, src Source, term string) (LiveMatch, error) {
	key := strings.ToLower(strings.TrimSpace(term))
	m.mu.Lock()
	if res, ok := m.results[key]; ok {
		m.mu.Unlock()
		return res, nil
	}
	m.mu.Unlock()

	res, err := ResolveLive(ctx, src, term)
	if err != nil {
		return LiveMatch{}, err
	}

	m.mu.Lock()
	m.results[key] = res
	m.calls++
	m.mu.Unlock()
	return res, nil
}

// Calls reports how many live lookups actually reached the source.
func (m *LookupMemo) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
