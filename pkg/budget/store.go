package budget

import (
	"context"
	"sort"
	"sync"
)

// Store persists ledgers across restarts.
type Store interface {
	// Latest returns the most recently started ledger, or nil if none.
	Latest(ctx context.Context) (*Ledger, error)
	Save(ctx context.Context, l *Ledger) error
	// History returns up to limit ledgers, newest first.
	History(ctx context.Context, limit int) ([]*Ledger, error)
	Close() error
}

// MemoryStore keeps ledgers in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string]*Ledger)}
}

func (s *MemoryStore) Latest(ctx context.Context) (*Ledger, error) {
	all, err := s.History(ctx, 1)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (s *MemoryStore) Save(_ context.Context, l *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[l.ID] = l.clone()
	return nil
}

func (s *MemoryStore) History(_ context.Context, limit int) ([]*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Ledger, 0, len(s.ledgers))
	for _, l := range s.ledgers {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
