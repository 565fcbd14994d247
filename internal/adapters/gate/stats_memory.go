package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
)

type Counters struct {
	Allowed int64
	Denied  int64
	Waited  time.Duration
}

// MemoryStatsStore keeps gate decisions for the current process.
type MemoryStatsStore struct {
	mu     sync.Mutex
	total  Counters
	byName map[string]Counters
}

var _ ports.GateStatsStore = (*MemoryStatsStore)(nil)

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byName: make(map[string]Counters)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.GateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byName[ev.Name]
	if ev.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.total.Waited += ev.Waited
	c.Waited += ev.Waited
	s.byName[ev.Name] = c

	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByName() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byName))
	for k, v := range s.byName {
		out[k] = v
	}
	return out
}

// MultiStatsStore fans a decision out to every store and joins the errors.
type MultiStatsStore []ports.GateStatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.GateEvent) error {
	var errs []error
	for _, store := range m {
		if store == nil {
			continue
		}
		if err := store.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
