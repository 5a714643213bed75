package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// Store is an in-memory implementation of every storage interface.
// Useful for testing, snapshots and offline dry runs.
type Store struct {
	mu     sync.RWMutex
	layout *tsid.Layout

	series     map[string]tsid.Identifier
	groups     map[int64]*group.TsGroup
	comps      map[int64]*comp.Computation
	algorithms map[int64]*comp.Algorithm
	referenced map[int64]bool

	nextSeries int64
	nextGroup  int64
	nextComp   int64
}

// NewStore creates an empty store for identifiers of the given layout.
func NewStore(layout *tsid.Layout) *Store {
	return &Store{
		layout:     layout,
		series:     make(map[string]tsid.Identifier),
		groups:     make(map[int64]*group.TsGroup),
		comps:      make(map[int64]*comp.Computation),
		algorithms: make(map[int64]*comp.Algorithm),
		referenced: make(map[int64]bool),
	}
}

// Stores exposes the store through the collaborator bundle.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{TimeSeries: s, Groups: s, Computations: s, Algorithms: s}
}

// LookupTimeSeries implements storage.TimeSeriesStore.
func (s *Store) LookupTimeSeries(_ context.Context, unique string) (tsid.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.series[strings.ToLower(unique)]
	if !ok {
		return tsid.Identifier{}, fmt.Errorf("%w: time series %q", storage.ErrNotFound, unique)
	}
	return id, nil
}

// CreateTimeSeries implements storage.TimeSeriesStore. Creating an existing
// series returns the stored one.
func (s *Store) CreateTimeSeries(_ context.Context, id tsid.Identifier) (tsid.Identifier, error) {
	if err := s.layout.Validate(id); err != nil {
		return tsid.Identifier{}, &storage.ValidationError{Object: "time series", Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSeries(id), nil
}

func (s *Store) putSeries(id tsid.Identifier) tsid.Identifier {
	if existing, ok := s.series[id.LookupKey()]; ok {
		return existing
	}
	s.nextSeries++
	stored := id.CopyNoKey()
	stored.Key = s.nextSeries
	s.series[stored.LookupKey()] = stored
	return stored
}

// ListTimeSeries implements storage.TimeSeriesStore.
func (s *Store) ListTimeSeries(_ context.Context) ([]tsid.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tsid.Identifier, 0, len(s.series))
	for _, id := range s.series {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return tsid.Compare(out[i], out[j]) < 0 })
	return out, nil
}

// GetGroup implements storage.GroupStore.
func (s *Store) GetGroup(_ context.Context, id int64) (*group.TsGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: group %d", storage.ErrNotFound, id)
	}
	return g.Copy(), nil
}

// ListGroups implements storage.GroupStore.
func (s *Store) ListGroups(_ context.Context) ([]*group.TsGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*group.TsGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WriteGroup implements storage.GroupStore.
func (s *Store) WriteGroup(_ context.Context, g *group.TsGroup) error {
	if strings.TrimSpace(g.Name) == "" {
		return &storage.ValidationError{Object: "group", Message: "name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.groups {
		if id != g.ID && strings.EqualFold(other.Name, g.Name) {
			return &storage.ValidationError{Object: "group", Message: fmt.Sprintf("name %q already used by group %d", g.Name, id)}
		}
	}
	if g.ID == 0 {
		s.nextGroup++
		g.ID = s.nextGroup
	} else if g.ID > s.nextGroup {
		s.nextGroup = g.ID
	}
	s.groups[g.ID] = g.Copy()
	return nil
}

// ListComputationNames implements storage.ComputationStore.
func (s *Store) ListComputationNames(_ context.Context, appID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, c := range s.comps {
		if appID != 0 && c.AppID != appID {
			continue
		}
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

// GetComputationByName implements storage.ComputationStore.
func (s *Store) GetComputationByName(_ context.Context, name string) (*comp.Computation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.comps {
		if c.Name == name {
			return c.Copy(), nil
		}
	}
	return nil, fmt.Errorf("%w: computation %q", storage.ErrNotFound, name)
}

// GetComputation returns a computation by ID.
func (s *Store) GetComputation(_ context.Context, id int64) (*comp.Computation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comps[id]
	if !ok {
		return nil, fmt.Errorf("%w: computation %d", storage.ErrNotFound, id)
	}
	return c.Copy(), nil
}

// WriteComputation implements storage.ComputationStore.
func (s *Store) WriteComputation(_ context.Context, c *comp.Computation) error {
	if strings.TrimSpace(c.Name) == "" {
		return &storage.ValidationError{Object: "computation", Message: "name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.algorithms) > 0 {
		if _, ok := s.algorithms[c.AlgorithmID]; !ok {
			return &storage.ValidationError{Object: "computation", Message: fmt.Sprintf("unknown algorithm %d", c.AlgorithmID)}
		}
	}
	if c.GroupID != 0 {
		if _, ok := s.groups[c.GroupID]; !ok {
			return &storage.ValidationError{Object: "computation", Message: fmt.Sprintf("unknown group %d", c.GroupID)}
		}
	}
	for id, other := range s.comps {
		if id != c.ID && other.Name == c.Name {
			return &storage.ValidationError{Object: "computation", Message: fmt.Sprintf("name %q already used by computation %d", c.Name, id)}
		}
	}
	if c.ID == 0 {
		s.nextComp++
		c.ID = s.nextComp
	} else if c.ID > s.nextComp {
		s.nextComp = c.ID
	}
	s.comps[c.ID] = c.Copy()
	return nil
}

// DeleteComputation implements storage.ComputationStore.
func (s *Store) DeleteComputation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comps[id]; !ok {
		return fmt.Errorf("%w: computation %d", storage.ErrNotFound, id)
	}
	if s.referenced[id] {
		return fmt.Errorf("%w: computation %d has dependent rows", storage.ErrReferentialIntegrity, id)
	}
	delete(s.comps, id)
	return nil
}

// MarkReferenced makes future deletes of the computation fail the way a
// foreign-key violation would.
func (s *Store) MarkReferenced(compID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenced[compID] = true
}

// PutAlgorithm adds or replaces an algorithm.
func (s *Store) PutAlgorithm(a *comp.Algorithm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.algorithms[a.ID] = &cp
}

// GetAlgorithm implements storage.AlgorithmStore.
func (s *Store) GetAlgorithm(_ context.Context, id int64) (*comp.Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.algorithms[id]
	if !ok {
		return nil, fmt.Errorf("%w: algorithm %d", storage.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

// ListAlgorithms implements storage.AlgorithmStore.
func (s *Store) ListAlgorithms(_ context.Context) ([]*comp.Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*comp.Algorithm, 0, len(s.algorithms))
	for _, a := range s.algorithms {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
