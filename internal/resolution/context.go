package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// Context is the snapshot a run resolves against: every group, every
// computation, every algorithm and the identifier index. It is built once
// per run and passed explicitly; writes made during the run are mirrored
// into it so later computations in the same run see them.
type Context struct {
	Layout  *tsid.Layout
	Catalog *tsid.Catalog

	series     storage.TimeSeriesStore
	groups     map[int64]*group.TsGroup
	comps      []*comp.Computation
	algorithms map[int64]*comp.Algorithm
}

// LoadOptions narrows what Load reads.
type LoadOptions struct {
	// AppID restricts computations to one application; 0 loads all.
	AppID int64

	// Algorithms overrides stores.Algorithms when set (e.g. a YAML catalog).
	Algorithms storage.AlgorithmStore
}

// Load reads groups, computations, algorithms and identifiers concurrently.
// Any store failure is fatal for the run and is wrapped in
// storage.ErrStoreUnavailable.
func Load(ctx context.Context, stores storage.Stores, layout *tsid.Layout, opts LoadOptions, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	algoStore := stores.Algorithms
	if opts.Algorithms != nil {
		algoStore = opts.Algorithms
	}

	rc := &Context{
		Layout:     layout,
		Catalog:    tsid.NewCatalog(layout),
		series:     stores.TimeSeries,
		groups:     make(map[int64]*group.TsGroup),
		algorithms: make(map[int64]*comp.Algorithm),
	}

	var (
		series []tsid.Identifier
		groups []*group.TsGroup
		comps  []*comp.Computation
		algos  []*comp.Algorithm
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		series, err = stores.TimeSeries.ListTimeSeries(gctx)
		if err != nil {
			return fmt.Errorf("%w: loading time series: %w", storage.ErrStoreUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		groups, err = stores.Groups.ListGroups(gctx)
		if err != nil {
			return fmt.Errorf("%w: loading groups: %w", storage.ErrStoreUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		algos, err = algoStore.ListAlgorithms(gctx)
		if err != nil {
			return fmt.Errorf("%w: loading algorithms: %w", storage.ErrStoreUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		names, err := stores.Computations.ListComputationNames(gctx, opts.AppID)
		if err != nil {
			return fmt.Errorf("%w: listing computations: %w", storage.ErrStoreUnavailable, err)
		}
		for _, name := range names {
			c, err := stores.Computations.GetComputationByName(gctx, name)
			if errors.Is(err, storage.ErrNotFound) {
				logger.Warn("Computation could not be read", "name", name, "error", err)
				continue
			}
			if err != nil {
				return fmt.Errorf("%w: reading computation %q: %w", storage.ErrStoreUnavailable, name, err)
			}
			comps = append(comps, c)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range series {
		rc.Catalog.Add(id)
	}
	for _, grp := range groups {
		rc.groups[grp.ID] = grp
	}
	for _, a := range algos {
		rc.algorithms[a.ID] = a
	}
	for _, c := range comps {
		if a, ok := rc.algorithms[c.AlgorithmID]; ok && c.AlgorithmName == "" {
			c.AlgorithmName = a.Name
		}
	}
	rc.comps = comps

	logger.Info("Resolution context loaded",
		"time_series", rc.Catalog.Len(),
		"groups", len(rc.groups),
		"computations", len(rc.comps),
		"algorithms", len(rc.algorithms))
	return rc, nil
}

// Group implements group.Graph.
func (rc *Context) Group(id int64) (*group.TsGroup, bool) {
	g, ok := rc.groups[id]
	return g, ok
}

// GroupByName finds a group by name (case-insensitive).
func (rc *Context) GroupByName(name string) (*group.TsGroup, bool) {
	for _, g := range rc.groups {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}
	return nil, false
}

// Groups returns every group ordered by ID.
func (rc *Context) Groups() []*group.TsGroup {
	out := make([]*group.TsGroup, 0, len(rc.groups))
	for _, g := range rc.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutGroup records a written group.
func (rc *Context) PutGroup(g *group.TsGroup) {
	rc.groups[g.ID] = g.Copy()
}

// Algorithm implements comp.AlgorithmSource.
func (rc *Context) Algorithm(id int64) (*comp.Algorithm, bool) {
	a, ok := rc.algorithms[id]
	return a, ok
}

// Computations returns every loaded computation in load order.
func (rc *Context) Computations() []*comp.Computation {
	return rc.comps
}

// Computation finds a computation by ID.
func (rc *Context) Computation(id int64) (*comp.Computation, bool) {
	for _, c := range rc.comps {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// PutComputation records a written computation, replacing any with the same ID.
func (rc *Context) PutComputation(c *comp.Computation) {
	cp := c.Copy()
	for i, existing := range rc.comps {
		if existing.ID == c.ID {
			rc.comps[i] = cp
			return
		}
	}
	rc.comps = append(rc.comps, cp)
}

// RemoveComputation drops a deleted computation.
func (rc *Context) RemoveComputation(id int64) {
	for i, c := range rc.comps {
		if c.ID == id {
			rc.comps = append(rc.comps[:i], rc.comps[i+1:]...)
			return
		}
	}
}

// LookupTimeSeries finds an existing identifier without creating it.
func (rc *Context) LookupTimeSeries(id tsid.Identifier) (tsid.Identifier, bool) {
	return rc.Catalog.Lookup(id)
}

// EnsureTimeSeries returns the existing identifier or creates it. With
// dryRun the identifier is only validated and returned unpersisted.
func (rc *Context) EnsureTimeSeries(ctx context.Context, id tsid.Identifier, dryRun bool) (tsid.Identifier, error) {
	if found, ok := rc.Catalog.Lookup(id); ok {
		return found, nil
	}
	if dryRun {
		if err := rc.Layout.Validate(id); err != nil {
			return tsid.Identifier{}, &storage.ValidationError{Object: "time series", Message: err.Error()}
		}
		return id, nil
	}
	created, err := rc.series.CreateTimeSeries(ctx, id)
	if err != nil {
		return tsid.Identifier{}, err
	}
	rc.Catalog.Add(created)
	return created, nil
}
