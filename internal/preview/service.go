package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
	"github.com/aevon-lab/compresolver/internal/reconcile"
	"github.com/aevon-lab/compresolver/internal/report"
	"github.com/aevon-lab/compresolver/internal/resolution"
)

// ErrUnknownGroup is returned by GroupMembers for an ID with no group.
var ErrUnknownGroup = errors.New("unknown group")

// Service answers read-only questions about templates against a loaded
// resolution context. Every reconciliation it runs is a dry run.
type Service struct {
	stores  storage.Stores
	layout  *tsid.Layout
	opts    resolution.LoadOptions
	dispose reconcile.DisposeMode
	logger  *slog.Logger

	mu sync.RWMutex
	rc *resolution.Context
}

// NewService creates a service. The context is loaded lazily on first use
// or explicitly with Reload.
func NewService(stores storage.Stores, layout *tsid.Layout, opts resolution.LoadOptions, dispose reconcile.DisposeMode, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stores:  stores,
		layout:  layout,
		opts:    opts,
		dispose: dispose,
		logger:  logger,
	}
}

// Reload replaces the cached context with a fresh read of the stores.
func (s *Service) Reload(ctx context.Context) error {
	rc, err := resolution.Load(ctx, s.stores, s.layout, s.opts, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rc = rc
	s.mu.Unlock()
	s.logger.Info("[Preview] Resolution context loaded",
		"groups", len(rc.Groups()),
		"computations", len(rc.Computations()),
		"time_series", rc.Catalog.Len())
	return nil
}

func (s *Service) context(ctx context.Context) (*resolution.Context, error) {
	s.mu.RLock()
	rc := s.rc
	s.mu.RUnlock()
	if rc != nil {
		return rc, nil
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rc, nil
}

// Resolve dry-runs reconciliation of one template and returns the outcome
// with the report lines it produced.
func (s *Service) Resolve(ctx context.Context, compID int64) (*reconcile.Outcome, []string, error) {
	rc, err := s.context(ctx)
	if err != nil {
		return nil, nil, err
	}
	w := report.New(nil, s.logger)
	r := reconcile.New(rc, s.stores, nil, w, reconcile.Options{DryRun: true, Dispose: s.dispose}, s.logger)
	out, err := r.Reconcile(ctx, compID)
	if err != nil {
		return out, w.Lines(), fmt.Errorf("resolving computation %d: %w", compID, err)
	}
	return out, w.Lines(), nil
}

// GroupMembers expands a group through its subgroups and part filters.
func (s *Service) GroupMembers(ctx context.Context, groupID int64) (*group.TsGroup, []tsid.Identifier, error) {
	rc, err := s.context(ctx)
	if err != nil {
		return nil, nil, err
	}
	g, ok := rc.Group(groupID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownGroup, groupID)
	}
	members := resolution.NewGenerator(rc, true, s.logger).Groups().Expand(g)
	return g, members, nil
}
