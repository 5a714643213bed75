package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

var (
	// ErrNotFound is returned when a lookup finds no matching object.
	ErrNotFound = errors.New("object not found")

	// ErrReferentialIntegrity is returned when a delete is refused because
	// other rows still reference the object.
	ErrReferentialIntegrity = errors.New("object is still referenced")

	// ErrStoreUnavailable wraps connection and query failures that should
	// terminate a batch run.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError is returned when an object cannot be written as given.
type ValidationError struct {
	Object  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Object, e.Message)
}

// TimeSeriesStore looks up and creates time-series identifiers.
type TimeSeriesStore interface {
	// LookupTimeSeries returns ErrNotFound when no series has this unique string.
	LookupTimeSeries(ctx context.Context, unique string) (tsid.Identifier, error)

	// CreateTimeSeries persists a complete identifier and returns it with its key.
	// Returns *ValidationError when the identifier is incomplete or malformed.
	CreateTimeSeries(ctx context.Context, id tsid.Identifier) (tsid.Identifier, error)

	ListTimeSeries(ctx context.Context) ([]tsid.Identifier, error)
}

// GroupStore reads and writes time-series groups.
type GroupStore interface {
	GetGroup(ctx context.Context, id int64) (*group.TsGroup, error)
	ListGroups(ctx context.Context) ([]*group.TsGroup, error)

	// WriteGroup inserts (ID == 0, ID is assigned) or updates the group.
	WriteGroup(ctx context.Context, g *group.TsGroup) error
}

// ComputationStore reads and writes computations.
type ComputationStore interface {
	// ListComputationNames lists names for an application; appID 0 means all.
	ListComputationNames(ctx context.Context, appID int64) ([]string, error)
	GetComputationByName(ctx context.Context, name string) (*comp.Computation, error)

	// WriteComputation inserts (ID == 0, ID is assigned) or updates the computation.
	WriteComputation(ctx context.Context, c *comp.Computation) error

	// DeleteComputation returns ErrReferentialIntegrity when the computation
	// is still referenced elsewhere.
	DeleteComputation(ctx context.Context, id int64) error
}

// AlgorithmStore reads algorithm definitions.
type AlgorithmStore interface {
	GetAlgorithm(ctx context.Context, id int64) (*comp.Algorithm, error)
	ListAlgorithms(ctx context.Context) ([]*comp.Algorithm, error)
}

// Stores bundles the collaborators a resolution run needs.
type Stores struct {
	TimeSeries   TimeSeriesStore
	Groups       GroupStore
	Computations ComputationStore
	Algorithms   AlgorithmStore
}
