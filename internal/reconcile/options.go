package reconcile

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
	"github.com/aevon-lab/compresolver/internal/resolution"
)

// DisposeMode says what happens to redundant single computations.
type DisposeMode string

const (
	DisposeDisable DisposeMode = "disable"
	DisposeDelete  DisposeMode = "delete"
)

// ParseDisposeMode accepts "disable" (the default for "") and "delete".
func ParseDisposeMode(s string) (DisposeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disable":
		return DisposeDisable, nil
	case "delete":
		return DisposeDelete, nil
	}
	return "", fmt.Errorf("invalid dispose mode %q (want delete or disable)", s)
}

// Options controls a reconciliation run.
type Options struct {
	// DryRun reports every decision without writing to the store.
	DryRun bool

	Dispose DisposeMode

	// DisposedPath, when set, receives an XML export of every computation
	// about to be disposed, written before any delete or disable.
	DisposedPath string
}

// State is where a template's reconciliation ended.
type State string

const (
	StateInitial        State = "initial"
	StateExpanded       State = "expanded"
	StateMatched        State = "matched"
	StateClean          State = "clean"
	StateNeedsExclusion State = "needs-exclusion"
	StateApplied        State = "applied"
	StateSkipped        State = "skipped"
	StateStopped        State = "stopped"
)

// Reasons a template was skipped or stopped.
const (
	ReasonNoSuchComputation = "no such computation"
	ReasonNotTemplate       = "not a group computation"
	ReasonUnknownGroup      = "unknown group"
	ReasonNoClones          = "no clones"
	ReasonExportFailed      = "disposed computations could not be saved"
)

// Outcome summarizes one template's reconciliation.
type Outcome struct {
	CompID   int64
	CompName string
	State    State
	Reason   string

	Members int
	Clones  int

	// Expansion is nil until the template has been expanded.
	Expansion *resolution.Expansion

	// Redundant singles matched a clone on structure and properties.
	Redundant []*comp.Computation

	// MustExclude holds the triggering identifiers of clones that a
	// differing single computation already covers.
	MustExclude []tsid.Identifier

	ExclusionGroup *group.TsGroup
	WrapperGroup   *group.TsGroup

	Deleted  []int64
	Disabled []int64

	// Changed is false when the run found nothing to write.
	Changed bool
}
