package v1

import (
	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
	"github.com/aevon-lab/compresolver/internal/reconcile"
)

// ResolutionResponse is the dry-run reconciliation of one template
// computation. Nothing in it has been written to the store.
type ResolutionResponse struct {
	ComputationID   int64  `json:"computation_id"`
	ComputationName string `json:"computation_name,omitempty"`

	// State is where reconciliation stopped: skipped, stopped, clean,
	// needs-exclusion or applied.
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`

	Members int     `json:"members"`
	Clones  []Clone `json:"clones"`

	// Redundant singles would be disposed.
	Redundant []ComputationRef `json:"redundant"`

	// MustExclude lists members a differing single already covers.
	MustExclude []string `json:"must_exclude"`

	ExclusionGroup string `json:"exclusion_group,omitempty"`

	// WrapperGroup runs on WrapperIncludes minus WrapperExcludes. Groups are
	// named because a previewed exclusion group may not exist yet.
	WrapperGroup    string  `json:"wrapper_group,omitempty"`
	WrapperIncludes []int64 `json:"wrapper_includes,omitempty"`
	WrapperExcludes string  `json:"wrapper_excludes,omitempty"`

	Report []string `json:"report"`
}

// Clone is one concrete computation the template expands to.
type Clone struct {
	TriggeringTsid string       `json:"triggering_tsid"`
	Parms          []ClonedParm `json:"parms"`
}

type ClonedParm struct {
	Role      string `json:"role"`
	Direction string `json:"direction"`
	Tsid      string `json:"tsid"`
}

type ComputationRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GroupMembersResponse is the flattened membership of a group.
type GroupMembersResponse struct {
	GroupID   int64    `json:"group_id"`
	GroupName string   `json:"group_name"`
	GroupType string   `json:"group_type,omitempty"`
	Members   []string `json:"members"`
}

// NewResolutionResponse builds the response from a dry-run outcome.
func NewResolutionResponse(out *reconcile.Outcome, report []string) ResolutionResponse {
	resp := ResolutionResponse{
		ComputationID:   out.CompID,
		ComputationName: out.CompName,
		State:           string(out.State),
		Reason:          out.Reason,
		Members:         out.Members,
		Clones:          []Clone{},
		Redundant:       []ComputationRef{},
		MustExclude:     identifiers(out.MustExclude),
		Report:          report,
	}
	if out.Expansion != nil {
		for _, c := range out.Expansion.Clones {
			resp.Clones = append(resp.Clones, newClone(c))
		}
	}
	for _, c := range out.Redundant {
		resp.Redundant = append(resp.Redundant, ComputationRef{ID: c.ID, Name: c.Name})
	}
	if out.ExclusionGroup != nil {
		resp.ExclusionGroup = out.ExclusionGroup.Name
	}
	if out.WrapperGroup != nil {
		resp.WrapperGroup = out.WrapperGroup.Name
		resp.WrapperIncludes = out.WrapperGroup.Included
		if out.ExclusionGroup != nil {
			resp.WrapperExcludes = out.ExclusionGroup.Name
		}
	}
	if resp.Report == nil {
		resp.Report = []string{}
	}
	return resp
}

func newClone(c *comp.Clone) Clone {
	out := Clone{TriggeringTsid: c.TriggeringTsid.String()}
	for i, p := range c.Parms {
		parm := ClonedParm{Role: p.Role, Direction: string(p.Direction)}
		if i < len(c.Resolved) {
			parm.Tsid = c.Resolved[i].String()
		}
		out.Parms = append(out.Parms, parm)
	}
	return out
}

func identifiers(ids []tsid.Identifier) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
