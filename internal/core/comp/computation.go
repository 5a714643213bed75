package comp

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// Direction of a computation parameter.
type Direction string

const (
	Input  Direction = "i"
	Output Direction = "o"
)

// ParseDirection accepts "i"/"input" and "o"/"output".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i", "in", "input":
		return Input, nil
	case "o", "out", "output":
		return Output, nil
	}
	return "", fmt.Errorf("invalid parameter direction %q", s)
}

// Parm is one parameter slot. Pattern parts that are not set are inherited
// from the identifier that triggers the computation.
type Parm struct {
	Role      string
	Direction Direction
	Pattern   tsid.Pattern
}

func (p Parm) IsInput() bool  { return p.Direction == Input }
func (p Parm) IsOutput() bool { return p.Direction == Output }

// PatternEqual compares explicit parts only. Role names are not compared.
func (p Parm) PatternEqual(other Parm) bool {
	return p.Pattern.Equal(other.Pattern)
}

func (p Parm) String() string {
	return fmt.Sprintf("%s(%s)[%s]", p.Role, p.Direction, p.Pattern)
}

// Computation is an algorithm bound to parameters. A computation with a
// GroupID is a template and never runs directly; only its clones do.
type Computation struct {
	ID            int64
	Name          string
	AlgorithmID   int64
	AlgorithmName string
	AppID         int64
	Enabled       bool
	GroupID       int64
	Comment       string
	Parms         []Parm
	Properties    map[string]string
}

// IsTemplate reports whether the computation is group-driven.
func (c *Computation) IsTemplate() bool { return c.GroupID != 0 }

// Parm returns the parameter with the given role (case-insensitive).
func (c *Computation) Parm(role string) (Parm, bool) {
	for _, p := range c.Parms {
		if strings.EqualFold(p.Role, role) {
			return p, true
		}
	}
	return Parm{}, false
}

// Property returns a raw property value; keys are case-insensitive. An exact
// key wins; among keys differing only by case the smallest one wins, so the
// result does not depend on map order.
func (c *Computation) Property(name string) (string, bool) {
	if v, ok := c.Properties[name]; ok {
		return v, true
	}
	best, found := "", false
	for k := range c.Properties {
		if strings.EqualFold(k, name) && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return "", false
	}
	return c.Properties[best], true
}

// Copy returns a deep copy.
func (c *Computation) Copy() *Computation {
	out := *c
	out.Parms = make([]Parm, len(c.Parms))
	for i, p := range c.Parms {
		pat := make(tsid.Pattern, len(p.Pattern))
		for k, v := range p.Pattern {
			pat[k] = v
		}
		out.Parms[i] = Parm{Role: p.Role, Direction: p.Direction, Pattern: pat}
	}
	out.Properties = make(map[string]string, len(c.Properties))
	for k, v := range c.Properties {
		out.Properties[k] = v
	}
	return &out
}

func (c *Computation) String() string {
	return fmt.Sprintf("Computation(%d) '%s'", c.ID, c.Name)
}

// Clone is a template resolved against one group member. Parms carry fully
// explicit patterns and Resolved holds the identifier behind each parm.
type Clone struct {
	*Computation
	TriggeringTsid tsid.Identifier
	Resolved       []tsid.Identifier
}

// FirstInput returns the resolved identifier of the first input parm in
// stored order; it is the clone's dedup key.
func (c *Clone) FirstInput() (tsid.Identifier, bool) {
	for i, p := range c.Parms {
		if p.IsInput() {
			return c.Resolved[i], true
		}
	}
	return tsid.Identifier{}, false
}
