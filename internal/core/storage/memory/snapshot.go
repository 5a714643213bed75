package memory

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// snapshot is the on-disk YAML shape of a database snapshot.
type snapshot struct {
	TimeSeries   []string              `yaml:"time_series"`
	Algorithms   []snapshotAlgorithm   `yaml:"algorithms"`
	Groups       []snapshotGroup       `yaml:"groups"`
	Computations []snapshotComputation `yaml:"computations"`
}

type snapshotAlgorithm struct {
	ID          int64               `yaml:"id"`
	Name        string              `yaml:"name"`
	ExecClass   string              `yaml:"exec_class"`
	Description string              `yaml:"description"`
	Properties  []comp.PropertySpec `yaml:"properties"`
}

type snapshotGroup struct {
	ID          int64              `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Description string             `yaml:"description"`
	Members     []string           `yaml:"members"`
	Include     []int64            `yaml:"include"`
	Exclude     []int64            `yaml:"exclude"`
	Intersect   []int64            `yaml:"intersect"`
	Filters     []group.PartFilter `yaml:"filters"`
}

type snapshotComputation struct {
	ID          int64             `yaml:"id"`
	Name        string            `yaml:"name"`
	AlgorithmID int64             `yaml:"algorithm_id"`
	AppID       int64             `yaml:"app_id"`
	Enabled     bool              `yaml:"enabled"`
	GroupID     int64             `yaml:"group_id"`
	Comment     string            `yaml:"comment"`
	Properties  map[string]string `yaml:"properties"`
	Parms       []snapshotParm    `yaml:"parms"`
	Referenced  bool              `yaml:"referenced"`
}

type snapshotParm struct {
	Role      string            `yaml:"role"`
	Direction string            `yaml:"direction"`
	Parts     map[string]string `yaml:"parts"`
}

// LoadSnapshot reads a YAML snapshot file into a new store.
func LoadSnapshot(path string, layout *tsid.Layout) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return ParseSnapshot(data, layout)
}

// ParseSnapshot builds a store from snapshot YAML. Group members that are not
// listed under time_series are added to it.
func ParseSnapshot(data []byte, layout *tsid.Layout) (*Store, error) {
	var snap snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	s := NewStore(layout)
	ctx := context.Background()

	for _, raw := range snap.TimeSeries {
		if _, err := s.createFromString(ctx, raw); err != nil {
			return nil, err
		}
	}

	for _, a := range snap.Algorithms {
		if a.ID <= 0 || a.Name == "" {
			return nil, fmt.Errorf("snapshot algorithm needs id and name (got id=%d name=%q)", a.ID, a.Name)
		}
		s.PutAlgorithm(&comp.Algorithm{
			ID:          a.ID,
			Name:        a.Name,
			ExecClass:   a.ExecClass,
			Description: a.Description,
			Properties:  a.Properties,
		})
	}

	// Groups are written before subgroup links are checked so that forward
	// and cyclic references load.
	for _, sg := range snap.Groups {
		g := &group.TsGroup{
			ID:          sg.ID,
			Name:        sg.Name,
			Type:        sg.Type,
			Description: sg.Description,
			Included:    sg.Include,
			Excluded:    sg.Exclude,
			Intersected: sg.Intersect,
			Filters:     sg.Filters,
		}
		for _, raw := range sg.Members {
			id, err := s.createFromString(ctx, raw)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", sg.Name, err)
			}
			g.AddMember(id)
		}
		if err := s.WriteGroup(ctx, g); err != nil {
			return nil, fmt.Errorf("group %q: %w", sg.Name, err)
		}
	}

	for _, sc := range snap.Computations {
		c := &comp.Computation{
			ID:          sc.ID,
			Name:        sc.Name,
			AlgorithmID: sc.AlgorithmID,
			AppID:       sc.AppID,
			Enabled:     sc.Enabled,
			GroupID:     sc.GroupID,
			Comment:     sc.Comment,
			Properties:  sc.Properties,
		}
		if a, ok := s.algorithms[sc.AlgorithmID]; ok {
			c.AlgorithmName = a.Name
		}
		for _, sp := range sc.Parms {
			dir, err := comp.ParseDirection(sp.Direction)
			if err != nil {
				return nil, fmt.Errorf("computation %q parm %q: %w", sc.Name, sp.Role, err)
			}
			pat, err := layout.NewPattern(sp.Parts)
			if err != nil {
				return nil, fmt.Errorf("computation %q parm %q: %w", sc.Name, sp.Role, err)
			}
			c.Parms = append(c.Parms, comp.Parm{Role: sp.Role, Direction: dir, Pattern: pat})
		}
		if err := s.WriteComputation(ctx, c); err != nil {
			return nil, fmt.Errorf("computation %q: %w", sc.Name, err)
		}
		if sc.Referenced {
			s.MarkReferenced(c.ID)
		}
	}

	return s, nil
}

func (s *Store) createFromString(ctx context.Context, raw string) (tsid.Identifier, error) {
	id, err := s.layout.Parse(raw)
	if err != nil {
		return tsid.Identifier{}, err
	}
	return s.CreateTimeSeries(ctx, id)
}
