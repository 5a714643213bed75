package reconcile

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aevon-lab/compresolver/internal/core/comp"
)

// The export mirrors the computation-metadata XML other tools import, so a
// disposed computation can be restored by hand.
type xmlMetadata struct {
	XMLName      xml.Name         `xml:"CompMetaData"`
	Algorithms   []xmlAlgorithm   `xml:"Algorithm"`
	Computations []xmlComputation `xml:"Computation"`
}

type xmlAlgorithm struct {
	Name       string        `xml:"name,attr"`
	ExecClass  string        `xml:"ExecClass,omitempty"`
	Comment    string        `xml:"Comment,omitempty"`
	Properties []xmlProperty `xml:"AlgoProperty"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlComputation struct {
	Name          string        `xml:"name,attr"`
	ID            int64         `xml:"id,attr"`
	Comment       string        `xml:"Comment,omitempty"`
	Enabled       bool          `xml:"Enabled"`
	AlgorithmName string        `xml:"AlgorithmName"`
	AppID         string        `xml:"ApplicationName,omitempty"`
	Properties    []xmlProperty `xml:"CompProperty"`
	Parms         []xmlParm     `xml:"CompParm"`
}

type xmlParm struct {
	Role      string        `xml:"roleName,attr"`
	Direction string        `xml:"direction,attr"`
	Parts     []xmlProperty `xml:"Part"`
}

// WriteDisposed writes comps, and the algorithms they use, to path.
func WriteDisposed(path string, comps []*comp.Computation, algorithms comp.AlgorithmSource) error {
	doc := xmlMetadata{}
	seen := make(map[string]bool)

	for _, c := range comps {
		if a, ok := algorithms.Algorithm(c.AlgorithmID); ok && !seen[strings.ToLower(a.Name)] {
			seen[strings.ToLower(a.Name)] = true
			xa := xmlAlgorithm{Name: a.Name, ExecClass: a.ExecClass, Comment: a.Description}
			for _, p := range a.Properties {
				xa.Properties = append(xa.Properties, xmlProperty{Name: p.Name, Value: p.Default})
			}
			doc.Algorithms = append(doc.Algorithms, xa)
		}
		doc.Computations = append(doc.Computations, toXMLComputation(c))
	}
	sort.Slice(doc.Algorithms, func(i, j int) bool { return doc.Algorithms[i].Name < doc.Algorithms[j].Name })

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding disposed computations: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	if err := os.WriteFile(os.ExpandEnv(path), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func toXMLComputation(c *comp.Computation) xmlComputation {
	xc := xmlComputation{
		Name:          c.Name,
		ID:            c.ID,
		Comment:       c.Comment,
		Enabled:       c.Enabled,
		AlgorithmName: c.AlgorithmName,
	}
	if c.AppID != 0 {
		xc.AppID = strconv.FormatInt(c.AppID, 10)
	}

	names := make([]string, 0, len(c.Properties))
	for name := range c.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		xc.Properties = append(xc.Properties, xmlProperty{Name: name, Value: c.Properties[name]})
	}

	for _, p := range c.Parms {
		xp := xmlParm{Role: p.Role, Direction: string(p.Direction)}
		for _, part := range p.Pattern.Names() {
			xp.Parts = append(xp.Parts, xmlProperty{Name: part, Value: p.Pattern[part]})
		}
		xc.Parms = append(xc.Parms, xp)
	}
	return xc
}
