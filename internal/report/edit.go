package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashita-ai/archdoc/internal/model"
)

// ErrComponentNotFound is returned when an edit names no existing component.
var ErrComponentNotFound = errors.New("report: component not found")

// FindComponent returns the index of the component with the given id, falling
// back to the first component whose name matches key. It returns -1 if none match.
func FindComponent(d model.SystemDesign, key string) int {
	for i, c := range d.Architecture.Components {
		if c.ID != "" && c.ID == key {
			return i
		}
	}
	for i, c := range d.Architecture.Components {
		if c.Name == key {
			return i
		}
	}
	return -1
}

// EditComponent returns a copy of d in which the component identified by key
// is replaced with updated. Only the components slice is copied; every other
// field of the result shares its value with d. The replaced component keeps
// its id, and blank fields of updated keep the current value.
func EditComponent(d model.SystemDesign, key string, updated model.Component) (model.SystemDesign, error) {
	idx := FindComponent(d, key)
	if idx < 0 {
		return d, fmt.Errorf("%w: %s", ErrComponentNotFound, key)
	}
	cur := d.Architecture.Components[idx]

	next := cur.Clone()
	next.Name = keep(updated.Name, cur.Name)
	next.Type = keep(updated.Type, cur.Type)
	next.Purpose = keep(updated.Purpose, cur.Purpose)
	next.Scalability = keep(updated.Scalability, cur.Scalability)
	next.FaultTolerance = keep(updated.FaultTolerance, cur.FaultTolerance)
	if updated.Technologies != nil {
		next.Technologies = make(model.Strings, 0, len(updated.Technologies))
		for _, tech := range updated.Technologies {
			next.AddTechnology(strings.TrimSpace(tech))
		}
	}

	components := make([]model.Component, len(d.Architecture.Components))
	copy(components, d.Architecture.Components)
	components[idx] = next

	out := d
	out.Architecture.Components = components
	return out, nil
}

func keep(v, current string) string {
	if strings.TrimSpace(v) == "" {
		return current
	}
	return v
}
