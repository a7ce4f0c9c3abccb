package featpack

import (
	"fmt"

	"github.com/featpack/featpack/container"
)

// ItemSet is an ordered collection of unique item identifiers. The position
// of an identifier in the set defines its row block in every other dataset
// of the group.
type ItemSet struct {
	names []string
	pos   map[string]int
}

// NewItemSet validates an ordered sequence of identifiers.
func NewItemSet(names []string) (*ItemSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no items given", ErrValidation)
	}

	pos := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty item identifier at position %d", ErrValidation, i)
		}
		if _, ok := pos[name]; ok {
			return nil, fmt.Errorf("%w: duplicate item %q", ErrValidation, name)
		}
		pos[name] = i
	}

	return &ItemSet{names: names, pos: pos}, nil
}

// Len returns the number of items.
func (s *ItemSet) Len() int {
	return len(s.names)
}

// Names returns the identifiers in insertion order.
func (s *ItemSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether the set holds the given identifier.
func (s *ItemSet) Contains(name string) bool {
	_, ok := s.pos[name]
	return ok
}

func (s *ItemSet) create(g *container.Group, chunkMB float64) error {
	_, err := g.CreateDataset(datasetItems, container.String, 1, linesPerChunk(itemNameBytes, chunkMB))
	return err
}

func (s *ItemSet) write(g *container.Group) error {
	d, ok := g.Dataset(datasetItems)
	if !ok {
		return fmt.Errorf("featpack: group %q has no items dataset", g.Name())
	}
	return d.AppendStrings(s.names)
}
