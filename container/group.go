package container

import "fmt"

// Group is a named collection of attributes and datasets inside a container.
type Group struct {
	f    *File
	name string

	attrs     map[string]attrValue
	attrOrder []string

	datasets map[string]*Dataset
	dsOrder  []string
}

type attrValue struct {
	kind byte
	s    string
	i    int64
	f    float64
}

// Name returns the group name.
func (g *Group) Name() string {
	return g.name
}

// SetAttr stores a scalar attribute. Supported value types are string,
// int64 and float64. Setting an existing attribute overwrites it.
func (g *Group) SetAttr(name string, value any) error {
	if g.f.closed {
		return ErrClosed
	}
	if !g.f.writable {
		return ErrReadOnly
	}

	var v attrValue
	switch val := value.(type) {
	case string:
		v = attrValue{kind: attrString, s: val}
	case int64:
		v = attrValue{kind: attrInt, i: val}
	case int:
		v = attrValue{kind: attrInt, i: int64(val)}
	case float64:
		v = attrValue{kind: attrFloat, f: val}
	default:
		return fmt.Errorf("container: unsupported attribute type %T", value)
	}

	if _, ok := g.attrs[name]; !ok {
		g.attrOrder = append(g.attrOrder, name)
	}
	g.attrs[name] = v
	g.f.dirty = true
	return nil
}

// AttrString returns a string attribute.
func (g *Group) AttrString(name string) (string, bool) {
	v, ok := g.attrs[name]
	if !ok || v.kind != attrString {
		return "", false
	}
	return v.s, true
}

// AttrInt returns an integer attribute.
func (g *Group) AttrInt(name string) (int64, bool) {
	v, ok := g.attrs[name]
	if !ok || v.kind != attrInt {
		return 0, false
	}
	return v.i, true
}

// AttrFloat returns a float attribute.
func (g *Group) AttrFloat(name string) (float64, bool) {
	v, ok := g.attrs[name]
	if !ok || v.kind != attrFloat {
		return 0, false
	}
	return v.f, true
}

// CreateDataset creates a chunked dataset in the group.
//
// cols is the number of columns per row (1 for 1D datasets). chunkRows is
// the number of rows grouped into one on-disk chunk. String datasets must
// have exactly one column.
func (g *Group) CreateDataset(name string, dtype DType, cols, chunkRows int) (*Dataset, error) {
	if g.f.closed {
		return nil, ErrClosed
	}
	if !g.f.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("container: dataset name cannot be empty")
	}
	if _, ok := g.datasets[name]; ok {
		return nil, fmt.Errorf("container: dataset %q already exists in group %q", name, g.name)
	}
	if !dtype.valid() {
		return nil, fmt.Errorf("container: invalid dtype %v", dtype)
	}
	if cols < 1 {
		return nil, fmt.Errorf("container: dataset needs at least one column, got %d", cols)
	}
	if dtype == String && cols != 1 {
		return nil, fmt.Errorf("container: string datasets are single-column")
	}
	if chunkRows < 1 {
		return nil, fmt.Errorf("container: chunkRows must be positive, got %d", chunkRows)
	}

	d := &Dataset{
		g:         g,
		name:      name,
		dtype:     dtype,
		codec:     g.f.codec,
		cols:      cols,
		chunkRows: chunkRows,
		cum:       []int64{0},
	}
	g.datasets[name] = d
	g.dsOrder = append(g.dsOrder, name)
	g.f.dirty = true
	return d, nil
}

// Dataset returns the named dataset.
func (g *Group) Dataset(name string) (*Dataset, bool) {
	d, ok := g.datasets[name]
	return d, ok
}

// HasDataset reports whether the named dataset exists.
func (g *Group) HasDataset(name string) bool {
	_, ok := g.datasets[name]
	return ok
}

// Datasets returns dataset names in creation order.
func (g *Group) Datasets() []string {
	out := make([]string, len(g.dsOrder))
	copy(out, g.dsOrder)
	return out
}
