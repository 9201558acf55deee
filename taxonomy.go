package voc2yolo

import "fmt"

// Taxonomy is an immutable, ordered set of class names. The class ID of a name is its zero-based
// position. A Taxonomy is safe to share between goroutines.
type Taxonomy struct {
	names []string
	index map[string]int
}

// VOCClasses is the 20 class PASCAL VOC taxonomy.
var VOCClasses = MustTaxonomy(
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
)

// NewTaxonomy returns a taxonomy for the given class names. Names must be non-empty and unique.
func NewTaxonomy(names ...string) (*Taxonomy, error) {
	t := &Taxonomy{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty class name at index %d", i)
		}
		if j, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate class name %q at index %d and %d", name, j, i)
		}
		t.names[i] = name
		t.index[name] = i
	}
	return t, nil
}

// MustTaxonomy is like NewTaxonomy but panics on invalid names.
func MustTaxonomy(names ...string) *Taxonomy {
	t, err := NewTaxonomy(names...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the class ID for name. The bool is false if name is not part of the taxonomy.
func (t *Taxonomy) Lookup(name string) (int, bool) {
	id, ok := t.index[name]
	return id, ok
}

// Name returns the class name for id.
func (t *Taxonomy) Name(id int) (string, bool) {
	if id < 0 || id >= len(t.names) {
		return "", false
	}
	return t.names[id], true
}

// Len is the number of classes.
func (t *Taxonomy) Len() int {
	return len(t.names)
}

// Names returns a copy of the class names in ID order.
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}
