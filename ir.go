package voc2yolo

// The intermediate annotation metadata representation.

import (
	"log"
)

// Keys for known annotation attributes.
const (
	Difficult = "Difficult" // Hard to localise or classify. Type bool.
	Truncated = "Truncated" // The object extends beyond the image. Type bool.
	Pose      = "Pose"      // Free-form viewpoint, e.g. "Frontal". Type string.
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Attributes map[string]interface{} // Additional attributes of this annotation.
	Coords     [4]float64             // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label      string
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// IsDifficult reports whether the Difficult attribute is set.
func (a Annotation) IsDifficult() bool {
	d, _ := a.Attributes[Difficult].(bool)
	return d
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated file.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// NumAnnotations is the total number of annotations over all files.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// Filter removes annotations whose label is not part of names and, unless keepDifficult is set,
// annotations marked as difficult. The relative order of the remaining annotations is preserved.
// Files are kept even if all of their annotations are removed.
func (data *AnnotatedFiles) Filter(names *Taxonomy, keepDifficult bool) {
	numLabelsBeforeFilter := 0
	numLabelsAfterFilter := 0

	for dataIdx := range *data {
		d := &(*data)[dataIdx]
		numLabelsBeforeFilter += len(d.Annotations)

		kept := d.Annotations[:0]
		for _, a := range d.Annotations {
			if _, ok := names.Lookup(a.Label); !ok {
				continue
			}
			if !keepDifficult && a.IsDifficult() {
				continue
			}
			kept = append(kept, a)
		}
		d.Annotations = kept

		numLabelsAfterFilter += len(d.Annotations)
	}

	log.Printf("Filtered out %d of %d labels",
		numLabelsBeforeFilter-numLabelsAfterFilter, numLabelsBeforeFilter)
}
