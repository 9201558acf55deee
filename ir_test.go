package voc2yolo

import (
	"strings"
	"testing"
)

func testAnnotation(label string, difficult bool) Annotation {
	return Annotation{
		Attributes: map[string]interface{}{Difficult: difficult},
		Coords:     [4]float64{1, 2, 11, 22},
		Label:      label,
	}
}

func labels(f AnnotatedFile) string {
	var l []string
	for _, a := range f.Annotations {
		l = append(l, a.Label)
	}
	return strings.Join(l, ",")
}

func TestAnnotationSize(t *testing.T) {
	a := testAnnotation("cat", false)
	if a.Width() != 10 || a.Height() != 20 {
		t.Errorf("size = %vx%v, want 10x20", a.Width(), a.Height())
	}
}

func TestAnnotatedFilesFilter(t *testing.T) {
	data := AnnotatedFiles{
		{FilePath: "a.png", Annotations: []Annotation{
			testAnnotation("person", false),
			testAnnotation("unicorn", false),
			testAnnotation("dog", true),
			testAnnotation("cat", false),
			testAnnotation("car", false),
		}},
		{FilePath: "b.png", Annotations: []Annotation{
			testAnnotation("dog", true),
		}},
		{FilePath: "c.png"},
	}

	data.Filter(VOCClasses, false)

	if len(data) != 3 {
		t.Fatalf("got %d files, want 3 (files are never removed)", len(data))
	}
	if got := labels(data[0]); got != "person,cat,car" {
		t.Errorf("labels = %q, want order preserved", got)
	}
	if got := labels(data[1]); got != "" {
		t.Errorf("labels = %q, want none", got)
	}
	if n := data.NumAnnotations(); n != 3 {
		t.Errorf("NumAnnotations() = %d, want 3", n)
	}
}

func TestAnnotatedFilesFilterKeepDifficult(t *testing.T) {
	data := AnnotatedFiles{
		{Annotations: []Annotation{
			testAnnotation("dog", true),
			testAnnotation("unicorn", true),
		}},
	}

	data.Filter(VOCClasses, true)

	if got := labels(data[0]); got != "dog" {
		t.Errorf("labels = %q, want %q", got, "dog")
	}
}
