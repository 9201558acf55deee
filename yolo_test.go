package voc2yolo

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeBox(t *testing.T) {
	got := NormalizeBox(500, 375, [4]float64{10, 490, 20, 370})
	want := YOLOBox{X: 0.498, Y: 0.5173333, Width: 0.96, Height: 0.9333333}

	const eps = 1e-6
	if math.Abs(got.X-want.X) > eps || math.Abs(got.Y-want.Y) > eps ||
		math.Abs(got.Width-want.Width) > eps || math.Abs(got.Height-want.Height) > eps {
		t.Errorf("NormalizeBox = %+v, want %+v", got, want)
	}
}

func TestNormalizeBoxFullImage(t *testing.T) {
	got := NormalizeBox(640, 480, [4]float64{0, 640, 0, 480})
	if got.Width != 1.0 || got.Height != 1.0 {
		t.Errorf("width, height = %v, %v, want 1, 1", got.Width, got.Height)
	}
	// The center is shifted by one pixel.
	if want := 319.0 / 640; math.Abs(got.X-want) > 1e-12 {
		t.Errorf("x = %v, want %v", got.X, want)
	}
}

func TestNormalizeBoxDeterministic(t *testing.T) {
	box := [4]float64{13.5, 271.25, 7, 199}
	first := NormalizeBox(333, 251, box)
	for i := 0; i < 10; i++ {
		if got := NormalizeBox(333, 251, box); got != first {
			t.Fatalf("NormalizeBox is not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestNormalizeBoxUnchecked(t *testing.T) {
	// Inverted and out-of-image boxes are not rejected.
	got := NormalizeBox(100, 100, [4]float64{50, 10, 0, 300})
	if got.Width >= 0 {
		t.Errorf("width = %v, want negative for xmin > xmax", got.Width)
	}
	if got.Height <= 1 {
		t.Errorf("height = %v, want > 1 for a box taller than the image", got.Height)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0.498, "0.498"},
		{1, "1.0"},
		{0, "0.0"},
		{-2.5, "-2.5"},
		{1.0 / 3, "0.3333333333333333"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{123456789, "123456789.0"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}

	for _, tt := range tests {
		if got := formatFloat(tt.v); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestYOLOAnnotationString(t *testing.T) {
	a := YOLOAnnotation{ClassID: 2, Box: NormalizeBox(100, 50, [4]float64{0, 10, 0, 10})}
	if got, want := a.String(), "2 0.04 0.08 0.1 0.2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// convertTestLabel writes doc as the annotation of id and converts it.
func convertTestLabel(t *testing.T, doc string) (string, LabelStats, error) {
	t.Helper()
	devkit := t.TempDir()
	writeAnnotation(t, devkit, "2006", "000001", doc)
	labelPath := filepath.Join(t.TempDir(), "000001.txt")
	stats, err := ConvertLabel(devkit, labelPath, "2006", "000001", VOCClasses)
	return labelPath, stats, err
}

// readLabelLines returns the lines of the label file at path.
func readLabelLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read label file: %v", err)
	}
	if len(data) == 0 {
		return nil
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Errorf("label file is not newline terminated: %q", data)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestConvertLabel(t *testing.T) {
	labelPath, stats, err := convertTestLabel(t, vocXML(500, 375,
		testObject{name: "person", difficult: "0", box: [4]float64{10, 490, 20, 370}}))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}

	lines := readLabelLines(t, labelPath)
	want := "14 0.498 0.5173333333333333 0.96 0.9333333333333333"
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("lines = %q, want [%q]", lines, want)
	}
	if stats != (LabelStats{Objects: 1, Written: 1}) {
		t.Errorf("stats = %+v, want 1 object, 1 written", stats)
	}
}

func TestConvertLabelFiltering(t *testing.T) {
	labelPath, stats, err := convertTestLabel(t, vocXML(200, 100,
		testObject{name: "dog", difficult: "0", box: [4]float64{0, 100, 0, 50}},
		testObject{name: "unicorn", difficult: "0", box: [4]float64{0, 10, 0, 10}},
		testObject{name: "person", difficult: "1", box: [4]float64{0, 10, 0, 10}},
		testObject{name: "giraffe", difficult: "1", box: [4]float64{0, 10, 0, 10}},
		testObject{name: "car", box: [4]float64{100, 200, 50, 100}},
		testObject{name: "cat", difficult: "2", box: [4]float64{0, 200, 0, 100}},
	))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}

	lines := readLabelLines(t, labelPath)
	want := []string{
		"11 0.245 0.24 0.5 0.5",
		"6 0.745 0.74 0.5 0.5",
		"7 0.495 0.49 1.0 1.0",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
	if stats.Objects != 6 || stats.Written != 3 {
		t.Errorf("stats = %+v, want 6 objects, 3 written", stats)
	}
}

func TestConvertLabelNoObjects(t *testing.T) {
	labelPath, stats, err := convertTestLabel(t, vocXML(500, 375,
		testObject{name: "person", difficult: "1", box: [4]float64{1, 2, 3, 4}}))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}

	info, err := os.Stat(labelPath)
	if err != nil {
		t.Fatalf("label file was not created: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("label file size = %d, want 0", info.Size())
	}
	if stats.Written != 0 {
		t.Errorf("written = %d, want 0", stats.Written)
	}
}

func TestConvertLabelTruncates(t *testing.T) {
	devkit := t.TempDir()
	writeAnnotation(t, devkit, "2006", "x", vocXML(10, 10))
	labelPath := filepath.Join(t.TempDir(), "x.txt")
	writeTestFile(t, labelPath, "stale content\n")

	if _, err := ConvertLabel(devkit, labelPath, "2006", "x", VOCClasses); err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}
	if lines := readLabelLines(t, labelPath); len(lines) != 0 {
		t.Errorf("lines = %q, want none", lines)
	}
}

func TestConvertLabelMissingAnnotation(t *testing.T) {
	labelPath := filepath.Join(t.TempDir(), "missing.txt")
	_, err := ConvertLabel(t.TempDir(), labelPath, "2006", "missing", VOCClasses)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
	if _, err := os.Stat(labelPath); !os.IsNotExist(err) {
		t.Errorf("label file should not be created, stat error: %v", err)
	}
}

func TestConvertLabelMalformed(t *testing.T) {
	if _, _, err := convertTestLabel(t, "<annotation><size><width>5"); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestConvertLabelInvalidSize(t *testing.T) {
	_, _, err := convertTestLabel(t, vocXML(0, 375,
		testObject{name: "person", box: [4]float64{1, 2, 3, 4}}))
	if err == nil || !strings.Contains(err.Error(), "invalid image size") {
		t.Errorf("expected invalid image size error, got %v", err)
	}
}

func TestConvertLabelZeroSizeWithoutObjects(t *testing.T) {
	labelPath, stats, err := convertTestLabel(t, vocXML(0, 0,
		testObject{name: "unicorn", box: [4]float64{1, 2, 3, 4}},
		testObject{name: "person", difficult: "1", box: [4]float64{1, 2, 3, 4}}))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}
	if lines := readLabelLines(t, labelPath); len(lines) != 0 {
		t.Errorf("lines = %q, want none", lines)
	}
	if stats != (LabelStats{Objects: 2}) {
		t.Errorf("stats = %+v, want 2 objects, 0 written", stats)
	}
}

func TestConvertLabelNegativeSize(t *testing.T) {
	labelPath, _, err := convertTestLabel(t, vocXML(-100, 100,
		testObject{name: "person", box: [4]float64{0, 10, 0, 10}}))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}
	lines := readLabelLines(t, labelPath)
	if want := "14 -0.04 0.04 -0.1 0.1"; len(lines) != 1 || lines[0] != want {
		t.Errorf("lines = %q, want [%q]", lines, want)
	}
}

func TestConvertLabelPaddedClassName(t *testing.T) {
	labelPath, stats, err := convertTestLabel(t, vocXML(100, 100,
		testObject{name: " person ", box: [4]float64{0, 10, 0, 10}}))
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}
	if lines := readLabelLines(t, labelPath); len(lines) != 0 {
		t.Errorf("lines = %q, want none", lines)
	}
	if stats.Written != 0 {
		t.Errorf("written = %d, want 0", stats.Written)
	}
}

func TestConvertLabelCustomTaxonomy(t *testing.T) {
	devkit := t.TempDir()
	writeAnnotation(t, devkit, "2006", "x", vocXML(100, 100,
		testObject{name: "person", box: [4]float64{0, 100, 0, 100}},
		testObject{name: "dog", box: [4]float64{0, 100, 0, 100}}))
	labelPath := filepath.Join(t.TempDir(), "x.txt")

	names := MustTaxonomy("dog")
	stats, err := ConvertLabel(devkit, labelPath, "2006", "x", names)
	if err != nil {
		t.Fatalf("ConvertLabel failed: %v", err)
	}
	lines := readLabelLines(t, labelPath)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "0 ") {
		t.Errorf("lines = %q, want a single class 0 line", lines)
	}
	if stats.Written > stats.Objects {
		t.Errorf("written %d > objects %d", stats.Written, stats.Objects)
	}
}
