package voc2yolo

// YOLO specific functionality.

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// YOLOBox is a bounding box in normalised center form. All values are fractions of the image
// width or height.
type YOLOBox struct {
	X      float64 // Center x.
	Y      float64 // Center y.
	Width  float64
	Height float64
}

// YOLOAnnotation is a single line within a YOLO label file.
type YOLOAnnotation struct {
	ClassID int
	Box     YOLOBox
}

// String formats the annotation as "<class> <x> <y> <w> <h>".
func (a YOLOAnnotation) String() string {
	return strings.Join([]string{
		strconv.Itoa(a.ClassID),
		formatFloat(a.Box.X),
		formatFloat(a.Box.Y),
		formatFloat(a.Box.Width),
		formatFloat(a.Box.Height),
	}, " ")
}

// LabelStats counts the objects of an annotation document and the label lines written for it.
type LabelStats struct {
	Objects int // Objects in the source document.
	Written int // Lines in the label file.
}

// NormalizeBox converts a pixel box given as xmin, xmax, ymin, ymax into center form relative
// to an image of the given size.
//
// Both center coordinates are shifted by one pixel before scaling. Boxes are not clipped or
// validated, so out of range input yields out of range or negative output.
func NormalizeBox(width, height int, box [4]float64) YOLOBox {
	dw := 1. / float64(width)
	dh := 1. / float64(height)
	x := (box[0]+box[1])/2.0 - 1
	y := (box[2]+box[3])/2.0 - 1
	w := box[1] - box[0]
	h := box[3] - box[2]
	return YOLOBox{X: x * dw, Y: y * dh, Width: w * dw, Height: h * dh}
}

// ToYOLO returns the YOLO annotations for the objects of a that are part of names and not
// difficult, in document order.
func (a *VOCAnnotation) ToYOLO(names *Taxonomy) []YOLOAnnotation {
	out := make([]YOLOAnnotation, 0, len(a.Objects))
	for _, o := range a.Objects {
		id, ok := names.Lookup(o.ClassName())
		if !ok || o.IsDifficult() {
			continue
		}
		out = append(out, YOLOAnnotation{
			ClassID: id,
			Box:     NormalizeBox(a.Size.Width, a.Size.Height, o.BndBox.Box()),
		})
	}
	return out
}

// ConvertLabel converts the VOC annotation of imageID to a YOLO label file at labelPath.
//
// The label file is truncated before the annotation is decoded, so it exists (possibly empty)
// whenever the annotation file could be opened. A zero width or height is an error if any object
// is converted; other sizes, negative ones included, are used as given.
func ConvertLabel(devkitDir, labelPath, year, imageID string, names *Taxonomy) (
	stats LabelStats, err error) {

	inPath := AnnotationPath(devkitDir, year, imageID)
	in, err := os.Open(inPath)
	if err != nil {
		return stats, err
	}
	defer closeWithErrCheck(in, &err)

	out, err := os.Create(labelPath)
	if err != nil {
		return stats, err
	}
	defer closeWithErrCheck(out, &err)

	a, err := DecodeVOC(in)
	if err != nil {
		return stats, fmt.Errorf("failed to parse VOC annotation %q: %w", inPath, err)
	}
	stats.Objects = len(a.Objects)
	labels := a.ToYOLO(names)
	// Only a zero dimension is rejected, and only when there is a box to scale by it.
	if len(labels) > 0 && (a.Size.Width == 0 || a.Size.Height == 0) {
		return stats, fmt.Errorf("invalid image size %dx%d in %q", a.Size.Width, a.Size.Height,
			inPath)
	}

	w := bufio.NewWriter(out)
	for _, y := range labels {
		if _, err := fmt.Fprintln(w, y.String()); err != nil {
			return stats, err
		}
		stats.Written++
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write %q: %w", labelPath, err)
	}

	return stats, nil
}

// formatFloat formats v with the shortest representation that round-trips, the way Python's
// repr does: integral values keep a ".0" and the exponent form is only used outside
// [1e-4, 1e16).
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	i := strings.LastIndexByte(s, 'e')
	if i < 0 { // NaN, Inf
		return strings.ToLower(strings.TrimPrefix(s, "+"))
	}
	exp, err := strconv.Atoi(s[i+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return s
	}

	s = strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
