package voc2yolo

// PASCAL VOC specific functionality.

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// VOCAnnotation is the annotation document for a single image.
type VOCAnnotation struct {
	Folder   string      `xml:"folder"`
	Filename string      `xml:"filename"`
	Size     VOCSize     `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

// VOCSize is the image size metadata.
type VOCSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// VOCObject is a single labelled object.
type VOCObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated string    `xml:"truncated"`
	Difficult string    `xml:"difficult"`
	BndBox    VOCBndBox `xml:"bndbox"`
}

// VOCBndBox is an axis-aligned box in absolute pixel coordinates.
type VOCBndBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

// Box returns the corners in the order xmin, xmax, ymin, ymax.
func (b VOCBndBox) Box() [4]float64 {
	return [4]float64{b.XMin, b.XMax, b.YMin, b.YMax}
}

// ClassName is the object name as written in the document. Surrounding whitespace is kept, so
// " person " does not match the person class.
func (o VOCObject) ClassName() string {
	return o.Name
}

// IsDifficult reports whether the difficult flag parses as the integer 1. The text is trimmed and
// parsed by cast.ToIntE, which also accepts base prefixes ("0x1") and a zero decimal part ("1.0").
// Missing or unparsable values are not difficult.
func (o VOCObject) IsDifficult() bool {
	return parseFlag(o.Difficult)
}

// IsTruncated reports whether the truncated flag parses as the integer 1, like IsDifficult.
func (o VOCObject) IsTruncated() bool {
	return parseFlag(o.Truncated)
}

func parseFlag(s string) bool {
	v, err := cast.ToIntE(strings.TrimSpace(s))
	return err == nil && v == 1
}

// vocYearDir returns <devkitDir>/VOC<year>.
func vocYearDir(devkitDir, year string) string {
	return filepath.Join(devkitDir, "VOC"+year)
}

// AnnotationPath returns <devkitDir>/VOC<year>/Annotations/<imageID>.xml.
func AnnotationPath(devkitDir, year, imageID string) string {
	return filepath.Join(vocYearDir(devkitDir, year), "Annotations", imageID+".xml")
}

// ImageSetPath returns <devkitDir>/VOC<year>/ImageSets/Main/<set>.txt.
func ImageSetPath(devkitDir, year, set string) string {
	return filepath.Join(vocYearDir(devkitDir, year), "ImageSets", "Main", set+".txt")
}

// DecodeVOC decodes a VOC annotation document from r.
func DecodeVOC(r io.Reader) (*VOCAnnotation, error) {
	var a VOCAnnotation
	if err := xml.NewDecoder(r).Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ParseVOCFile reads and decodes the annotation document at path.
func ParseVOCFile(path string) (a *VOCAnnotation, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	a, err = DecodeVOC(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse VOC annotation %q: %w", path, err)
	}
	return a, nil
}

// ReadImageSet returns the whitespace-separated image IDs listed in the manifest for set.
func ReadImageSet(devkitDir, year, set string) ([]string, error) {
	path := ImageSetPath(devkitDir, year, set)
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read image set %q: %w", path, err)
	}
	return strings.Fields(string(data)), nil
}

// Image directories searched for source images, in order.
var vocImageDirs = []string{"JPEGImages", "PNGImages"}

// Image file extensions searched for source images, in order.
var vocImageExts = []string{".jpg", ".jpeg", ".png"}

// FindImage returns the path of the source image for imageID.
func FindImage(devkitDir, year, imageID string) (string, error) {
	yearDir := vocYearDir(devkitDir, year)
	for _, dir := range vocImageDirs {
		for _, ext := range vocImageExts {
			path := filepath.Join(yearDir, dir, imageID+ext)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("no image found for %q in %q: %w", imageID, yearDir, os.ErrNotExist)
}

// FromVOC reads all annotations of a split into the intermediate representation. The file path
// of each AnnotatedFile is the source image.
func FromVOC(devkitDir string, split Split) (AnnotatedFiles, error) {
	ids, err := ReadImageSet(devkitDir, split.Year, split.Name)
	if err != nil {
		return nil, err
	}

	data := make(AnnotatedFiles, 0, len(ids))
	for _, id := range ids {
		a, err := ParseVOCFile(AnnotationPath(devkitDir, split.Year, id))
		if err != nil {
			return nil, err
		}
		imagePath, err := FindImage(devkitDir, split.Year, id)
		if err != nil {
			return nil, err
		}
		data = append(data, a.toAnnotatedFile(imagePath))
	}

	return data, nil
}

// toAnnotatedFile converts the document to the intermediate representation.
func (a *VOCAnnotation) toAnnotatedFile(imagePath string) AnnotatedFile {
	f := AnnotatedFile{
		Annotations: make([]Annotation, len(a.Objects)),
		FilePath:    imagePath,
	}
	for i, o := range a.Objects {
		f.Annotations[i] = Annotation{
			Attributes: map[string]interface{}{
				Difficult: o.IsDifficult(),
				Truncated: o.IsTruncated(),
				Pose:      strings.TrimSpace(o.Pose),
			},
			Coords: [4]float64{o.BndBox.XMin, o.BndBox.YMin, o.BndBox.XMax, o.BndBox.YMax},
			Label:  o.ClassName(),
		}
	}
	return f
}
