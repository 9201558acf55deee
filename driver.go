package voc2yolo

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Split is a named subset of a dataset year, defined by a manifest of image IDs.
type Split struct {
	Year string // e.g. "2006"
	Name string // e.g. "trainval"
}

// String returns <name><year>, the name of the split's image and label directories.
func (s Split) String() string {
	return s.Name + s.Year
}

// ParseSplit parses a split given as <year>/<name>, e.g. "2006/trainval".
func ParseSplit(s string) (Split, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Split{}, fmt.Errorf("invalid split %q, expected <year>/<name>", s)
	}
	return Split{Year: parts[0], Name: parts[1]}, nil
}

// DefaultSplits are the splits of the VOC2006 release.
var DefaultSplits = []Split{
	{Year: "2006", Name: "trainval"},
	{Year: "2006", Name: "test"},
}

// SplitStats summarises the conversion of a split.
type SplitStats struct {
	Split   Split
	Images  int // Converted label files.
	Objects int // Objects in the source annotations.
	Written int // Label lines written.
}

// Converter converts VOC splits to the YOLO directory layout:
//
//	<DatasetDir>/images/<split><year>/<id>.<ext>
//	<DatasetDir>/labels/<split><year>/<id>.txt
type Converter struct {
	DevkitDir  string    // The VOCdevkit directory containing VOC<year> directories.
	DatasetDir string    // The output root for the images and labels directories.
	Names      *Taxonomy // The target classes; VOCClasses if nil.

	// Workers is the number of image IDs converted concurrently. Values below 2 convert
	// sequentially and stop at the first failing ID.
	Workers int

	// StageImages copies (or resizes, with ImageOptions) the source images into the image
	// directories. Otherwise the image directories are only created.
	StageImages  bool
	ImageOptions ImageOptions

	// Progress receives progress bars; io.Discard disables them and nil selects os.Stderr.
	Progress io.Writer
}

// ImageDir returns the image output directory for s.
func (c *Converter) ImageDir(s Split) string {
	return filepath.Join(c.DatasetDir, "images", s.String())
}

// LabelDir returns the label output directory for s.
func (c *Converter) LabelDir(s Split) string {
	return filepath.Join(c.DatasetDir, "labels", s.String())
}

func (c *Converter) names() *Taxonomy {
	if c.Names == nil {
		return VOCClasses
	}
	return c.Names
}

func (c *Converter) progress() io.Writer {
	if c.Progress == nil {
		return os.Stderr
	}
	return c.Progress
}

// ConvertSplits converts each split in order. It stops at the first split that fails and returns
// the statistics of the splits converted so far.
func (c *Converter) ConvertSplits(splits []Split) ([]SplitStats, error) {
	stats := make([]SplitStats, 0, len(splits))
	for _, s := range splits {
		st, err := c.ConvertSplit(s)
		if err != nil {
			return stats, err
		}
		log.Printf("Converted %d labels for %d images of %s", st.Written, st.Images, s)
		stats = append(stats, st)
	}
	return stats, nil
}

// ConvertSplit creates the image and label directories for s, reads its manifest and converts
// the annotation of every listed image ID.
func (c *Converter) ConvertSplit(s Split) (SplitStats, error) {
	stats := SplitStats{Split: s}

	imageDir := c.ImageDir(s)
	labelDir := c.LabelDir(s)
	for _, dir := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stats, fmt.Errorf("cannot create directory %q: %w", dir, err)
		}
	}

	ids, err := ReadImageSet(c.DevkitDir, s.Year, s.Name)
	if err != nil {
		return stats, err
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(c.progress()),
		progressbar.OptionSetDescription(s.String()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionShowIts(),
	)
	defer func() { _ = bar.Finish() }()

	record := func(st LabelStats) {
		stats.Images++
		stats.Objects += st.Objects
		stats.Written += st.Written
		_ = bar.Add(1)
	}

	if c.Workers < 2 {
		for _, id := range ids {
			st, err := c.convertImage(s, id)
			if err != nil {
				return stats, err
			}
			record(st)
		}
		return stats, nil
	}

	return stats, c.convertConcurrently(s, ids, record)
}

// convertConcurrently converts ids using c.Workers goroutines fed from a work queue. Each ID
// writes to its own output paths. After the first error no further IDs are dispatched.
func (c *Converter) convertConcurrently(s Split, ids []string, record func(LabelStats)) error {
	numTasks := c.Workers
	if len(ids) < numTasks {
		numTasks = len(ids)
	}
	workQueue := make(chan string, 2*numTasks)
	done := make(chan struct{})
	errors := make(chan error, 1)
	var mu sync.Mutex
	var wg sync.WaitGroup

	trySendError := func(err error) {
		select {
		case errors <- err:
			close(done)
		default:
		}
	}

	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for id := range workQueue {
				select {
				case <-done:
					continue // Drain.
				default:
				}
				st, err := c.convertImage(s, id)
				if err != nil {
					trySendError(err)
					continue
				}
				mu.Lock()
				record(st)
				mu.Unlock()
			}
		}()
	}

	// Feed the work queue until all IDs are queued or a worker failed.
feed:
	for _, id := range ids {
		select {
		case workQueue <- id:
		case <-done:
			break feed
		}
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if err, ok := <-errors; ok {
		return err
	}
	return nil
}

// convertImage writes the label file for id and stages its image if enabled.
func (c *Converter) convertImage(s Split, id string) (LabelStats, error) {
	labelPath := filepath.Join(c.LabelDir(s), id+".txt")
	st, err := ConvertLabel(c.DevkitDir, labelPath, s.Year, id, c.names())
	if err != nil {
		return st, fmt.Errorf("failed to convert %q of %s: %w", id, s, err)
	}

	if c.StageImages {
		src, err := FindImage(c.DevkitDir, s.Year, id)
		if err != nil {
			return st, err
		}
		if _, err := stageImage(src, c.ImageDir(s), c.ImageOptions); err != nil {
			return st, fmt.Errorf("failed to stage image %q: %w", src, err)
		}
	}

	return st, nil
}
