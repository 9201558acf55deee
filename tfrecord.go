package voc2yolo

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	protos "github.com/sensorable/voc2yolo/protos"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordAnnotatedFile defines the TFRecord annotation structure for a single file.
type TFRecordAnnotatedFile struct {
	Annotations TFFeatureMap
	FilePath    string
}

// TFRecordLabelID returns the TFRecord label for a taxonomy class ID. Label 0 is reserved for the
// background class, so labels start at 1.
func TFRecordLabelID(classID int) int64 {
	return int64(classID) + 1
}

// toTFRecord converts the intermediate representation for a single file to the TFRecord format.
// Annotations with labels outside of names are skipped.
func toTFRecord(fileData AnnotatedFile, names *Taxonomy) (TFRecordAnnotatedFile, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(fileData.FilePath)
	if err != nil {
		return TFRecordAnnotatedFile{}, fmt.Errorf("failed to decode the image metadata: %w", err)
	}

	// Read the image data.
	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return TFRecordAnnotatedFile{}, fmt.Errorf("failed to read the image: %w", err)
	}

	// Prepare the feature map for the per file data.
	f := make(map[string]interface{}, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = fileData.FilePath
	f["image/source_id"] = fileData.FilePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	difficult := make([]int64, 0, numLabels)
	for _, a := range fileData.Annotations {
		id, ok := names.Lookup(a.Label)
		if !ok {
			continue
		}
		xmins = append(xmins, float32(a.Coords[0])/float32(img.Width))
		ymins = append(ymins, float32(a.Coords[1])/float32(img.Height))
		xmaxs = append(xmaxs, float32(a.Coords[2])/float32(img.Width))
		ymaxs = append(ymaxs, float32(a.Coords[3])/float32(img.Height))
		classes = append(classes, a.Label)
		classIDs = append(classIDs, TFRecordLabelID(id))

		var d int64
		if a.IsDifficult() {
			d = 1
		}
		difficult = append(difficult, d)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs
	f["image/object/difficult"] = difficult

	return TFRecordAnnotatedFile{
		Annotations: f,
		FilePath:    fileData.FilePath,
	}, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// The label map for names is written to labelMapPath. Files that fail to convert are logged and
// skipped.
func WriteTFRecord(recordFilePath, labelMapPath string, data []AnnotatedFile, names *Taxonomy,
	numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	closeShard := func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
			shardFile = nil
		}
	}
	defer closeShard()

	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1
	written := 0

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			closeShard()
			if err != nil {
				return err
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %w", shardPath, err)
			}
			shardFile = f
		}

		// Convert the file data to an example.
		tfFileData, err := toTFRecord(fileData, names)
		if err != nil {
			log.Printf("Failed to convert %q: %v", fileData.FilePath, err)
			continue
		}
		tfExample := example.New(tfFileData.Annotations)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %w", fileData.FilePath, err)
		}
		written++
	}
	log.Printf("Wrote %d of %d examples to %d shard(s)", written, len(data), shardIdx+1)

	return saveTFRecordLabelMap(labelMapPath, names)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map for names in prototxt format to path.
func saveTFRecordLabelMap(path string, names *Taxonomy) (err error) {
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, names.Len())
	for id, name := range names.Names() {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(name),
			Id:   proto.Int32(int32(TFRecordLabelID(id))),
		})
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}

	return nil
}

// LoadTFRecordLabelMap loads the label map at path and returns it as a taxonomy, with the class
// of label i at taxonomy ID i-1. Labels must be contiguous starting at 1.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func LoadTFRecordLabelMap(path string) (*Taxonomy, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	text, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, err
	}

	names := make([]string, len(siLabelMap.Item))
	for _, item := range siLabelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 || int(v) > len(names) || names[v-1] != "" {
			return nil, fmt.Errorf("invalid entry: %s: %d", k, v)
		}
		names[v-1] = k
	}

	return NewTaxonomy(names...)
}
