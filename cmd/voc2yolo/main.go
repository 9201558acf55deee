// Downloads the PASCAL VOC dataset and converts its XML annotations to YOLO label files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/voc2yolo"
)

var (
	datasetDirPath string   // The dataset root with the archives, images/ and labels/.
	devkitDirPath  string   // The extracted VOCdevkit directory.
	archiveURLs    []string // The archives to download.
	splits         []voc2yolo.Split

	skipDownload bool // Convert an already extracted devkit.
	skipExisting bool // Reuse archives that were downloaded before.
	numWorkers   int  // The number of images converted concurrently.

	stageImages  bool // Copy or resize the source images into images/.
	imageOptions = voc2yolo.DefaultImageOptions

	dataConfigPath           string // The YAML dataset config to write.
	tfRecordFilePath         string // The TFRecord output file.
	tfRecordLabelMapFilePath string // The TFRecord label map file.
	tfRecordKeepDifficult    bool   // Keep difficult objects in the TFRecord output.
	numShardFiles            int    // The number of shard files to create.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  Downloads VOC archives into -dir, extracts them and writes YOLO labels to")
		_, _ = fmt.Fprintln(os.Stderr, "  <dir>/labels/<split><year>/<id>.txt")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Path arguments.
	flag.StringVar(&datasetDirPath, "dir", filepath.Join("..", "datasets", "VOC"),
		"The dataset root `path`")
	flag.StringVar(&devkitDirPath, "devkit", "",
		"The VOCdevkit `path` (default <dir>/VOCdevkit)")
	urls := flag.String("urls", voc2yolo.VOC2006TrainvalURL+","+voc2yolo.VOC2006TestURL,
		"Comma-separated archive `urls` to download")
	splitList := flag.String("splits", "2006/trainval,2006/test",
		"Comma-separated `year/split` pairs to convert")

	// Processing arguments.
	flag.BoolVar(&skipDownload, "skip-download", skipDownload,
		"Do not download or extract archives")
	flag.BoolVar(&skipExisting, "skip-existing", skipExisting,
		"Reuse archives that already exist in -dir instead of downloading them again")
	flag.IntVar(&numWorkers, "workers", 1,
		"The number of images to convert concurrently")

	// Image arguments.
	flag.BoolVar(&stageImages, "stage-images", stageImages,
		"Copy the source images into <dir>/images/<split><year>")
	flag.StringVar(&imageOptions.Encoding, "image-enc", "",
		"The `encoding` for staged images {jpg, png} (empty keeps the source encoding)")
	flag.IntVar(&imageOptions.LongerSide, "resize-longer", 0,
		"The target `length` for the longer side of staged images (zero to keep aspect ratio)")
	flag.IntVar(&imageOptions.ShorterSide, "resize-shorter", 0,
		"The target `length` for the shorter side of staged images (zero to keep aspect ratio)")
	downsample := flag.String("downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	upsample := flag.String("upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageOptions.JPEGQuality, "jpeg-quality", imageOptions.JPEGQuality,
		"The quality to use when encoding JPEGs [1, 100]")

	// Output arguments.
	flag.StringVar(&dataConfigPath, "data-config", "",
		"Write the YAML dataset config for training to `path`")
	flag.StringVar(&tfRecordFilePath, "tfrecord-out", "",
		"Also write the converted splits as TFRecord to `path` (suffixed with -<split><year>)")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", "",
		"The TFRecord label map file `path` (default <tfrecord-out>.pbtxt)")
	flag.BoolVar(&tfRecordKeepDifficult, "tfrecord-keep-difficult", tfRecordKeepDifficult,
		"Keep objects marked as difficult in the TFRecord output")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create per split (tfrecord only)")

	flag.Parse()

	// Validate splits.
	for _, v := range strings.Split(*splitList, ",") {
		s, err := voc2yolo.ParseSplit(strings.TrimSpace(v))
		if err != nil {
			printUsageAndExit(err)
		}
		splits = append(splits, s)
	}

	// Validate URLs.
	if !skipDownload {
		for _, v := range strings.Split(*urls, ",") {
			if v = strings.TrimSpace(v); v != "" {
				archiveURLs = append(archiveURLs, v)
			}
		}
	}

	// Image processing arguments.
	var err error
	if imageOptions.DownsamplingFilter, err = voc2yolo.ResampleFilter(*downsample); err != nil {
		printUsageAndExit(err)
	}
	if imageOptions.UpsamplingFilter, err = voc2yolo.ResampleFilter(*upsample); err != nil {
		printUsageAndExit(err)
	}
	if imageOptions.LongerSide < 0 || imageOptions.ShorterSide < 0 {
		printUsageAndExit("Invalid resize length")
	}
	if imageOptions.JPEGQuality < 1 || imageOptions.JPEGQuality > 100 {
		imageOptions.JPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageOptions.JPEGQuality)
	}

	// Clean path arguments.
	datasetDirPath = filepath.Clean(datasetDirPath)
	if devkitDirPath == "" {
		devkitDirPath = filepath.Join(datasetDirPath, "VOCdevkit")
	}
	devkitDirPath = filepath.Clean(devkitDirPath)
	if tfRecordFilePath != "" && tfRecordLabelMapFilePath == "" {
		tfRecordLabelMapFilePath = tfRecordFilePath + ".pbtxt"
	}
}

func main() {
	ctx := context.Background()

	// Download and extract.
	downloader := &voc2yolo.Downloader{SkipExisting: skipExisting}
	for _, url := range archiveURLs {
		dest := filepath.Join(datasetDirPath, filepath.Base(url))
		res, err := downloader.DownloadAndExtract(ctx, url, dest)
		if err != nil {
			log.Fatal("Download failed: ", err)
		}
		if !res.Complete() {
			log.Printf("Warning: %q may be incomplete", res.Path)
		}
	}

	// Convert.
	converter := &voc2yolo.Converter{
		DevkitDir:    devkitDirPath,
		DatasetDir:   datasetDirPath,
		Names:        voc2yolo.VOCClasses,
		Workers:      numWorkers,
		StageImages:  stageImages,
		ImageOptions: imageOptions,
	}
	stats, err := converter.ConvertSplits(splits)
	if err != nil {
		log.Fatal("Conversion failed: ", err)
	}
	var numImages, numLabels int
	for _, st := range stats {
		numImages += st.Images
		numLabels += st.Written
	}

	// Write the dataset config for the detection framework.
	if dataConfigPath != "" {
		train, val := splits[:1], splits[1:]
		if len(val) == 0 {
			val = train
		}
		abs, err := filepath.Abs(datasetDirPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg := voc2yolo.NewDatasetConfig(abs, train, val, voc2yolo.VOCClasses)
		if err := voc2yolo.WriteDatasetConfig(dataConfigPath, cfg); err != nil {
			log.Fatal("Failed to write the dataset config: ", err)
		}
		log.Print("Wrote the dataset config to ", dataConfigPath)
	}

	// Write TFRecords.
	if tfRecordFilePath != "" {
		for _, s := range splits {
			data, err := voc2yolo.FromVOC(devkitDirPath, s)
			if err != nil {
				log.Fatal("Failed to read the annotations: ", err)
			}
			data.Filter(voc2yolo.VOCClasses, tfRecordKeepDifficult)

			outPath := tfRecordFilePath + "-" + s.String()
			err = voc2yolo.WriteTFRecord(outPath, tfRecordLabelMapFilePath, data,
				voc2yolo.VOCClasses, numShardFiles)
			if err != nil {
				log.Fatal("TFRecord conversion failed: ", err)
			}
			log.Printf("Successfully wrote labels for %d files to %s", len(data), outPath)
		}
	}

	log.Printf("Total number of labelled files: %d (%d labels)", numImages, numLabels)
}
