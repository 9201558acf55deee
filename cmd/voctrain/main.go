// Trains, validates and exports a YOLO model on a converted dataset through the yolo command line
// interface of the detection framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sensorable/voc2yolo"
)

var (
	executable    string // The framework's command line interface.
	model         string // The model architecture or weights.
	dataConfig    string // The YAML dataset config.
	epochs        int
	imageSize     int
	device        string
	project       string // The output root for runs.
	runName       string
	predictSource string // An image, directory or URL to predict on after training.
	exportFormat  string // The export format, e.g. onnx.
	skipValidate  bool
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	flag.StringVar(&executable, "yolo", "yolo", "The detection framework `command`")
	flag.StringVar(&model, "model", "yolov8n.yaml",
		"The model architecture config or weights `path`")
	flag.StringVar(&dataConfig, "data", "VOC.yaml", "The dataset config `path`")
	flag.IntVar(&epochs, "epochs", 3, "The number of training epochs")
	flag.IntVar(&imageSize, "imgsz", 640, "The input image `size` in pixels")
	flag.StringVar(&device, "device", "", "The `device` to train on, e.g. cpu, 0 or mps")
	flag.StringVar(&project, "project", "", "The output `path` for runs (default runs/detect)")
	flag.StringVar(&runName, "name", "", "The training run `name` (default train)")
	flag.StringVar(&predictSource, "predict", "https://ultralytics.com/images/bus.jpg",
		"An image, directory or URL (`source`) to run prediction on after training; empty disables it")
	flag.StringVar(&exportFormat, "export", "onnx",
		"The export `format`; empty disables the export")
	flag.BoolVar(&skipValidate, "skip-val", skipValidate, "Skip validation after training")

	flag.Parse()

	if epochs <= 0 {
		printUsageAndExit("Invalid -epochs")
	} else if imageSize <= 0 {
		printUsageAndExit("Invalid -imgsz")
	}

	// Fail early on broken local dataset configs.
	if err := voc2yolo.CheckDatasetConfig(dataConfig); err != nil {
		printUsageAndExit("Invalid dataset config: ", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var detector voc2yolo.Detector = &voc2yolo.YOLOCommand{
		Executable: executable,
		Model:      model,
		Project:    project,
		Name:       runName,
	}

	weights, err := detector.Train(ctx, voc2yolo.TrainOptions{
		Data:      dataConfig,
		Epochs:    epochs,
		ImageSize: imageSize,
		Device:    device,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Print("Trained weights: ", weights)

	if !skipValidate {
		if err := detector.Validate(ctx); err != nil {
			log.Fatal(err)
		}
	}

	if predictSource != "" {
		dir, err := detector.Predict(ctx, predictSource)
		if err != nil {
			log.Fatal(err)
		}
		log.Print("Predictions saved to ", dir)
	}

	if exportFormat != "" {
		path, err := detector.Export(ctx, exportFormat)
		if err != nil {
			log.Fatal(err)
		}
		log.Print("Exported model: ", path)
	}
}
