package voc2yolo

// Training, evaluation and export through an external YOLO framework.

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Detector is a YOLO model managed by an external detection framework.
type Detector interface {
	// Train trains the model and returns the path of the best weights.
	Train(ctx context.Context, opts TrainOptions) (string, error)
	// Validate evaluates the model on the validation split of its dataset.
	Validate(ctx context.Context) error
	// Predict runs inference on source (a file, directory or URL) and returns the output
	// directory.
	Predict(ctx context.Context, source string) (string, error)
	// Export converts the model to format, e.g. "onnx", and returns the exported path.
	Export(ctx context.Context, format string) (string, error)
}

// TrainOptions are the training parameters.
type TrainOptions struct {
	Data      string // Dataset config path.
	Epochs    int
	ImageSize int    // Square input size in pixels.
	Device    string // e.g. "cpu", "0", "mps"; empty lets the framework choose.
}

// CommandRunner runs an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// YOLOCommand implements Detector by invoking the "yolo" command line interface.
type YOLOCommand struct {
	Executable string // "yolo" if empty.
	Model      string // Architecture config (e.g. "yolov8n.yaml") or weights path.
	Project    string // Output root, "runs/detect" if empty.
	Name       string // Training run name, "train" if empty.

	// Output receives the framework's stdout and stderr; os.Stderr if nil. Ignored if Run is set.
	Output io.Writer
	// Run executes commands; a runner based on os/exec if nil.
	Run CommandRunner

	// Set by Train.
	data      string
	imageSize int
	device    string
}

// exportSuffixes maps export formats to the suffix that replaces the ".pt" weights extension.
var exportSuffixes = map[string]string{
	"torchscript": ".torchscript",
	"onnx":        ".onnx",
	"openvino":    "_openvino_model",
	"engine":      ".engine",
	"coreml":      ".mlpackage",
	"saved_model": "_saved_model",
	"pb":          ".pb",
	"paddle":      "_paddle_model",
	"ncnn":        "_ncnn_model",
}

// NewYOLOCommand returns a detector for model with default settings.
func NewYOLOCommand(model string) *YOLOCommand {
	return &YOLOCommand{Model: model}
}

func (y *YOLOCommand) project() string {
	if y.Project == "" {
		return filepath.Join("runs", "detect")
	}
	return y.Project
}

func (y *YOLOCommand) name() string {
	if y.Name == "" {
		return "train"
	}
	return y.Name
}

// Weights returns the path of the best weights written by Train.
func (y *YOLOCommand) Weights() string {
	return filepath.Join(y.project(), y.name(), "weights", "best.pt")
}

// Train implements Detector. On success the model is replaced by the trained weights.
func (y *YOLOCommand) Train(ctx context.Context, opts TrainOptions) (string, error) {
	if opts.Data == "" {
		return "", fmt.Errorf("missing dataset config")
	}
	args := []string{"detect", "train", arg("model", y.Model), arg("data", opts.Data)}
	if opts.Epochs > 0 {
		args = append(args, arg("epochs", strconv.Itoa(opts.Epochs)))
	}
	if opts.ImageSize > 0 {
		args = append(args, arg("imgsz", strconv.Itoa(opts.ImageSize)))
	}
	if opts.Device != "" {
		args = append(args, arg("device", opts.Device))
	}
	args = append(args, arg("project", y.project()), arg("name", y.name()), arg("exist_ok", "True"))

	if err := y.run(ctx, args...); err != nil {
		return "", fmt.Errorf("training failed: %w", err)
	}

	y.Model = y.Weights()
	y.data = opts.Data
	y.imageSize = opts.ImageSize
	y.device = opts.Device
	return y.Model, nil
}

// Validate implements Detector.
func (y *YOLOCommand) Validate(ctx context.Context) error {
	args := append([]string{"detect", "val", arg("model", y.Model)}, y.sessionArgs()...)
	if err := y.run(ctx, args...); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Predict implements Detector.
func (y *YOLOCommand) Predict(ctx context.Context, source string) (string, error) {
	args := []string{"detect", "predict", arg("model", y.Model), arg("source", source)}
	if y.device != "" {
		args = append(args, arg("device", y.device))
	}
	args = append(args, arg("project", y.project()), arg("name", "predict"), arg("exist_ok", "True"))
	if err := y.run(ctx, args...); err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	return filepath.Join(y.project(), "predict"), nil
}

// Export implements Detector.
func (y *YOLOCommand) Export(ctx context.Context, format string) (string, error) {
	suffix, ok := exportSuffixes[format]
	if !ok {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	if err := y.run(ctx, "export", arg("model", y.Model), arg("format", format)); err != nil {
		return "", fmt.Errorf("export to %s failed: %w", format, err)
	}
	return strings.TrimSuffix(y.Model, filepath.Ext(y.Model)) + suffix, nil
}

// sessionArgs returns the dataset, image size and device used for training, if any.
func (y *YOLOCommand) sessionArgs() []string {
	var args []string
	if y.data != "" {
		args = append(args, arg("data", y.data))
	}
	if y.imageSize > 0 {
		args = append(args, arg("imgsz", strconv.Itoa(y.imageSize)))
	}
	if y.device != "" {
		args = append(args, arg("device", y.device))
	}
	return args
}

func (y *YOLOCommand) run(ctx context.Context, args ...string) error {
	name := y.Executable
	if name == "" {
		name = "yolo"
	}
	if y.Run != nil {
		return y.Run(ctx, name, args...)
	}

	out := y.Output
	if out == nil {
		out = os.Stderr
	}
	log.Printf("Running %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// arg formats a key=value argument.
func arg(key, value string) string {
	return key + "=" + value
}
