package voc2yolo

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ImageOptions controls how source images are placed into the dataset image directories. The
// zero value copies the source files unchanged.
type ImageOptions struct {
	LongerSide  int    // Target length of the longer side; zero keeps the aspect ratio.
	ShorterSide int    // Target length of the shorter side; zero keeps the aspect ratio.
	Encoding    string // "jpg" or "png"; empty keeps the source encoding.
	JPEGQuality int    // Quality for JPEG outputs in [1, 100].

	DownsamplingFilter imaging.ResampleFilter
	UpsamplingFilter   imaging.ResampleFilter
}

// DefaultImageOptions copies images unchanged but has sensible filters and quality set for when
// resizing or re-encoding is enabled.
var DefaultImageOptions = ImageOptions{
	JPEGQuality:        90,
	DownsamplingFilter: imaging.Box,
	UpsamplingFilter:   imaging.Linear,
}

func (o ImageOptions) resize() bool {
	return o.LongerSide > 0 || o.ShorterSide > 0
}

// ResampleFilter returns the imaging filter for name, one of nearest, box, linear, gaussian and
// lanczos.
func ResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// imageFileExt returns the output file extension for encoding, or the extension of srcPath when
// encoding is empty.
func imageFileExt(encoding, srcPath string) (string, error) {
	switch strings.ToLower(encoding) {
	case "":
		return strings.ToLower(filepath.Ext(srcPath)), nil
	case "jpg", "jpeg":
		return ".jpg", nil
	case "png":
		return ".png", nil
	}
	return "", fmt.Errorf("unsupported output encoding %q", encoding)
}

// stageImage places the image at srcPath into outDir, named after the source file with the
// extension given by the options. The image is only decoded if it needs to be resized or
// re-encoded. Returns the output path.
func stageImage(srcPath, outDir string, opts ImageOptions) (string, error) {
	_, baseNoExt, srcExt, err := splitPath(srcPath)
	if err != nil {
		return "", err
	}
	fileExt, err := imageFileExt(opts.Encoding, srcPath)
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, baseNoExt+fileExt)

	reencode := fileExt != "."+strings.ToLower(srcExt)
	if !opts.resize() && !reencode {
		return outPath, copyFile(outPath, srcPath)
	}

	img, _, err := loadImage(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to load %q: %w", srcPath, err)
	}
	if opts.resize() {
		img, _, _, err = resizeImage(img, opts.LongerSide, opts.ShorterSide,
			opts.DownsamplingFilter, opts.UpsamplingFilter)
		if err != nil {
			return "", err
		}
	}
	if err := saveImage(outPath, img, opts.JPEGQuality); err != nil {
		return "", fmt.Errorf("failed to save %q: %w", outPath, err)
	}
	return outPath, nil
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
	resized image.Image, scaleWidth, scaleHeight float64, err error) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()
	if imgWidth == 0 || imgHeight == 0 {
		return nil, 0, 0, fmt.Errorf("cannot resize an empty image")
	}

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	var filter imaging.ResampleFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	} else {
		filter = upsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight, nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path and returns the results of image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}

// Saves the image to path, encoding it as PNG or JPG, depending on the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
