package voc2yolo

// Dataset archive download and extraction.

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// The VOC2006 archives.
const (
	VOC2006TrainvalURL = "http://host.robots.ox.ac.uk/pascal/VOC/download/voc2006_trainval.tar"
	VOC2006TestURL     = "http://host.robots.ox.ac.uk/pascal/VOC/download/voc2006_test.tar"
)

// blockSize is the size of the chunks the response body is copied in.
const blockSize = 1024

// StatusError is returned when the server responds with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download %s: %d %s", e.URL, e.StatusCode,
		http.StatusText(e.StatusCode))
}

// DownloadResult describes the outcome of DownloadAndExtract.
type DownloadResult struct {
	URL       string
	Path      string // The archive on disk.
	Skipped   bool   // The archive existed and was not downloaded again.
	Expected  int64  // Declared content length; -1 if unknown.
	Received  int64  // Bytes written to Path.
	Extracted int    // Archive entries written.
}

// Complete reports whether the received byte count matches the declared content length. It is
// true if the length was unknown or the download was skipped.
func (r DownloadResult) Complete() bool {
	return r.Skipped || r.Expected <= 0 || r.Expected == r.Received
}

// Downloader fetches dataset archives over HTTP.
type Downloader struct {
	Client *http.Client // http.DefaultClient if nil.

	// SkipExisting reuses an archive that already exists at the destination instead of
	// downloading it again. It is still extracted.
	SkipExisting bool

	// Progress receives the progress bar; io.Discard disables it and nil selects os.Stderr.
	Progress io.Writer
}

func (d *Downloader) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Downloader) progress() io.Writer {
	if d.Progress == nil {
		return os.Stderr
	}
	return d.Progress
}

// DownloadAndExtract downloads url to destPath, creating its parent directory if needed, and
// extracts the tar archive into that parent directory, overwriting existing files.
//
// A non-2xx response is returned as a *StatusError and nothing is extracted. A mismatch between
// the declared and received length is logged and reported via DownloadResult.Complete, but
// extraction is still attempted.
func (d *Downloader) DownloadAndExtract(ctx context.Context, url, destPath string) (
	DownloadResult, error) {

	res := DownloadResult{URL: url, Path: destPath, Expected: -1}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return res, fmt.Errorf("cannot create directory %q: %w", destDir, err)
	}

	if info, err := os.Stat(destPath); d.SkipExisting && err == nil && info.Mode().IsRegular() {
		log.Printf("Using existing archive %q", destPath)
		res.Skipped = true
		res.Received = info.Size()
	} else if err := d.download(ctx, &res); err != nil {
		return res, err
	}

	if !res.Complete() {
		log.Printf("Incomplete download of %s: received %d of %d bytes", url, res.Received,
			res.Expected)
	}

	n, err := ExtractTar(destPath, destDir)
	res.Extracted = n
	if err != nil {
		return res, err
	}
	log.Printf("Extracted %d entries from %q", n, destPath)

	return res, nil
}

// download streams res.URL to res.Path.
func (d *Downloader) download(ctx context.Context, res *DownloadResult) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", res.URL, err)
	}
	defer closeWithErrCheck(resp.Body, &err)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Failed to download the dataset from %s: %s", res.URL, resp.Status)
		return &StatusError{URL: res.URL, StatusCode: resp.StatusCode}
	}
	res.Expected = resp.ContentLength

	f, err := os.Create(res.Path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	bar := progressbar.NewOptions64(res.Expected,
		progressbar.OptionSetWriter(d.progress()),
		progressbar.OptionSetDescription(filepath.Base(res.Path)),
		progressbar.OptionShowBytes(true),
	)
	defer func() { _ = bar.Finish() }()

	res.Received, err = io.CopyBuffer(io.MultiWriter(f, bar), resp.Body, make([]byte, blockSize))
	if err != nil {
		return fmt.Errorf("failed to download %s to %q: %w", res.URL, res.Path, err)
	}
	return nil
}

// ExtractTar extracts the tar archive at path, which may be gzip compressed, into dir. Returns the
// number of entries written.
func ExtractTar(path, dir string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer closeWithErrCheck(f, &err)

	// Detect gzip compression by its magic bytes.
	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(2); bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(br); err != nil {
			return 0, fmt.Errorf("failed to read %q: %w", path, err)
		}
		defer closeWithErrCheck(gz, &err)
		r = gz
	}

	n, err = extractTar(tar.NewReader(r), dir)
	if err != nil {
		return n, fmt.Errorf("failed to extract %q: %w", path, err)
	}
	return n, nil
}

// extractTar writes the directories and regular files of tr into dir. Other entry types are
// skipped.
func extractTar(tr *tar.Reader, dir string) (int, error) {
	root := filepath.Clean(dir)
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		target := filepath.Join(root, hdr.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return n, fmt.Errorf("illegal path %q in archive", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return n, err
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := writeTarEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return n, err
			}
		default:
			log.Printf("Skipping archive entry %q of type %q", hdr.Name, hdr.Typeflag)
			continue
		}
		n++
	}
}

// writeTarEntry writes the current entry of r to path, replacing an existing file.
func writeTarEntry(r io.Reader, path string, perm os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	_, err = io.Copy(f, r)
	return err
}
