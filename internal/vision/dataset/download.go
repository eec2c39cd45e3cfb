package dataset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// progressInterval is how many bytes pass between progress log lines.
const progressInterval = 32 << 20 // 32 MiB

// Download fetches a tar.gz dataset archive over HTTP, extracts it into
// destDir and removes the archive. When destDir/train already exists
// the dataset is assumed present and nothing is downloaded.
func Download(ctx context.Context, url, destDir string) error {
	if _, err := os.Stat(filepath.Join(destDir, TrainDir)); err == nil {
		logrus.WithField("dir", destDir).Info("dataset already present, skipping download")
		return nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	archivePath := filepath.Join(destDir, filepath.Base(url))
	if err := fetch(ctx, url, archivePath); err != nil {
		return err
	}

	logrus.WithField("archive", archivePath).Info("extracting dataset")
	if err := extractTarGz(archivePath, destDir); err != nil {
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}

	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("remove archive: %w", err)
	}
	logrus.WithField("dir", destDir).Info("dataset ready")
	return nil
}

func fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	logrus.WithFields(logrus.Fields{
		"url":   url,
		"bytes": resp.ContentLength,
	}).Info("downloading dataset")

	reader := &progressReader{r: resp.Body, total: resp.ContentLength}
	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return out.Close()
}

// progressReader logs a progress line every progressInterval bytes.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastLog int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.read-p.lastLog >= progressInterval {
		p.lastLog = p.read
		fields := logrus.Fields{"read_mb": p.read >> 20}
		if p.total > 0 {
			fields["percent"] = 100 * p.read / p.total
		}
		logrus.WithFields(fields).Info("downloading")
	}
	return n, err
}

func extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
