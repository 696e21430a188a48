package dataset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const archiveURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"

// Download fetches the canonical binary archive into dir and unpacks
// the batch files. Files already on disk are kept.
func Download(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if _, err := resolveRoot(dir); err == nil {
		log.Printf("dataset already present under %s", dir)
		return nil
	}

	archivePath := filepath.Join(dir, filepath.Base(archiveURL))
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		log.Printf("downloading %s", archiveURL)
		if err := fetch(ctx, archiveURL, archivePath); err != nil {
			return err
		}
	}
	log.Printf("unpacking %s", archivePath)
	return unpack(archivePath, dir)
}

func fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dataset: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dataset: fetch %s: status %s", url, resp.Status)
	}

	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dataset: download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	return os.Rename(tmp, dst)
}

// unpack extracts every .bin entry of the tar.gz archive flat into dir.
func unpack(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("dataset: gunzip %s: %w", filepath.Base(archivePath), err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("dataset: read archive: %w", err)
		}
		name := filepath.Base(hdr.Name)
		if hdr.FileInfo().IsDir() || !strings.HasSuffix(name, ".bin") {
			continue
		}
		dst := filepath.Join(dir, name)
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("dataset: extract %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
	}
	return nil
}
