package provisioner

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TarDirectory writes a gzipped tarball of dir to out. Entries are
// stored relative to the directory's parent so the archive unpacks to
// a single top-level folder.
func TarDirectory(dir, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	base := filepath.Dir(dir)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(tw, src)
		return err
	})
}

// GSUtil uploads artifacts to a storage bucket via the gsutil CLI.
type GSUtil struct {
	runner CommandRunner
}

// NewGSUtil creates a gsutil-backed uploader.
func NewGSUtil(runner CommandRunner) *GSUtil {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &GSUtil{runner: runner}
}

// Upload copies the file to the bucket.
func (u *GSUtil) Upload(ctx context.Context, path, bucket string) error {
	result, err := u.runner.Run(ctx, "gsutil", "cp", path, "gs://"+bucket)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("uploading %s to %s exited %d: %s",
			path, bucket, result.ExitCode, result.Stderr)
	}
	return nil
}
