package operations

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// artifactExt is the extension of an uncompressed artifact.
const artifactExt = ".db"

// copyFile copies src to dst preserving permission bits and modification
// time. With exclusive set, dst must not already exist. A failed copy never
// leaves a partial dst behind.
func copyFile(src, dst string, exclusive bool) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%q is not a regular file", src)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if exclusive {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync %q: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %q: %w", dst, err)
	}
	if err = os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %q: %w", dst, err)
	}
	return preserveTimes(dst, info)
}

func preserveTimes(path string, info os.FileInfo) error {
	mtime := info.ModTime()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("set times on %q: %w", path, err)
	}
	return nil
}

// uniquePath returns dir/stem+ext, or dir/stem_N+ext for the smallest N that
// does not exist yet.
func uniquePath(dir, stem, ext string) (string, error) {
	for n := 0; ; n++ {
		name := stem + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, name)
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %q: %w", path, err)
		}
	}
}

// modifiedAfter reports whether path was modified strictly after t.
func modifiedAfter(path string, t time.Time) (bool, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, time.Time{}, err
	}
	return info.ModTime().After(t), info.ModTime(), nil
}

// fileExists distinguishes "absent" from other stat errors.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
