package stage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrMissingDir   = errors.New("directory does not exist")
	ErrMissingFile  = errors.New("file does not exist")
	ErrNoInputFiles = errors.New("no input files found")
	ErrNoResults    = errors.New("no results directory found")
	ErrPrefixExists = errors.New("files with the same prefix already exist")
	ErrOutputExists = errors.New("output file already exists")
)

// Timestamp formats t as YYYYMMDD_HHMM.
func Timestamp(t time.Time) string {
	return t.Format("20060102_1504")
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.Wrap(ErrMissingDir, dir)
	}

	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return errors.Wrap(ErrMissingFile, path)
	}

	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// globFiles returns the sorted regular files of dir matching pattern.
func globFiles(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", dir)
	}

	files := matches[:0]
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			files = append(files, match)
		}
	}
	sort.Strings(files)

	return files, nil
}

// CheckPrefix fails with ErrPrefixExists when a file starting with prefix exists.
// The prefix is matched literally.
func CheckPrefix(prefix string) error {
	dir, base := filepath.Split(prefix)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "unable to list %s", dir)
	}

	var found int
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), base) {
			found++
		}
	}
	if found > 0 {
		return errors.Wrapf(ErrPrefixExists, "%s (%d files)", prefix, found)
	}

	return nil
}

// LatestDir returns the most recently modified directory of root whose name starts with prefix.
func LatestDir(root, prefix string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", errors.Wrapf(ErrNoResults, "%s: %v", root, err)
	}

	var (
		latest     string
		latestTime time.Time
	)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(root, entry.Name())
			latestTime = info.ModTime()
		}
	}
	if latest == "" {
		return "", errors.Wrapf(ErrNoResults, "%s has no directory starting with %q", root, prefix)
	}

	return latest, nil
}

// CopyFile copies src to dst, truncating dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "unable to stat %s", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return errors.Wrapf(err, "unable to copy %s to %s", src, dst)
	}

	return errors.Wrapf(out.Close(), "unable to close %s", dst)
}

// MoveFile renames src to dst, copying across file systems.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return errors.Wrapf(err, "unable to move %s to %s", src, dst)
	}

	info, statErr := os.Stat(src)
	if statErr != nil {
		return errors.Wrapf(err, "unable to move %s to %s", src, dst)
	}
	if info.IsDir() {
		return errors.Wrapf(err, "unable to move directory %s to %s", src, dst)
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}

	return errors.Wrapf(os.Remove(src), "unable to remove %s", src)
}

// freshDir removes dir if present and creates it empty.
func freshDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "unable to remove %s", dir)
	}

	return errors.Wrapf(os.MkdirAll(dir, 0o755), "unable to create %s", dir)
}
