package discovery

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// DefaultManifestPath is used when no manifest path is configured.
const DefaultManifestPath = "order.txt"

// LoadManifest reads the manifest at path, one entry per line. Lines are
// trimmed and blank lines ignored.
//
// Both failure modes are non-fatal: a missing file yields an empty list with
// an error matching resizeerr.ErrManifestNotFound, any other read failure an
// empty list with resizeerr.ErrManifestRead. Callers log and carry on.
func LoadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "manifest %s", path), resizeerr.ErrManifestNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "manifest %s", path), resizeerr.ErrManifestRead)
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "manifest %s", path), resizeerr.ErrManifestRead)
	}
	return entries, nil
}

// SaveManifest overwrites path with one line per ref, in order: the full path
// when useFullPath is set, the bare name otherwise. The file is replaced
// atomically so a reader never sees a half-written manifest.
func SaveManifest(refs []models.DocumentRef, path string, useFullPath bool) error {
	var b strings.Builder
	for _, ref := range refs {
		if useFullPath {
			b.WriteString(ref.Path)
		} else {
			b.WriteString(ref.Name)
		}
		b.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create manifest directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary manifest")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write manifest")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close manifest")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "failed to set manifest permissions")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to replace manifest %s", path)
	}
	return nil
}
