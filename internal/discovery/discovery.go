// Package discovery enumerates documents from a directory or a manifest file,
// orders them, and persists the chosen order back to the manifest.
package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// MetadataProvider returns the creation and modification time of a path.
type MetadataProvider interface {
	Metadata(path string) (createdAt, modifiedAt time.Time, err error)
}

// OSMetadata reads timestamps from the local filesystem.
type OSMetadata struct{}

func (OSMetadata) Metadata(path string) (time.Time, time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if fi.IsDir() {
		return time.Time{}, time.Time{}, errors.Newf("%s is a directory", path)
	}
	return creationTime(fi), fi.ModTime(), nil
}

// DocumentPredicate reports whether name carries the document suffix. The
// comparison is on the lowercased text after the last dot; names without a
// dot never match.
func DocumentPredicate(name, suffix string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	return strings.ToLower(name[i+1:]) == strings.ToLower(strings.TrimPrefix(suffix, "."))
}

// ScanDirectory lists dir (non-recursively) and returns a DocumentRef for
// every regular entry matching suffix, in directory listing order.
// Non-matching entries are skipped without error. Matching entries whose
// metadata cannot be read, such as dangling symlinks, are returned as
// unavailable and the scan goes on.
func ScanDirectory(dir, suffix string, meta MetadataProvider) ([]models.DocumentRef, []models.UnavailableDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var (
		refs        []models.DocumentRef
		unavailable []models.UnavailableDocument
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !DocumentPredicate(e.Name(), suffix) {
			slog.Debug("Skipping non-document entry.", "name", e.Name())
			continue
		}
		path := filepath.Join(dir, e.Name())
		ref, err := newRef(e.Name(), path, meta)
		if err != nil {
			slog.Warn("Directory entry unavailable, excluding it.", "path", path, "error", err)
			unavailable = append(unavailable, models.UnavailableDocument{
				Path: path,
				Err:  resizeerr.New(resizeerr.KindDocumentUnavailable, e.Name(), err),
			})
			continue
		}
		refs = append(refs, ref)
	}
	return refs, unavailable, nil
}

func newRef(name, path string, meta MetadataProvider) (models.DocumentRef, error) {
	created, modified, err := meta.Metadata(path)
	if err != nil {
		return models.DocumentRef{}, err
	}
	return models.NewDocumentRef(name, path, created, modified)
}

// ResolveManifest turns manifest entries into DocumentRefs. Relative entries
// are joined to baseDir when it is set. Entries whose metadata cannot be read
// are returned as unavailable and left out; resolution of the rest goes on.
func ResolveManifest(paths []string, baseDir string, meta MetadataProvider) ([]models.DocumentRef, []models.UnavailableDocument) {
	var (
		refs        []models.DocumentRef
		unavailable []models.UnavailableDocument
	)
	for _, p := range paths {
		path := p
		if baseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		ref, err := newRef(filepath.Base(path), path, meta)
		if err == nil {
			refs = append(refs, ref)
			continue
		}
		cause := resizeerr.New(resizeerr.KindDocumentUnavailable, p, err)
		slog.Warn("Manifest entry unavailable, excluding it.", "path", p, "error", err)
		unavailable = append(unavailable, models.UnavailableDocument{Path: p, Err: cause})
	}
	return refs, unavailable
}
