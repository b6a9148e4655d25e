package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// fakeMeta serves fixed timestamps and fails for paths it does not know.
type fakeMeta map[string][2]time.Time

func (m fakeMeta) Metadata(path string) (time.Time, time.Time, error) {
	ts, ok := m[path]
	if !ok {
		return time.Time{}, time.Time{}, os.ErrNotExist
	}
	return ts[0], ts[1], nil
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func names(refs []models.DocumentRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

func ref(name string, created, modified int) models.DocumentRef {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.DocumentRef{
		Name:       name,
		Path:       "/in/" + name,
		CreatedAt:  base.Add(time.Duration(created) * time.Minute),
		ModifiedAt: base.Add(time.Duration(modified) * time.Minute),
	}
}

// --- Predicate ---

func TestDocumentPredicate(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.pdf", true},
		{"A.PDF", true},
		{"archive.tar.pdf", true},
		{"notes.txt", false},
		{"pdf", false},
		{"scan.pdf.bak", false},
		{".pdf", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DocumentPredicate(tt.name, "pdf"), tt.name)
	}
	assert.True(t, DocumentPredicate("a.pdf", ".PDF"))
}

// --- ScanDirectory ---

func TestScanDirectory_FiltersAndOrders(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.pdf")
	touch(t, dir, "a.pdf")
	touch(t, dir, "c.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	refs, unavailable, err := ScanDirectory(dir, "pdf", OSMetadata{})
	require.NoError(t, err)
	assert.Empty(t, unavailable)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, names(refs))

	ordered, err := Order(refs, OrderByName)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(ordered))
	for _, r := range ordered {
		assert.Equal(t, filepath.Join(dir, r.Name), r.Path)
		assert.False(t, r.ModifiedAt.IsZero())
	}
}

func TestScanDirectory_Empty(t *testing.T) {
	refs, unavailable, err := ScanDirectory(t.TempDir(), "pdf", OSMetadata{})
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Empty(t, unavailable)
}

func TestScanDirectory_UnreadableEntriesAreUnavailable(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	touch(t, dir, "b.pdf")
	if err := os.Symlink(filepath.Join(dir, "gone.pdf"), filepath.Join(dir, "link.pdf")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "dir.pdf")))

	refs, unavailable, err := ScanDirectory(dir, "pdf", OSMetadata{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, names(refs))

	require.Len(t, unavailable, 2)
	var paths []string
	for _, u := range unavailable {
		paths = append(paths, u.Path)
		assert.True(t, errors.Is(u.Err, resizeerr.ErrDocumentUnavailable))
	}
	assert.ElementsMatch(t, []string{filepath.Join(dir, "dir.pdf"), filepath.Join(dir, "link.pdf")}, paths)
}

func TestScanDirectory_Missing(t *testing.T) {
	_, _, err := ScanDirectory(filepath.Join(t.TempDir(), "nope"), "pdf", OSMetadata{})
	assert.Error(t, err)
}

// --- Order ---

func TestOrder_Policies(t *testing.T) {
	refs := []models.DocumentRef{
		ref("c.pdf", 1, 30),
		ref("a.pdf", 3, 10),
		ref("b.pdf", 2, 20),
	}

	tests := []struct {
		policy OrderBy
		want   []string
	}{
		{OrderByName, []string{"a.pdf", "b.pdf", "c.pdf"}},
		{OrderByCreationTime, []string{"c.pdf", "b.pdf", "a.pdf"}},
		{OrderByModificationTime, []string{"a.pdf", "b.pdf", "c.pdf"}},
		{OrderByPassthrough, []string{"c.pdf", "a.pdf", "b.pdf"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			got, err := Order(refs, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			assert.ElementsMatch(t, refs, got)
		})
	}
	assert.Equal(t, []string{"c.pdf", "a.pdf", "b.pdf"}, names(refs), "input must not be reordered")
}

func TestOrder_StableTies(t *testing.T) {
	refs := []models.DocumentRef{
		ref("z.pdf", 5, 5),
		ref("m.pdf", 5, 5),
		ref("a.pdf", 1, 5),
	}
	got, err := Order(refs, OrderByCreationTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "z.pdf", "m.pdf"}, names(got))

	got, err = Order(refs, OrderByModificationTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"z.pdf", "m.pdf", "a.pdf"}, names(got))
}

func TestOrder_ByNameIdempotent(t *testing.T) {
	refs := []models.DocumentRef{ref("B.pdf", 0, 0), ref("a.pdf", 0, 0), ref("_x.pdf", 0, 0), ref("A.pdf", 0, 0)}
	once, err := Order(refs, OrderByName)
	require.NoError(t, err)
	twice, err := Order(once, OrderByName)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	// Byte-wise: uppercase sorts before underscore before lowercase.
	assert.Equal(t, []string{"A.pdf", "B.pdf", "_x.pdf", "a.pdf"}, names(once))
}

func TestOrder_UnknownPolicy(t *testing.T) {
	_, err := Order(nil, OrderBy("size"))
	assert.True(t, errors.Is(err, resizeerr.ErrInvalidConfig))
}

func TestParseOrderBy(t *testing.T) {
	for in, want := range map[string]OrderBy{
		"name":                   OrderByName,
		"creation_date":          OrderByCreationTime,
		"last_modification_date": OrderByModificationTime,
		"ModificationTime":       OrderByModificationTime,
		"passthrough":            OrderByPassthrough,
	} {
		got, err := ParseOrderBy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOrderBy("random")
	assert.Error(t, err)
}

// --- Manifest ---

func TestManifest_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.txt")
	refs := []models.DocumentRef{ref("b.pdf", 0, 0), ref("a b.pdf", 0, 0), ref("ç.pdf", 0, 0)}

	require.NoError(t, SaveManifest(refs, path, true))
	got, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/b.pdf", "/in/a b.pdf", "/in/ç.pdf"}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/in/b.pdf\n/in/a b.pdf\n/in/ç.pdf\n", string(raw))
}

func TestManifest_NamesOnlyAndOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.txt")
	require.NoError(t, SaveManifest([]models.DocumentRef{ref("x.pdf", 0, 0), ref("y.pdf", 0, 0), ref("z.pdf", 0, 0)}, path, false))
	require.NoError(t, SaveManifest([]models.DocumentRef{ref("a.pdf", 0, 0)}, path, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf\n", string(raw))
}

func TestLoadManifest_TrimsAndSkipsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.txt")
	require.NoError(t, os.WriteFile(path, []byte("  /in/a.pdf \r\n\n/in/b.pdf\n"), 0o644))

	got, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.pdf", "/in/b.pdf"}, got)
}

func TestLoadManifest_NotFound(t *testing.T) {
	got, err := LoadManifest(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, resizeerr.ErrManifestNotFound))
	assert.False(t, errors.Is(err, resizeerr.ErrManifestRead))
}

func TestLoadManifest_ReadError(t *testing.T) {
	got, err := LoadManifest(t.TempDir()) // a directory cannot be read as lines
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, resizeerr.ErrManifestRead))
}

// --- ResolveManifest ---

func TestResolveManifest_ExcludesUnavailable(t *testing.T) {
	ts := [2]time.Time{time.Unix(100, 0), time.Unix(200, 0)}
	meta := fakeMeta{
		"/in/a.pdf":   ts,
		"/base/b.pdf": ts,
	}

	refs, unavailable := ResolveManifest([]string{"/in/a.pdf", "gone.pdf", "b.pdf"}, "/base", meta)
	require.Len(t, refs, 2)
	assert.Equal(t, "a.pdf", refs[0].Name)
	assert.Equal(t, "/base/b.pdf", refs[1].Path)
	assert.Equal(t, ts[0], refs[1].CreatedAt)

	require.Len(t, unavailable, 1)
	assert.Equal(t, "gone.pdf", unavailable[0].Path)
	assert.True(t, errors.Is(unavailable[0].Err, resizeerr.ErrDocumentUnavailable))
}
