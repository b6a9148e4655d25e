package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/geometry"
	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

var a4 = geometry.Dimensions{Width: 595.276, Height: 841.89}

func docRef(name string) models.DocumentRef {
	return models.DocumentRef{Name: name, Path: "/in/" + name}
}

func TestTransform_ScalesThenResetsBox(t *testing.T) {
	store := newFakeStore()
	store.docs["letter.pdf"] = []pageSpec{{box: letterBox}, {box: docstore.Box{LLX: 10, LLY: 20, URX: 310, URY: 420}}}
	out := filepath.Join(t.TempDir(), "out", "letter.pdf")

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("letter.pdf"), out)
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Scaled)
	assert.Zero(t, res.Unchanged)

	d := store.doc("letter.pdf")
	assert.Equal(t, []string{"scale 0", "box 0", "scale 1", "box 1"}, d.ops)
	assert.InDelta(t, 595.276/612, d.pages[0].sx, 1e-9)
	assert.InDelta(t, 841.89/792, d.pages[0].sy, 1e-9)
	assert.InDelta(t, 595.276/300, d.pages[1].sx, 1e-9)
	assert.InDelta(t, 841.89/400, d.pages[1].sy, 1e-9)
	for _, p := range d.pages {
		assert.Equal(t, docstore.Box{URX: a4.Width, URY: a4.Height}, p.box)
	}

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "595.276 841.89\n595.276 841.89\n", string(raw))
}

func TestTransform_TargetSizedPagesUntouched(t *testing.T) {
	store := newFakeStore()
	store.docs["mixed.pdf"] = []pageSpec{{box: a4Box}, {box: letterBox}}
	out := filepath.Join(t.TempDir(), "mixed.pdf")

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("mixed.pdf"), out)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Scaled)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, []string{"scale 1", "box 1"}, store.doc("mixed.pdf").ops)
}

func TestTransform_DegenerateGeometry(t *testing.T) {
	store := newFakeStore()
	store.docs["flat.pdf"] = []pageSpec{{box: letterBox}, {box: docstore.Box{URX: 0, URY: 300}}}
	dir := t.TempDir()
	out := filepath.Join(dir, "flat.pdf")

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("flat.pdf"), out)
	require.Error(t, res.Err)
	assert.False(t, res.OK())
	assert.True(t, errors.Is(res.Err, resizeerr.ErrDegenerateGeometry))
	assert.Equal(t, resizeerr.KindDegenerateGeometry, resizeerr.KindOf(res.Err))

	var te *resizeerr.TransformError
	require.True(t, errors.As(res.Err, &te))
	assert.Equal(t, 2, te.Page)
	assert.Equal(t, "flat.pdf", te.Document)
	assert.NoFileExists(t, out)
}

func TestTransform_OpenError(t *testing.T) {
	store := newFakeStore()
	store.broken["corrupt.pdf"] = errors.New("xref table not found")
	out := filepath.Join(t.TempDir(), "corrupt.pdf")

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("corrupt.pdf"), out)
	assert.Equal(t, resizeerr.KindOpen, resizeerr.KindOf(res.Err))
	assert.Contains(t, res.Err.Error(), "xref table not found")
	assert.NoFileExists(t, out)
}

func TestTransform_PageError(t *testing.T) {
	store := newFakeStore()
	store.docs["bad.pdf"] = []pageSpec{{err: errors.New("missing MediaBox")}}

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("bad.pdf"), filepath.Join(t.TempDir(), "bad.pdf"))
	assert.Equal(t, resizeerr.KindPage, resizeerr.KindOf(res.Err))
}

func TestTransform_WriteErrorLeavesNothing(t *testing.T) {
	store := newFakeStore()
	store.writeErr["w.pdf"] = errors.New("disk full")
	dir := t.TempDir()

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("w.pdf"), filepath.Join(dir, "w.pdf"))
	assert.Equal(t, resizeerr.KindWrite, resizeerr.KindOf(res.Err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary output must be removed")
}

func TestTransform_ReplacesExistingOutput(t *testing.T) {
	store := newFakeStore()
	out := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	res := NewTransformer(store, a4).Transform(context.Background(), docRef("doc.pdf"), out)
	require.NoError(t, res.Err)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "595.276 841.89\n", string(raw))
}

func TestTransform_ExpiredDeadline(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	out := filepath.Join(t.TempDir(), "late.pdf")

	res := NewTransformer(store, a4).Transform(ctx, docRef("late.pdf"), out)
	assert.Equal(t, resizeerr.KindTimeout, resizeerr.KindOf(res.Err))
	assert.True(t, errors.Is(res.Err, resizeerr.ErrTimeout))
	assert.Empty(t, store.openOrder(), "an expired document is never opened")
	assert.NoFileExists(t, out)
}

func TestTransform_TimeoutBetweenPages(t *testing.T) {
	store := newFakeStore()
	store.docs["slow.pdf"] = []pageSpec{
		{box: letterBox, delay: 50 * time.Millisecond},
		{box: letterBox},
		{box: letterBox},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	out := filepath.Join(t.TempDir(), "slow.pdf")

	res := NewTransformer(store, a4).Transform(ctx, docRef("slow.pdf"), out)
	require.Error(t, res.Err)
	var te *resizeerr.TransformError
	require.True(t, errors.As(res.Err, &te))
	assert.Equal(t, resizeerr.KindTimeout, te.Kind)
	assert.Equal(t, 2, te.Page)
	assert.Equal(t, []string{"scale 0", "box 0"}, store.doc("slow.pdf").ops)
	assert.NoFileExists(t, out)
}
