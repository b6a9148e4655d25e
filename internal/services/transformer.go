package services

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/geometry"
	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// Transformer resizes every page of one document to a fixed target. It holds
// no per-document state and is safe for concurrent use.
type Transformer struct {
	store  docstore.Store
	target geometry.Dimensions
}

// NewTransformer returns a Transformer writing pages of size target.
func NewTransformer(store docstore.Store, target geometry.Dimensions) *Transformer {
	return &Transformer{store: store, target: target}
}

// Transform resizes doc into outputPath. The output is written to a temporary
// file next to outputPath and renamed into place only when every page
// succeeded, so a failed document never leaves an output behind.
//
// ctx is checked before opening, between pages and before the rename. An
// expired deadline is reported as a Timeout.
func (t *Transformer) Transform(ctx context.Context, doc models.DocumentRef, outputPath string) models.DocumentResult {
	start := time.Now()
	res := models.DocumentResult{Document: doc, OutputPath: outputPath}
	logCtx := slog.With("document", doc.Name, "path", doc.Path)
	logCtx.Debug("Processing document.")

	err := t.transform(ctx, doc, outputPath, &res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		logCtx.Error("Failed to resize document.", "kind", resizeerr.KindOf(err), "error", err)
		return res
	}
	logCtx.Info("Document resized.", "pages", res.Pages, "scaled", res.Scaled, "unchanged", res.Unchanged, "duration", res.Duration)
	return res
}

func (t *Transformer) transform(ctx context.Context, doc models.DocumentRef, outputPath string, res *models.DocumentResult) error {
	if err := interrupted(ctx, doc.Name, 0); err != nil {
		return err
	}

	d, err := t.store.Open(doc.Path)
	if err != nil {
		return resizeerr.New(resizeerr.KindOpen, doc.Name, err)
	}

	res.Pages = d.PageCount()
	for i := 0; i < res.Pages; i++ {
		if err := interrupted(ctx, doc.Name, i+1); err != nil {
			return err
		}
		scaled, err := t.resizePage(d, i)
		if err != nil {
			kind := resizeerr.KindPage
			if errors.Is(err, resizeerr.ErrDegenerateGeometry) {
				kind = resizeerr.KindDegenerateGeometry
			}
			return resizeerr.NewPage(kind, doc.Name, i+1, err)
		}
		if scaled {
			res.Scaled++
		} else {
			res.Unchanged++
		}
	}

	if err := interrupted(ctx, doc.Name, 0); err != nil {
		return err
	}
	if err := writeAtomically(d, outputPath); err != nil {
		return resizeerr.New(resizeerr.KindWrite, doc.Name, err)
	}
	return nil
}

// resizePage scales the page content first and resets the frame second; the
// scale is anchored on the original box, so the order matters. Pages already
// at the target size are left untouched.
func (t *Transformer) resizePage(d docstore.Document, i int) (bool, error) {
	box, err := d.PageBox(i)
	if err != nil {
		return false, err
	}
	original := geometry.Dimensions{Width: box.Width(), Height: box.Height()}
	if original.Equal(t.target) {
		return false, nil
	}
	sf, err := geometry.ScaleFactorFor(original, t.target)
	if err != nil {
		return false, err
	}
	if err := d.ScalePage(i, sf.X, sf.Y); err != nil {
		return false, errors.Wrap(err, "scale content")
	}
	if err := d.SetPageBox(i, docstore.Box{URX: t.target.Width, URY: t.target.Height}); err != nil {
		return false, errors.Wrap(err, "reset bounding box")
	}
	return true, nil
}

func interrupted(ctx context.Context, name string, page int) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return resizeerr.NewPage(resizeerr.KindTimeout, name, page, err)
	default:
		return resizeerr.NewPage(resizeerr.KindCancelled, name, page, err)
	}
}

func writeAtomically(d docstore.Document, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary output")
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp.Name())
		}
	}()

	if err := d.Write(tmp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to serialize document")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush output")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "failed to set output permissions")
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return errors.Wrapf(err, "failed to move output into place at %s", outputPath)
	}
	committed = true
	return nil
}
