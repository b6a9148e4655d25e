package docstore

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFCPU is a Store backed by pdfcpu.
type PDFCPU struct {
	conf     *model.Configuration
	optimize bool
}

// PDFCPUOption configures a PDFCPU store.
type PDFCPUOption func(*PDFCPU)

// WithOptimize removes duplicate and unused objects before writing.
func WithOptimize() PDFCPUOption {
	return func(s *PDFCPU) { s.optimize = true }
}

// NewPDFCPU returns a pdfcpu backed store. Validation is relaxed so that
// slightly malformed scans are still accepted.
func NewPDFCPU(opts ...PDFCPUOption) *PDFCPU {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	s := &PDFCPU{conf: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open reads and validates the document at path. The file handle is closed
// before Open returns; the document is held in memory.
func (s *PDFCPU) Open(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, s.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	return &pdfDocument{ctx: ctx, optimize: s.optimize}, nil
}

type pdfDocument struct {
	ctx      *model.Context
	optimize bool
}

func (d *pdfDocument) PageCount() int {
	return d.ctx.PageCount
}

func (d *pdfDocument) page(index int) (types.Dict, *model.InheritedPageAttrs, error) {
	if index < 0 || index >= d.ctx.PageCount {
		return nil, nil, fmt.Errorf("page index %d out of range [0,%d)", index, d.ctx.PageCount)
	}
	pd, _, inh, err := d.ctx.PageDict(index+1, false)
	if err != nil {
		return nil, nil, err
	}
	if pd == nil {
		return nil, nil, fmt.Errorf("page %d: missing page dictionary", index+1)
	}
	return pd, inh, nil
}

func (d *pdfDocument) PageBox(index int) (Box, error) {
	_, inh, err := d.page(index)
	if err != nil {
		return Box{}, err
	}
	if inh == nil || inh.MediaBox == nil {
		return Box{}, fmt.Errorf("page %d: no media box", index+1)
	}
	r := inh.MediaBox
	return Box{LLX: r.LL.X, LLY: r.LL.Y, URX: r.UR.X, URY: r.UR.Y}, nil
}

// ScalePage wraps the existing content streams between a prefix stream that
// saves the graphics state and concatenates the scale matrix, and a suffix
// stream that restores it. Existing streams are referenced, not decoded.
func (d *pdfDocument) ScalePage(index int, sx, sy float64) error {
	pd, inh, err := d.page(index)
	if err != nil {
		return err
	}
	var tx, ty float64
	if inh != nil && inh.MediaBox != nil {
		tx = -inh.MediaBox.LL.X * sx
		ty = -inh.MediaBox.LL.Y * sy
	}

	existing, err := d.contentRefs(pd)
	if err != nil {
		return fmt.Errorf("page %d: %w", index+1, err)
	}

	prefix, err := d.newContentStream("q\n" + fmtNum(sx) + " 0 0 " + fmtNum(sy) + " " + fmtNum(tx) + " " + fmtNum(ty) + " cm\n")
	if err != nil {
		return fmt.Errorf("page %d: %w", index+1, err)
	}
	suffix, err := d.newContentStream("\nQ\n")
	if err != nil {
		return fmt.Errorf("page %d: %w", index+1, err)
	}

	contents := make(types.Array, 0, len(existing)+2)
	contents = append(contents, *prefix)
	contents = append(contents, existing...)
	contents = append(contents, *suffix)
	pd["Contents"] = contents
	return nil
}

func (d *pdfDocument) contentRefs(pd types.Dict) (types.Array, error) {
	obj, found := pd.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}
	switch c := obj.(type) {
	case types.IndirectRef:
		target, err := d.ctx.Dereference(c)
		if err != nil {
			return nil, err
		}
		if arr, ok := target.(types.Array); ok {
			return append(types.Array{}, arr...), nil
		}
		return types.Array{c}, nil
	case types.Array:
		return append(types.Array{}, c...), nil
	case types.StreamDict:
		ir, err := d.ctx.IndRefForNewObject(c)
		if err != nil {
			return nil, err
		}
		return types.Array{*ir}, nil
	default:
		return nil, fmt.Errorf("unexpected Contents type %T", obj)
	}
}

func (d *pdfDocument) newContentStream(content string) (*types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return d.ctx.IndRefForNewObject(*sd)
}

// SetPageBox sets MediaBox and CropBox so an inherited or stale crop box
// cannot clip the new frame.
func (d *pdfDocument) SetPageBox(index int, box Box) error {
	pd, _, err := d.page(index)
	if err != nil {
		return err
	}
	rect := types.NewRectangle(box.LLX, box.LLY, box.URX, box.URY)
	pd["MediaBox"] = rect.Array()
	pd["CropBox"] = rect.Array()
	return nil
}

func (d *pdfDocument) Write(w io.Writer) error {
	if d.optimize {
		if err := pdfcpu.OptimizeXRefTable(d.ctx); err != nil {
			return fmt.Errorf("failed to optimize PDF: %w", err)
		}
	}
	return api.WriteContext(d.ctx, w)
}

// fmtNum formats v for a content stream. Negative zero is written as 0.
func fmtNum(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
