package geometry

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// Dimensions is a width/height pair in points.
type Dimensions struct {
	Width  float64
	Height float64
}

// Equal compares exactly. Pages already at the target size are left alone,
// so no tolerance is applied.
func (d Dimensions) Equal(o Dimensions) bool {
	return d.Width == o.Width && d.Height == o.Height
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%.3fx%.3f", d.Width, d.Height)
}

// ScaleFactor is the per-axis multiplier mapping a page onto the target.
type ScaleFactor struct {
	X float64
	Y float64
}

// ScaleFactorFor returns (target.W/original.W, target.H/original.H).
// Scaling is anisotropic: the page is stretched to fill the target exactly.
func ScaleFactorFor(original, target Dimensions) (ScaleFactor, error) {
	if original.Width <= 0 || original.Height <= 0 {
		return ScaleFactor{}, errors.Wrapf(resizeerr.ErrDegenerateGeometry,
			"original size %gx%g", original.Width, original.Height)
	}
	return ScaleFactor{
		X: target.Width / original.Width,
		Y: target.Height / original.Height,
	}, nil
}
