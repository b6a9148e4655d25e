// Package geometry holds the page size catalog and the scale computations used
// to fit a page onto a target format.
package geometry

import (
	"math"
	"strings"

	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// PointsPerMillimeter converts millimeters to PDF points.
const PointsPerMillimeter = 2.83464567

// Format names a target page size.
type Format string

const (
	FormatA2     Format = "A2"
	FormatA3     Format = "A3"
	FormatA4     Format = "A4"
	FormatA5     Format = "A5"
	FormatCustom Format = "custom" // Dimensions supplied by configuration.
)

// SizeMM is a page size in millimeters.
type SizeMM struct {
	Width  float64
	Height float64
}

var isoSizes = map[Format]SizeMM{
	FormatA2: {420, 594},
	FormatA3: {297, 420},
	FormatA4: {210, 297},
	FormatA5: {148, 210},
}

// Formats lists the recognized format names in catalog order.
func Formats() []Format {
	return []Format{FormatA2, FormatA3, FormatA4, FormatA5, FormatCustom}
}

// ParseFormat maps a user supplied name onto a Format. ISO names are matched
// case-insensitively.
func ParseFormat(name string) (Format, error) {
	n := strings.TrimSpace(name)
	if strings.EqualFold(n, string(FormatCustom)) {
		return FormatCustom, nil
	}
	f := Format(strings.ToUpper(n))
	if _, ok := isoSizes[f]; ok {
		return f, nil
	}
	return "", resizeerr.Config(resizeerr.ErrUnknownFormat,
		"use one of A2, A3, A4, A5 or custom", "format %q", name)
}

// Catalog resolves formats to millimeter sizes. The zero value knows the ISO
// sizes only; Custom must be set for FormatCustom to resolve.
type Catalog struct {
	Custom SizeMM
}

// Size returns the millimeter size of f.
func (c Catalog) Size(f Format) (SizeMM, error) {
	if f == FormatCustom {
		if c.Custom.Width <= 0 || c.Custom.Height <= 0 {
			return SizeMM{}, resizeerr.Config(resizeerr.ErrUnknownFormat,
				"set custom_width_mm and custom_height_mm to positive values",
				"custom format without a size (%gx%g mm)", c.Custom.Width, c.Custom.Height)
		}
		return c.Custom, nil
	}
	s, ok := isoSizes[f]
	if !ok {
		return SizeMM{}, resizeerr.Config(resizeerr.ErrUnknownFormat,
			"use one of A2, A3, A4, A5 or custom", "format %q", string(f))
	}
	return s, nil
}

// TargetDimensions converts f to points, rounded to three decimals.
func (c Catalog) TargetDimensions(f Format) (Dimensions, error) {
	s, err := c.Size(f)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{
		Width:  MillimetersToPoints(s.Width),
		Height: MillimetersToPoints(s.Height),
	}, nil
}

// TargetDimensions resolves an ISO format with the default catalog.
func TargetDimensions(f Format) (Dimensions, error) {
	return Catalog{}.TargetDimensions(f)
}

// MillimetersToPoints converts mm to points rounded to three decimals.
func MillimetersToPoints(mm float64) float64 {
	return round3(mm * PointsPerMillimeter)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
