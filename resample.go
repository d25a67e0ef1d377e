package ico

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// ResampleFilter selects the interpolation used when an entry's source raster
// has to be scaled to the entry size.
type ResampleFilter uint8

const (
	HighQualityBicubic ResampleFilter = iota
	HighQualityBilinear
	Bicubic
	Bilinear
	NearestNeighbor
)

func (f ResampleFilter) String() string {
	switch f {
	case HighQualityBicubic:
		return "hq-bicubic"
	case HighQualityBilinear:
		return "hq-bilinear"
	case Bicubic:
		return "bicubic"
	case Bilinear:
		return "bilinear"
	case NearestNeighbor:
		return "nearest"
	}
	return "unknown"
}

// ParseFilter is the inverse of ResampleFilter.String.
func ParseFilter(s string) (ResampleFilter, bool) {
	for f := HighQualityBicubic; f <= NearestNeighbor; f++ {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

func (f ResampleFilter) scaler() xdraw.Scaler {
	switch f {
	case HighQualityBilinear:
		return xdraw.BiLinear
	case Bilinear:
		return xdraw.ApproxBiLinear
	case NearestNeighbor:
		return xdraw.NearestNeighbor
	}
	return xdraw.CatmullRom
}

// resample returns src scaled to w x h. The result never aliases src.
func resample(src *image.NRGBA, w, h int, f ResampleFilter) *image.NRGBA {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return cloneNRGBA(src)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if f == Bicubic {
		scaled := resize.Resize(uint(w), uint(h), src, resize.Bicubic)
		draw.Draw(dst, dst.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
		return dst
	}
	f.scaler().Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// toNRGBA converts an image to a zero-origin NRGBA copy.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	if src == nil {
		return nil
	}
	return toNRGBA(src)
}

func clonePaletted(src *image.Paletted) *image.Paletted {
	if src == nil {
		return nil
	}
	dst := &image.Paletted{
		Pix:     append([]uint8(nil), src.Pix...),
		Stride:  src.Stride,
		Rect:    src.Rect,
		Palette: append(src.Palette[:0:0], src.Palette...),
	}
	return dst
}

func cloneAlpha(src *image.Alpha) *image.Alpha {
	if src == nil {
		return nil
	}
	return &image.Alpha{
		Pix:    append([]uint8(nil), src.Pix...),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
}
