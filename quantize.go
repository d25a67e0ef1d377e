package ico

import (
	"image"
	"image/color"
)

// DefaultAlphaThreshold is the alpha below which a pixel is treated as
// transparent in encodings without an alpha channel.
const DefaultAlphaThreshold = 96

// Quantized is the storage form of an entry: what actually gets written
// into a PNG or BMP payload.
type Quantized struct {
	PNG   bool
	Depth BitDepth

	// RGBA holds true-color forms. Paletted holds 1/4/8bpp forms.
	RGBA     *image.NRGBA
	Paletted *image.Paletted

	// Mask is the AND mask of BMP forms below 32bpp; 0 marks a transparent pixel.
	Mask *image.Alpha

	// fullPalette is set for BMP forms read with ClrUsed=0, which means a
	// palette of MaxColors entries.
	fullPalette bool
}

// QuantizeParams describe the requested storage form.
type QuantizeParams struct {
	Width, Height int
	Depth         BitDepth
	Threshold     uint8
	Filter        ResampleFilter
	PNG           bool
}

func (q *Quantized) Bounds() image.Rectangle {
	if q.Paletted != nil {
		return q.Paletted.Rect
	}
	return q.RGBA.Rect
}

func (q *Quantized) Clone() *Quantized {
	if q == nil {
		return nil
	}
	return &Quantized{
		PNG:      q.PNG,
		Depth:    q.Depth,
		RGBA:     cloneNRGBA(q.RGBA),
		Paletted: clonePaletted(q.Paletted),
		Mask:     cloneAlpha(q.Mask),

		fullPalette: q.fullPalette,
	}
}

// Image composes the stored form back into a single NRGBA raster, applying
// the mask as alpha.
func (q *Quantized) Image() *image.NRGBA {
	var img *image.NRGBA
	if q.Paletted != nil {
		img = toNRGBA(q.Paletted)
	} else {
		img = cloneNRGBA(q.RGBA)
	}
	if q.Mask != nil {
		for i, a := range q.Mask.Pix {
			if a == 0 {
				img.Pix[4*i+3] = 0
			}
		}
	}
	return img
}

// Quantize reduces src to the storage form described by p. mask, when not
// nil, is an explicit alpha mask in which white pixels are transparent.
func Quantize(src, mask image.Image, p QuantizeParams) *Quantized {
	work := resample(toNRGBA(src), p.Width, p.Height, p.Filter)
	q := &Quantized{PNG: p.PNG, Depth: p.Depth}

	var masked []bool
	if mask != nil {
		masked = maskBits(mask, p.Width, p.Height)
	}

	if p.PNG {
		for i, c := range masked {
			if c {
				work.Pix[4*i+3] = 0
			}
		}
		switch {
		case p.Depth == Depth24:
			// No alpha channel: masked pixels turn black, as in BMP forms.
			for i, c := range masked {
				if c {
					work.Pix[4*i], work.Pix[4*i+1], work.Pix[4*i+2] = 0, 0, 0
				}
			}
			setOpaque(work)
			q.RGBA = work
		case p.Depth.Indexed():
			q.Paletted = palettize(work, p.Depth.MaxColors(), true)
		default:
			q.RGBA = work
		}
		return q
	}

	if p.Depth == Depth32 {
		q.RGBA = work
		return q
	}

	if masked == nil {
		masked = make([]bool, p.Width*p.Height)
		for i := range masked {
			masked[i] = work.Pix[4*i+3] < p.Threshold
		}
	}
	q.Mask = image.NewAlpha(image.Rect(0, 0, p.Width, p.Height))
	for i, c := range masked {
		px := work.Pix[4*i : 4*i+4 : 4*i+4]
		if c {
			px[0], px[1], px[2] = 0, 0, 0
		} else {
			q.Mask.Pix[i] = 0xff
		}
		px[3] = 0xff
	}

	if p.Depth.Indexed() {
		q.Paletted = palettize(work, p.Depth.MaxColors(), false)
	} else {
		q.RGBA = work
	}
	return q
}

// maskBits samples an explicit mask at w x h. A pixel is masked out when it
// is white and opaque.
func maskBits(mask image.Image, w, h int) []bool {
	m := resample(toNRGBA(mask), w, h, NearestNeighbor)
	bits := make([]bool, w*h)
	for i := range bits {
		c := color.NRGBA{m.Pix[4*i], m.Pix[4*i+1], m.Pix[4*i+2], m.Pix[4*i+3]}
		bits[i] = c.A >= 0x80 && c.R >= 0x80 && c.G >= 0x80 && c.B >= 0x80
	}
	return bits
}

func setOpaque(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
