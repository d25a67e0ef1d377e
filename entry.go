package ico

import (
	"fmt"
	"image"
)

// Entry is one image of an icon or cursor: a source raster plus the
// parameters that decide how it is stored.
type Entry struct {
	key       Key
	image     *image.NRGBA
	mask      image.Image
	threshold uint8
	filter    ResampleFilter
	hotspotX  int
	hotspotY  int

	owner  uint64 // id of the owning Collection, 0 when free
	stored *Quantized
}

// NewEntry creates an entry of the given size and depth. img is scaled to
// width x height when it is quantized if its size differs.
func NewEntry(img image.Image, width, height int, depth BitDepth) (*Entry, error) {
	k := Key{Width: width, Height: height, Depth: depth}
	if !depth.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDepth, depth)
	}
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrBadDimensions)
	}
	return &Entry{
		key:       k,
		image:     toNRGBA(img),
		threshold: DefaultAlphaThreshold,
	}, nil
}

// NewEntryFromImage creates an entry sized like img.
func NewEntryFromImage(img image.Image, depth BitDepth) (*Entry, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrBadDimensions)
	}
	b := img.Bounds()
	return NewEntry(img, b.Dx(), b.Dy(), depth)
}

// newDecodedEntry wraps a decoded payload. The payload is kept as the
// stored form so an unchanged entry re-encodes to the same bytes.
func newDecodedEntry(q *Quantized) *Entry {
	b := q.Bounds()
	return &Entry{
		key:       Key{Width: b.Dx(), Height: b.Dy(), Depth: q.Depth},
		image:     q.Image(),
		threshold: DefaultAlphaThreshold,
		stored:    q,
	}
}

func (e *Entry) Key() Key        { return e.key }
func (e *Entry) Width() int      { return e.key.Width }
func (e *Entry) Height() int     { return e.key.Height }
func (e *Entry) Depth() BitDepth { return e.key.Depth }

// Image returns a copy of the entry's source raster.
func (e *Entry) Image() *image.NRGBA { return cloneNRGBA(e.image) }

func (e *Entry) SetImage(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%w: empty image", ErrBadDimensions)
	}
	e.image = toNRGBA(img)
	e.stored = nil
	return nil
}

// Mask returns the explicit alpha mask, or nil when alpha comes from the
// source raster.
func (e *Entry) Mask() image.Image { return e.mask }

// SetMask sets an explicit alpha mask; white pixels are transparent.
// A nil mask goes back to the source raster's own alpha.
func (e *Entry) SetMask(mask image.Image) {
	e.mask = mask
	e.stored = nil
}

func (e *Entry) AlphaThreshold() uint8 { return e.threshold }

func (e *Entry) SetAlphaThreshold(t uint8) {
	if t != e.threshold {
		e.threshold = t
		e.stored = nil
	}
}

func (e *Entry) Filter() ResampleFilter { return e.filter }

func (e *Entry) SetFilter(f ResampleFilter) {
	if f != e.filter {
		e.filter = f
		e.stored = nil
	}
}

func (e *Entry) Hotspot() (x, y int) { return e.hotspotX, e.hotspotY }

// SetHotspot sets the cursor hotspot, clamped to the entry bounds.
func (e *Entry) SetHotspot(x, y int) {
	e.hotspotX = clamp(x, 0, e.key.Width)
	e.hotspotY = clamp(y, 0, e.key.Height)
}

// EncodesAsPNG reports whether the entry is stored as a PNG payload.
func (e *Entry) EncodesAsPNG() bool {
	m := max(e.key.Width, e.key.Height)
	if e.key.Depth == Depth32 {
		return m > 96
	}
	return m > 255
}

// IsQuantized reports whether the stored form is current.
func (e *Entry) IsQuantized() bool { return e.stored != nil }

// Quantize returns the storage form of the entry for the PNG or BMP path.
// The result is cached until the next edit.
func (e *Entry) Quantize(png bool) *Quantized {
	if e.stored != nil && e.stored.PNG == png {
		return e.stored.Clone()
	}
	e.stored = Quantize(e.image, e.mask, QuantizeParams{
		Width:     e.key.Width,
		Height:    e.key.Height,
		Depth:     e.key.Depth,
		Threshold: e.threshold,
		Filter:    e.filter,
		PNG:       png,
	})
	return e.stored.Clone()
}

// Clone returns an unowned copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.owner = 0
	c.image = cloneNRGBA(e.image)
	c.stored = e.stored.Clone()
	return &c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
