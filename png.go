package ico

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

var pngHeader = []byte{'\x89', 'P', 'N', 'G', '\r', '\n', '\x1a', '\n'}

// PNG color types from the IHDR chunk.
const (
	pngGray      = 0
	pngTrueColor = 2
	pngIndexed   = 3
	pngGrayAlpha = 4
	pngRGBA      = 6
)

// PNGFormat is the pixel format recorded in a PNG's IHDR chunk.
type PNGFormat struct {
	BitDepth  uint8
	ColorType uint8
}

// PNGCodec is the PNG primitive used for PNG payloads.
type PNGCodec interface {
	Decode(data []byte) (image.Image, PNGFormat, error)
	Encode(img image.Image) ([]byte, error)
}

// StdPNG implements PNGCodec with image/png.
type StdPNG struct {
	CompressionLevel png.CompressionLevel
}

// readIHDR returns the dimensions and pixel format declared by a PNG stream
// without decoding any pixel data.
func readIHDR(data []byte) (w, h int, f PNGFormat, err error) {
	// signature, chunk length, "IHDR", width, height, bit depth, color type
	if len(data) < 26 || !bytes.Equal(data[:8], pngHeader) || string(data[12:16]) != "IHDR" {
		return 0, 0, f, fmt.Errorf("ico: png: missing IHDR")
	}
	w = int(binary.BigEndian.Uint32(data[16:20]))
	h = int(binary.BigEndian.Uint32(data[20:24]))
	return w, h, PNGFormat{BitDepth: data[24], ColorType: data[25]}, nil
}

func (StdPNG) Decode(data []byte) (image.Image, PNGFormat, error) {
	_, _, f, err := readIHDR(data)
	if err != nil {
		return nil, f, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, f, err
	}
	return img, f, nil
}

func (p StdPNG) Encode(img image.Image) ([]byte, error) {
	pngbuffer := new(bytes.Buffer)
	pngwriter := bufio.NewWriter(pngbuffer)
	enc := png.Encoder{CompressionLevel: p.CompressionLevel}
	if err := enc.Encode(pngwriter, img); err != nil {
		return nil, err
	}
	if err := pngwriter.Flush(); err != nil {
		return nil, err
	}
	return pngbuffer.Bytes(), nil
}

// DepthFromPNG derives an entry depth from a PNG pixel format.
func DepthFromPNG(f PNGFormat) BitDepth {
	switch f.ColorType {
	case pngIndexed, pngGray:
		switch f.BitDepth {
		case 8:
			return Depth8
		case 4:
			return Depth4
		case 2, 1:
			return Depth1
		}
	case pngTrueColor:
		if f.BitDepth == 8 {
			return Depth24
		}
	}
	return Depth32
}

// pngStoredForm turns a decoded PNG into the stored form of an entry.
func pngStoredForm(img image.Image, depth BitDepth) *Quantized {
	q := &Quantized{PNG: true, Depth: depth}
	if !depth.Indexed() {
		q.RGBA = toNRGBA(img)
		return q
	}
	if p, ok := img.(*image.Paletted); ok && len(p.Palette) <= depth.MaxColors() {
		b := p.Bounds()
		dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), nrgbaPalette(p.Palette))
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], p.Pix[p.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		q.Paletted = dst
		return q
	}
	q.Paletted = palettize(toNRGBA(img), depth.MaxColors(), true)
	return q
}

// alphaNRGBA reports itself as never opaque, so image/png always writes an
// RGBA color type for it, even when every pixel is opaque.
type alphaNRGBA struct{ *image.NRGBA }

func (alphaNRGBA) Opaque() bool { return false }

// pngImage returns the raster to hand to the PNG primitive. Palettes are
// padded so the encoder picks the bit depth that decodes back to q.Depth,
// and 32bpp rasters keep their alpha channel.
func pngImage(q *Quantized) image.Image {
	if q.Paletted == nil {
		if q.Depth == Depth32 {
			return alphaNRGBA{q.RGBA}
		}
		return q.RGBA
	}
	minLen := 2
	switch q.Depth {
	case Depth8:
		minLen = 17
	case Depth4:
		minLen = 5
	}
	if len(q.Paletted.Palette) >= minLen {
		return q.Paletted
	}
	p := clonePaletted(q.Paletted)
	for len(p.Palette) < minLen {
		p.Palette = append(p.Palette, color.NRGBA{A: 0xff})
	}
	return p
}

func nrgbaPalette(p color.Palette) color.Palette {
	out := make(color.Palette, len(p))
	for i, c := range p {
		out[i] = color.NRGBAModel.Convert(c)
	}
	return out
}
