package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"

	bmp "github.com/jsummers/gobmp"
)

// See en.wikipedia.org/wiki/BMP_file_format and
// msdn.microsoft.com/en-us/library/ms997538.aspx

const dibHeaderSize = 40

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32 // color and AND mask rows together below 32bpp
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

func rowStride(width, bits int) int {
	return (width*bits + 31) / 32 * 4
}

// decodeDIB parses a headerless BMP payload. dirW and dirH are the
// directory sizes, 0 when the directory does not constrain them.
func decodeDIB(data []byte, dirW, dirH int) (*Quantized, error) {
	var hdr bitmapInfoHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBitmap, err)
	}
	if hdr.Size != dibHeaderSize {
		return nil, fmt.Errorf("%w: header size %d", ErrCorruptBitmap, hdr.Size)
	}
	depth, ok := DepthFromBits(int(hdr.BitCount))
	if !ok {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrUnsupportedDepth, hdr.BitCount)
	}
	if hdr.Compression != 0 {
		return nil, fmt.Errorf("%w: compression %d", ErrCorruptBitmap, hdr.Compression)
	}

	w, h := int(hdr.Width), int(hdr.Height)
	masked := depth != Depth32
	switch {
	case masked:
		if h%2 != 0 {
			return nil, fmt.Errorf("%w: odd height %d", ErrBadDimensions, h)
		}
		h /= 2
	case dirH != 0 && h == 2*dirH, dirH == 0 && h == 2*w:
		// 32bpp written with an AND mask; the alpha channel wins.
		h /= 2
	}
	if w < MinDimension || w > MaxDimension || h < MinDimension || h > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, hdr.Width, hdr.Height)
	}
	if (dirW != 0 && dirW != w) || (dirH != 0 && dirH != h) {
		return nil, fmt.Errorf("%w: directory %dx%d, bitmap %dx%d", ErrSizeMismatch, dirW, dirH, w, h)
	}

	numColors := int64(hdr.ClrUsed)
	if depth.Indexed() {
		if numColors == 0 {
			numColors = int64(depth.MaxColors())
		}
		if numColors > int64(depth.MaxColors()) {
			return nil, fmt.Errorf("%w: %d palette entries for %v", ErrCorruptBitmap, hdr.ClrUsed, depth)
		}
	}

	stride := rowStride(w, depth.Bits())
	palStart := int64(dibHeaderSize)
	pixStart := palStart + 4*numColors
	maskStart := pixStart + int64(stride*h)
	end := maskStart
	if masked {
		end += int64(rowStride(w, 1) * h)
	}
	if end > int64(len(data)) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrCorruptBitmap, end, len(data))
	}

	q := &Quantized{Depth: depth, fullPalette: depth.Indexed() && hdr.ClrUsed == 0}
	switch depth {
	case Depth32:
		q.RGBA = readBGRA(data[pixStart:maskStart], w, h, stride)
	default:
		img, err := decodeColorPlane(data[:maskStart], hdr, h, numColors)
		if err != nil {
			return nil, err
		}
		if depth.Indexed() {
			q.Paletted, err = indexedPlane(img, readPalette(data[palStart:pixStart]))
			if err != nil {
				return nil, err
			}
		} else {
			q.RGBA = toNRGBA(img)
			setOpaque(q.RGBA)
		}
	}
	if masked {
		q.Mask = readMask(data[maskStart:end], w, h)
	}
	return q, nil
}

// decodeColorPlane forges a BITMAPFILEHEADER in front of the color plane
// and hands it to gobmp.
func decodeColorPlane(data []byte, hdr bitmapInfoHeader, h int, numColors int64) (image.Image, error) {
	buf := make([]byte, 14+len(data))
	copy(buf[14:], data)
	copy(buf[0:2], "\x42\x4D") // Magic number
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(14+dibHeaderSize+4*numColors))

	info := buf[14:]
	binary.LittleEndian.PutUint32(info[8:12], uint32(h))
	binary.LittleEndian.PutUint32(info[20:24], uint32(len(data)-dibHeaderSize-int(4*numColors)))
	binary.LittleEndian.PutUint32(info[32:36], uint32(numColors))

	img, err := bmp.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBitmap, err)
	}
	if b := img.Bounds(); b.Dx() != int(hdr.Width) || b.Dy() != h {
		return nil, fmt.Errorf("%w: decoded %dx%d", ErrCorruptBitmap, b.Dx(), b.Dy())
	}
	return img, nil
}

// indexedPlane rebuilds the decoded color plane against the payload's own
// palette so indices survive a round trip.
func indexedPlane(img image.Image, pal color.Palette) (*image.Paletted, error) {
	b := img.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), pal)
	if p, ok := img.(*image.Paletted); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				i := p.ColorIndexAt(b.Min.X+x, b.Min.Y+y)
				if int(i) >= len(pal) {
					return nil, fmt.Errorf("%w: color index %d out of palette", ErrCorruptBitmap, i)
				}
				dst.Pix[y*dst.Stride+x] = i
			}
		}
		return dst, nil
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = uint8(pal.Index(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return dst, nil
}

func readPalette(data []byte) color.Palette {
	pal := make(color.Palette, len(data)/4)
	for i := range pal {
		q := data[4*i:]
		pal[i] = color.NRGBA{R: q[2], G: q[1], B: q[0], A: 0xff}
	}
	return pal
}

func readBGRA(data []byte, w, h, stride int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		src := data[row*stride:]
		dst := img.Pix[(h-row-1)*img.Stride:]
		for col := 0; col < w; col++ {
			dst[4*col+0] = src[4*col+2]
			dst[4*col+1] = src[4*col+1]
			dst[4*col+2] = src[4*col+0]
			dst[4*col+3] = src[4*col+3]
		}
	}
	return img
}

func readMask(data []byte, w, h int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	rowSize := rowStride(w, 1)
	for row := 0; row < h; row++ {
		rowOff := row * rowSize
		for col := 0; col < w; col++ {
			if (data[rowOff+col/8]>>(7-uint(col)%8))&0x01 != 1 {
				mask.Pix[(h-row-1)*mask.Stride+col] = 0xff
			}
		}
	}
	return mask
}

// dibSize is the payload length writeDIB produces for q.
func dibSize(q *Quantized) int {
	b := q.Bounds()
	n := dibHeaderSize + rowStride(b.Dx(), q.Depth.Bits())*b.Dy()
	if q.Paletted != nil {
		n += 4 * len(q.Paletted.Palette)
	}
	if q.Depth != Depth32 {
		n += rowStride(b.Dx(), 1) * b.Dy()
	}
	return n
}

// writeDIB writes q as a headerless BMP: info header, palette, color rows
// bottom to top, then AND mask rows bottom to top below 32bpp.
func writeDIB(w io.Writer, q *Quantized) error {
	b := q.Bounds()
	width, height := b.Dx(), b.Dy()
	bits := q.Depth.Bits()
	stride := rowStride(width, bits)
	maskStride := rowStride(width, 1)

	hdr := bitmapInfoHeader{
		Size:      dibHeaderSize,
		Width:     int32(width),
		Height:    int32(height),
		Planes:    1,
		BitCount:  uint16(bits),
		SizeImage: uint32(stride * height),
	}
	if q.Depth != Depth32 {
		hdr.Height *= 2
		hdr.SizeImage += uint32(maskStride * height)
	}
	if q.Paletted != nil {
		hdr.ClrUsed = uint32(len(q.Paletted.Palette))
		if q.fullPalette && len(q.Paletted.Palette) == q.Depth.MaxColors() {
			hdr.ClrUsed = 0
		}
	}

	bb := new(bytes.Buffer)
	bb.Grow(dibSize(q))
	if err := binary.Write(bb, binary.LittleEndian, hdr); err != nil {
		return err
	}
	if q.Paletted != nil {
		for _, c := range q.Paletted.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			bb.Write([]byte{n.B, n.G, n.R, 0})
		}
	}

	row := make([]byte, stride)
	for y := height - 1; y >= 0; y-- {
		clear(row)
		switch {
		case q.Paletted != nil:
			src := q.Paletted.Pix[y*q.Paletted.Stride:]
			for x := 0; x < width; x++ {
				packIndex(row, x, bits, src[x])
			}
		case q.Depth == Depth24:
			src := q.RGBA.Pix[y*q.RGBA.Stride:]
			for x := 0; x < width; x++ {
				row[3*x+0] = src[4*x+2]
				row[3*x+1] = src[4*x+1]
				row[3*x+2] = src[4*x+0]
			}
		default:
			src := q.RGBA.Pix[y*q.RGBA.Stride:]
			for x := 0; x < width; x++ {
				row[4*x+0] = src[4*x+2]
				row[4*x+1] = src[4*x+1]
				row[4*x+2] = src[4*x+0]
				row[4*x+3] = src[4*x+3]
			}
		}
		bb.Write(row)
	}

	if q.Depth != Depth32 {
		maskRow := make([]byte, maskStride)
		for y := height - 1; y >= 0; y-- {
			clear(maskRow)
			for x := 0; x < width; x++ {
				if q.Mask != nil && q.Mask.Pix[y*q.Mask.Stride+x] == 0 {
					maskRow[x/8] |= 0x80 >> uint(x%8)
				}
			}
			bb.Write(maskRow)
		}
	}

	_, err := w.Write(bb.Bytes())
	return err
}

func packIndex(row []byte, x, bits int, idx uint8) {
	switch bits {
	case 8:
		row[x] = idx
	case 4:
		row[x/2] |= (idx & 0x0f) << uint(4*(1-x%2))
	case 1:
		row[x/8] |= (idx & 0x01) << uint(7-x%8)
	}
}
