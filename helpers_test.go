package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"
)

func sqDiffUInt8(x, y uint8) uint64 {
	d := uint64(x) - uint64(y)
	return d * d
}

func fastCompare(img1, img2 *image.NRGBA) (int64, error) {
	if img1.Bounds() != img2.Bounds() {
		return 0, fmt.Errorf("image bounds not equal: %+v, %+v", img1.Bounds(), img2.Bounds())
	}

	accumError := int64(0)

	for i := 0; i < len(img1.Pix); i++ {
		accumError += int64(sqDiffUInt8(img1.Pix[i], img2.Pix[i]))
	}

	return int64(math.Sqrt(float64(accumError))), nil
}

// gradient returns an opaque image with red varying along x and green
// along y.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// translucent is gradient with alpha falling off along x, fully
// transparent in the left quarter.
func translucent(w, h int) *image.NRGBA {
	img := gradient(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(0)
			if x >= w/4 {
				a = uint8(64 + (x*191)/w)
			}
			img.Pix[img.PixOffset(x, y)+3] = a
		}
	}
	return img
}

func mustEntry(t *testing.T, img image.Image, w, h int, depth BitDepth) *Entry {
	t.Helper()
	e, err := NewEntry(img, w, h, depth)
	if err != nil {
		t.Fatalf("NewEntry(%dx%d %v): %v", w, h, depth, err)
	}
	return e
}

func mustEncode(t *testing.T, f *File) []byte {
	t.Helper()
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func dibPayload(t *testing.T, q *Quantized) []byte {
	t.Helper()
	bb := new(bytes.Buffer)
	if err := writeDIB(bb, q); err != nil {
		t.Fatal(err)
	}
	return bb.Bytes()
}

func pngPayload(t *testing.T, img image.Image) []byte {
	t.Helper()
	b, err := StdPNG{}.Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// rawRecord is one directory record of a hand-built container. When
// fixed is set, Size and Offset are written as given and payload is
// not laid out.
type rawRecord struct {
	dir     direntry
	payload []byte
	fixed   bool
}

// buildICO lays out records after the directory table in order.
func buildICO(t *testing.T, typ FileType, recs ...rawRecord) []byte {
	t.Helper()
	offset := uint32(headSize + len(recs)*direntrySize)
	dirs := make([]direntry, len(recs))
	var payloads bytes.Buffer
	for i, r := range recs {
		dirs[i] = r.dir
		if r.fixed {
			continue
		}
		dirs[i].Size = uint32(len(r.payload))
		dirs[i].Offset = offset
		offset += uint32(len(r.payload))
		payloads.Write(r.payload)
	}

	bb := new(bytes.Buffer)
	if err := binary.Write(bb, binary.LittleEndian, head{Type: uint16(typ), Number: uint16(len(recs))}); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(bb, binary.LittleEndian, dirs); err != nil {
		t.Fatal(err)
	}
	bb.Write(payloads.Bytes())
	return bb.Bytes()
}

// readDirectory parses the directory table of an encoded container.
func readDirectory(t *testing.T, b []byte) (head, []direntry) {
	t.Helper()
	r := bytes.NewReader(b)
	var h head
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		t.Fatal(err)
	}
	dirs := make([]direntry, h.Number)
	if err := binary.Read(r, binary.LittleEndian, dirs); err != nil {
		t.Fatal(err)
	}
	return h, dirs
}
