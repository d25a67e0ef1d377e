package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
)

// Encode writes im as a single-entry 32bpp icon.
func Encode(w io.Writer, im image.Image) error {
	b := im.Bounds()

	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		return ErrImageTooLarge
	}

	e, err := NewEntryFromImage(im, Depth32)
	if err != nil {
		return err
	}
	f := NewFile(TypeIcon)
	f.Entries.Append(e)
	return EncodeFile(w, f, nil)
}

// MarshalBinary encodes f with default options.
func (f *File) MarshalBinary() ([]byte, error) {
	bb := new(bytes.Buffer)
	if err := EncodeFile(bb, f, nil); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

// EncodeFile sorts f's entries and writes the container. Nothing is written
// if an entry cannot be encoded.
func EncodeFile(w io.Writer, f *File, opts *EncodeOptions) error {
	fields, ok := fieldCodecs[f.Type]
	if !ok {
		return fmt.Errorf("%w: %v", ErrBadType, f.Type)
	}
	n := 0
	if f.Entries != nil {
		n = f.Entries.Len()
	}
	if n == 0 {
		return fmt.Errorf("%w: nothing to encode", ErrNoImages)
	}
	if n > MaxEntries {
		return fmt.Errorf("%w: %d", ErrTooManyEntries, n)
	}

	logger := opts.logger()
	codec := opts.png()
	f.Entries.Sort()

	header := head{
		0,
		uint16(f.Type),
		uint16(n),
	}
	entries := make([]direntry, n)
	payloads := make([][]byte, n)
	offset := uint32(headSize + n*direntrySize)
	for i, e := range f.Entries.entries {
		q := e.Quantize(e.EncodesAsPNG())
		payload, err := encodePayload(q, codec)
		if err != nil {
			return fmt.Errorf("ico: encoding %v: %w", e.Key(), err)
		}
		entries[i] = direntry{
			Width:   dirByte(e.Width()),
			Height:  dirByte(e.Height()),
			Palette: dirByte(e.Depth().MaxColors()),
			FieldX:  fields.x(e),
			FieldY:  fields.y(e),
			Size:    uint32(len(payload)),
			Offset:  offset,
		}
		payloads[i] = payload
		if int64(offset)+int64(len(payload)) > 0xffffffff {
			return ErrFileTooLarge
		}
		offset += uint32(len(payload))
		logger.Trace("encoded entry", "key", e.Key(), "png", q.PNG, "size", len(payload))
	}

	bb := new(bytes.Buffer)
	bb.Grow(int(offset))

	var e error
	e = binary.Write(bb, binary.LittleEndian, header)
	if e != nil {
		return e
	}
	e = binary.Write(bb, binary.LittleEndian, entries)
	if e != nil {
		return e
	}
	for _, p := range payloads {
		bb.Write(p)
	}

	_, e = w.Write(bb.Bytes())
	if e != nil {
		return e
	}
	logger.Debug("encoded container", "type", f.Type, "entries", n, "bytes", bb.Len())
	return nil
}

func encodePayload(q *Quantized, codec PNGCodec) ([]byte, error) {
	if q.PNG {
		return codec.Encode(pngImage(q))
	}
	bb := new(bytes.Buffer)
	if err := writeDIB(bb, q); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

// dirByte stores a size or color count in a directory byte, where 0 stands
// for 256 or more.
func dirByte(v int) byte {
	if v >= 256 {
		return 0
	}
	return byte(v)
}
