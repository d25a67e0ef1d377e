package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"sort"

	"github.com/hashicorp/go-hclog"
)

const maxICOSize = int64(64 << 20) // hard cap to avoid OOM panics on hostile inputs

// Smallest payload a record may declare: a bare BITMAPINFOHEADER.
const minPayloadSize = dibHeaderSize

const (
	headSize     = 6
	direntrySize = 16
)

func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00", Decode, DecodeConfig)
	image.RegisterFormat("cur", "\x00\x00\x02\x00", Decode, DecodeConfig)
}

// ---- public ----

// Decode returns the first entry of an ICO or CUR file in key order, which
// is the largest, deepest image.
func Decode(r io.Reader) (image.Image, error) {
	f, err := DecodeFile(r, nil)
	if err != nil {
		return nil, err
	}
	return f.Entries.At(0).Image(), nil
}

// DecodeAll returns every entry image in key order.
func DecodeAll(r io.Reader) ([]image.Image, error) {
	f, err := DecodeFile(r, nil)
	if err != nil {
		return nil, err
	}
	images := make([]image.Image, f.Entries.Len())
	for i, e := range f.Entries.Entries() {
		images[i] = e.Image()
	}
	return images, nil
}

func DecodeConfig(r io.Reader) (image.Config, error) {
	var cfg image.Config
	f, err := DecodeFile(r, &DecodeOptions{OnEntryError: func(int, error) {}})
	if err != nil {
		return cfg, err
	}
	e := f.Entries.At(0)
	return image.Config{ColorModel: color.NRGBAModel, Width: e.Width(), Height: e.Height()}, nil
}

// DecodeFile reads a whole ICO or CUR stream.
func DecodeFile(r io.Reader, opts *DecodeOptions) (*File, error) {
	file, err := readAllICO(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(file, opts)
}

// DecodeBytes decodes an ICO or CUR container held in memory.
func DecodeBytes(file []byte, opts *DecodeOptions) (*File, error) {
	d := decoder{
		file:   file,
		png:    opts.png(),
		logger: opts.logger(),
	}
	if opts != nil {
		d.onEntryError = opts.OnEntryError
	}
	return d.decode()
}

// ---- private ----

type direntry struct {
	Width   byte
	Height  byte
	Palette byte
	_       byte
	FieldX  uint16 // color planes, or hotspot X for cursors
	FieldY  uint16 // bits per pixel, or hotspot Y for cursors
	Size    uint32
	Offset  uint32
}

type head struct {
	Zero   uint16
	Type   uint16
	Number uint16
}

type record struct {
	direntry
	index int
}

type decoder struct {
	file         []byte
	png          PNGCodec
	logger       hclog.Logger
	onEntryError func(int, error)

	head    head
	records []record
}

func readAllICO(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxICOSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxICOSize {
		return nil, ErrFileTooLarge
	}
	return b, nil
}

func (d *decoder) typ() FileType { return FileType(d.head.Type) }

func (d *decoder) decode() (*File, error) {
	if err := d.decodeHeader(); err != nil {
		return nil, err
	}
	if err := d.decodeEntries(); err != nil {
		return nil, err
	}

	f := NewFile(d.typ())
	var entries []*Entry
	for _, rec := range d.records {
		payload := d.file[rec.Offset : rec.Offset+rec.Size]
		e, err := d.decodeEntry(&rec, payload)
		if err != nil {
			ee := &EntryError{Index: rec.index, Err: err}
			if d.onEntryError == nil {
				return nil, ee
			}
			d.logger.Warn("skipping entry", "type", d.typ(), "index", rec.index, "error", err)
			d.onEntryError(rec.index, err)
			f.Skipped = append(f.Skipped, ee)
			continue
		}
		d.logger.Trace("decoded entry", "index", rec.index, "key", e.Key(), "png", e.stored.PNG)
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, formatErr(d.typ(), ErrNoImages, "none of %d entries could be decoded", len(d.records))
	}

	f.Entries.load(entries)
	f.Entries.Sort()
	d.logger.Debug("decoded container", "type", d.typ(), "entries", len(entries), "skipped", len(f.Skipped))
	return f, nil
}

func (d *decoder) decodeHeader() error {
	if len(d.file) < headSize {
		return formatErr(TypeIcon, ErrTruncated, "%d bytes", len(d.file))
	}
	if err := binary.Read(bytes.NewReader(d.file), binary.LittleEndian, &(d.head)); err != nil {
		return err
	}
	if d.head.Zero != 0 || !d.typ().Valid() {
		return formatErr(d.typ(), ErrBadType, "corrupted head: [%x,%x]", d.head.Zero, d.head.Type)
	}
	if d.head.Number == 0 {
		return formatErr(d.typ(), ErrNoImages, "empty directory")
	}
	return nil
}

// decodeEntries reads the directory table, validates every record against
// the stream and returns them in payload order.
func (d *decoder) decodeEntries() error {
	n := int(d.head.Number)
	tableEnd := int64(headSize + n*direntrySize)
	if int64(len(d.file)) < tableEnd {
		return formatErr(d.typ(), ErrTruncated, "directory of %d entries", n)
	}

	r := bytes.NewReader(d.file[headSize:tableEnd])
	d.records = make([]record, n)
	for i := 0; i < n; i++ {
		rec := &d.records[i]
		if err := binary.Read(r, binary.LittleEndian, &rec.direntry); err != nil {
			return err
		}
		rec.index = i
		if rec.Size < minPayloadSize {
			return formatErr(d.typ(), ErrPayloadSize, "entry %d: size=%d", i, rec.Size)
		}
		if int64(rec.Offset) < tableEnd {
			return formatErr(d.typ(), ErrPayloadOffset, "entry %d: offset=%d", i, rec.Offset)
		}
		if int64(rec.Offset)+int64(rec.Size) > int64(len(d.file)) {
			return formatErr(d.typ(), ErrTruncated, "entry %d: %d bytes at %d", i, rec.Size, rec.Offset)
		}
	}

	sort.SliceStable(d.records, func(i, j int) bool {
		return d.records[i].Offset < d.records[j].Offset
	})
	for i := 1; i < n; i++ {
		prev, cur := &d.records[i-1], &d.records[i]
		if int64(prev.Offset)+int64(prev.Size) > int64(cur.Offset) {
			return formatErr(d.typ(), ErrOverlap, "entries %d and %d", prev.index, cur.index)
		}
	}
	return nil
}

func (d *decoder) decodeEntry(rec *record, payload []byte) (*Entry, error) {
	dirW, dirH := int(rec.Width), int(rec.Height)

	var q *Quantized
	switch {
	case binary.LittleEndian.Uint32(payload[:4]) == dibHeaderSize:
		var err error
		if q, err = decodeDIB(payload, dirW, dirH); err != nil {
			return nil, err
		}
	case len(payload) >= len(pngHeader) && bytes.Equal(payload[:len(pngHeader)], pngHeader):
		// The declared size is checked before any pixel buffer exists.
		w, h, _, err := readIHDR(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBitmap, err)
		}
		if err := checkPNGSize(w, h, dirW, dirH); err != nil {
			return nil, err
		}
		img, format, err := d.png.Decode(payload)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		if err := checkPNGSize(b.Dx(), b.Dy(), dirW, dirH); err != nil {
			return nil, err
		}
		depth, ok := DepthFromBits(int(rec.FieldY))
		if d.typ() == TypeCursor || !ok {
			depth = DepthFromPNG(format)
		}
		q = pngStoredForm(img, depth)
	default:
		return nil, fmt.Errorf("%w: signature % x", ErrUnknownPayload, payload[:4])
	}

	e := newDecodedEntry(q)
	if d.typ() == TypeCursor {
		e.SetHotspot(int(rec.FieldX), int(rec.FieldY))
	}
	return e, nil
}

func checkPNGSize(w, h, dirW, dirH int) error {
	if w < MinDimension || w > MaxDimension || h < MinDimension || h > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrBadDimensions, w, h)
	}
	if (dirW != 0 && dirW != w) || (dirH != 0 && dirH != h) {
		return fmt.Errorf("%w: directory %dx%d, png %dx%d", ErrSizeMismatch, dirW, dirH, w, h)
	}
	return nil
}
