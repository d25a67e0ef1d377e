package ani

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	ico "github.com/antoinefink/golang-icocur"
)

const (
	maxANISize = int64(64 << 20)
	anihSize   = 36
)

const (
	flagIcon     = 1 << 0 // frames are CUR containers, not raw DIBs
	flagSequence = 1 << 1 // a seq chunk gives the play order
)

type aniHeader struct {
	Size        uint32
	Frames      uint32
	Steps       uint32
	Width       uint32
	Height      uint32
	BitCount    uint32
	Planes      uint32
	DisplayRate uint32
	Flags       uint32
}

// Decode reads a whole ANI stream.
func Decode(r io.Reader, opts *DecodeOptions) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxANISize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxANISize {
		return nil, fmt.Errorf("%w: file too large", ErrNotANI)
	}
	return DecodeBytes(data, opts)
}

// chunkSet holds the first occurrence of every chunk the decoder uses.
type chunkSet struct {
	anih, rate, seq *chunk
	fram, info      []byte
	hasFram         bool
	hasInfo         bool
}

// DecodeBytes decodes an ANI file held in memory.
func DecodeBytes(data []byte, opts *DecodeOptions) (*File, error) {
	logger := opts.logger()

	body, err := riffBody(data)
	if err != nil {
		return nil, err
	}
	chunks, err := readChunks(body)
	if err != nil {
		return nil, err
	}

	var set chunkSet
	for i := range chunks {
		c := &chunks[i]
		switch c.ID {
		case fccANIH:
			if set.anih == nil {
				set.anih = c
			}
		case fccRATE:
			if set.rate == nil {
				set.rate = c
			}
		case fccSEQ:
			if set.seq == nil {
				set.seq = c
			}
		case fccLIST:
			typ, list, ok := listType(*c)
			switch {
			case !ok:
			case typ == fccFRAM && !set.hasFram:
				set.fram, set.hasFram = list, true
			case typ == fccINFO && !set.hasInfo:
				set.info, set.hasInfo = list, true
			}
		default:
			logger.Trace("ignoring chunk", "id", fourCCString(c.ID), "size", len(c.Data))
		}
	}

	f := &File{}
	if set.hasInfo {
		if err := decodeInfo(f, set.info); err != nil {
			return nil, err
		}
	}

	if set.anih == nil {
		return nil, fmt.Errorf("%w: anih", ErrMissingChunk)
	}
	hdr, err := decodeHeader(set.anih.Data)
	if err != nil {
		return nil, err
	}
	f.DisplayRate = hdr.DisplayRate

	if !set.hasFram {
		return nil, fmt.Errorf("%w: LIST fram", ErrMissingChunk)
	}
	if err := decodeFrames(f, set.fram, int(hdr.Frames), opts); err != nil {
		return nil, err
	}

	if hdr.Flags&flagSequence != 0 {
		if set.seq == nil {
			return nil, fmt.Errorf("%w: seq", ErrMissingChunk)
		}
		if err := decodeSequence(f, set.seq.Data, int(hdr.Steps)); err != nil {
			return nil, err
		}
	}

	if set.rate != nil {
		if err := decodeRate(f, set.rate.Data); err != nil {
			return nil, err
		}
	}

	if err := checkFrameKeys(f.Frames); err != nil {
		return nil, err
	}
	logger.Debug("decoded animation", "frames", len(f.Frames), "steps", len(f.Sequence),
		"rate", f.DisplayRate, "skipped", len(f.Skipped))
	return f, nil
}

// riffBody checks the RIFF ACON header and returns the chunk area.
func riffBody(data []byte) ([]byte, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotANI, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != fccRIFF || binary.LittleEndian.Uint32(data[8:12]) != fccACON {
		return nil, fmt.Errorf("%w: form % x", ErrNotANI, data[0:12])
	}
	size := int64(binary.LittleEndian.Uint32(data[4:8]))
	if size < 4 || chunkHeaderSize+size > int64(len(data)) {
		return nil, fmt.Errorf("%w: RIFF size %d, have %d bytes", ErrTruncated, size, len(data)-chunkHeaderSize)
	}
	return data[12 : chunkHeaderSize+size], nil
}

func decodeInfo(f *File, list []byte) error {
	chunks, err := readChunks(list)
	if err != nil {
		return err
	}
	var seenName, seenArtist bool
	for _, c := range chunks {
		switch {
		case c.ID == fccINAM && !seenName:
			seenName = true
			if f.Name, err = decodeText("INAM", c.Data); err != nil {
				return err
			}
		case c.ID == fccIART && !seenArtist:
			seenArtist = true
			if f.Author, err = decodeText("IART", c.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeText(field string, b []byte) (string, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrBadText, field)
	}
	return string(b), nil
}

func decodeHeader(data []byte) (aniHeader, error) {
	var hdr aniHeader
	if len(data) != anihSize {
		return hdr, fmt.Errorf("%w: chunk size %d", ErrBadHeader, len(data))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return hdr, err
	}
	if hdr.Size != anihSize {
		return hdr, fmt.Errorf("%w: declared size %d", ErrBadHeader, hdr.Size)
	}
	if hdr.Frames > math.MaxInt32 || hdr.Steps > math.MaxInt32 {
		return hdr, fmt.Errorf("%w: %d frames, %d steps", ErrBadHeader, int32(hdr.Frames), int32(hdr.Steps))
	}
	if hdr.Flags&flagIcon == 0 {
		return hdr, ErrRawFrames
	}
	if hdr.Frames == 0 {
		return hdr, ErrNoFrames
	}
	if hdr.DisplayRate == 0 {
		return hdr, fmt.Errorf("%w: display rate 0", ErrBadRate)
	}
	return hdr, nil
}

func decodeFrames(f *File, list []byte, count int, opts *DecodeOptions) error {
	chunks, err := readChunks(list)
	if err != nil {
		return err
	}
	var icons [][]byte
	for _, c := range chunks {
		if c.ID == fccICON {
			icons = append(icons, c.Data)
		}
	}
	if len(icons) != count {
		return fmt.Errorf("%w: header says %d, found %d", ErrFrameCount, count, len(icons))
	}

	for i, data := range icons {
		frameOpts := &ico.DecodeOptions{}
		if opts != nil {
			frameOpts.PNG = opts.PNG
			frameOpts.Logger = opts.Logger
			if h := opts.OnEntryError; h != nil {
				frame := i
				frameOpts.OnEntryError = func(entry int, err error) {
					h(frame, entry, err)
					f.Skipped = append(f.Skipped, &FrameError{Frame: frame, Entry: entry, Err: err})
				}
			}
		}
		cur, err := ico.DecodeBytes(data, frameOpts)
		if err != nil {
			var ee *ico.EntryError
			if errors.As(err, &ee) {
				return &FrameError{Frame: i, Entry: ee.Index, Err: ee.Err}
			}
			return &FrameError{Frame: i, Entry: -1, Err: err}
		}
		// Icon frames are accepted and read as cursors with a 0,0 hotspot.
		if cur.Type == ico.TypeIcon {
			opts.logger().Debug("icon frame read as cursor", "frame", i)
			cur.Type = ico.TypeCursor
		}
		f.Frames = append(f.Frames, &Frame{Cursor: cur})
	}
	return nil
}

func decodeSequence(f *File, data []byte, steps int) error {
	if len(data) != 4*steps {
		return fmt.Errorf("%w: %d bytes for %d steps", ErrBadSequence, len(data), steps)
	}
	seq := readU32s(data)
	f.Sequence = make([]int, len(seq))
	for i, v := range seq {
		if int64(v) >= int64(len(f.Frames)) {
			return fmt.Errorf("%w: step %d shows frame %d of %d", ErrBadSequence, i, v, len(f.Frames))
		}
		f.Sequence[i] = int(v)
	}
	return nil
}

func decodeRate(f *File, data []byte) error {
	if len(data) != 4*len(f.Frames) {
		return fmt.Errorf("%w: rate chunk has %d bytes for %d frames", ErrBadRate, len(data), len(f.Frames))
	}
	for i, v := range readU32s(data) {
		if v == 0 || v > math.MaxInt32 {
			return fmt.Errorf("%w: frame %d rate %d", ErrBadRate, i, int32(v))
		}
		f.Frames[i].Duration = v
	}
	return nil
}
