package ani

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	ico "github.com/antoinefink/golang-icocur"
)

// Encode validates f and writes it as a RIFF ACON stream. Nothing is
// written when validation or frame encoding fails.
func Encode(w io.Writer, f *File, opts *EncodeOptions) error {
	if err := f.Validate(); err != nil {
		return err
	}
	logger := opts.logger()

	var frameOpts *ico.EncodeOptions
	if opts != nil {
		frameOpts = &ico.EncodeOptions{PNG: opts.PNG, Logger: opts.Logger}
	}
	fram := new(bytes.Buffer)
	for i, fr := range f.Frames {
		cur := new(bytes.Buffer)
		if err := ico.EncodeFile(cur, fr.Cursor, frameOpts); err != nil {
			return &FrameError{Frame: i, Entry: -1, Err: err}
		}
		writeChunk(fram, fccICON, cur.Bytes())
	}

	var flags uint32 = flagIcon
	steps := len(f.Frames)
	if len(f.Sequence) > 0 {
		flags |= flagSequence
		steps = len(f.Sequence)
	}
	hdr := aniHeader{
		Size:        anihSize,
		Frames:      uint32(len(f.Frames)),
		Steps:       uint32(steps),
		DisplayRate: f.DisplayRate,
		Flags:       flags,
	}

	body := new(bytes.Buffer)
	body.Write(u32s([]uint32{fccACON}))

	name, author := cString(f.Name), cString(f.Author)
	if name != "" || author != "" {
		info := new(bytes.Buffer)
		if name != "" {
			writeChunk(info, fccINAM, append([]byte(name), 0))
		}
		if author != "" {
			writeChunk(info, fccIART, append([]byte(author), 0))
		}
		writeList(body, fccINFO, info.Bytes())
	}

	anih := new(bytes.Buffer)
	if err := binary.Write(anih, binary.LittleEndian, hdr); err != nil {
		return err
	}
	writeChunk(body, fccANIH, anih.Bytes())

	if rates, ok := f.rates(); ok {
		writeChunk(body, fccRATE, u32s(rates))
	}
	if len(f.Sequence) > 0 {
		seq := make([]uint32, len(f.Sequence))
		for i, v := range f.Sequence {
			seq[i] = uint32(v)
		}
		writeChunk(body, fccSEQ, u32s(seq))
	}
	writeList(body, fccFRAM, fram.Bytes())

	out := new(bytes.Buffer)
	out.Grow(chunkHeaderSize + body.Len())
	var riff [chunkHeaderSize]byte
	binary.LittleEndian.PutUint32(riff[0:4], fccRIFF)
	binary.LittleEndian.PutUint32(riff[4:8], uint32(body.Len()))
	out.Write(riff[:])
	out.Write(body.Bytes())

	if _, err := w.Write(out.Bytes()); err != nil {
		return err
	}
	logger.Debug("encoded animation", "frames", len(f.Frames), "steps", steps, "bytes", out.Len())
	return nil
}

// MarshalBinary encodes f with default options.
func (f *File) MarshalBinary() ([]byte, error) {
	bb := new(bytes.Buffer)
	if err := Encode(bb, f, nil); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

// rates returns the per-frame durations when any of them differs from the
// display rate.
func (f *File) rates() ([]uint32, bool) {
	rates := make([]uint32, len(f.Frames))
	differ := false
	for i := range f.Frames {
		rates[i] = f.EffectiveDuration(i)
		if rates[i] != f.DisplayRate {
			differ = true
		}
	}
	return rates, differ
}

// cString drops everything from the first NUL on.
func cString(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}
