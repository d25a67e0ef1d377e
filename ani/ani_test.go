package ani

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"

	ico "github.com/antoinefink/golang-icocur"
)

func solid(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// cursor builds a cursor whose entries are all filled with shade.
func cursor(t *testing.T, shade uint8, keys ...ico.Key) *ico.File {
	t.Helper()
	f := ico.NewFile(ico.TypeCursor)
	for _, k := range keys {
		e, err := ico.NewEntry(solid(k.Width, color.NRGBA{shade, 255 - shade, 64, 255}), k.Width, k.Height, k.Depth)
		if err != nil {
			t.Fatal(err)
		}
		e.SetHotspot(k.Width/2, k.Height/2)
		if !f.Entries.Append(e) {
			t.Fatalf("append %v", k)
		}
	}
	return f
}

var (
	key32 = ico.Key{Width: 32, Height: 32, Depth: ico.Depth32}
	key16 = ico.Key{Width: 16, Height: 16, Depth: ico.Depth8}
)

func chunkBytes(id uint32, payload []byte) []byte {
	bb := new(bytes.Buffer)
	writeChunk(bb, id, payload)
	return bb.Bytes()
}

func listBytes(typ uint32, parts ...[]byte) []byte {
	bb := new(bytes.Buffer)
	writeList(bb, typ, bytes.Join(parts, nil))
	return bb.Bytes()
}

func anihBytes(t *testing.T, hdr aniHeader) []byte {
	t.Helper()
	if hdr.Size == 0 {
		hdr.Size = anihSize
	}
	bb := new(bytes.Buffer)
	if err := binary.Write(bb, binary.LittleEndian, hdr); err != nil {
		t.Fatal(err)
	}
	return chunkBytes(fccANIH, bb.Bytes())
}

func framBytes(t *testing.T, frames ...*ico.File) []byte {
	t.Helper()
	var parts [][]byte
	for _, f := range frames {
		b, err := f.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, chunkBytes(fccICON, b))
	}
	return listBytes(fccFRAM, parts...)
}

func riffBytes(chunks ...[]byte) []byte {
	body := append(u32s([]uint32{fccACON}), bytes.Join(chunks, nil)...)
	return chunkBytes(fccRIFF, body)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	f := New(6)
	f.Name = "Busy"
	f.Author = "icotool"
	for i := 0; i < 3; i++ {
		f.AddFrame(cursor(t, uint8(60*i), key32, key16))
	}
	f.Frames[1].Duration = 12
	f.Sequence = []int{0, 1, 2, 1}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got.Name != f.Name || got.Author != f.Author {
		t.Errorf("info = %q/%q", got.Name, got.Author)
	}
	if got.DisplayRate != 6 || len(got.Frames) != 3 {
		t.Fatalf("rate %d, %d frames", got.DisplayRate, len(got.Frames))
	}
	for i := range got.Frames {
		if got.EffectiveDuration(i) != f.EffectiveDuration(i) {
			t.Errorf("frame %d duration %d, want %d", i, got.EffectiveDuration(i), f.EffectiveDuration(i))
		}
		want, have := f.Frames[i].Cursor.Entries, got.Frames[i].Cursor.Entries
		for j := 0; j < want.Len(); j++ {
			if have.At(j).Key() != want.At(j).Key() {
				t.Errorf("frame %d entry %d: %v, want %v", i, j, have.At(j).Key(), want.At(j).Key())
			}
			if !bytes.Equal(have.At(j).Image().Pix, want.At(j).Quantize(want.At(j).EncodesAsPNG()).Image().Pix) {
				t.Errorf("frame %d entry %d: pixels differ", i, j)
			}
			hx, hy := have.At(j).Hotspot()
			wx, wy := want.At(j).Hotspot()
			if hx != wx || hy != wy {
				t.Errorf("frame %d entry %d: hotspot %d,%d want %d,%d", i, j, hx, hy, wx, wy)
			}
		}
	}
	if len(got.Sequence) != 4 || got.Sequence[3] != 1 {
		t.Errorf("sequence %v", got.Sequence)
	}
	if total := got.TotalDuration(); total != 6+12+6+12 {
		t.Errorf("total duration %d", total)
	}

	again, err := got.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, data) {
		t.Error("re-encoding changed the bytes")
	}
}

func TestSequentialWithoutSeq(t *testing.T) {
	t.Parallel()

	f := New(10)
	f.AddFrame(cursor(t, 0, key32))
	f.AddFrame(cursor(t, 200, key32))
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"seq ", "rate", "INFO"} {
		if bytes.Contains(data, []byte(id)) {
			t.Errorf("optional chunk %q written", id)
		}
	}

	got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sequence) != 0 {
		t.Errorf("sequence %v, want empty", got.Sequence)
	}
	order := got.PlayOrder()
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("play order %v", order)
	}
	if got.EffectiveDuration(1) != 10 || got.TotalDuration() != 20 {
		t.Errorf("durations %d/%d", got.EffectiveDuration(1), got.TotalDuration())
	}
}

func TestDecodeRateLength(t *testing.T) {
	t.Parallel()

	frames := framBytes(t, cursor(t, 0, key32), cursor(t, 9, key32))
	hdr := aniHeader{Frames: 2, Steps: 2, DisplayRate: 5, Flags: flagIcon}

	tests := []struct {
		name  string
		rates []byte
		want  error
	}{
		{"short", u32s([]uint32{5}), ErrBadRate},
		{"long", u32s([]uint32{5, 5, 5}), ErrBadRate},
		{"ragged", append(u32s([]uint32{5}), 1, 2, 3, 4, 5), ErrBadRate},
		{"zero", u32s([]uint32{5, 0}), ErrBadRate},
		{"negative", u32s([]uint32{5, 0xffffffff}), ErrBadRate},
		{"valid", u32s([]uint32{5, 7}), nil},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := riffBytes(anihBytes(t, hdr), chunkBytes(fccRATE, tc.rates), frames)
			// Rate errors are fatal even with a handler.
			f, err := DecodeBytes(data, &DecodeOptions{OnEntryError: func(int, int, error) {}})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if tc.want == nil && f.EffectiveDuration(1) != 7 {
				t.Errorf("duration %d", f.EffectiveDuration(1))
			}
		})
	}
}

func TestKeyMismatch(t *testing.T) {
	t.Parallel()

	a := cursor(t, 0, key32, key16)
	b := cursor(t, 90, key32)

	f := New(4)
	f.AddFrame(a)
	f.AddFrame(b)
	var buf bytes.Buffer
	err := Encode(&buf, f, nil)
	if !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("encode: got %v, want ErrKeyMismatch", err)
	}
	if buf.Len() != 0 {
		t.Error("bytes written for an invalid animation")
	}

	data := riffBytes(anihBytes(t, aniHeader{Frames: 2, Steps: 2, DisplayRate: 4, Flags: flagIcon}), framBytes(t, a, b))
	_, err = DecodeBytes(data, nil)
	var fe *FrameError
	if !errors.Is(err, ErrKeyMismatch) || !errors.As(err, &fe) || fe.Frame != 1 {
		t.Fatalf("decode: got %v", err)
	}

	// Same keys in a different order are fine.
	c := cursor(t, 0, key16)
	c.Entries.Append(cursor(t, 1, key32).Entries.RemoveAt(0))
	f.Frames[1].Cursor = c
	if err := f.Validate(); err != nil {
		t.Errorf("reordered keys rejected: %v", err)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	t.Parallel()

	frames := framBytes(t, cursor(t, 0, key32), cursor(t, 1, key32))
	good := aniHeader{Frames: 2, Steps: 2, DisplayRate: 3, Flags: flagIcon}

	with := func(mod func(h *aniHeader)) []byte {
		h := good
		mod(&h)
		return anihBytes(t, h)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not riff", []byte("RIFX\x04\x00\x00\x00ACON"), ErrNotANI},
		{"not acon", append([]byte("RIFF\x04\x00\x00\x00"), []byte("WAVE")...), ErrNotANI},
		{"riff size too big", append([]byte("RIFF\xff\x00\x00\x00"), []byte("ACON")...), ErrTruncated},
		{"raw frames", riffBytes(with(func(h *aniHeader) { h.Flags = 0 }), frames), ErrRawFrames},
		{"bad header size", riffBytes(with(func(h *aniHeader) { h.Size = 32 }), frames), ErrBadHeader},
		{"short header chunk", riffBytes(chunkBytes(fccANIH, make([]byte, 32)), frames), ErrBadHeader},
		{"negative frames", riffBytes(with(func(h *aniHeader) { h.Frames = 0x80000000 }), frames), ErrBadHeader},
		{"no frames", riffBytes(with(func(h *aniHeader) { h.Frames = 0 }), frames), ErrNoFrames},
		{"zero rate", riffBytes(with(func(h *aniHeader) { h.DisplayRate = 0 }), frames), ErrBadRate},
		{"missing anih", riffBytes(frames), ErrMissingChunk},
		{"missing fram", riffBytes(with(func(*aniHeader) {})), ErrMissingChunk},
		{"frame count", riffBytes(with(func(h *aniHeader) { h.Frames = 3 }), frames), ErrFrameCount},
		{"missing seq", riffBytes(with(func(h *aniHeader) { h.Flags |= flagSequence }), frames), ErrMissingChunk},
		{
			"seq out of range",
			riffBytes(with(func(h *aniHeader) { h.Flags |= flagSequence }), chunkBytes(fccSEQ, u32s([]uint32{0, 2})), frames),
			ErrBadSequence,
		},
		{
			"seq length",
			riffBytes(with(func(h *aniHeader) { h.Flags |= flagSequence }), chunkBytes(fccSEQ, u32s([]uint32{0})), frames),
			ErrBadSequence,
		},
		{"bad chunk id", riffBytes(with(func(*aniHeader) {}), chunkBytes(0x01020304, []byte{1, 2}), frames), ErrBadChunkID},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeBytes(tc.data, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeChunkHandling(t *testing.T) {
	t.Parallel()

	frames := framBytes(t, cursor(t, 0, key32))
	first := anihBytes(t, aniHeader{Frames: 1, Steps: 1, DisplayRate: 8, Flags: flagIcon})
	second := anihBytes(t, aniHeader{Frames: 1, Steps: 1, DisplayRate: 99, Flags: flagIcon})
	info := listBytes(fccINFO,
		chunkBytes(fccINAM, []byte("odd\x00\x00")), // 5 bytes, padded
		chunkBytes(fccIART, []byte("by\x00")),
	)
	unknown := chunkBytes(fourCC("LIST"), append(u32s([]uint32{fourCC("junk")}), 1, 2, 3))

	data := riffBytes(info, unknown, chunkBytes(fourCC("xtra"), []byte{7}), first, second, frames)
	f, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.DisplayRate != 8 {
		t.Errorf("display rate %d, first anih should win", f.DisplayRate)
	}
	if f.Name != "odd" || f.Author != "by" {
		t.Errorf("info %q/%q", f.Name, f.Author)
	}
}

func TestInfoText(t *testing.T) {
	t.Parallel()

	frames := framBytes(t, cursor(t, 0, key32))
	hdr := anihBytes(t, aniHeader{Frames: 1, Steps: 1, DisplayRate: 8, Flags: flagIcon})

	bad := listBytes(fccINFO, chunkBytes(fccIART, []byte{0xff, 0xfe, 0}))
	_, err := DecodeBytes(riffBytes(bad, hdr, frames), nil)
	if !errors.Is(err, ErrBadText) {
		t.Fatalf("got %v, want ErrBadText", err)
	}

	f := New(8)
	f.AddFrame(cursor(t, 0, key32))
	f.Name = "Sablier\x00ignored"
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("ignored")) || bytes.Contains(data, []byte("IART")) {
		t.Error("text after NUL or empty author written")
	}
	got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Sablier" || got.Author != "" {
		t.Errorf("info %q/%q", got.Name, got.Author)
	}

	f.Name = "\x00"
	data, err = f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("INFO")) {
		t.Error("INFO list written for empty text")
	}
}

// withBadEntry re-lays a one-entry cursor with a second, undecodable record.
func withBadEntry(t *testing.T, cur *ico.File) []byte {
	t.Helper()
	good, err := cur.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	payload := good[6+16:]
	garbage := bytes.Repeat([]byte{0xab}, 48)

	out := []byte{0, 0, 2, 0, 2, 0}
	rec := append([]byte(nil), good[6:6+16]...)
	binary.LittleEndian.PutUint32(rec[12:16], 6+2*16)
	out = append(out, rec...)
	bad := make([]byte, 16)
	bad[0], bad[1] = 8, 8
	binary.LittleEndian.PutUint32(bad[8:12], uint32(len(garbage)))
	binary.LittleEndian.PutUint32(bad[12:16], uint32(6+2*16+len(payload)))
	out = append(out, bad...)
	out = append(out, payload...)
	return append(out, garbage...)
}

func TestFrameEntryErrors(t *testing.T) {
	t.Parallel()

	good := framBytes(t, cursor(t, 0, key32))
	goodBody := good[12:] // skip LIST header and form type
	badFrame := chunkBytes(fccICON, withBadEntry(t, cursor(t, 50, key32)))
	fram := listBytes(fccFRAM, goodBody, badFrame)
	data := riffBytes(anihBytes(t, aniHeader{Frames: 2, Steps: 2, DisplayRate: 8, Flags: flagIcon}), fram)

	_, err := DecodeBytes(data, nil)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Frame != 1 || fe.Entry != 1 || !errors.Is(err, ico.ErrUnknownPayload) {
		t.Fatalf("got %v, want frame 1 entry 1", err)
	}

	type report struct{ frame, entry int }
	var reports []report
	f, err := DecodeBytes(data, &DecodeOptions{OnEntryError: func(frame, entry int, err error) {
		reports = append(reports, report{frame, entry})
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0] != (report{1, 1}) {
		t.Errorf("reports %v", reports)
	}
	if len(f.Skipped) != 1 || f.Skipped[0].Frame != 1 || f.Skipped[0].Entry != 1 {
		t.Errorf("skipped %v", f.Skipped)
	}
	if f.Frames[1].Cursor.Entries.Len() != 1 {
		t.Errorf("frame 1 has %d entries", f.Frames[1].Cursor.Entries.Len())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := New(5)
	if err := f.Validate(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("no frames: %v", err)
	}
	f.AddFrame(cursor(t, 0, key32))
	f.AddFrame(ico.NewFile(ico.TypeCursor))
	if err := f.Validate(); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame: %v", err)
	}
	f.Frames[1].Cursor = cursor(t, 1, key32)
	f.Sequence = []int{0, 2}
	if err := f.Validate(); !errors.Is(err, ErrBadSequence) {
		t.Errorf("sequence: %v", err)
	}
	f.Sequence = []int{1, 0, 1}
	f.DisplayRate = 0
	if err := f.Validate(); !errors.Is(err, ErrBadRate) {
		t.Errorf("rate: %v", err)
	}
	f.DisplayRate = 5
	if err := f.Validate(); err != nil {
		t.Errorf("valid file rejected: %v", err)
	}
	f.Frames[1].Cursor.Type = ico.TypeIcon
	if err := f.Validate(); !errors.Is(err, ErrFrameType) {
		t.Errorf("icon frame: %v", err)
	}
}

func TestIconFramesReadAsCursors(t *testing.T) {
	t.Parallel()

	icon := cursor(t, 30, key32)
	icon.Type = ico.TypeIcon
	data := riffBytes(
		anihBytes(t, aniHeader{Frames: 2, Steps: 2, DisplayRate: 4, Flags: flagIcon}),
		framBytes(t, cursor(t, 0, key32), icon),
	)
	f, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if typ := f.Frames[1].Cursor.Type; typ != ico.TypeCursor {
		t.Fatalf("frame 1 type %v", typ)
	}
	if x, y := f.Frames[1].Cursor.Entries.At(0).Hotspot(); x != 0 || y != 0 {
		t.Errorf("hotspot %d,%d", x, y)
	}
	if _, err := f.MarshalBinary(); err != nil {
		t.Errorf("re-encode: %v", err)
	}
}

// An opaque 32bpp frame next to a translucent one must not change depth
// on the way through the encoder.
func TestOpaqueAndTranslucentFrames(t *testing.T) {
	t.Parallel()

	key := ico.Key{Width: 128, Height: 128, Depth: ico.Depth32}
	translucent := ico.NewFile(ico.TypeCursor)
	e, err := ico.NewEntry(solid(128, color.NRGBA{10, 20, 30, 128}), 128, 128, ico.Depth32)
	if err != nil {
		t.Fatal(err)
	}
	translucent.Entries.Append(e)

	f := New(3)
	f.AddFrame(cursor(t, 90, key))
	f.AddFrame(translucent)
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, fr := range got.Frames {
		if k := fr.Cursor.Entries.At(0).Key(); k != key {
			t.Errorf("frame %d decoded %v", i, k)
		}
	}
}

func TestReadChunkPadding(t *testing.T) {
	t.Parallel()

	data := append(chunkBytes(fourCC("abcd"), []byte{1, 2, 3}), chunkBytes(fourCC("efgh"), []byte{4})...)
	if len(data) != 8+4+8+2 {
		t.Fatalf("padded size %d", len(data))
	}
	chunks, err := readChunks(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || len(chunks[0].Data) != 3 || fourCCString(chunks[1].ID) != "efgh" {
		t.Fatalf("chunks %+v", chunks)
	}

	// A final odd chunk may omit its pad byte.
	if _, err := readChunks(data[:len(data)-1]); err != nil {
		t.Errorf("unpadded final chunk: %v", err)
	}
	if _, err := readChunks(data[:len(data)-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated chunk: %v", err)
	}
}
