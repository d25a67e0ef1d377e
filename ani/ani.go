// Package ani reads and writes Windows animated cursor (ANI) files: a RIFF
// "ACON" form whose frames are complete CUR containers.
package ani

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	ico "github.com/antoinefink/golang-icocur"
)

// JiffiesPerSecond relates ANI durations to wall time.
const JiffiesPerSecond = 60

var (
	ErrNotANI       = errors.New("ani: not a RIFF ACON file")
	ErrTruncated    = errors.New("ani: truncated data")
	ErrBadChunkID   = errors.New("ani: malformed chunk id")
	ErrMissingChunk = errors.New("ani: missing chunk")
	ErrBadHeader    = errors.New("ani: invalid anih header")
	ErrRawFrames    = errors.New("ani: raw bitmap frames are not supported")
	ErrNoFrames     = errors.New("ani: no frames")
	ErrFrameCount   = errors.New("ani: frame count does not match header")
	ErrEmptyFrame   = errors.New("ani: frame has no entries")
	ErrFrameType    = errors.New("ani: frame is not a cursor")
	ErrBadSequence  = errors.New("ani: invalid play sequence")
	ErrBadRate      = errors.New("ani: invalid display rate")
	ErrKeyMismatch  = errors.New("ani: frames have different entry sizes")
	ErrBadText      = errors.New("ani: invalid text field")
)

// FrameError is an error inside one frame. Entry is the directory index of
// the failing entry, or -1 when the frame as a whole is bad.
type FrameError struct {
	Frame int
	Entry int
	Err   error
}

func (e *FrameError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("frame %d: entry %d: %v", e.Frame, e.Entry, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Frame is one cursor of the animation.
type Frame struct {
	Cursor *ico.File

	// Duration overrides the file's display rate when non-zero, in jiffies.
	Duration uint32
}

// File is an animated cursor.
type File struct {
	Frames []*Frame

	// DisplayRate is the default frame duration in jiffies.
	DisplayRate uint32

	// Sequence is the explicit play order as frame indices. Empty means
	// frames play in order.
	Sequence []int

	Name   string
	Author string

	// Skipped lists entries dropped from frames during decoding.
	Skipped []*FrameError
}

func New(displayRate uint32) *File {
	return &File{DisplayRate: displayRate}
}

// AddFrame appends a frame showing cursor for the default duration.
func (f *File) AddFrame(cursor *ico.File) *Frame {
	fr := &Frame{Cursor: cursor}
	f.Frames = append(f.Frames, fr)
	return fr
}

// EffectiveDuration is the duration of frame i in jiffies.
func (f *File) EffectiveDuration(i int) uint32 {
	if d := f.Frames[i].Duration; d > 0 {
		return d
	}
	return f.DisplayRate
}

// PlayOrder returns the frame indices in display order.
func (f *File) PlayOrder() []int {
	if len(f.Sequence) > 0 {
		return append([]int(nil), f.Sequence...)
	}
	order := make([]int, len(f.Frames))
	for i := range order {
		order[i] = i
	}
	return order
}

// TotalDuration is the length of one animation loop in jiffies.
func (f *File) TotalDuration() uint64 {
	var total uint64
	for _, i := range f.PlayOrder() {
		if i >= 0 && i < len(f.Frames) {
			total += uint64(f.EffectiveDuration(i))
		}
	}
	return total
}

// Validate checks everything Encode requires.
func (f *File) Validate() error {
	if len(f.Frames) == 0 {
		return ErrNoFrames
	}
	if f.DisplayRate == 0 {
		return fmt.Errorf("%w: display rate must be positive", ErrBadRate)
	}
	for i, fr := range f.Frames {
		if fr == nil || fr.Cursor == nil || fr.Cursor.Entries == nil || fr.Cursor.Entries.Len() == 0 {
			return &FrameError{Frame: i, Entry: -1, Err: ErrEmptyFrame}
		}
		if fr.Cursor.Type != ico.TypeCursor {
			return &FrameError{Frame: i, Entry: -1, Err: fmt.Errorf("%w: %v", ErrFrameType, fr.Cursor.Type)}
		}
	}
	for _, idx := range f.Sequence {
		if idx < 0 || idx >= len(f.Frames) {
			return fmt.Errorf("%w: frame %d of %d", ErrBadSequence, idx, len(f.Frames))
		}
	}
	return checkFrameKeys(f.Frames)
}

// checkFrameKeys verifies every frame has the same multiset of entry keys
// as the first one.
func checkFrameKeys(frames []*Frame) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	want := sortedKeys(frames[0].Cursor)
	if len(want) == 0 {
		return &FrameError{Frame: 0, Entry: -1, Err: ErrEmptyFrame}
	}
	for i := 1; i < len(frames); i++ {
		got := sortedKeys(frames[i].Cursor)
		if len(got) == 0 {
			return &FrameError{Frame: i, Entry: -1, Err: ErrEmptyFrame}
		}
		if !equalKeys(want, got) {
			return &FrameError{Frame: i, Entry: -1, Err: fmt.Errorf("%w: %v, frame 0 has %v", ErrKeyMismatch, got, want)}
		}
	}
	return nil
}

func sortedKeys(f *ico.File) []ico.Key {
	keys := f.Entries.Keys()
	sort.SliceStable(keys, func(i, j int) bool { return ico.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func equalKeys(a, b []ico.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DecodeOptions configure Decode and DecodeBytes.
type DecodeOptions struct {
	// OnEntryError receives entries that fail to decode inside a frame;
	// they are skipped. When nil, the first failure aborts decoding.
	OnEntryError func(frame, entry int, err error)

	PNG    ico.PNGCodec
	Logger hclog.Logger
}

func (o *DecodeOptions) logger() hclog.Logger {
	if o == nil || o.Logger == nil {
		return hclog.NewNullLogger()
	}
	return o.Logger
}

// EncodeOptions configure Encode.
type EncodeOptions struct {
	PNG    ico.PNGCodec
	Logger hclog.Logger
}

func (o *EncodeOptions) logger() hclog.Logger {
	if o == nil || o.Logger == nil {
		return hclog.NewNullLogger()
	}
	return o.Logger
}
