package ico

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// FileType is the type code of the container header.
type FileType uint16

const (
	TypeIcon   FileType = 1
	TypeCursor FileType = 2
)

func (t FileType) Valid() bool { return t == TypeIcon || t == TypeCursor }

func (t FileType) String() string {
	switch t {
	case TypeIcon:
		return "icon"
	case TypeCursor:
		return "cursor"
	}
	return fmt.Sprintf("type %d", uint16(t))
}

// File is a decoded or hand-built ICO or CUR container.
type File struct {
	Type    FileType
	Entries *Collection

	// Skipped lists directory records dropped during decoding.
	Skipped []*EntryError
}

func NewFile(t FileType) *File {
	return &File{Type: t, Entries: NewCollection()}
}

// DecodeOptions configure DecodeFile and DecodeBytes. A nil *DecodeOptions
// is valid and aborts on the first bad entry.
type DecodeOptions struct {
	// OnEntryError receives every directory record that fails to decode;
	// the record is skipped. When nil, the first failure aborts decoding.
	OnEntryError func(index int, err error)

	PNG    PNGCodec
	Logger hclog.Logger
}

func (o *DecodeOptions) png() PNGCodec {
	if o == nil || o.PNG == nil {
		return StdPNG{}
	}
	return o.PNG
}

func (o *DecodeOptions) logger() hclog.Logger {
	if o == nil || o.Logger == nil {
		return hclog.NewNullLogger()
	}
	return o.Logger
}

// EncodeOptions configure EncodeFile.
type EncodeOptions struct {
	PNG    PNGCodec
	Logger hclog.Logger
}

func (o *EncodeOptions) png() PNGCodec {
	if o == nil || o.PNG == nil {
		return StdPNG{}
	}
	return o.PNG
}

func (o *EncodeOptions) logger() hclog.Logger {
	if o == nil || o.Logger == nil {
		return hclog.NewNullLogger()
	}
	return o.Logger
}

// fieldCodec computes the two type-dependent directory fields: color
// planes and bit count for icons, hotspot X and Y for cursors.
type fieldCodec struct {
	x func(e *Entry) uint16
	y func(e *Entry) uint16
}

var fieldCodecs = map[FileType]fieldCodec{
	TypeIcon: {
		x: func(*Entry) uint16 { return 1 },
		y: func(e *Entry) uint16 { return uint16(e.Depth().Bits()) },
	},
	TypeCursor: {
		x: func(e *Entry) uint16 { x, _ := e.Hotspot(); return uint16(x) },
		y: func(e *Entry) uint16 { _, y := e.Hotspot(); return uint16(y) },
	},
}
