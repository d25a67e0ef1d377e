// Package resource rebuilds icon and cursor containers from the group and
// image resources of Windows executables, and stores them back.
//
// A group resource (RT_GROUP_ICON, RT_GROUP_CURSOR) is a directory table
// whose records point at image resources (RT_ICON, RT_CURSOR) by numeric
// id instead of by file offset.
package resource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	ico "github.com/antoinefink/golang-icocur"
)

// Kind selects icon or cursor resources.
type Kind int

const (
	Icon Kind = iota
	Cursor
)

func (k Kind) String() string {
	if k == Cursor {
		return "cursor"
	}
	return "icon"
}

func (k Kind) fileType() ico.FileType {
	if k == Cursor {
		return ico.TypeCursor
	}
	return ico.TypeIcon
}

var (
	ErrNoGroup      = errors.New("resource: no such group")
	ErrNoImage      = errors.New("resource: no such image")
	ErrBadGroup     = errors.New("resource: corrupted group directory")
	ErrBadCursor    = errors.New("resource: cursor image without hotspot")
	ErrKindMismatch = errors.New("resource: group type does not match kind")
)

// Supplier gives access to raw resource bytes.
type Supplier interface {
	Kind() Kind
	GroupCount() int
	// Group returns the directory bytes of the index-th group.
	Group(index int) ([]byte, error)
	// Image returns the image resource with the given id.
	Image(id uint16) ([]byte, error)
}

const (
	groupHeadSize  = 6
	groupEntrySize = 14
)

type groupHead struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

// GRPICONDIRENTRY
type iconGroupEntry struct {
	Width      byte
	Height     byte
	ColorCount byte
	Reserved   byte
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	ID         uint16
}

// GRPCURSORDIRENTRY; Height counts the AND mask rows too.
type cursorGroupEntry struct {
	Width      uint16
	Height     uint16
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	ID         uint16
}

// ICONDIR and ICONDIRENTRY as laid out in a file.
type fileEntry struct {
	Width      byte
	Height     byte
	ColorCount byte
	Reserved   byte
	FieldX     uint16
	FieldY     uint16
	Size       uint32
	Offset     uint32
}

// Assemble builds a standalone ICO or CUR stream from the index-th group.
func Assemble(s Supplier, index int) ([]byte, error) {
	if index < 0 || index >= s.GroupCount() {
		return nil, fmt.Errorf("%w: %s group %d of %d", ErrNoGroup, s.Kind(), index, s.GroupCount())
	}
	grp, err := s.Group(index)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(grp)
	var hdr groupHead
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadGroup, err)
	}
	if hdr.Reserved != 0 || ico.FileType(hdr.Type) != s.Kind().fileType() {
		return nil, fmt.Errorf("%w: type %d in %s group", ErrKindMismatch, hdr.Type, s.Kind())
	}
	n := int(hdr.Count)
	if n == 0 || len(grp) < groupHeadSize+n*groupEntrySize {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrBadGroup, n, len(grp))
	}

	entries := make([]fileEntry, n)
	payloads := make([][]byte, n)
	offset := uint32(groupHeadSize + n*16)
	for i := 0; i < n; i++ {
		var fe fileEntry
		var id uint16
		var gh int
		if s.Kind() == Cursor {
			var ge cursorGroupEntry
			if err := binary.Read(r, binary.LittleEndian, &ge); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadGroup, err)
			}
			id = ge.ID
			fe.Width = dirByte(int(ge.Width))
			gh = int(ge.Height)
			if d, ok := ico.DepthFromBits(int(ge.BitCount)); ok {
				fe.ColorCount = dirByte(d.MaxColors())
			}
		} else {
			var ge iconGroupEntry
			if err := binary.Read(r, binary.LittleEndian, &ge); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadGroup, err)
			}
			id = ge.ID
			fe.Width, fe.Height, fe.ColorCount = ge.Width, ge.Height, ge.ColorCount
			fe.FieldX, fe.FieldY = ge.Planes, ge.BitCount
		}

		data, err := s.Image(id)
		if err != nil {
			return nil, err
		}
		if s.Kind() == Cursor {
			if len(data) < 4 {
				return nil, fmt.Errorf("%w: image %d", ErrBadCursor, id)
			}
			fe.FieldX = binary.LittleEndian.Uint16(data[0:2])
			fe.FieldY = binary.LittleEndian.Uint16(data[2:4])
			data = data[4:]
			fe.Height = dirByte(cursorHeight(gh, data))
		}
		fe.Size = uint32(len(data))
		fe.Offset = offset
		offset += fe.Size
		entries[i] = fe
		payloads[i] = data
	}

	bb := new(bytes.Buffer)
	bb.Grow(int(offset))
	if err := binary.Write(bb, binary.LittleEndian, groupHead{Type: hdr.Type, Count: hdr.Count}); err != nil {
		return nil, err
	}
	if err := binary.Write(bb, binary.LittleEndian, entries); err != nil {
		return nil, err
	}
	for _, p := range payloads {
		bb.Write(p)
	}
	return bb.Bytes(), nil
}

// Load assembles the index-th group and decodes it.
func Load(s Supplier, index int, opts *ico.DecodeOptions) (*ico.File, error) {
	data, err := Assemble(s, index)
	if err != nil {
		return nil, err
	}
	return ico.DecodeBytes(data, opts)
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// cursorHeight resolves the height of a cursor image. Group records usually
// count the AND mask rows too, but some linkers store the plain height, so
// the payload is consulted when it can tell.
func cursorHeight(groupHeight int, data []byte) int {
	if bytes.HasPrefix(data, pngMagic) && len(data) >= 24 {
		return int(binary.BigEndian.Uint32(data[20:24]))
	}
	if len(data) < 16 || binary.LittleEndian.Uint32(data[0:4]) < 40 {
		return groupHeight / 2
	}
	h := int(int32(binary.LittleEndian.Uint32(data[8:12])))
	if h < 0 {
		h = -h
	}
	bits := binary.LittleEndian.Uint16(data[14:16])
	switch {
	case bits != 32:
		return h / 2
	case h == groupHeight:
		return h / 2
	case h < groupHeight:
		return h
	}
	return groupHeight
}

func dirByte(v int) byte {
	if v >= 256 {
		return 0
	}
	return byte(v)
}
