package resource

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tc-hib/winres"

	ico "github.com/antoinefink/golang-icocur"
)

type group struct {
	id   winres.Identifier
	lang uint16
	data []byte
}

// ResourceSupplier is a Supplier over a winres resource set.
type ResourceSupplier struct {
	kind   Kind
	groups []group
	images map[uint16][]byte
}

func typeIDs(k Kind) (groupType, imageType winres.ID) {
	if k == Cursor {
		return winres.RT_GROUP_CURSOR, winres.RT_CURSOR
	}
	return winres.RT_GROUP_ICON, winres.RT_ICON
}

// NewSupplier indexes the groups and images of kind k in rs. A group or
// image present in several languages is taken in the first one.
func NewSupplier(rs *winres.ResourceSet, k Kind) *ResourceSupplier {
	s := &ResourceSupplier{kind: k, images: make(map[uint16][]byte)}
	groupType, imageType := typeIDs(k)

	seen := make(map[winres.Identifier]bool)
	rs.WalkType(groupType, func(resID winres.Identifier, langID uint16, data []byte) bool {
		if !seen[resID] {
			seen[resID] = true
			s.groups = append(s.groups, group{id: resID, lang: langID, data: data})
		}
		return true
	})
	rs.WalkType(imageType, func(resID winres.Identifier, langID uint16, data []byte) bool {
		if id, ok := resID.(winres.ID); ok {
			if _, dup := s.images[uint16(id)]; !dup {
				s.images[uint16(id)] = data
			}
		}
		return true
	})
	return s
}

// LoadEXE reads the resources of a PE file.
func LoadEXE(r io.ReadSeeker, k Kind) (*ResourceSupplier, error) {
	rs, err := winres.LoadFromEXE(r)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	return NewSupplier(rs, k), nil
}

func (s *ResourceSupplier) Kind() Kind { return s.kind }

func (s *ResourceSupplier) GroupCount() int { return len(s.groups) }

// GroupID returns the resource identifier of the index-th group.
func (s *ResourceSupplier) GroupID(index int) winres.Identifier {
	return s.groups[index].id
}

func (s *ResourceSupplier) Group(index int) ([]byte, error) {
	if index < 0 || index >= len(s.groups) {
		return nil, fmt.Errorf("%w: %d", ErrNoGroup, index)
	}
	return s.groups[index].data, nil
}

func (s *ResourceSupplier) Image(id uint16) ([]byte, error) {
	data, ok := s.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", ErrNoImage, s.kind, id)
	}
	return data, nil
}

// Put stores f in rs as a group named groupID plus one image resource per
// entry, numbered after the highest image id already present.
func Put(rs *winres.ResourceSet, groupID winres.Identifier, f *ico.File, lang uint16) error {
	k := Icon
	if f.Type == ico.TypeCursor {
		k = Cursor
	}
	groupType, imageType := typeIDs(k)

	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	payloads, err := splitPayloads(data)
	if err != nil {
		return err
	}

	var next uint16
	rs.WalkType(imageType, func(resID winres.Identifier, _ uint16, _ []byte) bool {
		if id, ok := resID.(winres.ID); ok && uint16(id) > next {
			next = uint16(id)
		}
		return true
	})
	if int(next)+len(payloads) > 0xffff {
		return fmt.Errorf("resource: no free %s ids", k)
	}

	grp := new(bytes.Buffer)
	n := len(payloads)
	if err := binary.Write(grp, binary.LittleEndian, groupHead{Type: uint16(f.Type), Count: uint16(n)}); err != nil {
		return err
	}
	// MarshalBinary sorted the entries, so they line up with the payloads.
	for i, e := range f.Entries.Entries() {
		next++
		payload := payloads[i]
		if k == Cursor {
			x, y := e.Hotspot()
			hs := make([]byte, 4, 4+len(payload))
			binary.LittleEndian.PutUint16(hs[0:2], uint16(x))
			binary.LittleEndian.PutUint16(hs[2:4], uint16(y))
			payload = append(hs, payload...)
			err = binary.Write(grp, binary.LittleEndian, cursorGroupEntry{
				Width:      uint16(e.Width()),
				Height:     uint16(2 * e.Height()),
				Planes:     1,
				BitCount:   uint16(e.Depth().Bits()),
				BytesInRes: uint32(len(payload)),
				ID:         next,
			})
		} else {
			err = binary.Write(grp, binary.LittleEndian, iconGroupEntry{
				Width:      dirByte(e.Width()),
				Height:     dirByte(e.Height()),
				ColorCount: dirByte(e.Depth().MaxColors()),
				Planes:     1,
				BitCount:   uint16(e.Depth().Bits()),
				BytesInRes: uint32(len(payload)),
				ID:         next,
			})
		}
		if err != nil {
			return err
		}
		if err := rs.Set(imageType, winres.ID(next), lang, payload); err != nil {
			return err
		}
	}
	return rs.Set(groupType, groupID, lang, grp.Bytes())
}

// splitPayloads returns the entry payloads of an encoded container in
// directory order.
func splitPayloads(data []byte) ([][]byte, error) {
	r := bytes.NewReader(data)
	var hdr groupHead
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	payloads := make([][]byte, hdr.Count)
	for i := range payloads {
		var fe fileEntry
		if err := binary.Read(r, binary.LittleEndian, &fe); err != nil {
			return nil, err
		}
		end := int64(fe.Offset) + int64(fe.Size)
		if end > int64(len(data)) {
			return nil, fmt.Errorf("%w: entry %d past end", ErrBadGroup, i)
		}
		payloads[i] = data[fe.Offset:end]
	}
	return payloads, nil
}
