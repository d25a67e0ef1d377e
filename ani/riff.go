package ani

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const chunkHeaderSize = 8

// fourCC packs a chunk id the way it is stored: four bytes, little-endian.
func fourCC(s string) uint32 {
	return binary.LittleEndian.Uint32([]byte(s))
}

var (
	fccRIFF = fourCC("RIFF")
	fccACON = fourCC("ACON")
	fccLIST = fourCC("LIST")
	fccINFO = fourCC("INFO")
	fccINAM = fourCC("INAM")
	fccIART = fourCC("IART")
	fccANIH = fourCC("anih")
	fccRATE = fourCC("rate")
	fccSEQ  = fourCC("seq ")
	fccFRAM = fourCC("fram")
	fccICON = fourCC("icon")
)

type chunk struct {
	ID   uint32
	Data []byte
}

// fourCCString returns a human-readable string for a FourCC value.
func fourCCString(id uint32) string {
	return string([]byte{
		byte(id),
		byte(id >> 8),
		byte(id >> 16),
		byte(id >> 24),
	})
}

// validFourCC reports whether every byte of id is printable ASCII.
func validFourCC(id uint32) bool {
	for i := 0; i < 4; i++ {
		if b := byte(id >> (8 * i)); b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}

// readChunk reads one chunk from data and returns it with the number of
// bytes consumed, including the pad byte after an odd-sized payload.
func readChunk(data []byte) (chunk, int, error) {
	if len(data) < chunkHeaderSize {
		return chunk{}, 0, fmt.Errorf("%w: chunk header needs %d bytes, have %d", ErrTruncated, chunkHeaderSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	if !validFourCC(id) {
		return chunk{}, 0, fmt.Errorf("%w: % x", ErrBadChunkID, data[0:4])
	}
	size := int64(binary.LittleEndian.Uint32(data[4:8]))
	payloadEnd := chunkHeaderSize + size
	if payloadEnd > int64(len(data)) {
		return chunk{}, 0, fmt.Errorf("%w: chunk %q needs %d bytes, have %d",
			ErrTruncated, fourCCString(id), payloadEnd, len(data))
	}
	c := chunk{ID: id, Data: data[chunkHeaderSize:payloadEnd]}
	consumed := int(payloadEnd)
	if size%2 != 0 && consumed < len(data) {
		consumed++
	}
	return c, consumed, nil
}

// readChunks splits data into consecutive chunks.
func readChunks(data []byte) ([]chunk, error) {
	var chunks []chunk
	for pos := 0; pos < len(data); {
		c, n, err := readChunk(data[pos:])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		pos += n
	}
	return chunks, nil
}

// listType returns the form type of a LIST chunk and its body.
func listType(c chunk) (uint32, []byte, bool) {
	if c.ID != fccLIST || len(c.Data) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(c.Data[0:4]), c.Data[4:], true
}

func writeChunk(bb *bytes.Buffer, id uint32, payload []byte) {
	var hdr [chunkHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], id)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	bb.Write(hdr[:])
	bb.Write(payload)
	if len(payload)%2 != 0 {
		bb.WriteByte(0)
	}
}

func writeList(bb *bytes.Buffer, typ uint32, body []byte) {
	payload := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(payload[0:4], typ)
	copy(payload[4:], body)
	writeChunk(bb, fccLIST, payload)
}

func u32s(vals []uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func readU32s(b []byte) []uint32 {
	vals := make([]uint32, len(b)/4)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return vals
}
