package ico

import "fmt"

// BitDepth is the pixel format of one icon or cursor entry.
type BitDepth uint8

const (
	Depth32 BitDepth = iota // true color with alpha
	Depth24                 // true color
	Depth8                  // 256 colors
	Depth4                  // 16 colors
	Depth1                  // 2 colors
)

const (
	MinDimension = 1
	MaxDimension = 768
)

// DepthFromBits maps a bits-per-pixel value to a BitDepth.
func DepthFromBits(bits int) (BitDepth, bool) {
	switch bits {
	case 32:
		return Depth32, true
	case 24:
		return Depth24, true
	case 8:
		return Depth8, true
	case 4:
		return Depth4, true
	case 1:
		return Depth1, true
	}
	return 0, false
}

// Bits returns the number of bits per pixel.
func (d BitDepth) Bits() int {
	switch d {
	case Depth32:
		return 32
	case Depth24:
		return 24
	case Depth8:
		return 8
	case Depth4:
		return 4
	case Depth1:
		return 1
	}
	return 0
}

// MaxColors returns the palette size for indexed depths and 0 otherwise.
func (d BitDepth) MaxColors() int {
	if d.Indexed() {
		return 1 << d.Bits()
	}
	return 0
}

func (d BitDepth) Indexed() bool {
	return d == Depth8 || d == Depth4 || d == Depth1
}

func (d BitDepth) Valid() bool {
	return d <= Depth1
}

// rank is the sort rank; the constant values already follow it.
func (d BitDepth) rank() int { return int(d) }

func (d BitDepth) String() string {
	if !d.Valid() {
		return fmt.Sprintf("BitDepth(%d)", uint8(d))
	}
	return fmt.Sprintf("%dbpp", d.Bits())
}

// Key identifies an entry inside a collection.
type Key struct {
	Width  int
	Height int
	Depth  BitDepth
}

func (k Key) Valid() bool {
	return k.Width >= MinDimension && k.Width <= MaxDimension &&
		k.Height >= MinDimension && k.Height <= MaxDimension &&
		k.Depth.Valid()
}

func (k Key) String() string {
	return fmt.Sprintf("%dx%d@%s", k.Width, k.Height, k.Depth)
}

// Compare orders keys by depth rank ascending, then height descending,
// then width descending. It returns -1, 0 or +1.
func Compare(a, b Key) int {
	switch {
	case a.Depth.rank() < b.Depth.rank():
		return -1
	case a.Depth.rank() > b.Depth.rank():
		return 1
	case a.Height > b.Height:
		return -1
	case a.Height < b.Height:
		return 1
	case a.Width > b.Width:
		return -1
	case a.Width < b.Width:
		return 1
	}
	return 0
}

func (k Key) Less(o Key) bool { return Compare(k, o) < 0 }
