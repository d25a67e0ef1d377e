package ico

import (
	"image"
	"image/color"
)

// Wu's color quantizer (Graphics Gems II, "Efficient Statistical Computations
// for Optimal Color Quantization"), on a 32x32x32 histogram with an extra
// alpha moment so palette entries can carry a mean alpha.

const (
	wuBits = 5
	wuSide = 1<<wuBits + 1
	wuSize = wuSide * wuSide * wuSide

	// alphaWeight scales the alpha term of the color distance so that
	// transparent and opaque pixels never share a palette entry.
	alphaWeight = 16
)

type axis int

const (
	axisRed axis = iota
	axisGreen
	axisBlue
)

type wuBox struct {
	r0, r1 int
	g0, g1 int
	b0, b1 int
	vol    int
}

type wuHistogram struct {
	wt, mr, mg, mb, ma []int64
	m2                 []float64
}

func wuIndex(r, g, b int) int {
	return r*wuSide*wuSide + g*wuSide + b
}

func newWuHistogram() *wuHistogram {
	return &wuHistogram{
		wt: make([]int64, wuSize),
		mr: make([]int64, wuSize),
		mg: make([]int64, wuSize),
		mb: make([]int64, wuSize),
		ma: make([]int64, wuSize),
		m2: make([]float64, wuSize),
	}
}

func (h *wuHistogram) add(c color.NRGBA) {
	i := wuIndex(int(c.R>>(8-wuBits))+1, int(c.G>>(8-wuBits))+1, int(c.B>>(8-wuBits))+1)
	r, g, b := int64(c.R), int64(c.G), int64(c.B)
	h.wt[i]++
	h.mr[i] += r
	h.mg[i] += g
	h.mb[i] += b
	h.ma[i] += int64(c.A)
	h.m2[i] += float64(r*r + g*g + b*b)
}

// cumulate turns the histogram into cumulative moments so any box sum can be
// read with eight lookups.
func (h *wuHistogram) cumulate() {
	for r := 1; r < wuSide; r++ {
		var (
			area, areaR, areaG [wuSide]int64
			areaB, areaA       [wuSide]int64
			area2              [wuSide]float64
		)
		for g := 1; g < wuSide; g++ {
			var line, lineR, lineG, lineB, lineA int64
			var line2 float64
			for b := 1; b < wuSide; b++ {
				i := wuIndex(r, g, b)
				line += h.wt[i]
				lineR += h.mr[i]
				lineG += h.mg[i]
				lineB += h.mb[i]
				lineA += h.ma[i]
				line2 += h.m2[i]

				area[b] += line
				areaR[b] += lineR
				areaG[b] += lineG
				areaB[b] += lineB
				areaA[b] += lineA
				area2[b] += line2

				p := wuIndex(r-1, g, b)
				h.wt[i] = h.wt[p] + area[b]
				h.mr[i] = h.mr[p] + areaR[b]
				h.mg[i] = h.mg[p] + areaG[b]
				h.mb[i] = h.mb[p] + areaB[b]
				h.ma[i] = h.ma[p] + areaA[b]
				h.m2[i] = h.m2[p] + area2[b]
			}
		}
	}
}

func volume(b *wuBox, m []int64) int64 {
	return m[wuIndex(b.r1, b.g1, b.b1)] -
		m[wuIndex(b.r1, b.g1, b.b0)] -
		m[wuIndex(b.r1, b.g0, b.b1)] +
		m[wuIndex(b.r1, b.g0, b.b0)] -
		m[wuIndex(b.r0, b.g1, b.b1)] +
		m[wuIndex(b.r0, b.g1, b.b0)] +
		m[wuIndex(b.r0, b.g0, b.b1)] -
		m[wuIndex(b.r0, b.g0, b.b0)]
}

func volumeFloat(b *wuBox, m []float64) float64 {
	return m[wuIndex(b.r1, b.g1, b.b1)] -
		m[wuIndex(b.r1, b.g1, b.b0)] -
		m[wuIndex(b.r1, b.g0, b.b1)] +
		m[wuIndex(b.r1, b.g0, b.b0)] -
		m[wuIndex(b.r0, b.g1, b.b1)] +
		m[wuIndex(b.r0, b.g1, b.b0)] +
		m[wuIndex(b.r0, b.g0, b.b1)] -
		m[wuIndex(b.r0, b.g0, b.b0)]
}

// bottom is the part of volume that does not depend on the cut position.
func bottom(b *wuBox, dir axis, m []int64) int64 {
	switch dir {
	case axisRed:
		return -m[wuIndex(b.r0, b.g1, b.b1)] +
			m[wuIndex(b.r0, b.g1, b.b0)] +
			m[wuIndex(b.r0, b.g0, b.b1)] -
			m[wuIndex(b.r0, b.g0, b.b0)]
	case axisGreen:
		return -m[wuIndex(b.r1, b.g0, b.b1)] +
			m[wuIndex(b.r1, b.g0, b.b0)] +
			m[wuIndex(b.r0, b.g0, b.b1)] -
			m[wuIndex(b.r0, b.g0, b.b0)]
	default:
		return -m[wuIndex(b.r1, b.g1, b.b0)] +
			m[wuIndex(b.r1, b.g0, b.b0)] +
			m[wuIndex(b.r0, b.g1, b.b0)] -
			m[wuIndex(b.r0, b.g0, b.b0)]
	}
}

// top is the remainder of volume with the box's upper bound on dir moved to pos.
func top(b *wuBox, dir axis, pos int, m []int64) int64 {
	switch dir {
	case axisRed:
		return m[wuIndex(pos, b.g1, b.b1)] -
			m[wuIndex(pos, b.g1, b.b0)] -
			m[wuIndex(pos, b.g0, b.b1)] +
			m[wuIndex(pos, b.g0, b.b0)]
	case axisGreen:
		return m[wuIndex(b.r1, pos, b.b1)] -
			m[wuIndex(b.r1, pos, b.b0)] -
			m[wuIndex(b.r0, pos, b.b1)] +
			m[wuIndex(b.r0, pos, b.b0)]
	default:
		return m[wuIndex(b.r1, b.g1, pos)] -
			m[wuIndex(b.r1, b.g0, pos)] -
			m[wuIndex(b.r0, b.g1, pos)] +
			m[wuIndex(b.r0, b.g0, pos)]
	}
}

func (h *wuHistogram) variance(b *wuBox) float64 {
	dr := float64(volume(b, h.mr))
	dg := float64(volume(b, h.mg))
	db := float64(volume(b, h.mb))
	w := float64(volume(b, h.wt))
	if w == 0 {
		return 0
	}
	return volumeFloat(b, h.m2) - (dr*dr+dg*dg+db*db)/w
}

func (h *wuHistogram) maximize(b *wuBox, dir axis, first, last int, wholeR, wholeG, wholeB, wholeW int64) (float64, int) {
	baseR := bottom(b, dir, h.mr)
	baseG := bottom(b, dir, h.mg)
	baseB := bottom(b, dir, h.mb)
	baseW := bottom(b, dir, h.wt)

	best, cut := 0.0, -1
	for i := first; i < last; i++ {
		halfR := baseR + top(b, dir, i, h.mr)
		halfG := baseG + top(b, dir, i, h.mg)
		halfB := baseB + top(b, dir, i, h.mb)
		halfW := baseW + top(b, dir, i, h.wt)
		if halfW == 0 {
			continue
		}
		score := float64(halfR*halfR+halfG*halfG+halfB*halfB) / float64(halfW)

		halfR = wholeR - halfR
		halfG = wholeG - halfG
		halfB = wholeB - halfB
		halfW = wholeW - halfW
		if halfW == 0 {
			continue
		}
		score += float64(halfR*halfR+halfG*halfG+halfB*halfB) / float64(halfW)

		if score > best {
			best, cut = score, i
		}
	}
	return best, cut
}

func (h *wuHistogram) cut(set1, set2 *wuBox) bool {
	wholeR := volume(set1, h.mr)
	wholeG := volume(set1, h.mg)
	wholeB := volume(set1, h.mb)
	wholeW := volume(set1, h.wt)

	maxR, cutR := h.maximize(set1, axisRed, set1.r0+1, set1.r1, wholeR, wholeG, wholeB, wholeW)
	maxG, cutG := h.maximize(set1, axisGreen, set1.g0+1, set1.g1, wholeR, wholeG, wholeB, wholeW)
	maxB, cutB := h.maximize(set1, axisBlue, set1.b0+1, set1.b1, wholeR, wholeG, wholeB, wholeW)

	var dir axis
	switch {
	case maxR >= maxG && maxR >= maxB:
		dir = axisRed
		if cutR < 0 {
			return false
		}
	case maxG >= maxR && maxG >= maxB:
		dir = axisGreen
	default:
		dir = axisBlue
	}

	set2.r1, set2.g1, set2.b1 = set1.r1, set1.g1, set1.b1
	switch dir {
	case axisRed:
		set1.r1 = cutR
		set2.r0, set2.g0, set2.b0 = cutR, set1.g0, set1.b0
	case axisGreen:
		set1.g1 = cutG
		set2.r0, set2.g0, set2.b0 = set1.r0, cutG, set1.b0
	case axisBlue:
		set1.b1 = cutB
		set2.r0, set2.g0, set2.b0 = set1.r0, set1.g0, cutB
	}
	set1.vol = (set1.r1 - set1.r0) * (set1.g1 - set1.g0) * (set1.b1 - set1.b0)
	set2.vol = (set2.r1 - set2.r0) * (set2.g1 - set2.g0) * (set2.b1 - set2.b0)
	return true
}

// wuPalette computes at most n colors for the pixels accepted by keep.
func wuPalette(img *image.NRGBA, n int, keep func(color.NRGBA) bool) color.Palette {
	h := newWuHistogram()
	total := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		c := color.NRGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
		if keep(c) {
			h.add(c)
			total++
		}
	}
	if total == 0 || n <= 0 {
		return nil
	}
	h.cumulate()

	boxes := make([]wuBox, n)
	vv := make([]float64, n)
	boxes[0] = wuBox{r1: wuSide - 1, g1: wuSide - 1, b1: wuSide - 1}

	count := n
	next := 0
	for i := 1; i < n; i++ {
		if h.cut(&boxes[next], &boxes[i]) {
			vv[next], vv[i] = 0, 0
			if boxes[next].vol > 1 {
				vv[next] = h.variance(&boxes[next])
			}
			if boxes[i].vol > 1 {
				vv[i] = h.variance(&boxes[i])
			}
		} else {
			vv[next] = 0
			i--
		}

		next = 0
		best := vv[0]
		for k := 1; k <= i; k++ {
			if vv[k] > best {
				best, next = vv[k], k
			}
		}
		if best <= 0 {
			count = i + 1
			break
		}
	}

	pal := make(color.Palette, 0, count)
	for k := 0; k < count; k++ {
		w := volume(&boxes[k], h.wt)
		if w == 0 {
			continue
		}
		pal = append(pal, color.NRGBA{
			R: uint8(volume(&boxes[k], h.mr) / w),
			G: uint8(volume(&boxes[k], h.mg) / w),
			B: uint8(volume(&boxes[k], h.mb) / w),
			A: uint8(volume(&boxes[k], h.ma) / w),
		})
	}
	return pal
}

// exactPalette returns the distinct colors of img in scan order, or nil if
// there are more than n of them.
func exactPalette(img *image.NRGBA, n int) color.Palette {
	seen := make(map[color.NRGBA]struct{}, n)
	pal := make(color.Palette, 0, n)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		c := color.NRGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
		if _, ok := seen[c]; ok {
			continue
		}
		if len(pal) == n {
			return nil
		}
		seen[c] = struct{}{}
		pal = append(pal, c)
	}
	return pal
}

func colorDistance(a, b color.NRGBA) int {
	da := int(a.A) - int(b.A)
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return alphaWeight*da*da + dr*dr + dg*dg + db*db
}

func nearest(pal color.Palette, c color.NRGBA) uint8 {
	best, bestDist := 0, -1
	for i, p := range pal {
		d := colorDistance(c, color.NRGBAModel.Convert(p).(color.NRGBA))
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	return uint8(best)
}

// palettize reduces img to at most n colors. With alpha set, fully
// transparent pixels are kept out of the clustering and get their own entry.
func palettize(img *image.NRGBA, n int, alpha bool) *image.Paletted {
	pal := exactPalette(img, n)
	if pal == nil {
		keep := func(color.NRGBA) bool { return true }
		reserve := alpha && hasTransparent(img)
		want := n
		if reserve {
			keep = func(c color.NRGBA) bool { return c.A != 0 }
			want--
		}
		pal = wuPalette(img, want, keep)
		if reserve {
			pal = append(pal, color.NRGBA{})
		}
		if len(pal) == 0 {
			pal = color.Palette{color.NRGBA{A: 0xff}}
		}
	}

	b := img.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), pal)
	cache := make(map[color.NRGBA]uint8)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			c := color.NRGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			idx, ok := cache[c]
			if !ok {
				idx = nearest(pal, c)
				cache[c] = idx
			}
			dst.Pix[y*dst.Stride+x] = idx
		}
	}
	return dst
}

func hasTransparent(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 0 {
			return true
		}
	}
	return false
}
