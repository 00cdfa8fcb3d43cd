package raster

import (
	"fmt"
	"math"
)

// Anchor names the dimension a caller edited when resizing with a locked
// aspect ratio. The other dimension is recomputed.
type Anchor int

const (
	AnchorAuto Anchor = iota
	AnchorWidth
	AnchorHeight
)

func (a Anchor) String() string {
	switch a {
	case AnchorWidth:
		return "width"
	case AnchorHeight:
		return "height"
	default:
		return "auto"
	}
}

type ResizeSpec struct {
	Width      int
	Height     int
	LockAspect bool
	// Anchor is only consulted with LockAspect. AnchorAuto picks width when
	// Width is set, height otherwise.
	Anchor Anchor
}

func (s ResizeSpec) Name() string { return "resize" }

func (s ResizeSpec) Apply(buf *Buffer) (*Buffer, error) { return Resize(buf, s) }

// Dimensions resolves the output size for a w0 x h0 source.
func (s ResizeSpec) Dimensions(w0, h0 int) (int, int, error) {
	if w0 <= 0 || h0 <= 0 {
		return 0, 0, fmt.Errorf("%w: source %dx%d", ErrInvalidDimensions, w0, h0)
	}
	if !s.LockAspect {
		if s.Width <= 0 || s.Height <= 0 {
			return 0, 0, fmt.Errorf("%w: resize target %dx%d", ErrInvalidDimensions, s.Width, s.Height)
		}
		if err := checkPixels(s.Width, s.Height); err != nil {
			return 0, 0, err
		}
		return s.Width, s.Height, nil
	}

	anchor := s.Anchor
	if anchor == AnchorAuto {
		anchor = AnchorWidth
		if s.Width <= 0 && s.Height > 0 {
			anchor = AnchorHeight
		}
	}

	var w, h int
	switch anchor {
	case AnchorHeight:
		if s.Height <= 0 {
			return 0, 0, fmt.Errorf("%w: resize height %d", ErrInvalidDimensions, s.Height)
		}
		w, h = aspectDimension(s.Height, w0, h0), s.Height
	default:
		if s.Width <= 0 {
			return 0, 0, fmt.Errorf("%w: resize width %d", ErrInvalidDimensions, s.Width)
		}
		w, h = s.Width, aspectDimension(s.Width, h0, w0)
	}
	if err := checkPixels(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// aspectDimension computes round(edited * other/editedOriginal), clamped to
// [1, MaxInt32].
func aspectDimension(edited, otherOriginal, editedOriginal int) int {
	v := math.Round(float64(edited) * (float64(otherOriginal) / float64(editedOriginal)))
	return int(clampFloat(v, 1, math.MaxInt32))
}

// Resize resamples buf to the size resolved from spec using bilinear
// interpolation. All four channels are interpolated alike.
func Resize(buf *Buffer, spec ResizeSpec) (*Buffer, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	dw, dh, err := spec.Dimensions(buf.Width, buf.Height)
	if err != nil {
		return nil, err
	}
	if dw == buf.Width && dh == buf.Height {
		return buf.Clone(), nil
	}

	out := newBuffer(dw, dh)
	scaleX := float64(buf.Width) / float64(dw)
	scaleY := float64(buf.Height) / float64(dh)
	for y := 0; y < dh; y++ {
		sy := (float64(y)+0.5)*scaleY - 0.5
		for x := 0; x < dw; x++ {
			sx := (float64(x)+0.5)*scaleX - 0.5
			i := out.offset(x, y)
			buf.sampleBilinear(sx, sy, out.Pix[i:i+4])
		}
	}
	return out, nil
}

// sampleBilinear writes the interpolated sample at continuous pixel-index
// coordinate (fx, fy) to dst. Coordinates are clamped to the buffer so border
// pixels replicate outward.
func (b *Buffer) sampleBilinear(fx, fy float64, dst []uint8) {
	fx = clampFloat(fx, 0, float64(b.Width-1))
	fy = clampFloat(fy, 0, float64(b.Height-1))

	x0 := int(fx)
	y0 := int(fy)
	x1 := min(x0+1, b.Width-1)
	y1 := min(y0+1, b.Height-1)
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	i00 := b.offset(x0, y0)
	i10 := b.offset(x1, y0)
	i01 := b.offset(x0, y1)
	i11 := b.offset(x1, y1)
	for c := 0; c < 4; c++ {
		top := float64(b.Pix[i00+c])*(1-tx) + float64(b.Pix[i10+c])*tx
		bottom := float64(b.Pix[i01+c])*(1-tx) + float64(b.Pix[i11+c])*tx
		dst[c] = toByte(top*(1-ty) + bottom*ty)
	}
}

// Rect is a crop region in source pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Name() string { return "crop" }

func (r Rect) Apply(buf *Buffer) (*Buffer, error) { return Crop(buf, r) }

// Clamp intersects r with a width x height image. ok is false when the
// intersection is empty.
func (r Rect) Clamp(width, height int) (Rect, bool) {
	if r.W <= 0 || r.H <= 0 {
		return Rect{}, false
	}
	x0 := max(r.X, 0)
	y0 := max(r.Y, 0)
	x1 := min(r.X+r.W, width)
	y1 := min(r.Y+r.H, height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// Crop copies the sub-raster covered by rect after clamping it to the image.
func Crop(buf *Buffer, rect Rect) (*Buffer, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	clamped, ok := rect.Clamp(buf.Width, buf.Height)
	if !ok {
		return nil, fmt.Errorf("%w: rect %+v outside %dx%d", ErrEmptyCropRegion, rect, buf.Width, buf.Height)
	}

	out := newBuffer(clamped.W, clamped.H)
	rowBytes := clamped.W * 4
	for y := 0; y < clamped.H; y++ {
		src := buf.offset(clamped.X, clamped.Y+y)
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], buf.Pix[src:src+rowBytes])
	}
	return out, nil
}

type RotateSpec struct {
	Degrees float64
}

func (s RotateSpec) Name() string { return "rotate" }

func (s RotateSpec) Apply(buf *Buffer) (*Buffer, error) { return Rotate(buf, s) }

// RotatedBounds returns the canvas size needed to hold a w x h image rotated
// by degrees.
func RotatedBounds(w, h int, degrees float64) (int, int) {
	if q, ok := quarterTurns(degrees); ok {
		if q%2 == 1 {
			return h, w
		}
		return w, h
	}
	sin, cos := math.Sincos(degrees * math.Pi / 180)
	ac, as := math.Abs(cos), math.Abs(sin)
	fw, fh := float64(w), float64(h)
	// Absorb float noise so an exact integer extent does not round up.
	const eps = 1e-9
	newW := int(math.Ceil(fw*ac + fh*as - eps))
	newH := int(math.Ceil(fw*as + fh*ac - eps))
	return max(newW, 1), max(newH, 1)
}

// Rotate turns buf clockwise by spec.Degrees about its centre onto a canvas
// just large enough to hold it. Uncovered canvas pixels are transparent.
func Rotate(buf *Buffer, spec RotateSpec) (*Buffer, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(spec.Degrees) || math.IsInf(spec.Degrees, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAngle, spec.Degrees)
	}
	if q, ok := quarterTurns(spec.Degrees); ok {
		return rotateQuarter(buf, q), nil
	}

	newW, newH := RotatedBounds(buf.Width, buf.Height, spec.Degrees)
	if err := checkPixels(newW, newH); err != nil {
		return nil, err
	}
	out := newBuffer(newW, newH)

	sin, cos := math.Sincos(spec.Degrees * math.Pi / 180)
	srcW, srcH := float64(buf.Width), float64(buf.Height)
	srcCX, srcCY := srcW/2, srcH/2
	dstCX, dstCY := float64(newW)/2, float64(newH)/2
	for y := 0; y < newH; y++ {
		v := float64(y) + 0.5 - dstCY
		for x := 0; x < newW; x++ {
			u := float64(x) + 0.5 - dstCX
			sx := u*cos + v*sin + srcCX
			sy := -u*sin + v*cos + srcCY
			if sx < 0 || sy < 0 || sx >= srcW || sy >= srcH {
				continue
			}
			i := out.offset(x, y)
			buf.sampleBilinear(sx-0.5, sy-0.5, out.Pix[i:i+4])
		}
	}
	return out, nil
}

// quarterTurns reports how many clockwise quarter turns degrees amounts to
// when it is an exact multiple of 90.
func quarterTurns(degrees float64) (int, bool) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) || math.Mod(degrees, 90) != 0 {
		return 0, false
	}
	q := int(math.Mod(degrees/90, 4))
	if q < 0 {
		q += 4
	}
	return q, true
}

func rotateQuarter(buf *Buffer, q int) *Buffer {
	w, h := buf.Width, buf.Height
	var out *Buffer
	switch q {
	case 1:
		out = newBuffer(h, w)
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				copyPixel(out, x, y, buf, y, h-1-x)
			}
		}
	case 2:
		out = newBuffer(w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				copyPixel(out, x, y, buf, w-1-x, h-1-y)
			}
		}
	case 3:
		out = newBuffer(h, w)
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				copyPixel(out, x, y, buf, w-1-y, x)
			}
		}
	default:
		out = buf.Clone()
	}
	return out
}

func copyPixel(dst *Buffer, dx, dy int, src *Buffer, sx, sy int) {
	d := dst.offset(dx, dy)
	s := src.offset(sx, sy)
	copy(dst.Pix[d:d+4], src.Pix[s:s+4])
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// toByte rounds a channel value to the nearest integer in [0, 255].
func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
