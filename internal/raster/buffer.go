// Package raster implements the pixel-level transform engine: decoding into a
// straight-alpha RGBA buffer, geometry and photometric operations, background
// matting and re-encoding. Every function owns the buffers it returns and keeps
// no state between calls.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"sync/atomic"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode                  = errors.New("decode error")
	ErrInvalidDimensions       = errors.New("invalid dimensions")
	ErrEmptyCropRegion         = errors.New("empty crop region")
	ErrInvalidAngle            = errors.New("invalid angle")
	ErrInvalidFilterParameter  = errors.New("invalid filter parameter")
	ErrUnsupportedEncodeFormat = errors.New("unsupported encode format")
	ErrEmptyRequest            = errors.New("empty transform request")
)

// DefaultMaxPixels is the largest buffer the engine allocates unless
// SetMaxPixels says otherwise: 256 Mpx, 1 GiB of samples.
const DefaultMaxPixels int64 = 1 << 28

var maxPixels atomic.Int64

func init() {
	maxPixels.Store(DefaultMaxPixels)
}

// SetMaxPixels bounds the width*height of every buffer the engine decodes or
// produces. n <= 0 restores DefaultMaxPixels.
func SetMaxPixels(n int64) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	maxPixels.Store(n)
}

// MaxPixels reports the current pixel ceiling.
func MaxPixels() int64 {
	return maxPixels.Load()
}

// checkPixels rejects sizes that are non-positive, exceed the pixel ceiling,
// or whose sample count would overflow int.
func checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > math.MaxInt/4/height {
		return fmt.Errorf("%w: %dx%d overflows", ErrInvalidDimensions, width, height)
	}
	limit := MaxPixels()
	if int64(width) > limit/int64(height) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidDimensions, width, height, limit)
	}
	return nil
}

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
	MIMEBMP  = "image/bmp"
)

// Buffer is a decoded image: 4 bytes per pixel in R, G, B, A order, rows top
// to bottom, alpha not premultiplied.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBuffer allocates a fully transparent buffer.
func NewBuffer(width, height int) (*Buffer, error) {
	if err := checkPixels(width, height); err != nil {
		return nil, err
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}, nil
}

func newBuffer(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

func (b *Buffer) offset(x, y int) int {
	return (y*b.Width + x) * 4
}

// At returns the sample at (x, y). Out of range coordinates yield a
// transparent sample.
func (b *Buffer) At(x, y int) color.NRGBA {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return color.NRGBA{}
	}
	i := b.offset(x, y)
	return color.NRGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
}

// Set writes the sample at (x, y); out of range writes are ignored.
func (b *Buffer) Set(x, y int, c color.NRGBA) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	i := b.offset(x, y)
	b.Pix[i] = c.R
	b.Pix[i+1] = c.G
	b.Pix[i+2] = c.B
	b.Pix[i+3] = c.A
}

// Fill sets every sample to c.
func (b *Buffer) Fill(c color.NRGBA) {
	for i := 0; i < len(b.Pix); i += 4 {
		b.Pix[i] = c.R
		b.Pix[i+1] = c.G
		b.Pix[i+2] = c.B
		b.Pix[i+3] = c.A
	}
}

func (b *Buffer) Clone() *Buffer {
	out := newBuffer(b.Width, b.Height)
	copy(out.Pix, b.Pix)
	return out
}

// Pixels returns Width*Height.
func (b *Buffer) Pixels() int64 {
	return int64(b.Width) * int64(b.Height)
}

func (b *Buffer) validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidDimensions)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Width, b.Height)
	}
	if b.Width > math.MaxInt/4/b.Height || len(b.Pix) != b.Width*b.Height*4 {
		return fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidDimensions, len(b.Pix)/4, b.Width, b.Height)
	}
	return nil
}

// Image exposes the buffer as an *image.NRGBA sharing the same samples.
func (b *Buffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage copies any image.Image into a new Buffer, converting to straight alpha.
func FromImage(img image.Image) (*Buffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrDecode)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has zero dimension %dx%d", ErrDecode, bounds.Dx(), bounds.Dy())
	}
	if err := checkPixels(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}

	out := newBuffer(bounds.Dx(), bounds.Dy())
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*out.Width*4:(y+1)*out.Width*4], src.Pix[start:start+out.Width*4])
		}
		return out, nil
	}

	draw.Draw(out.Image(), out.Image().Bounds(), img, bounds.Min, draw.Src)
	return out, nil
}

// Decode parses encoded image bytes. An empty mime sniffs the format from the
// data; a non-empty one must name a supported raster format.
func Decode(data []byte, mime string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	declared := NormalizeMIME(mime)
	if strings.TrimSpace(mime) != "" && !decodable(declared) {
		return nil, fmt.Errorf("%w: unsupported source type %q", ErrDecode, mime)
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := checkPixels(cfg.Width, cfg.Height); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !decodable(MIMEForFormat(format)) {
		return nil, fmt.Errorf("%w: unsupported source format %q", ErrDecode, format)
	}

	buf, err := FromImage(img)
	if err != nil {
		return nil, err
	}
	logger().Debug("raster: decoded", "format", format, "width", buf.Width, "height", buf.Height)
	return buf, nil
}

// DetectMIME reports the MIME type of encoded image data without decoding
// pixels, or "" when the format is not recognised.
func DetectMIME(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return MIMEForFormat(format)
}

// Dimensions reads the pixel size of encoded image data from its header.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// NormalizeMIME maps MIME types and short format names ("jpg", "png") onto
// canonical image MIME types. Unknown values are returned lower-cased.
func NormalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpg", "image/pjpeg", "jpg", "jpeg":
		return MIMEJPEG
	case "png":
		return MIMEPNG
	case "webp":
		return MIMEWebP
	case "gif":
		return MIMEGIF
	case "bmp", "image/x-ms-bmp", "image/x-bmp":
		return MIMEBMP
	default:
		return mime
	}
}

// MIMEForFormat maps an image.Decode format name to its MIME type.
func MIMEForFormat(format string) string {
	switch strings.ToLower(format) {
	case "png", "jpeg", "webp", "gif", "bmp":
		return NormalizeMIME(format)
	default:
		return ""
	}
}

// Extension returns the file extension, without a dot, for a supported MIME type.
func Extension(mime string) string {
	switch NormalizeMIME(mime) {
	case MIMEJPEG:
		return "jpg"
	case MIMEWebP:
		return "webp"
	case MIMEGIF:
		return "gif"
	case MIMEBMP:
		return "bmp"
	default:
		return "png"
	}
}

func decodable(mime string) bool {
	switch mime {
	case MIMEPNG, MIMEJPEG, MIMEWebP, MIMEGIF, MIMEBMP:
		return true
	default:
		return false
	}
}
