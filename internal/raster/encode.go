package raster

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
)

// DefaultJPEGQuality is used when Encode receives a quality outside 1..100.
const DefaultJPEGQuality = 80

// Encode serialises buf as mime. Only pixel samples are written, so no
// metadata from the original source survives. quality applies to lossy
// formats and is ignored otherwise.
func Encode(buf *Buffer, mime string, quality int) ([]byte, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	switch NormalizeMIME(mime) {
	case MIMEPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&out, buf.Image()); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case MIMEJPEG:
		if err := jpeg.Encode(&out, buf.Image(), &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case MIMEGIF:
		if err := gif.Encode(&out, buf.Image(), nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case MIMEBMP:
		if err := bmp.Encode(&out, buf.Image()); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case MIMEWebP:
		return encodeWebP(buf, quality)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncodeFormat, mime)
	}
	return out.Bytes(), nil
}

func jpegQuality(quality int) int {
	if quality <= 0 || quality > 100 {
		return DefaultJPEGQuality
	}
	return quality
}

// Encodable reports whether Encode can produce mime in this build.
func Encodable(mime string) bool {
	switch NormalizeMIME(mime) {
	case MIMEPNG, MIMEJPEG, MIMEGIF, MIMEBMP:
		return true
	case MIMEWebP:
		return WebPEncodeSupported()
	default:
		return false
	}
}
