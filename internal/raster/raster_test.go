package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func gradientBuffer(t testing.TB, w, h int) *Buffer {
	t.Helper()

	buf, err := NewBuffer(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: uint8((x*7 + y*13) % 256),
				A: 255,
			})
		}
	}
	return buf
}

func solidBuffer(t testing.TB, w, h int, c color.NRGBA) *Buffer {
	t.Helper()

	buf, err := NewBuffer(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	buf.Fill(c)
	return buf
}

func encodePNG(t testing.TB, buf *Buffer) []byte {
	t.Helper()

	var out bytes.Buffer
	if err := png.Encode(&out, buf.Image()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return out.Bytes()
}

func assertSameBuffer(t *testing.T, got, want *Buffer) {
	t.Helper()

	if got.Width != want.Width || got.Height != want.Height {
		t.Fatalf("expected %dx%d, got %dx%d", want.Width, want.Height, got.Width, got.Height)
	}
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Fatal("expected pixel-identical buffers")
	}
}

func TestNewBufferRejectsZeroDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 1}, {1, 0}, {-3, 4}} {
		if _, err := NewBuffer(dims[0], dims[1]); !errors.Is(err, ErrInvalidDimensions) {
			t.Fatalf("expected ErrInvalidDimensions for %v, got %v", dims, err)
		}
	}
}

func TestDecodePNG(t *testing.T) {
	src := gradientBuffer(t, 12, 7)
	src.Set(3, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
	data := encodePNG(t, src)

	for _, mime := range []string{"", "image/png", "IMAGE/PNG; charset=binary"} {
		got, err := Decode(data, mime)
		if err != nil {
			t.Fatalf("decode with mime %q: %v", mime, err)
		}
		assertSameBuffer(t, got, src)
	}
}

func TestDecodeErrors(t *testing.T) {
	data := encodePNG(t, gradientBuffer(t, 4, 4))

	cases := []struct {
		name string
		data []byte
		mime string
	}{
		{name: "empty", data: nil, mime: "image/png"},
		{name: "garbage", data: []byte("definitely not an image"), mime: "image/png"},
		{name: "unsupported declared type", data: data, mime: "image/tiff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.data, tc.mime); !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestFromImageRejectsEmptyImage(t *testing.T) {
	if _, err := FromImage(image.NewNRGBA(image.Rect(0, 0, 0, 5))); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFromImageUnpremultipliesAlpha(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.NRGBA{R: 200, G: 100, B: 0, A: 128})

	buf, err := FromImage(src)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	got := buf.At(0, 0)
	if got.A != 128 {
		t.Fatalf("expected alpha 128, got %d", got.A)
	}
	if diff := int(got.R) - 200; diff < -1 || diff > 1 {
		t.Fatalf("expected straight red near 200, got %d", got.R)
	}
}

func TestDetectMIME(t *testing.T) {
	data := encodePNG(t, gradientBuffer(t, 2, 2))
	if got := DetectMIME(data); got != MIMEPNG {
		t.Fatalf("expected %s, got %q", MIMEPNG, got)
	}
	if got := DetectMIME([]byte("nope")); got != "" {
		t.Fatalf("expected empty mime, got %q", got)
	}
}

func TestNormalizeMIME(t *testing.T) {
	cases := map[string]string{
		"jpg":            MIMEJPEG,
		"image/jpg":      MIMEJPEG,
		"image/jpeg":     MIMEJPEG,
		" PNG ":          MIMEPNG,
		"webp":           MIMEWebP,
		"gif":            MIMEGIF,
		"image/x-ms-bmp": MIMEBMP,
		"image/tiff":     "image/tiff",
	}
	for in, want := range cases {
		if got := NormalizeMIME(in); got != want {
			t.Fatalf("NormalizeMIME(%q): expected %q, got %q", in, want, got)
		}
	}
}
