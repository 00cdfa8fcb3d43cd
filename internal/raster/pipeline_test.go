package raster

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"reflect"
	"testing"
)

func TestTransformResizeLockAspect(t *testing.T) {
	data := encodePNG(t, gradientBuffer(t, 100, 50))

	result, err := Transform(context.Background(), data, MIMEPNG, Request{
		Operations: []Operation{ResizeSpec{Width: 50, LockAspect: true}},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.Width != 50 || result.Height != 25 {
		t.Fatalf("expected 50x25, got %dx%d", result.Width, result.Height)
	}
	decoded, err := Decode(result.Data, "")
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	assertSameBuffer(t, decoded, result.Buffer)
}

func TestTransformRotateQuarterTurn(t *testing.T) {
	data := encodePNG(t, gradientBuffer(t, 10, 20))

	result, err := Transform(context.Background(), data, "", Request{
		Operations: []Operation{RotateSpec{Degrees: 90}},
		MIME:       MIMEJPEG,
		Quality:    70,
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.Width != 20 || result.Height != 10 {
		t.Fatalf("expected 20x10, got %dx%d", result.Width, result.Height)
	}
	if result.MIME != MIMEJPEG {
		t.Fatalf("expected jpeg output, got %s", result.MIME)
	}
	if DetectMIME(result.Data) != MIMEJPEG {
		t.Fatal("expected jpeg bytes")
	}
}

func TestTransformDefaultsToSourceFormat(t *testing.T) {
	data, err := Encode(gradientBuffer(t, 8, 8), MIMEGIF, 0)
	if err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	result, err := Transform(context.Background(), data, "", Request{
		Operations: []Operation{Rect{X: 0, Y: 0, W: 4, H: 4}},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.MIME != MIMEGIF {
		t.Fatalf("expected gif output, got %s", result.MIME)
	}
}

func TestRunIsOrderSensitive(t *testing.T) {
	src := gradientBuffer(t, 10, 20)

	cropThenRotate, err := Run(context.Background(), src, Request{
		Operations: []Operation{Rect{X: 0, Y: 0, W: 10, H: 5}, RotateSpec{Degrees: 90}},
		MIME:       MIMEPNG,
	})
	if err != nil {
		t.Fatalf("crop then rotate: %v", err)
	}
	rotateThenCrop, err := Run(context.Background(), src, Request{
		Operations: []Operation{RotateSpec{Degrees: 90}, Rect{X: 0, Y: 0, W: 10, H: 5}},
		MIME:       MIMEPNG,
	})
	if err != nil {
		t.Fatalf("rotate then crop: %v", err)
	}

	if cropThenRotate.Width != 5 || cropThenRotate.Height != 10 {
		t.Fatalf("expected 5x10, got %dx%d", cropThenRotate.Width, cropThenRotate.Height)
	}
	if rotateThenCrop.Width != 10 || rotateThenCrop.Height != 5 {
		t.Fatalf("expected 10x5, got %dx%d", rotateThenCrop.Width, rotateThenCrop.Height)
	}
}

func TestRunFilterThenResizeDiffersFromResizeThenFilter(t *testing.T) {
	src := solidBuffer(t, 8, 8, color.NRGBA{A: 255})
	for y := 0; y < 8; y++ {
		src.Set(y%2, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	}
	blur := FilterChain{BlurRadius: 1}
	resize := ResizeSpec{Width: 4, Height: 4}

	a, err := Run(context.Background(), src, Request{Operations: []Operation{blur, resize}, MIME: MIMEPNG})
	if err != nil {
		t.Fatalf("blur then resize: %v", err)
	}
	b, err := Run(context.Background(), src, Request{Operations: []Operation{resize, blur}, MIME: MIMEPNG})
	if err != nil {
		t.Fatalf("resize then blur: %v", err)
	}
	if bytes.Equal(a.Buffer.Pix, b.Buffer.Pix) {
		t.Fatal("expected operation order to change output pixels")
	}
}

func TestRunReportsProgress(t *testing.T) {
	var events []Progress
	_, err := Run(context.Background(), gradientBuffer(t, 6, 6), Request{
		Operations: []Operation{FilterChain{Preset: PresetSepia}, DefaultMatte()},
		MIME:       MIMEPNG,
	}, WithProgress(func(p Progress) {
		events = append(events, p)
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []Progress{
		{Stage: 1, Total: 3, Name: "filter"},
		{Stage: 1, Total: 3, Name: "filter", Done: true},
		{Stage: 2, Total: 3, Name: "matte"},
		{Stage: 2, Total: 3, Name: "matte", Done: true},
		{Stage: 3, Total: 3, Name: StageEncode},
		{Stage: 3, Total: 3, Name: StageEncode, Done: true},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("expected %+v, got %+v", want, events)
	}
	if got := events[len(events)-1].Percent(); got != 100 {
		t.Fatalf("expected final percent 100, got %d", got)
	}
	if got := events[2].Percent(); got != 33 {
		t.Fatalf("expected 33 percent after first stage, got %d", got)
	}
}

func TestRunLeavesInputUntouched(t *testing.T) {
	src := gradientBuffer(t, 6, 6)
	before := src.Clone()
	if _, err := Run(context.Background(), src, Request{
		Operations: []Operation{FilterChain{Preset: PresetInvert}, DefaultMatte()},
		MIME:       MIMEPNG,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertSameBuffer(t, src, before)
}

func TestRunWrapsStageErrors(t *testing.T) {
	_, err := Run(context.Background(), gradientBuffer(t, 4, 4), Request{
		Operations: []Operation{ResizeSpec{Width: 2, Height: 2}, Rect{X: 50, Y: 50, W: 1, H: 1}},
		MIME:       MIMEPNG,
	})
	if !errors.Is(err, ErrEmptyCropRegion) {
		t.Fatalf("expected ErrEmptyCropRegion, got %v", err)
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	if _, err := Run(context.Background(), gradientBuffer(t, 2, 2), Request{MIME: MIMEPNG}); !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("expected ErrEmptyRequest, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, gradientBuffer(t, 2, 2), Request{
		Operations: []Operation{DefaultMatte()},
		MIME:       MIMEPNG,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunUnsupportedOutput(t *testing.T) {
	_, err := Run(context.Background(), gradientBuffer(t, 2, 2), Request{
		Operations: []Operation{DefaultMatte()},
		MIME:       "image/tiff",
	})
	if !errors.Is(err, ErrUnsupportedEncodeFormat) {
		t.Fatalf("expected ErrUnsupportedEncodeFormat, got %v", err)
	}
}

func BenchmarkRunFilterChain(b *testing.B) {
	src := gradientBuffer(b, 640, 480)
	req := Request{
		Operations: []Operation{
			ResizeSpec{Width: 320, LockAspect: true},
			FilterChain{Preset: PresetVintage, BlurRadius: 2},
			RotateSpec{Degrees: 15},
		},
		MIME: MIMEPNG,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Run(context.Background(), src, req); err != nil {
			b.Fatalf("run: %v", err)
		}
	}
}
