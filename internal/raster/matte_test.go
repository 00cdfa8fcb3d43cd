package raster

import (
	"context"
	"image/color"
	"testing"
)

func TestMatteThreshold(t *testing.T) {
	cases := []struct {
		name      string
		in        color.NRGBA
		wantAlpha uint8
	}{
		{name: "white cleared", in: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, wantAlpha: 0},
		{name: "just above threshold cleared", in: color.NRGBA{R: 241, G: 241, B: 241, A: 90}, wantAlpha: 0},
		{name: "239 kept", in: color.NRGBA{R: 239, G: 239, B: 239, A: 200}, wantAlpha: 200},
		{name: "equal to threshold kept", in: color.NRGBA{R: 255, G: 255, B: 240, A: 255}, wantAlpha: 255},
		{name: "one dark channel kept", in: color.NRGBA{R: 255, G: 10, B: 255, A: 33}, wantAlpha: 33},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Matte(singlePixel(t, tc.in), DefaultMatte())
			if err != nil {
				t.Fatalf("matte: %v", err)
			}
			got := out.At(0, 0)
			if got.A != tc.wantAlpha {
				t.Fatalf("expected alpha %d, got %d", tc.wantAlpha, got.A)
			}
			if got.R != tc.in.R || got.G != tc.in.G || got.B != tc.in.B {
				t.Fatalf("expected colour untouched, got %+v", got)
			}
		})
	}
}

func TestMatteHasNoConnectivity(t *testing.T) {
	src := solidBuffer(t, 5, 5, color.NRGBA{R: 20, G: 40, B: 60, A: 255})
	src.Set(2, 2, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

	out, err := Matte(src, DefaultMatte())
	if err != nil {
		t.Fatalf("matte: %v", err)
	}
	if a := out.At(2, 2).A; a != 0 {
		t.Fatalf("expected isolated bright pixel to be cleared, got alpha %d", a)
	}
	if a := out.At(0, 0).A; a != 255 {
		t.Fatalf("expected dark pixel kept, got alpha %d", a)
	}
	if a := src.At(2, 2).A; a != 255 {
		t.Fatal("expected source buffer untouched")
	}
}

func TestMatteCustomThreshold(t *testing.T) {
	out, err := Matte(singlePixel(t, color.NRGBA{R: 201, G: 201, B: 201, A: 255}), MatteSpec{Threshold: 200})
	if err != nil {
		t.Fatalf("matte: %v", err)
	}
	if a := out.At(0, 0).A; a != 0 {
		t.Fatalf("expected alpha 0, got %d", a)
	}
}

func TestMatteWhitePNGEndToEnd(t *testing.T) {
	data := encodePNG(t, solidBuffer(t, 4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))

	result, err := Transform(context.Background(), data, MIMEPNG, Request{
		Operations: []Operation{DefaultMatte()},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if result.MIME != MIMEPNG {
		t.Fatalf("expected %s output, got %s", MIMEPNG, result.MIME)
	}

	decoded, err := Decode(result.Data, result.MIME)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := decoded.At(x, y); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 0}) {
				t.Fatalf("pixel (%d,%d): expected transparent white, got %+v", x, y, got)
			}
		}
	}
}
