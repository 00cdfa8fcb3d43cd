package pipeline

import (
	"context"
	"testing"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

func TestTransformerDefaultQuality(t *testing.T) {
	source := buildTestPNG(t, 64, 64)
	variant := domain.Variant{
		ID:         "q",
		Format:     "jpg",
		Operations: []domain.Operation{{Action: domain.ActionFilter, Filter: &domain.FilterParams{Preset: "cool"}}},
	}

	low, err := NewTransformer(5).Transform(context.Background(), source, raster.MIMEPNG, variant, nil)
	if err != nil {
		t.Fatalf("transform low quality: %v", err)
	}
	variant.Quality = 95
	high, err := NewTransformer(5).Transform(context.Background(), source, raster.MIMEPNG, variant, nil)
	if err != nil {
		t.Fatalf("transform high quality: %v", err)
	}

	if low.MIME != raster.MIMEJPEG || high.MIME != raster.MIMEJPEG {
		t.Fatalf("expected jpeg outputs, got %s and %s", low.MIME, high.MIME)
	}
	if len(low.Data) >= len(high.Data) {
		t.Fatalf("expected default quality 5 to encode smaller than 95, got %d >= %d", len(low.Data), len(high.Data))
	}
}

func TestOutputMIME(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"jpeg":       raster.MIMEJPEG,
		"image/webp": raster.MIMEWebP,
		"PNG":        raster.MIMEPNG,
	}
	for in, want := range cases {
		if got := outputMIME(in); got != want {
			t.Fatalf("outputMIME(%q): expected %q, got %q", in, want, got)
		}
	}
}
