package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

func BenchmarkProcessorResize(b *testing.B) {
	benchmarkVariant(b, domain.Variant{
		ID:      "resize_640_jpeg",
		Format:  "jpeg",
		Quality: 82,
		Operations: []domain.Operation{
			{Action: domain.ActionResize, Resize: &domain.ResizeParams{Width: 640, LockAspect: true}},
		},
	})
}

func BenchmarkProcessorFilterChain(b *testing.B) {
	brightness := 110.0
	benchmarkVariant(b, domain.Variant{
		ID:     "vintage_png",
		Format: "png",
		Operations: []domain.Operation{
			{Action: domain.ActionResize, Resize: &domain.ResizeParams{Width: 480, LockAspect: true}},
			{Action: domain.ActionFilter, Filter: &domain.FilterParams{
				Preset:      "vintage",
				Adjustments: []domain.AdjustmentParams{{Brightness: &brightness}},
				BlurRadius:  2,
			}},
		},
	})
}

func benchmarkVariant(b *testing.B, variant domain.Variant) {
	source := buildTestPNG(b, 1920, 1080)
	processor, err := NewLocalProcessor(b.TempDir())
	if err != nil {
		b.Fatalf("new local processor: %v", err)
	}
	processor.fetcher = staticFetcher{data: source}
	processor.emitter = discardEmitter{}

	req := Request{
		JobID:      "bench",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		Variants:   []domain.Variant{variant},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.JobID = fmt.Sprintf("bench-%s-%d", variant.ID, i)
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, _ Request, variant domain.Variant, result raster.Result) (Output, error) {
	return newOutput(variant, "", result), nil
}
