package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

func TestLocalProcessor_FileInTransformFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	req := Request{
		JobID:      "job-local-1",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Variants: []domain.Variant{
			{
				ID:      "thumb_small",
				Format:  "jpeg",
				Quality: 75,
				Operations: []domain.Operation{
					{Action: domain.ActionResize, Resize: &domain.ResizeParams{Width: 80, LockAspect: true}},
				},
			},
			{
				ID: "sepia_square",
				Operations: []domain.Operation{
					{Action: domain.ActionCrop, Crop: &domain.CropParams{X: 60, Y: 0, Width: 120, Height: 120}},
					{Action: domain.ActionFilter, Filter: &domain.FilterParams{Preset: "sepia"}},
				},
			},
		},
	}

	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if len(result.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(result.Outputs))
	}
	if result.SourceWidth != 240 || result.SourceHeight != 120 {
		t.Fatalf("expected source 240x120, got %dx%d", result.SourceWidth, result.SourceHeight)
	}

	resized := result.Outputs[0]
	if resized.MIME != raster.MIMEJPEG {
		t.Fatalf("expected jpeg output, got %s", resized.MIME)
	}
	if !strings.HasSuffix(resized.Path, "thumb_small.jpg") {
		t.Fatalf("expected .jpg output path, got %s", resized.Path)
	}
	if resized.Width != 80 || resized.Height != 40 {
		t.Fatalf("expected 80x40, got %dx%d", resized.Width, resized.Height)
	}
	verifyImageSize(t, resized.Path, 80, 40)

	square := result.Outputs[1]
	if square.MIME != raster.MIMEPNG {
		t.Fatalf("expected source format png, got %s", square.MIME)
	}
	verifyImageSize(t, square.Path, 120, 120)

	squareBytes, err := os.ReadFile(square.Path)
	if err != nil {
		t.Fatalf("read sepia image: %v", err)
	}
	if bytes.Equal(srcBytes, squareBytes) {
		t.Fatal("expected filtered output to differ from source image bytes")
	}
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: "s3_presigned",
		ObjectKey:  "uploads/job/source",
		Variants: []domain.Variant{
			{
				ID: "thumb_small",
				Operations: []domain.Operation{
					{Action: domain.ActionResize, Resize: &domain.ResizeParams{Width: 120}},
				},
			},
		},
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestProcessorWrapsEngineErrors(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}
	processor.fetcher = staticFetcher{data: buildTestPNG(t, 20, 20)}

	_, err = processor.Process(context.Background(), Request{
		JobID: "job-crop",
		Variants: []domain.Variant{
			{
				ID: "outside",
				Operations: []domain.Operation{
					{Action: domain.ActionCrop, Crop: &domain.CropParams{X: 50, Y: 50, Width: 10, Height: 10}},
				},
			},
		},
	})
	if !errors.Is(err, raster.ErrEmptyCropRegion) {
		t.Fatalf("expected ErrEmptyCropRegion, got %v", err)
	}
	if !strings.Contains(err.Error(), "variant=outside") {
		t.Fatalf("expected variant id in error, got %v", err)
	}

	processor.fetcher = staticFetcher{data: []byte("not an image")}
	_, err = processor.Process(context.Background(), Request{
		JobID: "job-garbage",
		Variants: []domain.Variant{
			{ID: "v", Operations: []domain.Operation{{Action: domain.ActionMatte}}},
		},
	})
	if !errors.Is(err, raster.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	percents []int
	variants []string
}

func (r *recordingReporter) ReportProgress(_ context.Context, _ string, variantID string, percent int, _ raster.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
	r.variants = append(r.variants, variantID)
}

func TestProcessorReportsJobProgress(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}
	processor.fetcher = staticFetcher{data: buildTestPNG(t, 16, 16)}
	processor.emitter = discardEmitter{}
	reporter := &recordingReporter{}
	processor.SetProgressReporter(reporter)

	variant := func(id string) domain.Variant {
		return domain.Variant{
			ID:         id,
			Operations: []domain.Operation{{Action: domain.ActionRotate, Rotate: &domain.RotateParams{Degrees: 90}}},
		}
	}
	if _, err := processor.Process(context.Background(), Request{
		JobID:    "job-progress",
		Variants: []domain.Variant{variant("a"), variant("b")},
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Each variant reports rotate and encode, before and after: four events.
	if len(reporter.percents) != 8 {
		t.Fatalf("expected 8 progress events, got %d", len(reporter.percents))
	}
	for i := 1; i < len(reporter.percents); i++ {
		if reporter.percents[i] < reporter.percents[i-1] {
			t.Fatalf("expected non-decreasing progress, got %v", reporter.percents)
		}
	}
	if reporter.percents[3] != 50 {
		t.Fatalf("expected 50%% after first variant, got %d", reporter.percents[3])
	}
	if last := reporter.percents[len(reporter.percents)-1]; last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
	if reporter.variants[0] != "a" || reporter.variants[7] != "b" {
		t.Fatalf("unexpected variant order %v", reporter.variants)
	}
}

type memoryObjectStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjectStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryObjectStore) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func TestObjectStoreProcessor(t *testing.T) {
	objects := &memoryObjectStore{
		objects: map[string][]byte{"uploads/job-s3/source": buildTestPNG(t, 30, 10)},
		types:   map[string]string{},
	}

	processor, err := NewObjectStoreProcessor(
		ObjectStoreFetcher{Storage: objects},
		ObjectStoreEmitter{Storage: objects, OutputPrefix: "renders"},
	)
	if err != nil {
		t.Fatalf("new object store processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-s3",
		SourceType: SourceTypeS3Presigned,
		SourceMIME: "image/png",
		ObjectKey:  "uploads/job-s3/source",
		Variants: []domain.Variant{
			{
				ID:     "gif copy",
				Format: "gif",
				Operations: []domain.Operation{
					{Action: domain.ActionFilter, Filter: &domain.FilterParams{Preset: "invert"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	out := result.Outputs[0]
	if out.Path != "renders/job-s3/gif_copy.gif" {
		t.Fatalf("unexpected object key %s", out.Path)
	}
	if objects.types[out.Path] != raster.MIMEGIF {
		t.Fatalf("expected content type image/gif, got %s", objects.types[out.Path])
	}
	if _, err := NewObjectStoreProcessor(ObjectStoreFetcher{}, ObjectStoreEmitter{}); err == nil {
		t.Fatal("expected error without storage")
	}
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if got := img.Bounds(); got.Dx() != wantW || got.Dy() != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, got.Dx(), got.Dy())
	}
}
