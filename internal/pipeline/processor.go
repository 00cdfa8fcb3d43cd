package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid pipeline action")
)

type Request struct {
	JobID      string
	SourceType string
	SourceMIME string
	ObjectKey  string
	Variants   []domain.Variant
}

type Output struct {
	VariantID string `json:"variant_id"`
	MIME      string `json:"mime"`
	Path      string `json:"path"`
	Bytes     int    `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Success   bool   `json:"success"`
}

type Result struct {
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
	Outputs      []Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, variant domain.Variant, result raster.Result) (Output, error)
}

// ProgressReporter receives whole-job progress while variants are processed.
// percent covers every variant of the job.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, jobID, variantID string, percent int, stage raster.Progress)
}

type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	emitter     Emitter
	progress    ProgressReporter
}

func NewLocalProcessor(outputDir string) (*Processor, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	return &Processor{
		fetcher:     LocalFileFetcher{},
		transformer: NewTransformer(0),
		emitter:     LocalFileEmitter{OutputDir: outputDir},
	}, nil
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter) (*Processor, error) {
	if fetcher.Storage == nil || emitter.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return &Processor{
		fetcher:     fetcher,
		transformer: NewTransformer(0),
		emitter:     emitter,
	}, nil
}

// SetDefaultQuality sets the encode quality for variants without one.
func (p *Processor) SetDefaultQuality(q int) {
	p.transformer = NewTransformer(q)
}

// SetProgressReporter registers r for subsequent Process calls.
func (p *Processor) SetProgressReporter(r ProgressReporter) {
	p.progress = r
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Variants) == 0 {
		return Result{}, errors.New("variants must contain at least one variant")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	sourceMIME := raster.NormalizeMIME(req.SourceMIME)
	if sourceMIME == "" {
		sourceMIME = raster.DetectMIME(sourceBytes)
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Outputs:     make([]Output, 0, len(req.Variants)),
	}
	for i, variant := range req.Variants {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		transformed, err := p.transformer.Transform(ctx, sourceBytes, sourceMIME, variant, p.progressFunc(ctx, req, i))
		if err != nil {
			return Result{}, fmt.Errorf("transform stage variant=%s: %w", variant.ID, err)
		}

		written, err := p.emitter.Emit(ctx, req, variant, transformed)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage variant=%s: %w", variant.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	out.SourceWidth, out.SourceHeight, _ = raster.Dimensions(sourceBytes)
	return out, nil
}

func (p *Processor) progressFunc(ctx context.Context, req Request, index int) raster.ProgressFunc {
	if p.progress == nil {
		return nil
	}
	variantID := req.Variants[index].ID
	total := len(req.Variants)
	return func(stage raster.Progress) {
		percent := (index*100 + stage.Percent()) / total
		p.progress.ReportProgress(ctx, req.JobID, variantID, percent, stage)
	}
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, variant domain.Variant, result raster.Result) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(variant.ID) == "" {
		return Output{}, errors.New("variant id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFilename(variant.ID, result.MIME))
	if err := os.WriteFile(fullPath, result.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return newOutput(variant, fullPath, result), nil
}

func newOutput(variant domain.Variant, path string, result raster.Result) Output {
	return Output{
		VariantID: variant.ID,
		MIME:      result.MIME,
		Path:      path,
		Bytes:     len(result.Data),
		Width:     result.Width,
		Height:    result.Height,
		Success:   true,
	}
}

func outputFilename(variantID, mime string) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(variantID), raster.Extension(mime))
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
