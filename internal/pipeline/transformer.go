package pipeline

import (
	"context"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

// Transformer turns source bytes into one encoded variant.
type Transformer interface {
	Transform(ctx context.Context, input []byte, sourceMIME string, variant domain.Variant, progress raster.ProgressFunc) (raster.Result, error)
}

type engineTransformer struct {
	defaultQuality int
}

// NewTransformer returns the Transformer backed by the raster engine.
// defaultQuality applies to variants that leave quality unset; zero keeps the
// engine default.
func NewTransformer(defaultQuality int) Transformer {
	return engineTransformer{defaultQuality: defaultQuality}
}

func (t engineTransformer) Transform(ctx context.Context, input []byte, sourceMIME string, variant domain.Variant, progress raster.ProgressFunc) (raster.Result, error) {
	ops, err := BuildOperations(variant.Operations)
	if err != nil {
		return raster.Result{}, err
	}

	quality := variant.Quality
	if quality == 0 {
		quality = t.defaultQuality
	}
	req := raster.Request{
		Operations: ops,
		MIME:       outputMIME(variant.Format),
		Quality:    quality,
	}

	var opts []raster.Option
	if progress != nil {
		opts = append(opts, raster.WithProgress(progress))
	}
	return raster.Transform(ctx, input, sourceMIME, req, opts...)
}

// outputMIME returns "" for an unset format so the engine keeps the source format.
func outputMIME(format string) string {
	if format == "" {
		return ""
	}
	return raster.NormalizeMIME(format)
}
