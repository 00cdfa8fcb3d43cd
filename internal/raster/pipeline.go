package raster

import (
	"context"
	"fmt"
	"time"
)

// Operation is one pixel transform in a Request.
type Operation interface {
	Name() string
	Apply(buf *Buffer) (*Buffer, error)
}

// Request is an ordered list of operations plus the output encoding. An
// empty MIME keeps the source format.
type Request struct {
	Operations []Operation
	MIME       string
	Quality    int
}

type Result struct {
	Buffer *Buffer
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// StageEncode is the Progress.Name reported for the final encode stage.
const StageEncode = "encode"

// Progress describes one pipeline stage. Stage is 1-based; Total counts every
// operation plus the encode stage.
type Progress struct {
	Stage int
	Total int
	Name  string
	Done  bool
}

// Percent is the share of stages finished, 0 to 100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	finished := p.Stage - 1
	if p.Done {
		finished = p.Stage
	}
	return finished * 100 / p.Total
}

type ProgressFunc func(Progress)

type Option func(*runOptions)

type runOptions struct {
	progress ProgressFunc
}

// WithProgress registers a callback invoked before and after every stage.
// It runs on the calling goroutine.
func WithProgress(fn ProgressFunc) Option {
	return func(o *runOptions) {
		o.progress = fn
	}
}

func (o *runOptions) report(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}

// Transform decodes data, runs req over the pixels and encodes the result.
// When req.MIME is empty the output uses the source format.
func Transform(ctx context.Context, data []byte, mime string, req Request, opts ...Option) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	buf, err := Decode(data, mime)
	if err != nil {
		return Result{}, err
	}
	if req.MIME == "" {
		req.MIME = mime
		if req.MIME == "" {
			req.MIME = DetectMIME(data)
		}
	}
	return Run(ctx, buf, req, opts...)
}

// Run applies req.Operations to buf strictly in order and encodes the final
// buffer. buf itself is never modified.
func Run(ctx context.Context, buf *Buffer, req Request, opts ...Option) (Result, error) {
	if err := buf.validate(); err != nil {
		return Result{}, err
	}
	if len(req.Operations) == 0 {
		return Result{}, fmt.Errorf("%w: at least one operation is required", ErrEmptyRequest)
	}

	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	total := len(req.Operations) + 1
	current := buf
	for i, op := range req.Operations {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if op == nil {
			return Result{}, fmt.Errorf("operation %d is nil", i)
		}

		o.report(Progress{Stage: i + 1, Total: total, Name: op.Name()})
		started := time.Now()
		next, err := op.Apply(current)
		if err != nil {
			return Result{}, fmt.Errorf("stage %d %s: %w", i+1, op.Name(), err)
		}
		logger().Debug("raster: stage done",
			"stage", i+1,
			"op", op.Name(),
			"width", next.Width,
			"height", next.Height,
			"elapsed", time.Since(started),
		)
		current = next
		o.report(Progress{Stage: i + 1, Total: total, Name: op.Name(), Done: true})
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	mime := NormalizeMIME(req.MIME)
	if mime == "" {
		mime = MIMEPNG
	}
	o.report(Progress{Stage: total, Total: total, Name: StageEncode})
	data, err := Encode(current, mime, req.Quality)
	if err != nil {
		return Result{}, err
	}
	o.report(Progress{Stage: total, Total: total, Name: StageEncode, Done: true})

	return Result{
		Buffer: current,
		Data:   data,
		MIME:   mime,
		Width:  current.Width,
		Height: current.Height,
	}, nil
}
