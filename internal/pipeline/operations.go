package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/raster"
)

var ErrInvalidOperation = errors.New("invalid operation")

// BuildOperations translates JSON operations into engine operations,
// preserving their order.
func BuildOperations(ops []domain.Operation) ([]raster.Operation, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: at least one operation is required", ErrInvalidOperation)
	}

	out := make([]raster.Operation, 0, len(ops))
	for i, op := range ops {
		built, err := buildOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		out = append(out, built)
	}
	return out, nil
}

func buildOperation(op domain.Operation) (raster.Operation, error) {
	if err := op.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	switch strings.ToLower(strings.TrimSpace(op.Action)) {
	case domain.ActionResize:
		anchor, err := parseAnchor(op.Resize.Anchor)
		if err != nil {
			return nil, err
		}
		return raster.ResizeSpec{
			Width:      op.Resize.Width,
			Height:     op.Resize.Height,
			LockAspect: op.Resize.LockAspect,
			Anchor:     anchor,
		}, nil
	case domain.ActionCrop:
		return raster.Rect{X: op.Crop.X, Y: op.Crop.Y, W: op.Crop.Width, H: op.Crop.Height}, nil
	case domain.ActionRotate:
		return raster.RotateSpec{Degrees: op.Rotate.Degrees}, nil
	case domain.ActionFilter:
		return buildFilter(op.Filter)
	case domain.ActionMatte:
		spec := raster.DefaultMatte()
		if op.Matte != nil && op.Matte.Threshold != nil {
			spec.Threshold = uint8(*op.Matte.Threshold)
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStepAction, op.Action)
	}
}

func buildFilter(params *domain.FilterParams) (raster.FilterChain, error) {
	preset, err := raster.ParsePreset(params.Preset)
	if err != nil {
		return raster.FilterChain{}, err
	}

	chain := raster.FilterChain{
		Preset:     preset,
		BlurRadius: params.BlurRadius,
	}
	for _, p := range params.Adjustments {
		a := raster.NewAdjustment()
		if p.Brightness != nil {
			a.Brightness = *p.Brightness
		}
		if p.Contrast != nil {
			a.Contrast = *p.Contrast
		}
		if p.Saturation != nil {
			a.Saturation = *p.Saturation
		}
		if p.Hue != nil {
			a.Hue = *p.Hue
		}
		chain.Adjustments = append(chain.Adjustments, a)
	}
	return chain, nil
}

func parseAnchor(anchor string) (raster.Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(anchor)) {
	case "", "auto":
		return raster.AnchorAuto, nil
	case "width":
		return raster.AnchorWidth, nil
	case "height":
		return raster.AnchorHeight, nil
	default:
		return raster.AnchorAuto, fmt.Errorf("%w: unknown resize anchor %q", ErrInvalidOperation, anchor)
	}
}

// BuildVariants checks that every variant translates into engine operations
// and names a format this build can encode.
func BuildVariants(variants []domain.Variant) ([][]raster.Operation, error) {
	out := make([][]raster.Operation, 0, len(variants))
	for i, v := range variants {
		ops, err := BuildOperations(v.Operations)
		if err != nil {
			return nil, fmt.Errorf("variants[%d]: %w", i, err)
		}
		if mime := outputMIME(v.Format); mime != "" && !raster.Encodable(mime) {
			return nil, fmt.Errorf("variants[%d]: %w: %q", i, raster.ErrUnsupportedEncodeFormat, v.Format)
		}
		out = append(out, ops)
	}
	return out, nil
}
