package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

const (
	ActionResize = "resize"
	ActionCrop   = "crop"
	ActionRotate = "rotate"
	ActionFilter = "filter"
	ActionMatte  = "matte"
)

type CreateJobRequest struct {
	SourceType string    `json:"source_type"`
	SourceMIME string    `json:"source_mime,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	ObjectKey  string    `json:"object_key,omitempty"`
	Variants   []Variant `json:"variants"`
}

// Variant is one output of a job: an ordered operation list applied to the
// job source, encoded as Format.
type Variant struct {
	ID         string      `json:"id"`
	Operations []Operation `json:"operations"`
	Format     string      `json:"format,omitempty"`
	Quality    int         `json:"quality,omitempty"`
}

// Operation carries exactly one parameter block matching Action.
type Operation struct {
	Action string        `json:"action"`
	Resize *ResizeParams `json:"resize,omitempty"`
	Crop   *CropParams   `json:"crop,omitempty"`
	Rotate *RotateParams `json:"rotate,omitempty"`
	Filter *FilterParams `json:"filter,omitempty"`
	Matte  *MatteParams  `json:"matte,omitempty"`
}

type ResizeParams struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	LockAspect bool   `json:"lock_aspect,omitempty"`
	Anchor     string `json:"anchor,omitempty"`
}

type CropParams struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type RotateParams struct {
	Degrees float64 `json:"degrees"`
}

type FilterParams struct {
	Preset      string             `json:"preset,omitempty"`
	Adjustments []AdjustmentParams `json:"adjustments,omitempty"`
	BlurRadius  float64            `json:"blur_radius,omitempty"`
}

// AdjustmentParams leaves unset fields at identity (100% or 0 degrees).
type AdjustmentParams struct {
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	Hue        *float64 `json:"hue,omitempty"`
}

type MatteParams struct {
	Threshold *int `json:"threshold,omitempty"`
}

// VariantOutput is where a finished variant was written.
type VariantOutput struct {
	VariantID string `json:"variant_id"`
	MIME      string `json:"mime"`
	Path      string `json:"path"`
	Bytes     int    `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	SourceMIME string
	WebhookURL string
	Variants   []Variant
	ObjectKey  string
	Progress   int
	Outputs    []VariantOutput
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the job has finished, successfully or not.
func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Variants) == 0 {
		return errors.New("variants must contain at least one variant")
	}

	seen := make(map[string]struct{}, len(r.Variants))
	for i, v := range r.Variants {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variants[%d]: %w", i, err)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("variants[%d].id %q is duplicated", i, v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	return nil
}

// Validate checks the shape of a variant. Parameter ranges are left to the
// engine, which reports them with typed errors.
func (v Variant) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return errors.New("id is required")
	}
	if len(v.Operations) == 0 {
		return errors.New("operations must contain at least one operation")
	}
	if v.Quality < 0 || v.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, got %d", v.Quality)
	}
	for i, op := range v.Operations {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operations[%d]: %w", i, err)
		}
	}
	return nil
}

func (o Operation) Validate() error {
	action := strings.ToLower(strings.TrimSpace(o.Action))
	if action == "" {
		return errors.New("action is required")
	}

	var present int
	for _, set := range []bool{o.Resize != nil, o.Crop != nil, o.Rotate != nil, o.Filter != nil, o.Matte != nil} {
		if set {
			present++
		}
	}
	if present > 1 {
		return fmt.Errorf("action %s must carry a single parameter block", action)
	}

	switch action {
	case ActionResize:
		if o.Resize == nil {
			return errors.New("resize action requires resize parameters")
		}
	case ActionCrop:
		if o.Crop == nil {
			return errors.New("crop action requires crop parameters")
		}
	case ActionRotate:
		if o.Rotate == nil {
			return errors.New("rotate action requires rotate parameters")
		}
	case ActionFilter:
		if o.Filter == nil {
			return errors.New("filter action requires filter parameters")
		}
	case ActionMatte:
		if o.Matte != nil && o.Matte.Threshold != nil && (*o.Matte.Threshold < 0 || *o.Matte.Threshold > 255) {
			return fmt.Errorf("matte threshold must be between 0 and 255, got %d", *o.Matte.Threshold)
		}
	default:
		return fmt.Errorf("unsupported action: %s", o.Action)
	}
	if present == 1 && !o.carries(action) {
		return fmt.Errorf("action %s carries parameters for a different action", action)
	}
	return nil
}

func (o Operation) carries(action string) bool {
	switch action {
	case ActionResize:
		return o.Resize != nil
	case ActionCrop:
		return o.Crop != nil
	case ActionRotate:
		return o.Rotate != nil
	case ActionFilter:
		return o.Filter != nil
	case ActionMatte:
		return o.Matte != nil
	default:
		return false
	}
}
