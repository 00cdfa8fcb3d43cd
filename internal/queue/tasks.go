package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeTransformImage = "image:transform"

var ErrInvalidPayload = errors.New("invalid transform payload")

type TransformImagePayload struct {
	JobID       string           `json:"job_id"`
	UserID      string           `json:"user_id,omitempty"`
	SourceType  string           `json:"source_type"`
	SourceMIME  string           `json:"source_mime,omitempty"`
	WebhookURL  string           `json:"webhook_url,omitempty"`
	ObjectKey   string           `json:"object_key"`
	Variants    []domain.Variant `json:"variants"`
	RequestedAt time.Time        `json:"requested_at"`
}

// PayloadFromJob copies the fields a worker needs out of job.
func PayloadFromJob(job domain.Job) TransformImagePayload {
	return TransformImagePayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		SourceMIME:  job.SourceMIME,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Variants:    job.Variants,
		RequestedAt: time.Now().UTC(),
	}
}

func NewTransformImageTask(payload TransformImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformImagePayload(task *asynq.Task) (TransformImagePayload, error) {
	var payload TransformImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformImagePayload{}, fmt.Errorf("%w: unmarshal: %v", ErrInvalidPayload, err)
	}
	if payload.JobID == "" {
		return TransformImagePayload{}, fmt.Errorf("%w: job_id is required", ErrInvalidPayload)
	}
	if len(payload.Variants) == 0 {
		return TransformImagePayload{}, fmt.Errorf("%w: variants are required", ErrInvalidPayload)
	}
	return payload, nil
}
