package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/id"
)

const (
	HeaderSignature = "X-Pixeltools-Signature"
	HeaderTimestamp = "X-Pixeltools-Timestamp"
	HeaderEvent     = "X-Pixeltools-Event"
	HeaderDelivery  = "X-Pixeltools-Delivery"

	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// ErrRejected marks a delivery the receiver refused with a non-retryable
// status.
var ErrRejected = errors.New("webhook rejected")

// JobEvent is the body posted for job.completed and job.failed.
type JobEvent struct {
	Event      string                 `json:"event"`
	JobID      string                 `json:"job_id"`
	Status     string                 `json:"status"`
	Progress   int                    `json:"progress"`
	Outputs    []domain.VariantOutput `json:"outputs,omitempty"`
	Error      string                 `json:"error,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewJobEvent builds the payload for job's current state.
func NewJobEvent(job domain.Job) JobEvent {
	event := EventJobCompleted
	if job.Status == domain.JobStatusFailed {
		event = EventJobFailed
	}
	return JobEvent{
		Event:      event,
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Outputs:    job.Outputs,
		Error:      job.Error,
		OccurredAt: time.Now().UTC(),
	}
}

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.MaxAttempts = max(c.MaxAttempts, 1)
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	c.MaxBackoff = max(c.MaxBackoff, c.InitialBackoff)
	return c
}

// Client posts signed job events to caller-supplied URLs.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Deliver posts event to endpoint, retrying transport errors, 408, 429 and
// 5xx with exponential backoff. Every attempt carries the same delivery ID,
// timestamp and signature so receivers can deduplicate. An empty endpoint is
// a no-op.
func (c *Client) Deliver(ctx context.Context, endpoint string, event JobEvent) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Event, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(HeaderEvent, event.Event)
	headers.Set(HeaderDelivery, id.WithPrefix("whd"))
	ts := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	headers.Set(HeaderTimestamp, ts)
	headers.Set(HeaderSignature, Sign(c.cfg.SigningSecret, ts, body))

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		retry, err := c.post(ctx, endpoint, headers, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}

	return fmt.Errorf("deliver %s job_id=%s: %w", event.Event, event.JobID, lastErr)
}

// post sends one attempt and reports whether a failure is worth retrying.
func (c *Client) post(ctx context.Context, endpoint string, headers http.Header, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return false, nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return true, fmt.Errorf("receiver returned status=%d", code)
	default:
		return false, fmt.Errorf("%w: status=%d", ErrRejected, code)
	}
}

// Sign computes the signature header value: hex HMAC-SHA256 over
// "timestamp.body".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
