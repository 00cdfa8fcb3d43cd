package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixeltools/internal/config"
	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/pipeline"
	"github.com/dunamismax/pixeltools/internal/queue"
	"github.com/dunamismax/pixeltools/internal/raster"
	"github.com/dunamismax/pixeltools/internal/storage"
	"github.com/dunamismax/pixeltools/internal/store"
	"github.com/dunamismax/pixeltools/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  jobProcessor
	objectProcessor jobProcessor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Deliver(ctx context.Context, endpoint string, event webhook.JobEvent) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	rasterCfg config.RasterConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	objectProcessor, err := pipeline.NewObjectStoreProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: workerCfg.OutputPrefix},
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:        make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("pixeltools/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}

	for _, p := range []*pipeline.Processor{localProcessor, objectProcessor} {
		p.SetDefaultQuality(rasterCfg.DefaultJPEGQuality)
		p.SetProgressReporter(s)
	}
	s.localProcessor = localProcessor
	s.objectProcessor = objectProcessor
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handleTransformImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransformImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseTransformImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	return s.processJob(ctx, payload)
}

func (s *Server) processJob(ctx context.Context, payload queue.TransformImagePayload) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	ctx, span := s.tracer.Start(ctx, "worker.transform_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.variants", len(payload.Variants)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s source_type=%s variants=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Variants),
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		SourceMIME: payload.SourceMIME,
		ObjectKey:  payload.ObjectKey,
		Variants:   payload.Variants,
	}

	var (
		result pipeline.Result
		err    error
	)
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return s.handleFailure(ctx, payload, err)
	}

	outputs := variantOutputs(result)
	job, err := s.completeJob(ctx, payload, outputs)
	if err != nil {
		s.logger.Printf("job completion update failed job_id=%s err=%v", payload.JobID, err)
	}

	s.logger.Printf("Processed job_id=%s outputs=%d elapsed=%s", payload.JobID, len(result.Outputs), time.Since(startedAt).Round(time.Millisecond))
	for _, out := range result.Outputs {
		s.metrics.pipelineOutputsTotal.WithLabelValues(out.MIME).Inc()
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))
	s.dispatchWebhook(ctx, payload, job)

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// handleFailure marks the job failed once no retry will follow and returns
// the error asynq should see. Input errors are never retried.
func (s *Server) handleFailure(ctx context.Context, payload queue.TransformImagePayload, err error) error {
	permanent := isPermanent(err)
	if !permanent && retriesLeft(ctx) {
		s.logger.Printf("job attempt failed job_id=%s will_retry=true err=%v", payload.JobID, err)
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("run pipeline: %w", err)
	}

	job := domain.Job{ID: payload.JobID, Status: domain.JobStatusFailed, Error: err.Error()}
	if s.jobStore != nil {
		failed, storeErr := s.jobStore.Fail(ctx, payload.JobID, err.Error())
		if storeErr != nil {
			s.logger.Printf("job status update failed job_id=%s status=%s err=%v", payload.JobID, domain.JobStatusFailed, storeErr)
		} else {
			job = failed
		}
	}
	s.dispatchWebhook(ctx, payload, job)

	if permanent {
		return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("run pipeline: %w", err)
}

// ReportProgress implements pipeline.ProgressReporter.
func (s *Server) ReportProgress(ctx context.Context, jobID, _ string, percent int, stage raster.Progress) {
	if stage.Done {
		s.metrics.stagesTotal.WithLabelValues(stage.Name).Inc()
	}
	if s.jobStore == nil || !stage.Done {
		return
	}
	if err := s.jobStore.UpdateProgress(ctx, jobID, percent); err != nil {
		s.logger.Printf("job progress update failed job_id=%s percent=%d err=%v", jobID, percent, err)
	}
}

func (s *Server) completeJob(ctx context.Context, payload queue.TransformImagePayload, outputs []domain.VariantOutput) (domain.Job, error) {
	job := domain.Job{
		ID:       payload.JobID,
		UserID:   payload.UserID,
		Status:   domain.JobStatusSucceeded,
		Progress: 100,
		Outputs:  outputs,
	}
	if s.jobStore == nil {
		return job, nil
	}
	updated, err := s.jobStore.Complete(ctx, payload.JobID, outputs)
	if err != nil {
		return job, err
	}
	return updated, nil
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

// dispatchWebhook delivers the terminal event. Delivery failures are logged
// and counted; they do not fail a job whose outputs are already written.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.TransformImagePayload, job domain.Job) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	event := webhook.NewJobEvent(job)
	if err := s.webhookClient.Deliver(ctx, payload.WebhookURL, event); err != nil {
		s.metrics.webhookFailuresTotal.WithLabelValues(event.Event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event.Event, err)
	}
}

func (s *Server) recordUsage(ctx context.Context, payload queue.TransformImagePayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", payload.JobID, err)
		} else if ok {
			userID = strings.TrimSpace(job.UserID)
		}
	}
	if userID == "" {
		userID = "anonymous"
	}

	usage := usageFor(userID, payload.JobID, result, computeDuration)
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(usage.BytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}

// usageFor charges output pixels and credits, per variant, the bytes each
// output saved against the source.
func usageFor(userID, jobID string, result pipeline.Result, computeDuration time.Duration) domain.UsageLog {
	var pixelsProcessed, bytesSaved int64
	for _, output := range result.Outputs {
		pixelsProcessed += int64(output.Width) * int64(output.Height)
		if saved := int64(result.SourceBytes - output.Bytes); saved > 0 {
			bytesSaved += saved
		}
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	return domain.UsageLog{
		UserID:          userID,
		JobID:           jobID,
		Variants:        len(result.Outputs),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
}

func variantOutputs(result pipeline.Result) []domain.VariantOutput {
	outputs := make([]domain.VariantOutput, 0, len(result.Outputs))
	for _, out := range result.Outputs {
		outputs = append(outputs, domain.VariantOutput{
			VariantID: out.VariantID,
			MIME:      out.MIME,
			Path:      out.Path,
			Bytes:     out.Bytes,
			Width:     out.Width,
			Height:    out.Height,
		})
	}
	return outputs
}

func isPermanent(err error) bool {
	for _, target := range []error{
		raster.ErrDecode,
		raster.ErrInvalidDimensions,
		raster.ErrEmptyCropRegion,
		raster.ErrInvalidAngle,
		raster.ErrInvalidFilterParameter,
		raster.ErrUnsupportedEncodeFormat,
		raster.ErrEmptyRequest,
		pipeline.ErrInvalidOperation,
		pipeline.ErrInvalidStepAction,
		pipeline.ErrUnsupportedSourceType,
		storage.ErrObjectTooLarge,
		storage.ErrObjectNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// retriesLeft reports whether asynq will run the task again after a failure.
// Outside an asynq handler there is no retry.
func retriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried < maxRetry
}
