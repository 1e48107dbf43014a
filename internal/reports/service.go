package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-komisi/internal/commission"
	"github.com/noah-isme/backend-komisi/internal/ledger"
	"github.com/noah-isme/backend-komisi/internal/lock"
	"github.com/noah-isme/backend-komisi/internal/obs"
	"github.com/noah-isme/backend-komisi/internal/spreadsheet"
)

var (
	// ErrJobPending is returned when a job's report is requested before it succeeded.
	ErrJobPending = errors.New("report not ready")
	// ErrJobsDisabled is returned when no task queue is configured.
	ErrJobsDisabled = errors.New("background jobs are not configured")
	// ErrEmptyUpload rejects uploads without content.
	ErrEmptyUpload = errors.New("uploaded file is empty")
)

const (
	persistLockPrefix = "commission:persist:"
	persistLockTTL    = 30 * time.Second
)

// Upload is one ledger file submitted for calculation.
type Upload struct {
	FileName   string
	OutputName string
	Content    []byte
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service runs the commission pipeline for uploads and keeps the results.
type Service struct {
	loader    ledger.Loader
	writer    spreadsheet.Writer
	options   commission.Options
	store     *Store
	locker    lock.Locker
	queue     Enqueuer
	queueName string
	maxRetry  int
	outputDir string
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Loader    ledger.Loader
	Labels    spreadsheet.Labels
	Options   commission.Options
	Store     *Store
	Locker    lock.Locker
	Queue     Enqueuer
	QueueName string
	MaxRetry  int
	OutputDir string
	Logger    zerolog.Logger
	Now       func() time.Time
	NewID     func() string
}

// NewService constructs a Service. Store, Queue and OutputDir are optional;
// without them reports are neither cached, queued nor written to disk.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		loader:    cfg.Loader,
		writer:    spreadsheet.NewWriter(cfg.Labels),
		options:   cfg.Options,
		store:     cfg.Store,
		locker:    cfg.Locker,
		queue:     cfg.Queue,
		queueName: cfg.QueueName,
		maxRetry:  cfg.MaxRetry,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
		tracer:    otel.Tracer(obs.TracerName),
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	if svc.queueName == "" {
		svc.queueName = "commission"
	}
	return svc
}

// Labels returns the label set used for rendering.
func (s *Service) Labels() spreadsheet.Labels {
	return s.writer.Labels
}

// Options returns the calculation options applied to every report.
func (s *Service) Options() commission.Options {
	return s.options
}

// Preview calculates the report without rendering or storing it.
func (s *Service) Preview(ctx context.Context, up Upload) (*commission.Report, error) {
	ctx, span := s.tracer.Start(ctx, "commission.preview")
	defer span.End()
	start := s.now()
	report, err := s.calculate(ctx, up)
	s.finish(span, obs.SourceHTTP, report, err, start)
	return report, err
}

// Generate calculates and renders the report, then stores the artifact.
func (s *Service) Generate(ctx context.Context, up Upload, source string) (*Artifact, error) {
	ctx, span := s.tracer.Start(ctx, "commission.generate", trace.WithAttributes(
		attribute.String("commission.source", source),
		attribute.String("commission.file", up.FileName),
	))
	defer span.End()
	start := s.now()

	report, err := s.calculate(ctx, up)
	if err != nil {
		s.finish(span, source, nil, err, start)
		return nil, err
	}
	artifact, err := s.render(ctx, report, up.OutputName)
	s.finish(span, source, report, err, start)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("report_id", artifact.ID).
		Str("source", source).
		Str("file_name", artifact.FileName).
		Int("rows", artifact.Rows).
		Int("tiers", artifact.Tiers).
		Int64("total_commission", artifact.TotalCommission).
		Msg("commission report generated")
	return artifact, nil
}

// Fetch returns a stored artifact.
func (s *Service) Fetch(ctx context.Context, id string) (*Artifact, error) {
	return s.store.Artifact(ctx, id)
}

// Submit queues an upload for background generation. Unsupported file
// names are rejected before anything is queued.
func (s *Service) Submit(ctx context.Context, up Upload) (*Job, error) {
	if s.queue == nil || s.store == nil {
		return nil, ErrJobsDisabled
	}
	if _, err := ledger.DetectFormat(up.FileName); err != nil {
		return nil, err
	}
	if len(up.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	job := &Job{
		ID:        s.newID(),
		State:     JobPending,
		FileName:  s.writer.Labels.FileName(up.OutputName),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	task, err := NewGenerateTask(GeneratePayload{
		JobID:      job.ID,
		FileName:   up.FileName,
		OutputName: up.OutputName,
		Content:    up.Content,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.queue.EnqueueContext(ctx, task,
		asynq.Queue(s.queueName),
		asynq.MaxRetry(s.maxRetry),
		asynq.TaskID(job.ID),
	); err != nil {
		return nil, fmt.Errorf("enqueue report job: %w", err)
	}
	s.logger.Info().Str("job_id", job.ID).Str("file", up.FileName).Msg("commission job queued")
	return job, nil
}

// Status returns the current state of a job.
func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.store.Job(ctx, id)
}

// JobReport returns the artifact produced by a succeeded job.
func (s *Service) JobReport(ctx context.Context, id string) (*Artifact, error) {
	job, err := s.store.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != JobSucceeded {
		return nil, ErrJobPending
	}
	return s.store.Artifact(ctx, job.ReportID)
}

// ProcessJob runs a queued generation and records its outcome. Rejected
// ledgers are final and wrapped with asynq.SkipRetry.
func (s *Service) ProcessJob(ctx context.Context, payload GeneratePayload) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = s.maxRetry
	}
	job := &Job{ID: payload.JobID, State: JobRunning, Attempts: retried + 1, UpdatedAt: s.now().UTC()}
	job.FileName = s.writer.Labels.FileName(payload.OutputName)
	if err := s.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	artifact, err := s.Generate(ctx, Upload{
		FileName:   payload.FileName,
		OutputName: payload.OutputName,
		Content:    payload.Content,
	}, obs.SourceJob)
	job.UpdatedAt = s.now().UTC()
	if err != nil {
		job.Error = err.Error()
		var verr *commission.ValidationError
		if errors.As(err, &verr) {
			job.Problems = verr.Problems
		}
		permanent := isRejection(err)
		if permanent || retried >= maxRetry {
			job.State = JobFailed
		}
		if saveErr := s.store.SaveJob(ctx, job); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("save failed job status")
		}
		s.logger.Warn().Err(err).Str("job_id", job.ID).Bool("final", job.State == JobFailed).Msg("commission job failed")
		if permanent {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	job.State = JobSucceeded
	job.ReportID = artifact.ID
	job.FileName = artifact.FileName
	job.Error = ""
	if err := s.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Service) calculate(ctx context.Context, up Upload) (*commission.Report, error) {
	if len(up.Content) == 0 {
		if _, err := ledger.DetectFormat(up.FileName); err != nil {
			return nil, err
		}
		return nil, ErrEmptyUpload
	}
	_, span := s.tracer.Start(ctx, "commission.calculate")
	defer span.End()
	rows, err := s.loader.Load(up.FileName, bytes.NewReader(up.Content))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("commission.ledger_rows", len(rows)))
	return commission.Calculate(rows, s.options)
}

func (s *Service) render(ctx context.Context, report *commission.Report, outputName string) (*Artifact, error) {
	content, err := s.writer.Bytes(report)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	artifact := &Artifact{
		ID:              s.newID(),
		FileName:        s.writer.Labels.FileName(outputName),
		Content:         content,
		Rows:            report.DataRows,
		Tiers:           report.Tiers,
		TotalNetSales:   report.TotalNetSales.String(),
		TotalCommission: report.TotalCommission,
		CreatedAt:       s.now().UTC(),
	}
	if s.outputDir != "" {
		// API and worker share the output directory and often the default name.
		err := s.locker.WithLock(ctx, persistLockPrefix+artifact.FileName, persistLockTTL, func(context.Context) error {
			path, err := s.writer.Labels.Persist(s.outputDir, outputName, content)
			artifact.Path = path
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if err := s.store.SaveArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("cache report: %w", err)
	}
	return artifact, nil
}

func (s *Service) finish(span trace.Span, source string, report *commission.Report, err error, start time.Time) {
	rows := 0
	if report != nil {
		rows = report.DataRows
		span.SetAttributes(
			attribute.Int("commission.data_rows", report.DataRows),
			attribute.Int("commission.tiers", report.Tiers),
		)
	}
	result := "ok"
	if err != nil {
		result = "error"
		if isRejection(err) {
			result = "rejected"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	obs.ObserveReport(source, result, rows, obs.DurationMillis(s.now().Sub(start)))
}

// isRejection reports whether err is caused by the upload itself, so that
// retrying cannot succeed.
func isRejection(err error) bool {
	return errors.Is(err, commission.ErrValidation) ||
		errors.Is(err, ledger.ErrUnsupportedFormat) ||
		errors.Is(err, ledger.ErrMalformed) ||
		errors.Is(err, ErrEmptyUpload)
}
