// Package worker runs background jobs dequeued from Redis: fetching finished
// captures from the RTC provider and triggering session summaries.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/queue"
)

// RecordingSink drives fetched capture media through the upload pipeline.
type RecordingSink interface {
	Upload(ctx context.Context, captureID string, body io.Reader, contentLength int64, durationSeconds *int) (*models.Recording, error)
}

// SummarySink handles session summary jobs.
type SummarySink interface {
	GenerateSummary(ctx context.Context, payload queue.SessionSummaryPayload) error
}

// Processor executes queued jobs.
type Processor struct {
	recordings RecordingSink
	summaries  SummarySink
	queue      *queue.Queue
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(recordings RecordingSink, summaries SummarySink, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		recordings: recordings,
		summaries:  summaries,
		queue:      q,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordingFetch:
		return p.processRecordingFetch(ctx, job)
	case queue.JobTypeSessionSummary:
		return p.processSessionSummary(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// processRecordingFetch downloads the finished capture from the provider and
// streams it into object storage without buffering it whole.
func (p *Processor) processRecordingFetch(ctx context.Context, job *queue.Job) error {
	var payload queue.RecordingFetchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	var duration *int
	if payload.DurationSeconds > 0 {
		duration = &payload.DurationSeconds
	}
	if _, err := p.recordings.Upload(ctx, payload.CaptureID, resp.Body, resp.ContentLength, duration); err != nil {
		return fmt.Errorf("store recording: %w", err)
	}
	p.logger.Info("recording fetched and stored", zap.String("capture_id", payload.CaptureID))
	return nil
}

func (p *Processor) processSessionSummary(ctx context.Context, job *queue.Job) error {
	var payload queue.SessionSummaryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.summaries.GenerateSummary(ctx, payload)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
