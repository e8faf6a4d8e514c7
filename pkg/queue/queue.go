package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueJobs is the Redis list key for background jobs.
	QueueJobs = "worker:jobs"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	// JobTypeRecordingFetch downloads a finished capture from the RTC
	// provider and drives it through the upload pipeline.
	JobTypeRecordingFetch JobType = "recording_fetch"
	// JobTypeSessionSummary asks the external generator for a session summary.
	JobTypeSessionSummary JobType = "session_summary"
)

// RecordingFetchPayload is the payload for recording fetch jobs.
type RecordingFetchPayload struct {
	CaptureID       string `json:"capture_id"`
	SourceURL       string `json:"source_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// SessionSummaryPayload is the payload for summary generation jobs.
type SessionSummaryPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueRecordingFetch enqueues a recording fetch job.
func (q *Queue) EnqueueRecordingFetch(ctx context.Context, captureID, sourceURL string, durationSeconds int) error {
	payload := RecordingFetchPayload{
		CaptureID:       captureID,
		SourceURL:       sourceURL,
		DurationSeconds: durationSeconds,
	}
	if err := q.enqueue(ctx, JobTypeRecordingFetch, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued recording fetch job", zap.String("capture_id", captureID))
	return nil
}

// EnqueueSessionSummary enqueues a summary generation job.
func (q *Queue) EnqueueSessionSummary(ctx context.Context, roomID uuid.UUID) error {
	if err := q.enqueue(ctx, JobTypeSessionSummary, SessionSummaryPayload{RoomID: roomID}); err != nil {
		return err
	}
	q.logger.Debug("enqueued session summary job", zap.String("room_id", roomID.String()))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueJobs).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
