// Package recordings implements the session recording pipeline: a capture is
// registered while the session runs, its media is uploaded to object storage
// once the provider hands it over, and playback goes through pre-signed URLs.
package recordings

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/apperr"
	"github.com/lingua-hub/backend/pkg/storage"
)

// Store persists recording metadata.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	GetByCaptureID(ctx context.Context, captureID string) (*models.Recording, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, sizeBytes int64, durationSeconds *int, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the blob storage backend for recording media.
type ObjectStore interface {
	RecordingsBucket() string
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error
	DeleteObject(ctx context.Context, bucket, key string) error
	PresignGetURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// RoomDirectory resolves rooms for capture registration.
type RoomDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetByLivekitName(ctx context.Context, name string) (*models.Room, error)
}

// FetchQueue schedules the download of finished captures from the provider.
type FetchQueue interface {
	EnqueueRecordingFetch(ctx context.Context, captureID, sourceURL string, durationSeconds int) error
}

// Service runs the recording pipeline.
type Service struct {
	store      Store
	objects    ObjectStore
	rooms      RoomDirectory
	fetchQueue FetchQueue
	presignTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates the recording pipeline service.
func NewService(store Store, objects ObjectStore, rooms RoomDirectory, fetchQueue FetchQueue,
	presignTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		objects:    objects,
		rooms:      rooms,
		fetchQueue: fetchQueue,
		presignTTL: presignTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// Start registers a new capture for a room. The destination bucket and object
// key are fixed at this point and never change for the capture's lifetime.
func (s *Service) Start(ctx context.Context, roomID uuid.UUID, captureID string) (*models.Recording, error) {
	if captureID == "" {
		return nil, apperr.BadRequest("capture id is required")
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	existing, err := s.store.GetByCaptureID(ctx, captureID)
	if err != nil {
		return nil, apperr.Unexpected("failed to check capture", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("capture already registered: " + captureID)
	}

	rec := &models.Recording{
		RoomID:    roomID,
		CaptureID: captureID,
		FileName:  captureID + ".mp4",
		Bucket:    s.objects.RecordingsBucket(),
		ObjectKey: storage.RecordingKey(roomID.String(), captureID),
		Format:    "mp4",
		Status:    models.RecordingStatusRecording,
		StartedAt: s.now(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if apperr.IsConflict(err) {
			return nil, err
		}
		return nil, apperr.Unexpected("failed to create recording", err)
	}
	return rec, nil
}

// Upload streams finished capture media into object storage. On any upload
// failure the recording ends FAILED with the cause recorded, so a retry can
// be decided by an operator rather than looping silently.
func (s *Service) Upload(ctx context.Context, captureID string, body io.Reader, contentLength int64, durationSeconds *int) (*models.Recording, error) {
	rec, err := s.store.GetByCaptureID(ctx, captureID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load recording", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("capture not found: " + captureID)
	}
	if rec.Status == models.RecordingStatusCompleted {
		return nil, apperr.Conflict("capture already uploaded: " + captureID)
	}

	if err := s.store.UpdateStatus(ctx, rec.ID, models.RecordingStatusProcessing); err != nil {
		return nil, apperr.Unexpected("failed to update recording", err)
	}
	rec.Status = models.RecordingStatusProcessing

	if err := s.objects.EnsureBucket(ctx, rec.Bucket); err != nil {
		return s.fail(ctx, rec, fmt.Sprintf("bucket check failed: %v", err))
	}

	counted := &countingReader{r: body}
	if err := s.objects.Upload(ctx, rec.Bucket, rec.ObjectKey, "video/mp4", counted, contentLength); err != nil {
		return s.fail(ctx, rec, fmt.Sprintf("upload failed: %v", err))
	}

	completedAt := s.now()
	size := counted.n
	if err := s.store.MarkCompleted(ctx, rec.ID, size, durationSeconds, completedAt); err != nil {
		return nil, apperr.Unexpected("failed to finalize recording", err)
	}
	rec.Status = models.RecordingStatusCompleted
	rec.FileSizeBytes = &size
	rec.DurationSeconds = durationSeconds
	rec.CompletedAt = &completedAt
	rec.ErrorMessage = ""

	s.logger.Info("recording stored",
		zap.String("capture_id", captureID),
		zap.String("object_key", rec.ObjectKey),
		zap.Int64("size_bytes", size))
	return rec, nil
}

func (s *Service) fail(ctx context.Context, rec *models.Recording, reason string) (*models.Recording, error) {
	if err := s.store.MarkFailed(ctx, rec.ID, reason); err != nil {
		s.logger.Error("failed to mark recording failed",
			zap.String("capture_id", rec.CaptureID), zap.Error(err))
	}
	rec.Status = models.RecordingStatusFailed
	rec.ErrorMessage = reason
	s.logger.Warn("recording pipeline failed",
		zap.String("capture_id", rec.CaptureID), zap.String("reason", reason))
	return nil, apperr.Unexpected(reason, nil)
}

// Get returns a recording by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Unexpected("failed to load recording", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("recording not found")
	}
	return rec, nil
}

// ListByRoom returns a room's recordings.
func (s *Service) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error) {
	list, err := s.store.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list recordings", err)
	}
	return list, nil
}

// ListByStudent returns completed recordings of rooms the student joined.
func (s *Service) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Recording, error) {
	list, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list recordings", err)
	}
	return list, nil
}

// PlaybackURL returns a time-limited URL for a completed recording.
func (s *Service) PlaybackURL(ctx context.Context, id uuid.UUID) (string, time.Time, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", time.Time{}, apperr.Unexpected("failed to load recording", err)
	}
	if rec == nil {
		return "", time.Time{}, apperr.NotFound("recording not found")
	}
	if rec.Status != models.RecordingStatusCompleted {
		return "", time.Time{}, apperr.Conflict("recording is not ready for playback")
	}
	url, err := s.objects.PresignGetURL(ctx, rec.Bucket, rec.ObjectKey, s.presignTTL)
	if err != nil {
		return "", time.Time{}, apperr.Unexpected("failed to sign playback url", err)
	}
	return url, s.now().Add(s.presignTTL), nil
}

// Delete removes the blob best-effort, then always removes the metadata. A
// blob deletion failure leaves an orphaned object, never a dangling row.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return apperr.Unexpected("failed to load recording", err)
	}
	if rec == nil {
		return apperr.NotFound("recording not found")
	}
	if rec.Status == models.RecordingStatusCompleted {
		if err := s.objects.DeleteObject(ctx, rec.Bucket, rec.ObjectKey); err != nil {
			s.logger.Warn("blob deletion failed; object may be orphaned",
				zap.String("object_key", rec.ObjectKey), zap.Error(err))
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return apperr.Unexpected("failed to delete recording", err)
	}
	return nil
}

// HandleCaptureStarted registers a capture announced by the provider's egress
// webhook. A repeat announcement for a known capture is ignored.
func (s *Service) HandleCaptureStarted(ctx context.Context, livekitRoomName, captureID string) error {
	room, err := s.rooms.GetByLivekitName(ctx, livekitRoomName)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("unknown room %q", livekitRoomName)
	}
	_, err = s.Start(ctx, room.ID, captureID)
	if apperr.IsConflict(err) {
		return nil
	}
	return err
}

// HandleCaptureEnded schedules the background fetch of the finished media
// from the provider location.
func (s *Service) HandleCaptureEnded(ctx context.Context, captureID, fileURL string, durationSeconds int) error {
	rec, err := s.store.GetByCaptureID(ctx, captureID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("unknown capture %q", captureID)
	}
	if fileURL == "" {
		if err := s.store.MarkFailed(ctx, rec.ID, "provider reported no output file"); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}
	return s.fetchQueue.EnqueueRecordingFetch(ctx, captureID, fileURL, durationSeconds)
}

// countingReader measures bytes passed through to the uploader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
