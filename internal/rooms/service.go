// Package rooms owns the room lifecycle state machine and participant
// registry policy. Transitions are linearizable per room; operations on
// different rooms never block each other.
package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/internal/rtc"
	"github.com/lingua-hub/backend/pkg/apperr"
)

// RoomStore persists rooms.
type RoomStore interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetByLivekitName(ctx context.Context, name string) (*models.Room, error)
	List(ctx context.Context, f Filter) ([]models.Room, error)
	Update(ctx context.Context, room *models.Room) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RoomStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ParticipantStore persists participant rows.
type ParticipantStore interface {
	Insert(ctx context.Context, p *models.Participant) error
	FindByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	FindByRoomAndStudent(ctx context.Context, roomID, studentID uuid.UUID) (*models.Participant, error)
	CountJoined(ctx context.Context, roomID uuid.UUID) (int, error)
	StampJoined(ctx context.Context, roomID, studentID uuid.UUID, at time.Time) error
	SetMuted(ctx context.Context, roomID, studentID uuid.UUID, muted bool) error
	SetPing(ctx context.Context, roomID, studentID uuid.UUID, pinged bool, at *time.Time) error
	MarkLeft(ctx context.Context, roomID, studentID uuid.UUID, at time.Time) error
}

// UserDirectory resolves platform users.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// CredentialIssuer mints RTC room credentials.
type CredentialIssuer interface {
	Issue(ctx context.Context, roomID, userID uuid.UUID) (*rtc.Credential, error)
}

// Transport is the RTC control-plane collaborator. All calls from this
// package are best-effort side effects.
type Transport interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) error
	DeleteRoom(ctx context.Context, name string) error
	RemoveParticipant(ctx context.Context, roomName, identity string) error
	NotifyParticipant(ctx context.Context, roomName, identity, event string, payload map[string]interface{}) error
}

// SummaryTrigger requests post-session summary generation.
type SummaryTrigger interface {
	EnqueueSessionSummary(ctx context.Context, roomID uuid.UUID) error
}

// Policy holds room lifecycle configuration.
type Policy struct {
	AllowEarlyJoin         bool
	EarlyJoinWindowMinutes int
	MinDurationMinutes     int
	MaxDurationMinutes     int
}

// Service drives the room lifecycle.
type Service struct {
	rooms        RoomStore
	participants ParticipantStore
	users        UserDirectory
	issuer       CredentialIssuer
	transport    Transport
	summaries    SummaryTrigger
	policy       Policy
	locks        *lockArena
	now          func() time.Time
	logger       *zap.Logger
}

// NewService creates the room lifecycle service.
func NewService(rooms RoomStore, participants ParticipantStore, users UserDirectory,
	issuer CredentialIssuer, transport Transport, summaries SummaryTrigger,
	policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rooms:        rooms,
		participants: participants,
		users:        users,
		issuer:       issuer,
		transport:    transport,
		summaries:    summaries,
		policy:       policy,
		locks:        newLockArena(),
		now:          time.Now,
		logger:       logger,
	}
}

// CreateInput is the room creation request.
type CreateInput struct {
	Name            string
	Language        string
	Level           string
	Objective       string
	ScheduledAt     time.Time
	DurationMinutes int
	MaxParticipants int
	AnimatorType    models.AnimatorType
	ProfessorID     *uuid.UUID
	InvitedStudents []uuid.UUID
}

// Create validates and persists a SCHEDULED room, registers invited students
// and provisions the transport-level room. A provisioning failure does not
// roll anything back: the returned warning surfaces it and the room is
// re-provisioned lazily on first join.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Room, string, error) {
	if in.Name == "" {
		return nil, "", apperr.BadRequest("room name is required")
	}
	if !in.ScheduledAt.After(s.now()) {
		return nil, "", apperr.BadRequest("scheduled time must be in the future")
	}
	if in.DurationMinutes < s.policy.MinDurationMinutes || in.DurationMinutes > s.policy.MaxDurationMinutes {
		return nil, "", apperr.BadRequest(fmt.Sprintf("duration must be between %d and %d minutes",
			s.policy.MinDurationMinutes, s.policy.MaxDurationMinutes))
	}
	if in.MaxParticipants <= 0 {
		in.MaxParticipants = 10
	}
	if in.AnimatorType == "" {
		in.AnimatorType = models.AnimatorProfessor
	}
	if in.ProfessorID != nil {
		professor, err := s.users.GetByID(ctx, *in.ProfessorID)
		if err != nil {
			return nil, "", apperr.Unexpected("failed to resolve professor", err)
		}
		if professor == nil {
			return nil, "", apperr.NotFound("professor not found")
		}
	}
	// Resolve every invited student before anything is written, so a bad id
	// leaves no room behind.
	for _, studentID := range in.InvitedStudents {
		student, err := s.users.GetByID(ctx, studentID)
		if err != nil {
			return nil, "", apperr.Unexpected("failed to resolve student", err)
		}
		if student == nil {
			return nil, "", apperr.NotFound("student not found: " + studentID.String())
		}
	}

	room := &models.Room{
		Name:            in.Name,
		Language:        in.Language,
		Level:           in.Level,
		Objective:       in.Objective,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		MaxParticipants: in.MaxParticipants,
		Status:          models.RoomStatusScheduled,
		AnimatorType:    in.AnimatorType,
		ProfessorID:     in.ProfessorID,
		LivekitRoomName: "room-" + uuid.New().String(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, "", apperr.Unexpected("failed to create room", err)
	}

	for _, studentID := range in.InvitedStudents {
		p := &models.Participant{RoomID: room.ID, StudentID: studentID, Invited: true}
		if err := s.participants.Insert(ctx, p); err != nil {
			// Undo the room so creation is all-or-nothing; participant rows
			// cascade with it.
			if delErr := s.rooms.Delete(ctx, room.ID); delErr != nil {
				s.logger.Error("room rollback failed after invite error",
					zap.String("room_id", room.ID.String()), zap.Error(delErr))
			}
			return nil, "", apperr.Unexpected("failed to register invited student", err)
		}
	}

	warning := ""
	if err := s.transport.CreateRoom(ctx, room.LivekitRoomName, room.MaxParticipants); err != nil {
		warning = "rtc room provisioning failed; it will be retried on first join"
		s.logger.Warn("rtc room provisioning failed",
			zap.String("room_id", room.ID.String()),
			zap.String("livekit_room", room.LivekitRoomName),
			zap.Error(err))
	}
	return room, warning, nil
}

// Join registers the user in the room and returns a fresh credential. It is
// idempotent per (room, student): repeat joins reuse the row and keep the
// original joined_at. The first successful join auto-promotes a SCHEDULED
// room to LIVE.
func (s *Service) Join(ctx context.Context, roomID, userID uuid.UUID) (*rtc.Credential, error) {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	if !s.policy.AllowEarlyJoin {
		window := time.Duration(s.policy.EarlyJoinWindowMinutes) * time.Minute
		if s.now().Before(room.ScheduledAt.Add(-window)) {
			return nil, apperr.BadRequest(fmt.Sprintf(
				"session has not started yet; you can join %d minutes before the scheduled time",
				s.policy.EarlyJoinWindowMinutes))
		}
		if room.Status == models.RoomStatusCompleted {
			return nil, apperr.BadRequest("this session has already ended")
		}
		if room.Status == models.RoomStatusCancelled {
			return nil, apperr.BadRequest("this session has been cancelled")
		}
	}

	if user.Role == models.RoleStudent {
		existing, err := s.participants.FindByRoomAndStudent(ctx, roomID, userID)
		if err != nil {
			return nil, apperr.Unexpected("failed to load participant", err)
		}
		if existing == nil {
			joined, err := s.participants.CountJoined(ctx, roomID)
			if err != nil {
				return nil, apperr.Unexpected("failed to count participants", err)
			}
			if joined >= room.MaxParticipants {
				return nil, apperr.BadRequest("room is full")
			}
			p := &models.Participant{RoomID: roomID, StudentID: userID, Invited: false}
			if err := s.participants.Insert(ctx, p); err != nil {
				return nil, apperr.Unexpected("failed to register participant", err)
			}
		}
		if err := s.participants.StampJoined(ctx, roomID, userID, s.now()); err != nil {
			return nil, apperr.Unexpected("failed to stamp join time", err)
		}
	}

	if room.Status == models.RoomStatusScheduled {
		if err := s.rooms.UpdateStatus(ctx, roomID, models.RoomStatusLive); err != nil {
			return nil, apperr.Unexpected("failed to start room", err)
		}
	}

	return s.issuer.Issue(ctx, roomID, userID)
}

// Start is the explicit professor/admin transition SCHEDULED -> LIVE.
func (s *Service) Start(ctx context.Context, roomID uuid.UUID) error {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if room.Status != models.RoomStatusScheduled {
		return apperr.BadRequest("room is not scheduled")
	}
	if err := s.rooms.UpdateStatus(ctx, roomID, models.RoomStatusLive); err != nil {
		return apperr.Unexpected("failed to start room", err)
	}
	return nil
}

// End transitions LIVE -> COMPLETED and triggers summary generation. The
// recording pipeline is finalized separately by the provider's own
// capture-stop signal, never awaited here.
func (s *Service) End(ctx context.Context, roomID uuid.UUID) error {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if room.Status != models.RoomStatusLive {
		return apperr.BadRequest("room is not live")
	}
	if err := s.rooms.UpdateStatus(ctx, roomID, models.RoomStatusCompleted); err != nil {
		return apperr.Unexpected("failed to end room", err)
	}

	// Fire-and-forget: the session summary must never block or fail the end
	// transition.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.summaries.EnqueueSessionSummary(ctx, roomID); err != nil {
			s.logger.Warn("summary trigger failed", zap.String("room_id", roomID.String()), zap.Error(err))
		}
	}()
	return nil
}

// Cancel transitions SCHEDULED -> CANCELLED. A live room cannot be cancelled;
// it has to end through COMPLETED.
func (s *Service) Cancel(ctx context.Context, roomID uuid.UUID) error {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if room.Status != models.RoomStatusScheduled {
		return apperr.BadRequest("only scheduled rooms can be cancelled")
	}
	if err := s.rooms.UpdateStatus(ctx, roomID, models.RoomStatusCancelled); err != nil {
		return apperr.Unexpected("failed to cancel room", err)
	}
	return nil
}

// UpdateInput carries optional room edits; nil fields are left unchanged.
type UpdateInput struct {
	Name            *string
	Objective       *string
	ScheduledAt     *time.Time
	DurationMinutes *int
	MaxParticipants *int
}

// Update edits scheduling metadata of a non-terminal room.
func (s *Service) Update(ctx context.Context, roomID uuid.UUID, in UpdateInput) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	if room.Status.Terminal() {
		return nil, apperr.BadRequest("room is no longer editable")
	}
	if in.Name != nil {
		room.Name = *in.Name
	}
	if in.Objective != nil {
		room.Objective = *in.Objective
	}
	if in.ScheduledAt != nil {
		room.ScheduledAt = *in.ScheduledAt
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes < s.policy.MinDurationMinutes || *in.DurationMinutes > s.policy.MaxDurationMinutes {
			return nil, apperr.BadRequest(fmt.Sprintf("duration must be between %d and %d minutes",
				s.policy.MinDurationMinutes, s.policy.MaxDurationMinutes))
		}
		room.DurationMinutes = *in.DurationMinutes
	}
	if in.MaxParticipants != nil {
		room.MaxParticipants = *in.MaxParticipants
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, apperr.Unexpected("failed to update room", err)
	}
	return room, nil
}

// Delete removes the room and, best-effort, its transport-level counterpart.
func (s *Service) Delete(ctx context.Context, roomID uuid.UUID) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if room.LivekitRoomName != "" {
		if err := s.transport.DeleteRoom(ctx, room.LivekitRoomName); err != nil {
			s.logger.Warn("rtc room deletion failed",
				zap.String("livekit_room", room.LivekitRoomName), zap.Error(err))
		}
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return apperr.Unexpected("failed to delete room", err)
	}
	return nil
}

// Get returns a room by id.
func (s *Service) Get(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	return room, nil
}

// GetByLivekitName returns a room by its external RTC name.
func (s *Service) GetByLivekitName(ctx context.Context, name string) (*models.Room, error) {
	room, err := s.rooms.GetByLivekitName(ctx, name)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found with livekit name: " + name)
	}
	return room, nil
}

// List returns rooms matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Room, error) {
	list, err := s.rooms.List(ctx, f)
	if err != nil {
		return nil, apperr.Unexpected("failed to list rooms", err)
	}
	return list, nil
}

// Participants returns the participant rows of a room.
func (s *Service) Participants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	list, err := s.participants.FindByRoom(ctx, roomID)
	if err != nil {
		return nil, apperr.Unexpected("failed to list participants", err)
	}
	return list, nil
}

// Mute sets a participant's muted flag. Idempotent: re-muting a muted
// participant is a no-op success. The RTC-side notification is best-effort.
func (s *Service) Mute(ctx context.Context, roomID, studentID uuid.UUID, muted bool) (*models.Participant, error) {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.loadParticipant(ctx, roomID, studentID)
	if err != nil {
		return nil, err
	}
	if p.IsMuted == muted {
		return p, nil
	}
	if err := s.participants.SetMuted(ctx, roomID, studentID, muted); err != nil {
		return nil, apperr.Unexpected("failed to update participant", err)
	}
	p.IsMuted = muted

	s.notify(roomID, studentID, "mute", map[string]interface{}{"muted": muted})
	return p, nil
}

// Ping raises the participant's attention flag and stamps the time.
func (s *Service) Ping(ctx context.Context, roomID, studentID uuid.UUID) (*models.Participant, error) {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.loadParticipant(ctx, roomID, studentID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.participants.SetPing(ctx, roomID, studentID, true, &at); err != nil {
		return nil, apperr.Unexpected("failed to update participant", err)
	}
	p.IsPinged = true
	p.PingedAt = &at

	s.notify(roomID, studentID, "ping", nil)
	return p, nil
}

// ClearPing resets the attention flag and its timestamp together.
func (s *Service) ClearPing(ctx context.Context, roomID, studentID uuid.UUID) error {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.loadParticipant(ctx, roomID, studentID); err != nil {
		return err
	}
	if err := s.participants.SetPing(ctx, roomID, studentID, false, nil); err != nil {
		return apperr.Unexpected("failed to update participant", err)
	}
	return nil
}

// Kick disconnects a student from the call and stamps them as left. The
// transport-side removal is best-effort (the RTC room may already be gone);
// the registry stamp is authoritative.
func (s *Service) Kick(ctx context.Context, roomID, studentID uuid.UUID) error {
	lock := s.locks.forRoom(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperr.Unexpected("failed to load room", err)
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if _, err := s.loadParticipant(ctx, roomID, studentID); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return apperr.Unexpected("failed to load user", err)
	}
	if user != nil && room.LivekitRoomName != "" {
		if err := s.transport.RemoveParticipant(ctx, room.LivekitRoomName, user.Email); err != nil {
			s.logger.Warn("rtc participant removal failed",
				zap.String("room_id", roomID.String()),
				zap.String("identity", user.Email),
				zap.Error(err))
		}
	}
	if err := s.participants.MarkLeft(ctx, roomID, studentID, s.now()); err != nil {
		return apperr.Unexpected("failed to update participant", err)
	}
	return nil
}

// HandleParticipantJoined stamps joined_at from the provider's
// participant_joined webhook. The identity is the credential identity (the
// user's email). A join already stamped through the HTTP flow wins; the stamp
// only fills a null joined_at.
func (s *Service) HandleParticipantJoined(ctx context.Context, livekitRoomName, identity string) error {
	room, err := s.rooms.GetByLivekitName(ctx, livekitRoomName)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("unknown room %q", livekitRoomName)
	}
	user, err := s.users.GetByEmail(ctx, identity)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("unknown identity %q", identity)
	}
	return s.participants.StampJoined(ctx, room.ID, user.ID, s.now())
}

// HandleParticipantLeft stamps left_at from the provider's participant_left
// webhook. The identity is the credential identity (the user's email).
func (s *Service) HandleParticipantLeft(ctx context.Context, livekitRoomName, identity string) error {
	room, err := s.rooms.GetByLivekitName(ctx, livekitRoomName)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("unknown room %q", livekitRoomName)
	}
	user, err := s.users.GetByEmail(ctx, identity)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("unknown identity %q", identity)
	}
	return s.participants.MarkLeft(ctx, room.ID, user.ID, s.now())
}

func (s *Service) loadParticipant(ctx context.Context, roomID, studentID uuid.UUID) (*models.Participant, error) {
	p, err := s.participants.FindByRoomAndStudent(ctx, roomID, studentID)
	if err != nil {
		return nil, apperr.Unexpected("failed to load participant", err)
	}
	if p == nil {
		return nil, apperr.NotFound("participant not found")
	}
	return p, nil
}

// notify sends an in-room data message without holding up or failing the
// caller. It resolves the identity outside the request context on purpose.
func (s *Service) notify(roomID, studentID uuid.UUID, event string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		room, err := s.rooms.GetByID(ctx, roomID)
		if err != nil || room == nil || room.LivekitRoomName == "" {
			return
		}
		user, err := s.users.GetByID(ctx, studentID)
		if err != nil || user == nil {
			return
		}
		if err := s.transport.NotifyParticipant(ctx, room.LivekitRoomName, user.Email, event, payload); err != nil {
			s.logger.Warn("participant notification failed",
				zap.String("room_id", roomID.String()),
				zap.String("event", event),
				zap.Error(err))
		}
	}()
}
