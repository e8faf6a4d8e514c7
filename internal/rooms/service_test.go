package rooms

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/internal/rtc"
	"github.com/lingua-hub/backend/pkg/apperr"
)

type fakeRoomStore struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*models.Room
	promotes int
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: make(map[uuid.UUID]*models.Room)}
}

func (f *fakeRoomStore) Create(_ context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room.ID = uuid.New()
	cp := *room
	f.rooms[room.ID] = &cp
	return nil
}

func (f *fakeRoomStore) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *room
	return &cp, nil
}

func (f *fakeRoomStore) GetByLivekitName(_ context.Context, name string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.LivekitRoomName == name {
			cp := *room
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRoomStore) List(_ context.Context, _ Filter) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Room
	for _, room := range f.rooms {
		list = append(list, *room)
	}
	return list, nil
}

func (f *fakeRoomStore) Update(_ context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *room
	f.rooms[room.ID] = &cp
	return nil
}

func (f *fakeRoomStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == models.RoomStatusLive {
		f.promotes++
	}
	f.rooms[id].Status = status
	return nil
}

func (f *fakeRoomStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

type participantKey struct{ room, student uuid.UUID }

type fakeParticipantStore struct {
	mu        sync.Mutex
	rows      map[participantKey]*models.Participant
	insertErr error
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{rows: make(map[participantKey]*models.Participant)}
}

func (f *fakeParticipantStore) Insert(_ context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	key := participantKey{p.RoomID, p.StudentID}
	if _, exists := f.rows[key]; exists {
		return nil
	}
	p.ID = uuid.New()
	cp := *p
	f.rows[key] = &cp
	return nil
}

func (f *fakeParticipantStore) FindByRoom(_ context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Participant
	for key, p := range f.rows {
		if key.room == roomID {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (f *fakeParticipantStore) FindByRoomAndStudent(_ context.Context, roomID, studentID uuid.UUID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{roomID, studentID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipantStore) CountJoined(_ context.Context, roomID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key, p := range f.rows {
		if key.room == roomID && p.JoinedAt != nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeParticipantStore) StampJoined(_ context.Context, roomID, studentID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{roomID, studentID}]
	if ok && p.JoinedAt == nil {
		p.JoinedAt = &at
	}
	return nil
}

func (f *fakeParticipantStore) SetMuted(_ context.Context, roomID, studentID uuid.UUID, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[participantKey{roomID, studentID}].IsMuted = muted
	return nil
}

func (f *fakeParticipantStore) SetPing(_ context.Context, roomID, studentID uuid.UUID, pinged bool, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.rows[participantKey{roomID, studentID}]
	p.IsPinged = pinged
	p.PingedAt = at
	return nil
}

func (f *fakeParticipantStore) MarkLeft(_ context.Context, roomID, studentID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{roomID, studentID}]
	if ok {
		p.LeftAt = &at
	}
	return nil
}

type fakeUserDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserDirectory) add(role models.Role) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: uuid.New().String() + "@example.com", Role: role}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserDirectory) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUserDirectory) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(_ context.Context, roomID, userID uuid.UUID) (*rtc.Credential, error) {
	return &rtc.Credential{Token: "token-" + userID.String(), RoomName: "room-" + roomID.String()}, nil
}

type fakeTransport struct {
	mu        sync.Mutex
	createErr error
	created   []string
	deleted   []string
	removed   []string
	notified  []string
}

func (f *fakeTransport) CreateRoom(_ context.Context, name string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	return nil
}

func (f *fakeTransport) DeleteRoom(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeTransport) RemoveParticipant(_ context.Context, _, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, identity)
	return nil
}

func (f *fakeTransport) NotifyParticipant(_ context.Context, _, identity, event string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, event+":"+identity)
	return nil
}

type fakeSummaries struct {
	mu      sync.Mutex
	roomIDs []uuid.UUID
}

func (f *fakeSummaries) EnqueueSessionSummary(_ context.Context, roomID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomIDs = append(f.roomIDs, roomID)
	return nil
}

type fixture struct {
	service      *Service
	rooms        *fakeRoomStore
	participants *fakeParticipantStore
	users        *fakeUserDirectory
	transport    *fakeTransport
	summaries    *fakeSummaries
}

func newFixture(policy Policy) *fixture {
	f := &fixture{
		rooms:        newFakeRoomStore(),
		participants: newFakeParticipantStore(),
		users:        newFakeUserDirectory(),
		transport:    &fakeTransport{},
		summaries:    &fakeSummaries{},
	}
	f.service = NewService(f.rooms, f.participants, f.users, fakeIssuer{}, f.transport, f.summaries, policy, nil)
	return f
}

func defaultPolicy() Policy {
	return Policy{
		AllowEarlyJoin:         true,
		EarlyJoinWindowMinutes: 15,
		MinDurationMinutes:     15,
		MaxDurationMinutes:     480,
	}
}

func (f *fixture) createScheduledRoom(t *testing.T) *models.Room {
	t.Helper()
	room, warning, err := f.service.Create(context.Background(), CreateInput{
		Name:            "Spanish B1 conversation",
		Language:        "es",
		Level:           "B1",
		ScheduledAt:     time.Now().Add(time.Hour),
		DurationMinutes: 60,
		MaxParticipants: 3,
	})
	require.NoError(t, err)
	require.Empty(t, warning)
	return room
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()

	_, _, err := f.service.Create(ctx, CreateInput{
		Name: "past session", ScheduledAt: time.Now().Add(-time.Minute), DurationMinutes: 60,
	})
	assert.True(t, apperr.IsBadRequest(err))

	for _, minutes := range []int{14, 481} {
		_, _, err = f.service.Create(ctx, CreateInput{
			Name: "bad duration", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: minutes,
		})
		assert.True(t, apperr.IsBadRequest(err), "duration %d should be rejected", minutes)
	}

	for _, minutes := range []int{15, 480} {
		_, _, err = f.service.Create(ctx, CreateInput{
			Name: "ok duration", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: minutes,
		})
		assert.NoError(t, err, "duration %d should be accepted", minutes)
	}
}

func TestCreateAssignsLivekitNameAndProvisions(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)

	assert.Equal(t, models.RoomStatusScheduled, room.Status)
	assert.True(t, strings.HasPrefix(room.LivekitRoomName, "room-"))
	assert.Equal(t, []string{room.LivekitRoomName}, f.transport.created)
}

func TestCreateProvisioningFailureReturnsWarning(t *testing.T) {
	f := newFixture(defaultPolicy())
	f.transport.createErr = assert.AnError

	room, warning, err := f.service.Create(context.Background(), CreateInput{
		Name: "warned", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.NotNil(t, room)
}

func TestCreateUnknownInvitedStudentLeavesNothingBehind(t *testing.T) {
	f := newFixture(defaultPolicy())

	_, _, err := f.service.Create(context.Background(), CreateInput{
		Name: "invite-only", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: 60,
		InvitedStudents: []uuid.UUID{uuid.New()},
	})
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, f.rooms.rooms)
	assert.Empty(t, f.participants.rows)
	assert.Empty(t, f.transport.created)
}

func TestCreateRollsBackRoomOnInviteFailure(t *testing.T) {
	f := newFixture(defaultPolicy())
	student := f.users.add(models.RoleStudent)
	f.participants.insertErr = assert.AnError

	_, _, err := f.service.Create(context.Background(), CreateInput{
		Name: "invite-only", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: 60,
		InvitedStudents: []uuid.UUID{student.ID},
	})
	require.Error(t, err)
	assert.Empty(t, f.rooms.rooms)
}

func TestJoinPromotesScheduledRoomOnce(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)

	cred, err := f.service.Join(context.Background(), room.ID, student.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)

	stored, _ := f.rooms.GetByID(context.Background(), room.ID)
	assert.Equal(t, models.RoomStatusLive, stored.Status)

	// repeat join is idempotent and does not promote again
	_, err = f.service.Join(context.Background(), room.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rooms.promotes)

	p, _ := f.participants.FindByRoomAndStudent(context.Background(), room.ID, student.ID)
	require.NotNil(t, p)
	assert.NotNil(t, p.JoinedAt)
}

func TestConcurrentJoinsPromoteExactlyOnce(t *testing.T) {
	f := newFixture(defaultPolicy())
	room, _, err := f.service.Create(context.Background(), CreateInput{
		Name: "big room", ScheduledAt: time.Now().Add(time.Hour),
		DurationMinutes: 60, MaxParticipants: 100,
	})
	require.NoError(t, err)

	const n = 20
	students := make([]*models.User, n)
	for i := range students {
		students[i] = f.users.add(models.RoleStudent)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			_, err := f.service.Join(context.Background(), room.ID, u.ID)
			assert.NoError(t, err)
		}(students[i])
	}
	wg.Wait()

	assert.Equal(t, 1, f.rooms.promotes)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t) // capacity 3

	for i := 0; i < 3; i++ {
		student := f.users.add(models.RoleStudent)
		_, err := f.service.Join(context.Background(), room.ID, student.ID)
		require.NoError(t, err)
	}

	late := f.users.add(models.RoleStudent)
	_, err := f.service.Join(context.Background(), room.ID, late.ID)
	assert.True(t, apperr.IsBadRequest(err))
}

func TestJoinEarlyWindowEnforcement(t *testing.T) {
	policy := defaultPolicy()
	policy.AllowEarlyJoin = false
	f := newFixture(policy)
	student := f.users.add(models.RoleStudent)

	room, _, err := f.service.Create(context.Background(), CreateInput{
		Name: "strict", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: 60,
	})
	require.NoError(t, err)

	// one hour out: the 15-minute window has not opened
	_, err = f.service.Join(context.Background(), room.ID, student.ID)
	assert.True(t, apperr.IsBadRequest(err))

	// inside the window
	f.service.now = func() time.Time { return room.ScheduledAt.Add(-10 * time.Minute) }
	_, err = f.service.Join(context.Background(), room.ID, student.ID)
	assert.NoError(t, err)
}

func TestJoinRejectsTerminalRoomWhenEarlyJoinDisabled(t *testing.T) {
	policy := defaultPolicy()
	policy.AllowEarlyJoin = false
	f := newFixture(policy)
	student := f.users.add(models.RoleStudent)

	for _, status := range []models.RoomStatus{models.RoomStatusCompleted, models.RoomStatusCancelled} {
		f.service.now = time.Now
		room := f.createScheduledRoom(t)
		require.NoError(t, f.rooms.UpdateStatus(context.Background(), room.ID, status))
		f.service.now = func() time.Time { return room.ScheduledAt }

		_, err := f.service.Join(context.Background(), room.ID, student.ID)
		assert.True(t, apperr.IsBadRequest(err), "status %s should reject join", status)
	}
}

func TestJoinUnknownRoomOrUser(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)

	_, err := f.service.Join(context.Background(), uuid.New(), student.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.service.Join(context.Background(), room.ID, uuid.New())
	assert.True(t, apperr.IsNotFound(err))
}

func TestProfessorJoinSkipsRegistry(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)
	professor := f.users.add(models.RoleProfessor)

	_, err := f.service.Join(context.Background(), room.ID, professor.ID)
	require.NoError(t, err)

	p, _ := f.participants.FindByRoomAndStudent(context.Background(), room.ID, professor.ID)
	assert.Nil(t, p)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()

	room := f.createScheduledRoom(t)

	// scheduled -> completed is illegal
	assert.True(t, apperr.IsBadRequest(f.service.End(ctx, room.ID)))

	require.NoError(t, f.service.Start(ctx, room.ID))
	stored, _ := f.rooms.GetByID(ctx, room.ID)
	assert.Equal(t, models.RoomStatusLive, stored.Status)

	// live -> live and live -> cancelled are illegal
	assert.True(t, apperr.IsBadRequest(f.service.Start(ctx, room.ID)))
	assert.True(t, apperr.IsBadRequest(f.service.Cancel(ctx, room.ID)))

	require.NoError(t, f.service.End(ctx, room.ID))
	stored, _ = f.rooms.GetByID(ctx, room.ID)
	assert.Equal(t, models.RoomStatusCompleted, stored.Status)

	// completed is terminal
	assert.True(t, apperr.IsBadRequest(f.service.Start(ctx, room.ID)))
	assert.True(t, apperr.IsBadRequest(f.service.End(ctx, room.ID)))
	assert.True(t, apperr.IsBadRequest(f.service.Cancel(ctx, room.ID)))
}

func TestCancelFromScheduled(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)

	require.NoError(t, f.service.Cancel(context.Background(), room.ID))
	stored, _ := f.rooms.GetByID(context.Background(), room.ID)
	assert.Equal(t, models.RoomStatusCancelled, stored.Status)
}

func TestEndTriggersSummary(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)
	require.NoError(t, f.service.Start(context.Background(), room.ID))
	require.NoError(t, f.service.End(context.Background(), room.ID))

	assert.Eventually(t, func() bool {
		f.summaries.mu.Lock()
		defer f.summaries.mu.Unlock()
		return len(f.summaries.roomIDs) == 1 && f.summaries.roomIDs[0] == room.ID
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateRejectsTerminalRoom(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)
	require.NoError(t, f.service.Cancel(ctx, room.ID))

	name := "renamed"
	_, err := f.service.Update(ctx, room.ID, UpdateInput{Name: &name})
	assert.True(t, apperr.IsBadRequest(err))
}

func TestMuteIsIdempotent(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)
	_, err := f.service.Join(ctx, room.ID, student.ID)
	require.NoError(t, err)

	p, err := f.service.Mute(ctx, room.ID, student.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	// repeat mute is a no-op success
	p, err = f.service.Mute(ctx, room.ID, student.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	p, err = f.service.Mute(ctx, room.ID, student.ID, false)
	require.NoError(t, err)
	assert.False(t, p.IsMuted)
}

func TestMuteUnknownParticipant(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)

	_, err := f.service.Mute(context.Background(), room.ID, uuid.New(), true)
	assert.True(t, apperr.IsNotFound(err))
}

func TestPingAndClearPing(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)
	_, err := f.service.Join(ctx, room.ID, student.ID)
	require.NoError(t, err)

	p, err := f.service.Ping(ctx, room.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, p.IsPinged)
	assert.NotNil(t, p.PingedAt)

	require.NoError(t, f.service.ClearPing(ctx, room.ID, student.ID))
	stored, _ := f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	assert.False(t, stored.IsPinged)
	assert.Nil(t, stored.PingedAt)
}

func TestHandleParticipantJoinedStampsInvitedStudent(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	student := f.users.add(models.RoleStudent)
	room, _, err := f.service.Create(ctx, CreateInput{
		Name:            "invite-only",
		ScheduledAt:     time.Now().Add(time.Hour),
		DurationMinutes: 60,
		InvitedStudents: []uuid.UUID{student.ID},
	})
	require.NoError(t, err)

	p, _ := f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	require.NotNil(t, p)
	require.Nil(t, p.JoinedAt)

	require.NoError(t, f.service.HandleParticipantJoined(ctx, room.LivekitRoomName, student.Email))

	p, _ = f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	require.NotNil(t, p.JoinedAt)
	first := *p.JoinedAt

	// a repeat announcement keeps the original stamp
	require.NoError(t, f.service.HandleParticipantJoined(ctx, room.LivekitRoomName, student.Email))
	p, _ = f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	assert.Equal(t, first, *p.JoinedAt)

	assert.Error(t, f.service.HandleParticipantJoined(ctx, "room-unknown", student.Email))
}

func TestHandleParticipantLeft(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)
	_, err := f.service.Join(ctx, room.ID, student.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.HandleParticipantLeft(ctx, room.LivekitRoomName, student.Email))

	p, _ := f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	require.NotNil(t, p)
	assert.NotNil(t, p.LeftAt)
}

func TestKickDisconnectsAndStampsLeft(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)
	student := f.users.add(models.RoleStudent)
	_, err := f.service.Join(ctx, room.ID, student.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.Kick(ctx, room.ID, student.ID))

	assert.Equal(t, []string{student.Email}, f.transport.removed)
	p, _ := f.participants.FindByRoomAndStudent(ctx, room.ID, student.ID)
	require.NotNil(t, p)
	assert.NotNil(t, p.LeftAt)
}

func TestKickUnknownParticipant(t *testing.T) {
	f := newFixture(defaultPolicy())
	room := f.createScheduledRoom(t)

	err := f.service.Kick(context.Background(), room.ID, uuid.New())
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, f.transport.removed)
}

func TestDeleteRemovesTransportRoom(t *testing.T) {
	f := newFixture(defaultPolicy())
	ctx := context.Background()
	room := f.createScheduledRoom(t)

	require.NoError(t, f.service.Delete(ctx, room.ID))
	assert.Equal(t, []string{room.LivekitRoomName}, f.transport.deleted)

	stored, _ := f.rooms.GetByID(ctx, room.ID)
	assert.Nil(t, stored)
}
