// Package rtc integrates the external RTC provider (LiveKit): room
// provisioning, credential minting, in-room notifications and the signed
// webhook channel.
package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"go.uber.org/zap"

	"github.com/lingua-hub/backend/internal/models"
	"github.com/lingua-hub/backend/pkg/apperr"
)

// Credential authorizes one user to connect to the RTC service for one room.
// It is never revoked early; ExpiresAt is issuance time plus the configured TTL.
type Credential struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	RoomName  string    `json:"room_name"`
	ServerURL string    `json:"server_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RoomDirectory resolves rooms and assigns their external name.
type RoomDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	SetLivekitName(ctx context.Context, id uuid.UUID, name string) error
}

// UserDirectory resolves users (account directory boundary).
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenStore persists issued-credential audit rows.
type TokenStore interface {
	Insert(ctx context.Context, t *models.AccessToken) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Issuer mints room credentials and tracks them for audit and cleanup.
type Issuer struct {
	rooms     RoomDirectory
	users     UserDirectory
	tokens    TokenStore
	apiKey    string
	apiSecret string
	serverURL string
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewIssuer creates a credential issuer.
func NewIssuer(rooms RoomDirectory, users UserDirectory, tokens TokenStore, apiKey, apiSecret, serverURL string, ttl time.Duration, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{
		rooms:     rooms,
		users:     users,
		tokens:    tokens,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		serverURL: serverURL,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

// Issue mints a fresh credential binding (user, room). The room's external
// name is assigned lazily if creation-time provisioning never ran. A new
// credential is issued on every call; earlier ones stay valid until expiry.
func (s *Issuer) Issue(ctx context.Context, roomID, userID uuid.UUID) (*Credential, error) {
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

	if room.LivekitRoomName == "" {
		room.LivekitRoomName = "room-" + room.ID.String()
		if err := s.rooms.SetLivekitName(ctx, room.ID, room.LivekitRoomName); err != nil {
			return nil, apperr.Unexpected("failed to assign room name", err)
		}
	}

	identity := user.Email
	jwt, err := s.mint(room.LivekitRoomName, identity, user.FullName)
	if err != nil {
		return nil, apperr.Unexpected("failed to mint credential", err)
	}
	expiresAt := s.now().Add(s.ttl)

	record := &models.AccessToken{
		UserID:    user.ID,
		RoomID:    room.ID,
		Token:     jwt,
		Identity:  identity,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Insert(ctx, record); err != nil {
		return nil, apperr.Unexpected("failed to record credential", err)
	}

	return &Credential{
		Token:     jwt,
		Identity:  identity,
		RoomName:  room.LivekitRoomName,
		ServerURL: s.serverURL,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Issuer) mint(roomName, identity, displayName string) (string, error) {
	if s.apiKey == "" || s.apiSecret == "" {
		return "", fmt.Errorf("rtc: api key and secret required")
	}
	grant := &auth.VideoGrant{RoomJoin: true, Room: roomName}
	grant.SetCanPublish(true)
	grant.SetCanPublishData(true)
	grant.SetCanSubscribe(true)

	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetValidFor(s.ttl)
	return at.ToJWT()
}

// CleanupExpired deletes audit rows whose credential has expired. It prunes
// records only - a live credential stays valid until its own TTL runs out.
func (s *Issuer) CleanupExpired(ctx context.Context) error {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired credentials pruned", zap.Int64("count", n))
	}
	return nil
}

// RunCleanup runs CleanupExpired on the given interval until ctx is done.
func (s *Issuer) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CleanupExpired(ctx); err != nil {
				s.logger.Warn("token cleanup failed", zap.Error(err))
			}
		}
	}
}
