package rtc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"
)

// RoomClient wraps the LiveKit room service API. All calls are control-plane
// only; media never flows through this backend.
type RoomClient struct {
	svc    *lksdk.RoomServiceClient
	logger *zap.Logger
}

// NewRoomClient creates a LiveKit room service client.
func NewRoomClient(url, apiKey, apiSecret string, logger *zap.Logger) *RoomClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomClient{
		svc:    lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		logger: logger,
	}
}

// CreateRoom provisions a transport-level room. Idempotent on the LiveKit
// side: creating an existing room returns it unchanged.
func (c *RoomClient) CreateRoom(ctx context.Context, name string, maxParticipants int) error {
	_, err := c.svc.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            name,
		MaxParticipants: uint32(maxParticipants),
	})
	if err != nil {
		return fmt.Errorf("create room %s: %w", name, err)
	}
	return nil
}

// DeleteRoom removes a transport-level room, disconnecting everyone in it.
func (c *RoomClient) DeleteRoom(ctx context.Context, name string) error {
	_, err := c.svc.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name})
	if err != nil {
		return fmt.Errorf("delete room %s: %w", name, err)
	}
	return nil
}

// ListRooms returns active rooms, optionally filtered by name.
func (c *RoomClient) ListRooms(ctx context.Context, names ...string) ([]*livekit.Room, error) {
	resp, err := c.svc.ListRooms(ctx, &livekit.ListRoomsRequest{Names: names})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// GetRoomInfo returns the active room with the given name, or nil when the
// room is not live on the RTC side.
func (c *RoomClient) GetRoomInfo(ctx context.Context, name string) (*livekit.Room, error) {
	rooms, err := c.ListRooms(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, nil
	}
	return rooms[0], nil
}

// ListParticipants returns the connected participants of a room.
func (c *RoomClient) ListParticipants(ctx context.Context, roomName string) ([]*livekit.ParticipantInfo, error) {
	resp, err := c.svc.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return resp.Participants, nil
}

// RemoveParticipant disconnects a participant from a room.
func (c *RoomClient) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	_, err := c.svc.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return fmt.Errorf("remove participant %s: %w", identity, err)
	}
	return nil
}

// MutePublishedTrack mutes or unmutes a published track at the transport level.
func (c *RoomClient) MutePublishedTrack(ctx context.Context, roomName, identity, trackSid string, muted bool) (*livekit.TrackInfo, error) {
	resp, err := c.svc.MutePublishedTrack(ctx, &livekit.MuteRoomTrackRequest{
		Room:     roomName,
		Identity: identity,
		TrackSid: trackSid,
		Muted:    muted,
	})
	if err != nil {
		return nil, fmt.Errorf("mute track %s: %w", trackSid, err)
	}
	return resp.Track, nil
}

// NotifyParticipant sends a reliable data message to one participant (mute
// and ping signals ride the provider's data channel).
func (c *RoomClient) NotifyParticipant(ctx context.Context, roomName, identity, event string, payload map[string]interface{}) error {
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = c.svc.SendData(ctx, &livekit.SendDataRequest{
		Room:                  roomName,
		Data:                  data,
		Kind:                  livekit.DataPacket_RELIABLE,
		DestinationIdentities: []string{identity},
	})
	if err != nil {
		return fmt.Errorf("send data: %w", err)
	}
	return nil
}
