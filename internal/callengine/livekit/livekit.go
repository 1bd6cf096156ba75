// Package livekit translates LiveKit room state into the engine contract.
// Webhook events are verified by WebhookReceiver and folded by Roster into
// callengine notifications; TokenIssuer hands out room join credentials.
package livekit

import (
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// JoinInfo contains information needed to join a call's room.
type JoinInfo struct {
	URL      string `json:"url"`       // WebSocket URL (e.g., ws://localhost:7880)
	Token    string `json:"token"`     // JWT token for LiveKit
	RoomName string `json:"room_name"` // LiveKit room name
	Identity string `json:"identity"`  // User identity in the room
}

// TokenIssuer creates LiveKit access tokens for calls.
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// NewTokenIssuer creates a new TokenIssuer.
func NewTokenIssuer(apiKey, apiSecret, wsURL string) *TokenIssuer {
	return &TokenIssuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       time.Hour,
	}
}

// RoomName returns the LiveKit room a call maps to.
func RoomName(id callengine.CallID) string {
	return roomPrefix + string(id)
}

// JoinInfo creates join credentials for identity to join the call's room.
func (t *TokenIssuer) JoinInfo(id callengine.CallID, identity, name string) (*JoinInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("call has no id")
	}
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	room := RoomName(id)

	at := auth.NewAccessToken(t.apiKey, t.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(t.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &JoinInfo{
		URL:      t.wsURL,
		Token:    token,
		RoomName: room,
		Identity: identity,
	}, nil
}

// Translator maps LiveKit participants to engine participant records.
type Translator struct {
	selfIdentity string
}

// NewTranslator creates a Translator for the local participant identity.
func NewTranslator(selfIdentity string) *Translator {
	return &Translator{selfIdentity: selfIdentity}
}

// DeviceURL is the device url a LiveKit connection is reported under.
func DeviceURL(identity, sid string) string {
	return "livekit://" + identity + "/" + sid
}

// Participant converts one ParticipantInfo.
func (t *Translator) Participant(info *lkproto.ParticipantInfo) callengine.Participant {
	state := participantState(info.GetState())
	p := callengine.Participant{
		PersonID:    info.GetIdentity(),
		Email:       emailOf(info),
		DisplayName: info.GetName(),
		IsSelf:      info.GetIdentity() == t.selfIdentity,
		IsInitiator: info.GetAttributes()["initiator"] == "true",
		State:       state,
		Devices: []callengine.Device{{
			Type:  info.GetKind().String(),
			State: state,
			URL:   DeviceURL(info.GetIdentity(), info.GetSid()),
		}},
	}
	for _, track := range info.GetTracks() {
		if track.GetMuted() {
			continue
		}
		switch {
		case track.GetSource() == lkproto.TrackSource_SCREEN_SHARE:
			p.SendingShare = true
		case track.GetType() == lkproto.TrackType_AUDIO && track.GetSource() != lkproto.TrackSource_SCREEN_SHARE_AUDIO:
			p.SendingAudio = true
		case track.GetType() == lkproto.TrackType_VIDEO:
			p.SendingVideo = true
		}
	}
	return p
}

// ParticipantsChanged builds a participants notification for a whole room snapshot.
// Connections of the same identity are folded into one participant with several devices.
// oneToOne comes from the room, never from the current head count.
func (t *Translator) ParticipantsChanged(id callengine.CallID, oneToOne bool, infos []*lkproto.ParticipantInfo) callengine.Notification {
	byIdentity := make(map[string]int, len(infos))
	participants := make([]callengine.Participant, 0, len(infos))
	for _, info := range infos {
		p := t.Participant(info)
		if idx, ok := byIdentity[p.PersonID]; ok {
			merged := &participants[idx]
			merged.Devices = append(merged.Devices, p.Devices...)
			if p.State == callengine.StateJoined {
				merged.State = callengine.StateJoined
			}
			merged.SendingAudio = merged.SendingAudio || p.SendingAudio
			merged.SendingVideo = merged.SendingVideo || p.SendingVideo
			merged.SendingShare = merged.SendingShare || p.SendingShare
			continue
		}
		byIdentity[p.PersonID] = len(participants)
		participants = append(participants, p)
	}
	return callengine.Notification{
		Kind:         callengine.NotifyParticipantsChanged,
		CallID:       id,
		OneToOne:     oneToOne,
		Participants: participants,
	}
}

// Disconnected converts a LiveKit disconnect into a call-disconnected notification.
func (t *Translator) Disconnected(id callengine.CallID, reason lkproto.DisconnectReason) callengine.Notification {
	return callengine.Notification{
		Kind:   callengine.NotifyCallDisconnected,
		CallID: id,
		Reason: RawReason(reason),
	}
}

// RawReason maps a LiveKit disconnect reason to the engine's raw reason vocabulary.
// Unmapped reasons keep their LiveKit name and end up classified as errors.
func RawReason(reason lkproto.DisconnectReason) string {
	switch reason {
	case lkproto.DisconnectReason_CLIENT_INITIATED:
		return callengine.ReasonEndedByLocalUser
	case lkproto.DisconnectReason_USER_REJECTED:
		return callengine.ReasonDeclinedByRemoteUser
	case lkproto.DisconnectReason_PARTICIPANT_REMOVED:
		return callengine.ReasonEndedByRemoteUser
	case lkproto.DisconnectReason_ROOM_DELETED:
		return callengine.ReasonEndedByLocus
	default:
		return reason.String()
	}
}

func participantState(state lkproto.ParticipantInfo_State) string {
	switch state {
	case lkproto.ParticipantInfo_JOINING:
		return callengine.StateNotified
	case lkproto.ParticipantInfo_JOINED, lkproto.ParticipantInfo_ACTIVE:
		return callengine.StateJoined
	case lkproto.ParticipantInfo_DISCONNECTED:
		return callengine.StateLeft
	default:
		return callengine.StateIdle
	}
}

func emailOf(info *lkproto.ParticipantInfo) string {
	if email := info.GetAttributes()["email"]; email != "" {
		return email
	}
	if strings.Contains(info.GetIdentity(), "@") {
		return info.GetIdentity()
	}
	return ""
}
