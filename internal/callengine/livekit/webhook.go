package livekit

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	lkproto "github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// Webhook event names sent by LiveKit.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

const roomPrefix = "wirecall-"

// maxWebhookBody caps the webhook payload read from a request.
const maxWebhookBody = 1 << 20

// Webhook verification errors.
var (
	ErrMissingAuth    = errors.New("missing webhook authorization")
	ErrInvalidAuth    = errors.New("invalid webhook authorization")
	ErrBodyMismatch   = errors.New("webhook body does not match signed hash")
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// CallIDFromRoom returns the call a room was named after by RoomName.
func CallIDFromRoom(room string) (callengine.CallID, bool) {
	id, ok := strings.CutPrefix(room, roomPrefix)
	if !ok || id == "" {
		return "", false
	}
	return callengine.CallID(id), true
}

// RoomMetadata is the JSON a room's metadata carries for calls.
type RoomMetadata struct {
	OneToOne bool `json:"one_to_one"`
}

// OneToOne decides whether a room hosts a one-to-one call. Metadata wins;
// rooms without it are one-to-one when capped at two participants.
func OneToOne(room *lkproto.Room) bool {
	if meta := room.GetMetadata(); meta != "" {
		var md RoomMetadata
		if err := json.Unmarshal([]byte(meta), &md); err == nil {
			return md.OneToOne
		}
	}
	return room.GetMaxParticipants() == 2
}

type webhookClaims struct {
	Sha256 string `json:"sha256"`
	jwt.RegisteredClaims
}

// WebhookReceiver authenticates LiveKit webhook requests. LiveKit signs the
// body hash into an HS256 token issued by the API key.
type WebhookReceiver struct {
	apiKey    string
	apiSecret []byte
}

// NewWebhookReceiver creates a receiver for the given API credentials.
func NewWebhookReceiver(apiKey, apiSecret string) *WebhookReceiver {
	return &WebhookReceiver{apiKey: apiKey, apiSecret: []byte(apiSecret)}
}

// Receive verifies r and decodes its webhook event.
func (w *WebhookReceiver) Receive(r *http.Request) (*lkproto.WebhookEvent, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if raw == "" {
		return nil, ErrMissingAuth
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook body: %w", err)
	}

	claims := &webhookClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return w.apiSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(w.apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuth, err)
	}

	sum := sha256.Sum256(body)
	if claims.Sha256 != base64.StdEncoding.EncodeToString(sum[:]) {
		return nil, ErrBodyMismatch
	}

	ev := &lkproto.WebhookEvent{}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ev, nil
}

// roomState is what the roster remembers of one call's room.
type roomState struct {
	oneToOne     bool
	participants []*lkproto.ParticipantInfo
}

// Roster folds webhook events into whole-room participant snapshots. The
// one-to-one flag is fixed the first time a room is seen.
type Roster struct {
	translator *Translator

	mu    sync.Mutex
	rooms map[string]*roomState
}

// NewRoster creates a roster reporting selfIdentity as the local participant.
func NewRoster(selfIdentity string) *Roster {
	return &Roster{
		translator: NewTranslator(selfIdentity),
		rooms:      make(map[string]*roomState),
	}
}

// Apply returns the engine notifications one webhook event produces. Events
// for rooms not named after a call are ignored.
func (r *Roster) Apply(ev *lkproto.WebhookEvent) []callengine.Notification {
	room := ev.GetRoom()
	id, ok := CallIDFromRoom(room.GetName())
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.GetEvent() {
	case EventRoomStarted:
		r.room(room)
		return nil

	case EventRoomFinished:
		delete(r.rooms, room.GetName())
		return []callengine.Notification{r.translator.Disconnected(id, lkproto.DisconnectReason_ROOM_DELETED)}

	case EventParticipantJoined, EventParticipantLeft:
		info := ev.GetParticipant()
		if info == nil {
			return nil
		}
		st := r.room(room)
		if ev.GetEvent() == EventParticipantLeft {
			info.State = lkproto.ParticipantInfo_DISCONNECTED
		}
		st.upsert(info)

		out := []callengine.Notification{r.translator.ParticipantsChanged(id, st.oneToOne, st.participants)}
		if ev.GetEvent() == EventParticipantLeft && info.GetIdentity() == r.translator.selfIdentity {
			delete(r.rooms, room.GetName())
			out = append(out, r.translator.Disconnected(id, info.GetDisconnectReason()))
		}
		return out
	}
	return nil
}

// Rooms returns how many call rooms are tracked.
func (r *Roster) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// room returns the state of room, creating it on first sight. Callers hold r.mu.
func (r *Roster) room(room *lkproto.Room) *roomState {
	if st, ok := r.rooms[room.GetName()]; ok {
		return st
	}
	st := &roomState{oneToOne: OneToOne(room)}
	r.rooms[room.GetName()] = st
	return st
}

// upsert replaces the connection with the same sid or appends it.
func (s *roomState) upsert(info *lkproto.ParticipantInfo) {
	for i, p := range s.participants {
		if p.GetSid() == info.GetSid() {
			s.participants[i] = info
			return
		}
	}
	s.participants = append(s.participants, info)
}
