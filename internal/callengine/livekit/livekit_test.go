package livekit

import (
	"testing"

	lkproto "github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

func TestRawReason(t *testing.T) {
	tests := []struct {
		in   lkproto.DisconnectReason
		want string
	}{
		{lkproto.DisconnectReason_CLIENT_INITIATED, callengine.ReasonEndedByLocalUser},
		{lkproto.DisconnectReason_USER_REJECTED, callengine.ReasonDeclinedByRemoteUser},
		{lkproto.DisconnectReason_PARTICIPANT_REMOVED, callengine.ReasonEndedByRemoteUser},
		{lkproto.DisconnectReason_ROOM_DELETED, callengine.ReasonEndedByLocus},
		{lkproto.DisconnectReason_SERVER_SHUTDOWN, "SERVER_SHUTDOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RawReason(tt.in), tt.in.String())
	}
}

func TestParticipantMapping(t *testing.T) {
	tr := NewTranslator("me@example.com")

	p := tr.Participant(&lkproto.ParticipantInfo{
		Sid:        "PA_1",
		Identity:   "bob",
		Name:       "Bob",
		State:      lkproto.ParticipantInfo_ACTIVE,
		Attributes: map[string]string{"email": "bob@example.com", "initiator": "true"},
		Tracks: []*lkproto.TrackInfo{
			{Type: lkproto.TrackType_AUDIO, Source: lkproto.TrackSource_MICROPHONE},
			{Type: lkproto.TrackType_VIDEO, Source: lkproto.TrackSource_CAMERA, Muted: true},
			{Type: lkproto.TrackType_VIDEO, Source: lkproto.TrackSource_SCREEN_SHARE},
		},
	})

	assert.Equal(t, "bob", p.PersonID)
	assert.Equal(t, "bob@example.com", p.Email)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Equal(t, callengine.StateJoined, p.State)
	assert.True(t, p.IsInitiator)
	assert.False(t, p.IsSelf)
	assert.True(t, p.SendingAudio)
	assert.False(t, p.SendingVideo)
	assert.True(t, p.SendingShare)
	require.Len(t, p.Devices, 1)
	assert.Equal(t, DeviceURL("bob", "PA_1"), p.Devices[0].URL)

	self := tr.Participant(&lkproto.ParticipantInfo{Identity: "me@example.com", State: lkproto.ParticipantInfo_JOINING})
	assert.True(t, self.IsSelf)
	assert.Equal(t, "me@example.com", self.Email)
	assert.Equal(t, callengine.StateNotified, self.State)

	anon := tr.Participant(&lkproto.ParticipantInfo{Identity: "ghost", State: lkproto.ParticipantInfo_DISCONNECTED})
	assert.Empty(t, anon.Email)
	assert.Equal(t, callengine.StateLeft, anon.State)
}

func TestParticipantsChangedFoldsDevices(t *testing.T) {
	tr := NewTranslator("me@example.com")

	n := tr.ParticipantsChanged("c1", true, []*lkproto.ParticipantInfo{
		{Sid: "PA_a", Identity: "me@example.com", State: lkproto.ParticipantInfo_JOINING},
		{Sid: "PA_b", Identity: "alice@example.com", State: lkproto.ParticipantInfo_ACTIVE},
		{Sid: "PA_c", Identity: "me@example.com", State: lkproto.ParticipantInfo_ACTIVE},
	})

	assert.Equal(t, callengine.NotifyParticipantsChanged, n.Kind)
	assert.Equal(t, callengine.CallID("c1"), n.CallID)
	assert.True(t, n.OneToOne)
	require.Len(t, n.Participants, 2)

	me := n.Participants[0]
	assert.Equal(t, callengine.StateJoined, me.State)
	require.Len(t, me.Devices, 2)
	assert.Equal(t, callengine.StateNotified, me.Devices[0].State)
	assert.Equal(t, callengine.StateJoined, me.Devices[1].State)
	assert.Equal(t, DeviceURL("me@example.com", "PA_c"), me.Devices[1].URL)
}

func TestParticipantsChangedKeepsGroupFlag(t *testing.T) {
	n := NewTranslator("me").ParticipantsChanged("g1", false, []*lkproto.ParticipantInfo{
		{Sid: "PA_a", Identity: "me", State: lkproto.ParticipantInfo_ACTIVE},
		{Sid: "PA_b", Identity: "bob", State: lkproto.ParticipantInfo_ACTIVE},
	})
	assert.False(t, n.OneToOne)
	assert.Len(t, n.Participants, 2)
}

func TestDisconnectedNotification(t *testing.T) {
	n := NewTranslator("").Disconnected("c1", lkproto.DisconnectReason_ROOM_DELETED)
	assert.Equal(t, callengine.NotifyCallDisconnected, n.Kind)
	assert.Equal(t, callengine.ReasonEndedByLocus, n.Reason)
}

func TestJoinInfo(t *testing.T) {
	issuer := NewTokenIssuer("devkey", "secret-secret-secret-secret-secret", "ws://localhost:7880")

	info, err := issuer.JoinInfo("c1", "alice@example.com", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, info.Token)
	assert.Equal(t, "wirecall-c1", info.RoomName)
	assert.Equal(t, "ws://localhost:7880", info.URL)
	assert.Equal(t, "alice@example.com", info.Identity)

	_, err = issuer.JoinInfo("", "alice", "")
	assert.Error(t, err)
	_, err = issuer.JoinInfo("c1", "", "")
	assert.Error(t, err)
}
