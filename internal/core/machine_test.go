package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// connectedCall dials bob and drives the call to Connected.
func connectedCall(t *testing.T, m *machine) *Call {
	t.Helper()
	var fx effects
	_, err := m.dial("bob@example.com", callengine.AudioOnly(), &fx)
	require.NoError(t, err)
	c := m.active()
	m.handle(snapshot(c.ID, true, participant("bob", joined)))
	m.handle(callengine.Notification{Kind: callengine.NotifyCallConnected, CallID: c.ID})
	require.Equal(t, StatusConnected, c.Status)
	return c
}

func TestDialValidation(t *testing.T) {
	m := newTestMachine()

	var fx effects
	_, err := m.dial("abc", nil, &fx)
	assert.True(t, errors.Is(err, ErrIllegalOperation))
	assert.Empty(t, fx.commands)
	assert.Nil(t, m.active())

	_, err = m.dial("  ", callengine.AudioOnly(), &fx)
	assert.True(t, errors.Is(err, ErrIllegalOperation))
	assert.Empty(t, fx.commands)

	m.deregister()
	_, err = m.dial("abc", callengine.AudioOnly(), &fx)
	assert.True(t, errors.Is(err, ErrUnregistered))
	assert.Empty(t, fx.commands)
}

func TestSecondDialWhileInUse(t *testing.T) {
	m := newTestMachine()

	var fx effects
	first, err := m.dial("bob@example.com", callengine.AudioOnly(), &fx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dial"}, commandNames(fx))
	assert.Equal(t, DirectionOutgoing, first.Direction)
	assert.Equal(t, StatusInitiated, first.Status)

	var fx2 effects
	_, err = m.dial("carol@example.com", callengine.AudioOnly(), &fx2)
	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, ErrCodeIllegalOperation, callErr.Code)
	require.NotNil(t, callErr.Call)
	assert.Equal(t, first.ID, callErr.Call.ID)
	assert.Empty(t, fx2.commands)
}

func TestStatusTransitions(t *testing.T) {
	m := newTestMachine()
	var fx effects
	_, err := m.dial("bob@example.com", callengine.AudioOnly(), &fx)
	require.NoError(t, err)
	c := m.active()

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyStartRing, CallID: c.ID})
	assert.Equal(t, []EventKind{EventRinging}, eventKinds(fx))
	fx = m.handle(callengine.Notification{Kind: callengine.NotifyStartRing, CallID: c.ID})
	assert.Empty(t, fx.events)

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyCallConnected, CallID: c.ID})
	assert.Equal(t, StatusRinging, c.Status)
	assert.Empty(t, fx.events)

	m.handle(snapshot(c.ID, true, participant("bob", joined)))
	assert.Equal(t, StatusConnected, c.Status)

	// Status never regresses.
	fx = m.handle(callengine.Notification{Kind: callengine.NotifyStartRing, CallID: c.ID})
	assert.Empty(t, fx.events)
	assert.Equal(t, StatusConnected, c.Status)
}

func TestFirstTerminationWins(t *testing.T) {
	m := newTestMachine()
	c := connectedCall(t, m)

	fx := m.handle(callengine.Notification{Kind: callengine.NotifyCallDisconnected, CallID: c.ID, Reason: callengine.ReasonEndedByRemoteUser})
	require.Equal(t, []EventKind{EventDisconnected}, eventKinds(fx))
	assert.Equal(t, DisconnectReason{Kind: DisconnectRemoteLeft}, fx.events[0].Reason)
	require.NotNil(t, fx.events[0].Call.ReleaseReason)
	assert.Nil(t, m.active())

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyCallTerminated, CallID: c.ID})
	assert.Empty(t, fx.events)
}

func TestCallTerminatedDefaults(t *testing.T) {
	t.Run("outgoing connected", func(t *testing.T) {
		m := newTestMachine()
		c := connectedCall(t, m)
		fx := m.handle(callengine.Notification{Kind: callengine.NotifyCallTerminated, CallID: c.ID})
		assert.Equal(t, DisconnectRemoteLeft, fx.events[0].Reason.Kind)
	})

	t.Run("local hangup", func(t *testing.T) {
		m := newTestMachine()
		c := connectedCall(t, m)
		var fx effects
		_, err := m.hangup(&fx)
		require.NoError(t, err)
		assert.Equal(t, []string{"end"}, commandNames(fx))
		fx = m.handle(callengine.Notification{Kind: callengine.NotifyCallTerminated, CallID: c.ID})
		assert.Equal(t, DisconnectLocalLeft, fx.events[0].Reason.Kind)
	})

	t.Run("incoming cancelled by caller", func(t *testing.T) {
		m := newTestMachine()
		c := incomingCall(m, "in", true)
		m.handle(callengine.Notification{Kind: callengine.NotifyStartRing, CallID: c.ID})
		fx := m.handle(callengine.Notification{Kind: callengine.NotifyCallTerminated, CallID: c.ID})
		assert.Equal(t, DisconnectRemoteCancel, fx.events[0].Reason.Kind)
	})

	t.Run("incoming rejected", func(t *testing.T) {
		m := newTestMachine()
		c := incomingCall(m, "in", true)
		var fx effects
		_, err := m.reject(&fx)
		require.NoError(t, err)
		assert.Equal(t, []string{"decline"}, commandNames(fx))
		fx = m.handle(callengine.Notification{Kind: callengine.NotifyCallTerminated, CallID: c.ID})
		assert.Equal(t, DisconnectLocalDecline, fx.events[0].Reason.Kind)
	})
}

func TestCommandStatusGuards(t *testing.T) {
	m := newTestMachine()
	var fx effects

	_, err := m.answer(callengine.AudioOnly(), &fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))
	_, err = m.reject(&fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))
	_, err = m.hangup(&fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))

	// Outgoing calls cannot be answered or rejected.
	_, err = m.dial("bob@example.com", callengine.AudioOnly(), &fx)
	require.NoError(t, err)
	fx = effects{}
	_, err = m.answer(callengine.AudioOnly(), &fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))
	_, err = m.reject(&fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))
	assert.Empty(t, fx.commands)

	// An incoming call can only be hung up once connected.
	m = newTestMachine()
	incomingCall(m, "in", true)
	_, err = m.hangup(&fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))
	_, err = m.answer(nil, &fx)
	assert.True(t, errors.Is(err, ErrIllegalOperation))
	assert.Empty(t, fx.commands)
}

func TestIncomingWhileBusyDeclines(t *testing.T) {
	m := newTestMachine()
	c := connectedCall(t, m)

	fx := m.handle(callengine.Notification{Kind: callengine.NotifyCallIncoming, CallID: "other"})
	assert.Equal(t, []string{"decline"}, commandNames(fx))
	assert.Empty(t, fx.events)
	assert.Equal(t, c.ID, m.active().ID)

	// A repeated notification for the active call is ignored.
	fx = m.handle(callengine.Notification{Kind: callengine.NotifyCallIncoming, CallID: c.ID})
	assert.Empty(t, fx.commands)
}

func TestIncomingCarriesParticipants(t *testing.T) {
	m := newTestMachine()
	fx := m.handle(callengine.Notification{
		Kind:         callengine.NotifyCallIncoming,
		CallID:       "in",
		OneToOne:     true,
		Participants: []callengine.Participant{participant("alice", joined), self(notified)},
	})
	require.NotEmpty(t, fx.events)
	assert.Equal(t, EventIncomingCall, fx.events[0].Kind)
	assert.Equal(t, []MembershipEventKind{MembershipJoined}, membershipKinds(fx))
	assert.Equal(t, 1, m.calls["in"].JoinedCount)
}

func TestHangupParkedDialCancels(t *testing.T) {
	m := newTestMachine()
	var fx effects
	_, err := m.dial("bob@example.com", callengine.AudioVideo("local", "remote"), &fx)
	require.NoError(t, err)
	assert.Empty(t, fx.commands)
	assert.Equal(t, []EventKind{EventVideoActivationRequested}, eventKinds(fx))

	fx = effects{}
	_, err = m.hangup(&fx)
	require.NoError(t, err)
	assert.Empty(t, fx.commands)
	require.Equal(t, []EventKind{EventDisconnected}, eventKinds(fx))
	assert.Equal(t, DisconnectLocalCancel, fx.events[0].Reason.Kind)
	assert.Nil(t, m.active())
}

func TestLicenseGate(t *testing.T) {
	t.Run("accept resumes dial", func(t *testing.T) {
		m := newTestMachine()
		var fx effects
		c, err := m.dial("bob@example.com", callengine.AudioVideo("local", "remote"), &fx)
		require.NoError(t, err)
		assert.Equal(t, PendingDial, c.Pending.Kind)
		assert.Empty(t, fx.commands)

		// Only one parked action per call.
		_, err = m.dial("carol@example.com", callengine.AudioVideo("l", "r"), &fx)
		assert.True(t, errors.Is(err, ErrIllegalOperation))

		fx = effects{}
		c, err = m.resolveActivation(true, &fx)
		require.NoError(t, err)
		assert.Equal(t, []string{"dial"}, commandNames(fx))
		assert.True(t, c.Pending.IsNone())
		assert.True(t, m.license.activated)

		_, err = m.resolveActivation(true, &fx)
		assert.True(t, errors.Is(err, ErrIllegalStatus))
	})

	t.Run("decline discards dial", func(t *testing.T) {
		m := newTestMachine()
		var fx effects
		_, err := m.dial("bob@example.com", callengine.AudioVideo("local", "remote"), &fx)
		require.NoError(t, err)

		fx = effects{}
		_, err = m.resolveActivation(false, &fx)
		require.NoError(t, err)
		assert.Empty(t, fx.commands)
		require.Equal(t, []EventKind{EventVideoActivationDeclined}, eventKinds(fx))
		assert.True(t, errors.Is(fx.events[0].Error, ErrRequireVideoCapability))
		assert.NotNil(t, fx.events[0].Error.Call)
		assert.Nil(t, m.active())
		assert.False(t, m.license.activated)
	})

	t.Run("decline parked answer declines at engine", func(t *testing.T) {
		m := newTestMachine()
		incomingCall(m, "in", true)
		var fx effects
		_, err := m.answer(callengine.AudioVideo("local", "remote"), &fx)
		require.NoError(t, err)
		assert.Empty(t, fx.commands)

		// A second answer while parked is refused.
		_, err = m.answer(callengine.AudioOnly(), &fx)
		assert.True(t, errors.Is(err, ErrIllegalStatus))

		fx = effects{}
		_, err = m.resolveActivation(false, &fx)
		require.NoError(t, err)
		assert.Equal(t, []string{"decline"}, commandNames(fx))
		assert.Nil(t, m.active())
	})

	t.Run("activated license skips the gate", func(t *testing.T) {
		m := newTestMachine()
		m.license.activated = true
		var fx effects
		_, err := m.dial("bob@example.com", callengine.AudioVideo("local", "remote"), &fx)
		require.NoError(t, err)
		assert.Equal(t, []string{"dial"}, commandNames(fx))
		assert.Empty(t, fx.events)
	})
}

func TestSendDTMF(t *testing.T) {
	m := newTestMachine()
	var fx effects

	_, err := m.sendDTMF("1", &fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))

	c := connectedCall(t, m)
	_, err = m.sendDTMF("1", &fx)
	assert.True(t, errors.Is(err, ErrUnsupportedDTMF))

	m.handle(callengine.Notification{Kind: callengine.NotifyDTMFCapabilityChanged, CallID: c.ID, Flag: true})
	for _, bad := range []string{"", "12x", "9 9"} {
		_, err = m.sendDTMF(bad, &fx)
		assert.True(t, errors.Is(err, ErrInvalidDTMF), "digits %q", bad)
	}
	assert.Empty(t, fx.commands)

	_, err = m.sendDTMF("123*#ABCd,", &fx)
	require.NoError(t, err)
	assert.Equal(t, []string{"send_dtmf"}, commandNames(fx))
}

func TestMediaConfirmations(t *testing.T) {
	m := newTestMachine()
	c := connectedCall(t, m)

	var fx effects
	_, err := m.setMedia(toggleSendingVideo, false, &fx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mute_local_video"}, commandNames(fx))
	assert.Empty(t, fx.events)

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyMuteLocalAudioDone, CallID: c.ID, Flag: false})
	assert.True(t, c.Local.SendingAudio)
	assert.Equal(t, MediaSendingAudio, fx.events[0].Media.Kind)

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyMuteRemoteShareDone, CallID: c.ID, Track: callengine.TrackRemoteShare, Flag: false})
	assert.True(t, c.Local.ReceivingShare)
	assert.Equal(t, MediaReceivingShare, fx.events[0].Media.Kind)

	m.handle(callengine.Notification{Kind: callengine.NotifyRemoteVideoReady, CallID: c.ID, Track: callengine.TrackRemoteVideo})
	m.handle(callengine.Notification{Kind: callengine.NotifyRemoteVideoReady, CallID: c.ID, Track: callengine.TrackRemoteShare})
	m.handle(callengine.Notification{Kind: callengine.NotifyAudioMutedStateChanged, CallID: c.ID, Track: callengine.TrackRemoteVideo, Flag: false})
	assert.Equal(t, MediaFlags{SendingVideo: true, SendingAudio: true, SendingShare: true}, c.Remote)

	fx = m.handle(callengine.Notification{Kind: callengine.NotifyRemoteVideoStop, CallID: c.ID, Track: callengine.TrackRemoteVideo})
	assert.False(t, c.Remote.SendingVideo)
	assert.Equal(t, MediaRemoteSendingVideo, fx.events[0].Media.Kind)
	assert.False(t, fx.events[0].Media.On)
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := newTestMachine()
	c := incomingCall(m, "in", false)
	m.handle(snapshot(c.ID, false, participant("a", joined, callengine.Device{URL: "u", State: joined})))

	snap := c.Snapshot()
	snap.Memberships[0].Devices[0].URL = "changed"
	snap.Memberships[0].State = MemberLeft
	assert.Equal(t, "u", c.Memberships[0].Devices[0].URL)
	assert.Equal(t, MemberJoined, c.Memberships[0].State)
}

func TestUpdateMediaOption(t *testing.T) {
	m := newTestMachine()
	var fx effects

	_, err := m.updateMediaOption(callengine.AudioOnly(), &fx)
	assert.True(t, errors.Is(err, ErrIllegalStatus))

	c := connectedCall(t, m)
	_, err = m.updateMediaOption(nil, &fx)
	assert.True(t, errors.Is(err, ErrIllegalOperation))

	_, err = m.updateMediaOption(callengine.AudioVideo("", ""), &fx)
	assert.True(t, errors.Is(err, ErrRequireVideoCapability))
	assert.Empty(t, fx.commands)
	assert.True(t, c.Pending.IsNone())

	m.license.activated = true
	snap, err := m.updateMediaOption(callengine.AudioVideo("local", "remote"), &fx)
	require.NoError(t, err)
	assert.Equal(t, []string{"set_media_option"}, commandNames(fx))
	assert.True(t, snap.Media.Video)
	assert.Equal(t, callengine.ViewHandle("remote"), c.Media.RemoteView)
}
