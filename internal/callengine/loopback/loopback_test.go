package loopback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

func receive(t *testing.T, e *Engine) callengine.Notification {
	t.Helper()
	select {
	case n := <-e.Notifications():
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
		return callengine.Notification{}
	}
}

func TestInjectPreservesOrder(t *testing.T) {
	e := New()
	defer e.Close()

	for _, kind := range []callengine.NotificationKind{
		callengine.NotifyCallIncoming,
		callengine.NotifyStartRing,
		callengine.NotifyCallConnected,
	} {
		e.Inject(callengine.Notification{Kind: kind, CallID: "c1"})
	}

	assert.Equal(t, callengine.NotifyCallIncoming, receive(t, e).Kind)
	assert.Equal(t, callengine.NotifyStartRing, receive(t, e).Kind)
	assert.Equal(t, callengine.NotifyCallConnected, receive(t, e).Kind)
	assert.Eventually(t, e.Idle, time.Second, time.Millisecond)
}

func TestAutoConfirm(t *testing.T) {
	ctx := context.Background()
	e := New(WithAutoConfirm())
	defer e.Close()

	require.NoError(t, e.Dial(ctx, "c1", "bob@example.com", *callengine.AudioOnly()))
	assert.Equal(t, callengine.NotifyCallStarted, receive(t, e).Kind)

	require.NoError(t, e.SubscribeAuxTrack(ctx, "c1"))
	opened := receive(t, e)
	assert.Equal(t, callengine.NotifyAuxTrackOpened, opened.Kind)
	assert.Equal(t, callengine.TrackID("aux-1"), opened.Track)

	require.NoError(t, e.MuteRemote(ctx, "c1", opened.Track, callengine.MediaVideo, true))
	done := receive(t, e)
	assert.Equal(t, callengine.NotifyMuteRemoteVideoDone, done.Kind)
	assert.True(t, done.Flag)

	assert.Equal(t, []string{CmdDial, CmdSubscribeAux, CmdMuteRemote}, commandNames(e.Commands()))
}

func TestWithoutAutoConfirmOnlyRecords(t *testing.T) {
	ctx := context.Background()
	e := New()
	defer e.Close()

	require.NoError(t, e.Dial(ctx, "c1", "bob@example.com", *callengine.AudioOnly()))
	require.NoError(t, e.SendDTMF(ctx, "c1", "12#"))

	select {
	case n := <-e.Notifications():
		t.Fatalf("unexpected notification %s", n.Kind)
	case <-time.After(20 * time.Millisecond):
	}
	dtmf := e.CommandsNamed(CmdSendDTMF)
	require.Len(t, dtmf, 1)
	assert.Equal(t, "12#", dtmf[0].Digits)
}

func TestFailOn(t *testing.T) {
	boom := errors.New("boom")
	e := New(WithDevice(callengine.DeviceInfo{DeviceURL: "loopback://devices/me", PersonID: "me"}))
	defer e.Close()

	e.FailOn(CmdEnd, boom)
	err := e.End(context.Background(), "c1")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, e.CommandsNamed(CmdEnd))

	info, err := e.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", info.PersonID)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	e := New()
	defer e.Close()

	e.SetParticipants("c1", []callengine.Participant{{PersonID: "a", Email: "a@example.com", State: callengine.StateJoined}})
	e.SetAuxTrackCount("c1", 3)

	ps, err := e.Participants(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	ps[0].PersonID = "changed"
	again, _ := e.Participants(ctx, "c1")
	assert.Equal(t, "a", again[0].PersonID)

	n, err := e.AuxTrackCount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func commandNames(cmds []Command) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}
