package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// engineCommand is one fire-and-forget engine command. A command that
// queries the engine may return a notification to feed back into the loop.
type engineCommand struct {
	name string
	call callengine.CallID
	run  func(ctx context.Context, e callengine.Engine) (*callengine.Notification, error)
}

// effects is what one step of the machine produced: application events in
// order and engine commands to issue.
type effects struct {
	events   []*Event
	commands []engineCommand
}

func (fx *effects) emit(ev *Event) {
	fx.events = append(fx.events, ev)
}

func (fx *effects) issue(name string, id callengine.CallID, run func(ctx context.Context, e callengine.Engine) error) {
	fx.commands = append(fx.commands, engineCommand{
		name: name,
		call: id,
		run: func(ctx context.Context, e callengine.Engine) (*callengine.Notification, error) {
			return nil, run(ctx, e)
		},
	})
}

func (fx *effects) query(name string, id callengine.CallID, run func(ctx context.Context, e callengine.Engine) (*callengine.Notification, error)) {
	fx.commands = append(fx.commands, engineCommand{name: name, call: id, run: run})
}

// machine is the call state machine. It is owned by the Phone loop and never
// touched concurrently; every step returns its effects instead of performing them.
type machine struct {
	log        *zerolog.Logger
	calls      map[callengine.CallID]*Call
	device     callengine.DeviceInfo
	registered bool
	license    licenseGate
	now        func() time.Time
	newID      func() callengine.CallID
}

func newMachine(logger *zerolog.Logger) *machine {
	return &machine{
		log:   logger,
		calls: make(map[callengine.CallID]*Call),
		now:   time.Now,
		newID: func() callengine.CallID { return callengine.CallID(uuid.NewString()) },
	}
}

// active returns the call in use, if any. The registry never holds more than one.
func (m *machine) active() *Call {
	for _, c := range m.calls {
		return c
	}
	return nil
}

// discard drops the call from the registry; later notifications for its id are ignored.
func (m *machine) discard(c *Call) {
	delete(m.calls, c.ID)
}

// terminate assigns the release reason once, reports it and discards the call.
func (m *machine) terminate(c *Call, reason DisconnectReason, fx *effects) {
	if c.ReleaseReason != nil {
		return
	}
	c.ReleaseReason = &reason
	c.Status = StatusDisconnected
	c.EndedAt = m.now()
	m.log.Info().
		Str("call_id", string(c.ID)).
		Str("reason", reason.String()).
		Msg("call disconnected")
	fx.emit(&Event{Kind: EventDisconnected, Call: c.Snapshot(), Reason: reason})
	m.discard(c)
}

// tryConnect moves the call to Connected once signaling and media are both up.
func (m *machine) tryConnect(c *Call, fx *effects) {
	if c.Status >= StatusConnected || !c.SignalingConnected || !c.MediaConnected {
		return
	}
	c.Status = StatusConnected
	c.ConnectedAt = m.now()
	m.log.Info().Str("call_id", string(c.ID)).Msg("call connected")
	fx.emit(&Event{Kind: EventConnected, Call: c.Snapshot()})

	id := c.ID
	fx.query("aux_track_count", id, func(ctx context.Context, e callengine.Engine) (*callengine.Notification, error) {
		n, err := e.AuxTrackCount(ctx, id)
		if err != nil {
			return nil, err
		}
		return &callengine.Notification{Kind: callengine.NotifyRemoteVideoCountChanged, CallID: id, Count: n}, nil
	})
}

func (m *machine) mediaEvent(c *Call, ev MediaEvent, fx *effects) {
	fx.emit(&Event{Kind: EventMediaChanged, Call: c.Snapshot(), Media: &ev})
}

// register records the device identity the engine handed out.
func (m *machine) register(info callengine.DeviceInfo) {
	m.device = info
	m.registered = true
}

func (m *machine) deregister() {
	m.registered = false
}

func (m *machine) dial(address string, media *callengine.MediaOption, fx *effects) (*Call, error) {
	if c := m.active(); c != nil {
		return nil, callError(ErrCodeIllegalOperation, "a call is already in use", c)
	}
	if strings.TrimSpace(address) == "" {
		return nil, callError(ErrCodeIllegalOperation, "address is empty", nil)
	}
	if media == nil {
		return nil, callError(ErrCodeIllegalOperation, "media option is nil", nil)
	}
	if !m.registered {
		return nil, callError(ErrCodeUnregistered, "phone is not registered", nil)
	}

	c := newCall(m.newID(), DirectionOutgoing, address, m.now())
	c.Media = *media
	m.calls[c.ID] = c
	m.log.Info().
		Str("call_id", string(c.ID)).
		Str("address", address).
		Bool("video", media.HasVideo()).
		Msg("dial")

	if !m.license.admit(*media) {
		m.park(c, DialWith(address, *media), fx)
		return c.Snapshot(), nil
	}
	m.issueDial(c, address, *media, fx)
	return c.Snapshot(), nil
}

func (m *machine) issueDial(c *Call, address string, media callengine.MediaOption, fx *effects) {
	c.Media = media
	id := c.ID
	fx.issue("dial", id, func(ctx context.Context, e callengine.Engine) error {
		return e.Dial(ctx, id, address, media)
	})
}

func (m *machine) answer(media *callengine.MediaOption, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil {
		return nil, callError(ErrCodeIllegalStatus, "no call to answer", nil)
	}
	if media == nil {
		return nil, callError(ErrCodeIllegalOperation, "media option is nil", c)
	}
	if c.Direction != DirectionIncoming || c.Status >= StatusConnected || !c.Pending.IsNone() {
		return nil, callError(ErrCodeIllegalStatus, "call cannot be answered in status "+c.Status.String(), c)
	}
	if !m.license.admit(*media) {
		m.park(c, AnswerWith(*media), fx)
		return c.Snapshot(), nil
	}
	m.issueJoin(c, *media, fx)
	return c.Snapshot(), nil
}

func (m *machine) issueJoin(c *Call, media callengine.MediaOption, fx *effects) {
	c.Media = media
	id := c.ID
	m.log.Info().Str("call_id", string(id)).Bool("video", media.HasVideo()).Msg("answer")
	fx.issue("join", id, func(ctx context.Context, e callengine.Engine) error {
		return e.Join(ctx, id, media)
	})
}

func (m *machine) reject(fx *effects) (*Call, error) {
	c := m.active()
	if c == nil || c.Direction != DirectionIncoming || c.Status >= StatusConnected {
		return nil, callError(ErrCodeIllegalStatus, "no incoming call to reject", c)
	}
	c.localEnded = true
	c.Pending = PendingAction{}
	id := c.ID
	m.log.Info().Str("call_id", string(id)).Msg("reject")
	fx.issue("decline", id, func(ctx context.Context, e callengine.Engine) error {
		return e.Decline(ctx, id)
	})
	return c.Snapshot(), nil
}

func (m *machine) hangup(fx *effects) (*Call, error) {
	c := m.active()
	if c == nil {
		return nil, callError(ErrCodeIllegalStatus, "no call to hang up", nil)
	}
	outgoing := c.Direction == DirectionOutgoing && c.Status < StatusDisconnected
	incoming := c.Direction == DirectionIncoming && c.Status == StatusConnected
	if !outgoing && !incoming {
		return nil, callError(ErrCodeIllegalStatus, "call cannot be hung up in status "+c.Status.String(), c)
	}
	c.localEnded = true
	m.log.Info().Str("call_id", string(c.ID)).Msg("hangup")

	if c.Pending.Kind == PendingDial {
		// The dial never reached the engine.
		c.Pending = PendingAction{}
		m.terminate(c, DisconnectReason{Kind: DisconnectLocalCancel}, fx)
		return c.Snapshot(), nil
	}
	id := c.ID
	fx.issue("end", id, func(ctx context.Context, e callengine.Engine) error {
		return e.End(ctx, id)
	})
	return c.Snapshot(), nil
}

const dtmfDigits = "0123456789*#ABCDabcd,"

// ValidDTMF reports whether digits is a non-empty DTMF sequence.
func ValidDTMF(digits string) bool {
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if !strings.ContainsRune(dtmfDigits, r) {
			return false
		}
	}
	return true
}

func (m *machine) sendDTMF(digits string, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil || c.Status != StatusConnected {
		return nil, callError(ErrCodeIllegalStatus, "dtmf requires a connected call", c)
	}
	if !c.DTMFSupported {
		return nil, callError(ErrCodeUnsupportedDTMF, "dtmf is not supported on this call", c)
	}
	if !ValidDTMF(digits) {
		return nil, callError(ErrCodeInvalidDTMF, "invalid dtmf digits "+digits, c)
	}
	id := c.ID
	fx.issue("send_dtmf", id, func(ctx context.Context, e callengine.Engine) error {
		return e.SendDTMF(ctx, id, digits)
	})
	return c.Snapshot(), nil
}

// updateMediaOption renegotiates the media of the active call. Video is not
// parked here: a call already in progress needs the license up front.
func (m *machine) updateMediaOption(media *callengine.MediaOption, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil || c.Status >= StatusDisconnected {
		return nil, callError(ErrCodeIllegalStatus, "no call in use", nil)
	}
	if !c.Pending.IsNone() {
		return nil, callError(ErrCodeIllegalStatus, "video activation pending", c)
	}
	if media == nil {
		return nil, callError(ErrCodeIllegalOperation, "media option is required", c)
	}
	if !m.license.admit(*media) {
		return nil, callError(ErrCodeRequireVideoCapability, "video capability is not activated", c)
	}
	c.Media = *media
	id, opt := c.ID, *media
	fx.issue("set_media_option", id, func(ctx context.Context, e callengine.Engine) error {
		return e.SetMediaOption(ctx, id, opt)
	})
	return c.Snapshot(), nil
}

// mediaToggle identifies one local media switch.
type mediaToggle int

const (
	toggleSendingAudio mediaToggle = iota
	toggleSendingVideo
	toggleReceivingAudio
	toggleReceivingVideo
	toggleReceivingShare
)

func (m *machine) setMedia(toggle mediaToggle, on bool, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil {
		return nil, callError(ErrCodeIllegalStatus, "no call in use", nil)
	}
	id := c.ID
	muted := !on
	switch toggle {
	case toggleSendingAudio:
		fx.issue("mute_local_audio", id, func(ctx context.Context, e callengine.Engine) error {
			return e.MuteLocalAudio(ctx, id, muted)
		})
	case toggleSendingVideo:
		fx.issue("mute_local_video", id, func(ctx context.Context, e callengine.Engine) error {
			return e.MuteLocalVideo(ctx, id, muted)
		})
	case toggleReceivingAudio:
		fx.issue("mute_remote_audio", id, func(ctx context.Context, e callengine.Engine) error {
			return e.MuteRemote(ctx, id, callengine.TrackRemoteVideo, callengine.MediaAudio, muted)
		})
	case toggleReceivingVideo:
		fx.issue("mute_remote_video", id, func(ctx context.Context, e callengine.Engine) error {
			return e.MuteRemote(ctx, id, callengine.TrackRemoteVideo, callengine.MediaVideo, muted)
		})
	case toggleReceivingShare:
		fx.issue("mute_remote_share", id, func(ctx context.Context, e callengine.Engine) error {
			return e.MuteRemote(ctx, id, callengine.TrackRemoteShare, callengine.MediaShare, muted)
		})
	}
	return c.Snapshot(), nil
}

func (m *machine) subscribeAux(view callengine.ViewHandle, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil || c.Status >= StatusDisconnected {
		return nil, callError(ErrCodeIllegalStatus, "no call in use", nil)
	}
	m.openAux(c, view, fx)
	return c.Snapshot(), nil
}

func (m *machine) unsubscribeAux(view callengine.ViewHandle, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil {
		return nil, callError(ErrCodeIllegalStatus, "no call in use", nil)
	}
	m.closeAux(c, view, fx)
	return c.Snapshot(), nil
}

// handle applies one engine notification.
func (m *machine) handle(n callengine.Notification) effects {
	var fx effects

	if n.Kind == callengine.NotifyCallIncoming {
		m.incoming(n, &fx)
		return fx
	}

	c := m.calls[n.CallID]
	if c == nil {
		m.log.Debug().
			Str("call_id", string(n.CallID)).
			Str("kind", string(n.Kind)).
			Msg("ignore notification for unknown call")
		return fx
	}

	switch n.Kind {
	case callengine.NotifyCallStarted:
		m.log.Debug().Str("call_id", string(c.ID)).Msg("call started")

	case callengine.NotifyStartRing:
		if c.Status < StatusRinging {
			c.Status = StatusRinging
			fx.emit(&Event{Kind: EventRinging, Call: c.Snapshot()})
		}

	case callengine.NotifyCallConnected:
		c.MediaConnected = true
		m.tryConnect(c, &fx)

	case callengine.NotifyCallDisconnected:
		m.terminate(c, Classify(n.Reason, c.Direction, c.Status, c.localEnded), &fx)

	case callengine.NotifyCallTerminated:
		raw := n.Reason
		if raw == "" {
			raw = terminatedReason(c)
		}
		m.terminate(c, Classify(raw, c.Direction, c.Status, c.localEnded), &fx)

	case callengine.NotifyParticipantsChanged:
		m.participants(c, n, &fx)

	case callengine.NotifyRemoteVideoReady, callengine.NotifyRemoteVideoStop:
		m.remoteVideo(c, n.Track, n.Kind == callengine.NotifyRemoteVideoReady, &fx)

	case callengine.NotifyAudioMutedStateChanged:
		c.Remote.SendingAudio = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingAudio, Track: n.Track, On: !n.Flag}, &fx)

	case callengine.NotifyMuteRemoteAudioDone:
		c.Local.ReceivingAudio = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaReceivingAudio, Track: n.Track, On: !n.Flag}, &fx)

	case callengine.NotifyMuteRemoteVideoDone:
		c.Local.ReceivingVideo = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaReceivingVideo, Track: n.Track, On: !n.Flag}, &fx)

	case callengine.NotifyMuteRemoteShareDone:
		c.Local.ReceivingShare = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaReceivingShare, Track: n.Track, On: !n.Flag}, &fx)

	case callengine.NotifyMuteLocalAudioDone:
		c.Local.SendingAudio = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaSendingAudio, Track: callengine.TrackLocalVideo, On: !n.Flag}, &fx)

	case callengine.NotifyMuteLocalVideoDone:
		c.Local.SendingVideo = !n.Flag
		m.mediaEvent(c, MediaEvent{Kind: MediaSendingVideo, Track: callengine.TrackLocalVideo, On: !n.Flag}, &fx)

	case callengine.NotifyVideoSizeChanged:
		if s := c.streamByTrack(n.Track); s != nil {
			s.Width, s.Height = n.Width, n.Height
			cp := *s
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxSizeChanged, Track: n.Track, Width: n.Width, Height: n.Height, Stream: &cp}, &fx)
			break
		}
		m.mediaEvent(c, MediaEvent{Kind: MediaVideoSizeChanged, Track: n.Track, Width: n.Width, Height: n.Height}, &fx)

	case callengine.NotifyRemoteVideoCountChanged:
		c.auxTracks = n.Count
		m.recomputeAux(c, &fx)

	case callengine.NotifyAuxStreamInUseChanged:
		if s := c.streamByTrack(n.Track); s != nil {
			s.InUse = n.Flag
			cp := *s
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxInUse, Track: n.Track, On: n.Flag, Stream: &cp}, &fx)
		}

	case callengine.NotifyVideoStreamingChanged:
		if s := c.streamByTrack(n.Track); s != nil {
			s.SendingVideo = n.Flag
			cp := *s
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxSendingVideo, Track: n.Track, On: n.Flag, Stream: &cp}, &fx)
		}

	case callengine.NotifyVideoTrackPersonChanged:
		if s := c.streamByTrack(n.Track); s != nil {
			s.PersonID = n.PersonID
			cp := *s
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxPersonChanged, Track: n.Track, Stream: &cp}, &fx)
		}

	case callengine.NotifyAuxTrackOpened:
		m.auxOpened(c, n, &fx)

	case callengine.NotifyAuxTrackClosed:
		m.auxClosed(c, n, &fx)

	case callengine.NotifyDTMFCapabilityChanged:
		c.DTMFSupported = n.Flag

	default:
		m.log.Debug().Str("kind", string(n.Kind)).Msg("unhandled notification")
	}
	return fx
}

// incoming creates an incoming call, or declines it when a call is in use.
func (m *machine) incoming(n callengine.Notification, fx *effects) {
	if _, known := m.calls[n.CallID]; known {
		return
	}
	if active := m.active(); active != nil {
		id := n.CallID
		m.log.Info().
			Str("call_id", string(id)).
			Str("active_call_id", string(active.ID)).
			Msg("decline incoming call while busy")
		fx.issue("decline", id, func(ctx context.Context, e callengine.Engine) error {
			return e.Decline(ctx, id)
		})
		return
	}

	c := newCall(n.CallID, DirectionIncoming, n.Address, m.now())
	c.OneToOne = n.OneToOne
	m.calls[c.ID] = c
	m.log.Info().
		Str("call_id", string(c.ID)).
		Str("address", n.Address).
		Msg("incoming call")
	fx.emit(&Event{Kind: EventIncomingCall, Call: c.Snapshot()})
	if n.Participants != nil {
		m.reconcile(c, DecodeMemberships(n.Participants, m.device.PersonID), fx)
	}
}

// participants reconciles a snapshot, fetching it from the engine when the
// notification carries none.
func (m *machine) participants(c *Call, n callengine.Notification, fx *effects) {
	if n.Participants == nil {
		id := c.ID
		fx.query("participants", id, func(ctx context.Context, e callengine.Engine) (*callengine.Notification, error) {
			ps, err := e.Participants(ctx, id)
			if err != nil {
				return nil, err
			}
			if ps == nil {
				ps = []callengine.Participant{}
			}
			next := n
			next.Participants = ps
			return &next, nil
		})
		return
	}
	c.OneToOne = n.OneToOne
	m.reconcile(c, DecodeMemberships(n.Participants, m.device.PersonID), fx)
}

// remoteVideo maps RemoteVideoReady/Stop to the track it concerns.
func (m *machine) remoteVideo(c *Call, track callengine.TrackID, on bool, fx *effects) {
	switch track {
	case callengine.TrackRemoteShare:
		c.Remote.SendingShare = on
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingShare, Track: track, On: on}, fx)
	case callengine.TrackRemoteVideo, "":
		c.Remote.SendingVideo = on
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingVideo, Track: callengine.TrackRemoteVideo, On: on}, fx)
	default:
		if s := c.streamByTrack(track); s != nil {
			s.SendingVideo = on
			cp := *s
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxSendingVideo, Track: track, On: on, Stream: &cp}, fx)
		}
	}
}
