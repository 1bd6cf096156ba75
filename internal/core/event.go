package core

import "github.com/vovakirdan/wirecall/internal/callengine"

// EventKind is a notification the core emits to the application.
type EventKind int

const (
	// EventIncomingCall announces a new incoming call.
	EventIncomingCall EventKind = iota
	// EventRinging reports the call started ringing.
	EventRinging
	// EventConnected reports the call reached Connected.
	EventConnected
	// EventDisconnected reports the final release reason, exactly once per call.
	EventDisconnected
	// EventMembershipChanged carries one membership transition.
	EventMembershipChanged
	// EventMediaChanged carries one confirmed media change.
	EventMediaChanged
	// EventAuxStreamAvailable asks the application for a view to open one more aux stream.
	EventAuxStreamAvailable
	// EventAuxStreamUnavailable asks the application which aux stream to close.
	EventAuxStreamUnavailable
	// EventVideoActivationRequested asks the application to activate the video license.
	EventVideoActivationRequested
	// EventVideoActivationDeclined reports a parked dial or answer was dropped.
	EventVideoActivationDeclined
)

var eventKindNames = [...]string{
	EventIncomingCall:             "incoming_call",
	EventRinging:                  "ringing",
	EventConnected:                "connected",
	EventDisconnected:             "disconnected",
	EventMembershipChanged:        "membership_changed",
	EventMediaChanged:             "media_changed",
	EventAuxStreamAvailable:       "aux_stream_available",
	EventAuxStreamUnavailable:     "aux_stream_unavailable",
	EventVideoActivationRequested: "video_activation_requested",
	EventVideoActivationDeclined:  "video_activation_declined",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event describes what happened to a call. Call is a snapshot taken when
// the event was produced.
type Event struct {
	Kind       EventKind
	Call       *Call
	Reason     DisconnectReason // EventDisconnected
	Membership *MembershipEvent // EventMembershipChanged
	Media      *MediaEvent      // EventMediaChanged
	Error      *CallError       // EventVideoActivationDeclined
}

// MembershipEventKind is the kind of membership transition.
type MembershipEventKind int

const (
	MembershipJoined MembershipEventKind = iota
	MembershipLeft
	MembershipDeclined
	MembershipSendingAudioChanged
	MembershipSendingVideoChanged
	MembershipSendingShareChanged
)

var membershipEventNames = [...]string{
	MembershipJoined:              "joined",
	MembershipLeft:                "left",
	MembershipDeclined:            "declined",
	MembershipSendingAudioChanged: "sending_audio_changed",
	MembershipSendingVideoChanged: "sending_video_changed",
	MembershipSendingShareChanged: "sending_share_changed",
}

func (k MembershipEventKind) String() string {
	if k < 0 || int(k) >= len(membershipEventNames) {
		return "unknown"
	}
	return membershipEventNames[k]
}

// MembershipEvent carries the membership snapshot after the transition.
type MembershipEvent struct {
	Kind       MembershipEventKind `json:"kind"`
	Membership CallMembership      `json:"membership"`
}

// MediaEventKind is the kind of media change.
type MediaEventKind int

const (
	// Local flags, confirmed by MuteLocal*Done and MuteRemote*Done.
	MediaSendingAudio MediaEventKind = iota
	MediaSendingVideo
	MediaReceivingAudio
	MediaReceivingVideo
	MediaReceivingShare

	// Remote flags of the primary tracks.
	MediaRemoteSendingAudio
	MediaRemoteSendingVideo
	MediaRemoteSendingShare
	MediaVideoSizeChanged

	// Auxiliary streams.
	MediaAuxStreamOpened
	MediaAuxStreamClosed
	MediaAuxSendingVideo
	MediaAuxInUse
	MediaAuxPersonChanged
	MediaAuxSizeChanged
)

var mediaEventNames = [...]string{
	MediaSendingAudio:       "sending_audio",
	MediaSendingVideo:       "sending_video",
	MediaReceivingAudio:     "receiving_audio",
	MediaReceivingVideo:     "receiving_video",
	MediaReceivingShare:     "receiving_share",
	MediaRemoteSendingAudio: "remote_sending_audio",
	MediaRemoteSendingVideo: "remote_sending_video",
	MediaRemoteSendingShare: "remote_sending_share",
	MediaVideoSizeChanged:   "video_size_changed",
	MediaAuxStreamOpened:    "aux_stream_opened",
	MediaAuxStreamClosed:    "aux_stream_closed",
	MediaAuxSendingVideo:    "aux_sending_video",
	MediaAuxInUse:           "aux_in_use",
	MediaAuxPersonChanged:   "aux_person_changed",
	MediaAuxSizeChanged:     "aux_size_changed",
}

func (k MediaEventKind) String() string {
	if k < 0 || int(k) >= len(mediaEventNames) {
		return "unknown"
	}
	return mediaEventNames[k]
}

// MediaEvent describes a confirmed media change. On holds the new boolean
// value for flag kinds; Stream is set for aux kinds; Reason is set when an
// aux stream failed to open.
type MediaEvent struct {
	Kind   MediaEventKind     `json:"kind"`
	Track  callengine.TrackID `json:"track,omitempty"`
	On     bool               `json:"on"`
	Width  int                `json:"width,omitempty"`
	Height int                `json:"height,omitempty"`
	Stream *AuxVideoStream    `json:"stream,omitempty"`
	Reason string             `json:"reason,omitempty"`
}
