package callengine

// NotificationKind identifies an engine notification.
type NotificationKind string

const (
	// NotifyCallIncoming announces a call offered to this session.
	NotifyCallIncoming NotificationKind = "call_incoming"
	// NotifyCallStarted confirms the engine accepted a dial.
	NotifyCallStarted NotificationKind = "call_started"
	// NotifyStartRing tells the session the call is ringing.
	NotifyStartRing NotificationKind = "start_ring"
	// NotifyCallConnected reports media connectivity for the call.
	NotifyCallConnected NotificationKind = "call_connected"
	// NotifyCallDisconnected carries the engine's raw termination reason.
	NotifyCallDisconnected NotificationKind = "call_disconnected"
	// NotifyCallTerminated reports the call ended without a reason.
	NotifyCallTerminated NotificationKind = "call_terminated"
	// NotifyParticipantsChanged reports a new participant snapshot.
	NotifyParticipantsChanged NotificationKind = "participants_changed"

	NotifyRemoteVideoReady        NotificationKind = "remote_video_ready"
	NotifyRemoteVideoStop         NotificationKind = "remote_video_stop"
	NotifyAudioMutedStateChanged  NotificationKind = "audio_muted_state_changed"
	NotifyMuteRemoteAudioDone     NotificationKind = "mute_remote_audio_done"
	NotifyMuteRemoteVideoDone     NotificationKind = "mute_remote_video_done"
	NotifyMuteRemoteShareDone     NotificationKind = "mute_remote_share_done"
	NotifyMuteLocalAudioDone      NotificationKind = "mute_local_audio_done"
	NotifyMuteLocalVideoDone      NotificationKind = "mute_local_video_done"
	NotifyVideoSizeChanged        NotificationKind = "video_size_changed"
	NotifyRemoteVideoCountChanged NotificationKind = "remote_video_count_changed"
	NotifyAuxStreamInUseChanged   NotificationKind = "aux_stream_in_use_changed"
	NotifyVideoStreamingChanged   NotificationKind = "video_streaming_changed"
	NotifyVideoTrackPersonChanged NotificationKind = "video_track_person_changed"

	// NotifyAuxTrackOpened confirms a SubscribeAuxTrack; Reason is set on failure.
	NotifyAuxTrackOpened NotificationKind = "aux_track_opened"
	// NotifyAuxTrackClosed confirms an UnsubscribeAuxTrack or an engine-side close.
	NotifyAuxTrackClosed NotificationKind = "aux_track_closed"
	// NotifyDTMFCapabilityChanged reports whether DTMF can be sent on the call.
	NotifyDTMFCapabilityChanged NotificationKind = "dtmf_capability_changed"
)

// Notification is one message of the engine's notification stream.
// Only the fields relevant to Kind are set.
type Notification struct {
	Kind   NotificationKind `json:"kind" yaml:"kind"`
	CallID CallID           `json:"call_id" yaml:"call_id"`
	Track  TrackID          `json:"track,omitempty" yaml:"track"`

	Reason   string `json:"reason,omitempty" yaml:"reason"`
	Address  string `json:"address,omitempty" yaml:"address"`
	OneToOne bool   `json:"one_to_one,omitempty" yaml:"one_to_one"`
	Count    int    `json:"count,omitempty" yaml:"count"`
	Flag     bool   `json:"flag,omitempty" yaml:"flag"`
	PersonID string `json:"person_id,omitempty" yaml:"person_id"`
	Width    int    `json:"width,omitempty" yaml:"width"`
	Height   int    `json:"height,omitempty" yaml:"height"`

	// Participants is the snapshot for NotifyParticipantsChanged and NotifyCallIncoming.
	// When nil the session asks the engine for it.
	Participants []Participant `json:"participants,omitempty" yaml:"participants"`
}

// Participant is one record of the engine's flat participant array.
type Participant struct {
	PersonID     string   `json:"person_id" yaml:"person_id"`
	Email        string   `json:"email" yaml:"email"`
	DisplayName  string   `json:"display_name,omitempty" yaml:"display_name"`
	IsInitiator  bool     `json:"is_initiator,omitempty" yaml:"is_initiator"`
	IsSelf       bool     `json:"is_self,omitempty" yaml:"is_self"`
	State        string   `json:"state" yaml:"state"`
	SendingAudio bool     `json:"sending_audio,omitempty" yaml:"sending_audio"`
	SendingVideo bool     `json:"sending_video,omitempty" yaml:"sending_video"`
	SendingShare bool     `json:"sending_share,omitempty" yaml:"sending_share"`
	Devices      []Device `json:"devices,omitempty" yaml:"devices"`
}

// Device is one of a participant's devices as reported by the engine.
type Device struct {
	Type  string `json:"type" yaml:"type"`
	State string `json:"state" yaml:"state"`
	URL   string `json:"url" yaml:"url"`
}

// Participant and device states as reported by the engine.
const (
	StateIdle     = "IDLE"
	StateNotified = "NOTIFIED"
	StateJoined   = "JOINED"
	StateLeft     = "LEFT"
	StateDeclined = "DECLINED"
)

// Raw termination reasons carried by NotifyCallDisconnected.
const (
	ReasonCancelledByLocalUser = "cancelledByLocalUser"
	ReasonEndedByLocalUser     = "endedByLocalUser"
	ReasonDeclinedByRemoteUser = "declinedByRemoteUser"
	ReasonEndedByRemoteUser    = "endedByRemoteUser"
	ReasonEndedByLocus         = "endedByLocus"
)
