package callengine

import (
	"context"
)

// CallID is the opaque identifier the engine uses to key a call.
type CallID string

// TrackID is the opaque handle the engine assigns to a media track.
type TrackID string

// Well-known primary tracks. Auxiliary tracks get engine-assigned ids.
const (
	TrackLocalVideo  TrackID = "local"
	TrackRemoteVideo TrackID = "remote"
	TrackRemoteShare TrackID = "share"
)

// IsPrimary reports whether the track is one of the fixed local/remote/share tracks.
func (t TrackID) IsPrimary() bool {
	return t == TrackLocalVideo || t == TrackRemoteVideo || t == TrackRemoteShare
}

// MediaKind selects which remote media a mute command targets.
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaVideo
	MediaShare
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaShare:
		return "share"
	default:
		return "unknown"
	}
}

// ViewHandle names an application render target. Empty means none.
type ViewHandle string

// MediaOption describes the media a call is dialed or answered with.
type MediaOption struct {
	Video      bool       `json:"video" yaml:"video"`
	Share      bool       `json:"share" yaml:"share"`
	LocalView  ViewHandle `json:"local_view,omitempty" yaml:"local_view"`
	RemoteView ViewHandle `json:"remote_view,omitempty" yaml:"remote_view"`
}

// AudioOnly returns a media option without video.
func AudioOnly() *MediaOption {
	return &MediaOption{}
}

// AudioVideo returns a media option rendering local and remote video into the given views.
func AudioVideo(local, remote ViewHandle) *MediaOption {
	return &MediaOption{Video: true, LocalView: local, RemoteView: remote}
}

// HasVideo reports whether the option needs the video codec license.
func (m *MediaOption) HasVideo() bool {
	return m != nil && (m.Video || m.Share)
}

// DeviceInfo identifies this session's registration with the engine.
type DeviceInfo struct {
	DeviceURL string
	PersonID  string
}

// Engine abstracts the real-time media engine.
// Every command is fire-and-forget: a nil error means the command was issued,
// its outcome arrives later on Notifications.
type Engine interface {
	// Register connects the local session and returns its device identity.
	Register(ctx context.Context) (DeviceInfo, error)
	// Deregister disconnects the local session.
	Deregister(ctx context.Context) error

	Dial(ctx context.Context, id CallID, address string, media MediaOption) error
	Join(ctx context.Context, id CallID, media MediaOption) error
	Decline(ctx context.Context, id CallID) error
	End(ctx context.Context, id CallID) error
	SetMediaOption(ctx context.Context, id CallID, media MediaOption) error

	MuteLocalAudio(ctx context.Context, id CallID, muted bool) error
	MuteLocalVideo(ctx context.Context, id CallID, muted bool) error
	MuteRemote(ctx context.Context, id CallID, track TrackID, kind MediaKind, muted bool) error

	// SubscribeAuxTrack asks the engine to open one more auxiliary video track.
	// The assigned track arrives in a NotifyAuxTrackOpened notification.
	SubscribeAuxTrack(ctx context.Context, id CallID) error
	UnsubscribeAuxTrack(ctx context.Context, id CallID, track TrackID) error

	SendDTMF(ctx context.Context, id CallID, digits string) error

	// Participants returns the engine's flat participant array for the call.
	Participants(ctx context.Context, id CallID) ([]Participant, error)
	// AuxTrackCount returns how many auxiliary remote video tracks the engine can offer.
	AuxTrackCount(ctx context.Context, id CallID) (int, error)

	// Notifications delivers the engine's notification stream on a single channel.
	Notifications() <-chan Notification
}
