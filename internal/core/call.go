package core

import (
	"time"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// CallStatus is the lifecycle position of a call. It only moves forward.
type CallStatus int

const (
	// StatusInitiated is set when a dial is issued or an incoming call arrives.
	StatusInitiated CallStatus = iota
	// StatusRinging is set on the first StartRing notification.
	StatusRinging
	// StatusConnected requires both signaling and media connectivity.
	StatusConnected
	// StatusDisconnected is terminal.
	StatusDisconnected
)

func (s CallStatus) String() string {
	switch s {
	case StatusInitiated:
		return "initiated"
	case StatusRinging:
		return "ringing"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Direction tells who placed the call.
type Direction int

const (
	// DirectionIncoming marks a call offered to this session.
	DirectionIncoming Direction = iota
	// DirectionOutgoing marks a call dialed by this session.
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// MediaFlags mirrors the last engine-confirmed media state, not the requested one.
type MediaFlags struct {
	SendingVideo   bool `json:"sending_video"`
	SendingAudio   bool `json:"sending_audio"`
	SendingShare   bool `json:"sending_share"`
	ReceivingVideo bool `json:"receiving_video"`
	ReceivingAudio bool `json:"receiving_audio"`
	ReceivingShare bool `json:"receiving_share"`
}

// MaxAuxStreams is the hard ceiling of open auxiliary video streams per call.
const MaxAuxStreams = 4

// AuxVideoStream is one opened slot for a non-primary remote video track.
type AuxVideoStream struct {
	// Track is empty until the engine confirms the subscription.
	Track callengine.TrackID `json:"track,omitempty"`
	// View is the render target the application supplied, may be empty.
	View callengine.ViewHandle `json:"view,omitempty"`
	// PersonID is the membership currently rendered on the track.
	PersonID     string `json:"person_id,omitempty"`
	SendingVideo bool   `json:"sending_video"`
	InUse        bool   `json:"in_use"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// Call is one call session. The Phone loop is its only writer; everything
// handed to callers and handlers is a Snapshot.
type Call struct {
	ID        callengine.CallID      `json:"id"`
	Direction Direction              `json:"direction"`
	Status    CallStatus             `json:"status"`
	Address   string                 `json:"address,omitempty"`
	Media     callengine.MediaOption `json:"media"`

	SignalingConnected bool `json:"signaling_connected"`
	MediaConnected     bool `json:"media_connected"`
	OneToOne           bool `json:"one_to_one"`
	JoinedCount        int  `json:"joined_count"`

	Local  MediaFlags `json:"local"`
	Remote MediaFlags `json:"remote"`

	Memberships []CallMembership `json:"memberships,omitempty"`
	AuxStreams  []AuxVideoStream `json:"aux_streams,omitempty"`

	ReleaseReason *DisconnectReason `json:"release_reason,omitempty"`
	Pending       PendingAction     `json:"pending"`
	DTMFSupported bool              `json:"dtmf_supported"`

	CreatedAt   time.Time `json:"created_at"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`

	// localEnded records that the local user rejected or ended the call.
	localEnded bool
	// auxAvailable is the last published aux availability.
	auxAvailable int
	// auxTracks is the engine-reported auxiliary track count.
	auxTracks int
	// closing holds streams removed locally and awaiting the engine's close confirmation.
	closing []AuxVideoStream
	// auxOrphans counts placeholders closed before the engine confirmed them.
	auxOrphans int
}

func newCall(id callengine.CallID, dir Direction, address string, now time.Time) *Call {
	return &Call{
		ID:        id,
		Direction: dir,
		Status:    StatusInitiated,
		Address:   address,
		CreatedAt: now,
	}
}

// AuxAvailable is the number of auxiliary streams last published as available.
func (c *Call) AuxAvailable() int {
	return c.auxAvailable
}

// Membership returns the membership with the given person id.
func (c *Call) Membership(personID string) (CallMembership, bool) {
	for _, m := range c.Memberships {
		if m.PersonID == personID {
			return m, true
		}
	}
	return CallMembership{}, false
}

// Snapshot returns a deep copy that shares nothing with c.
func (c *Call) Snapshot() *Call {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Memberships != nil {
		cp.Memberships = make([]CallMembership, len(c.Memberships))
		for i, m := range c.Memberships {
			cp.Memberships[i] = m.clone()
		}
	}
	if c.AuxStreams != nil {
		cp.AuxStreams = append([]AuxVideoStream(nil), c.AuxStreams...)
	}
	cp.closing = append([]AuxVideoStream(nil), c.closing...)
	if c.ReleaseReason != nil {
		r := *c.ReleaseReason
		cp.ReleaseReason = &r
	}
	return &cp
}

func (c *Call) streamByTrack(track callengine.TrackID) *AuxVideoStream {
	if track == "" {
		return nil
	}
	for i := range c.AuxStreams {
		if c.AuxStreams[i].Track == track {
			return &c.AuxStreams[i]
		}
	}
	return nil
}
