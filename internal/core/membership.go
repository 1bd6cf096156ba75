package core

import (
	"strings"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// MembershipState is a participant's state within a call.
type MembershipState int

const (
	MemberUnknown MembershipState = iota
	MemberIdle
	MemberNotified
	MemberJoined
	MemberLeft
	MemberDeclined
)

func (s MembershipState) String() string {
	switch s {
	case MemberIdle:
		return "idle"
	case MemberNotified:
		return "notified"
	case MemberJoined:
		return "joined"
	case MemberLeft:
		return "left"
	case MemberDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// ParseMembershipState maps an engine state string to a MembershipState.
func ParseMembershipState(s string) MembershipState {
	switch strings.ToUpper(s) {
	case callengine.StateIdle:
		return MemberIdle
	case callengine.StateNotified:
		return MemberNotified
	case callengine.StateJoined:
		return MemberJoined
	case callengine.StateLeft:
		return MemberLeft
	case callengine.StateDeclined:
		return MemberDeclined
	default:
		return MemberUnknown
	}
}

// Device is one device of a participant.
type Device struct {
	Type  string          `json:"type"`
	State MembershipState `json:"state"`
	URL   string          `json:"url"`
}

// CallMembership is one participant's state within a call. PersonID is its identity.
type CallMembership struct {
	PersonID     string          `json:"person_id"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name,omitempty"`
	IsInitiator  bool            `json:"is_initiator"`
	IsSelf       bool            `json:"is_self"`
	State        MembershipState `json:"state"`
	SendingAudio bool            `json:"sending_audio"`
	SendingVideo bool            `json:"sending_video"`
	SendingShare bool            `json:"sending_share"`
	Devices      []Device        `json:"devices,omitempty"`
}

func (m CallMembership) clone() CallMembership {
	if m.Devices != nil {
		m.Devices = append([]Device(nil), m.Devices...)
	}
	return m
}

// joinedOn reports whether the device with url is in the Joined state.
func (m CallMembership) joinedOn(url string) bool {
	if url == "" {
		return false
	}
	for _, d := range m.Devices {
		if d.URL == url && d.State == MemberJoined {
			return true
		}
	}
	return false
}

// DecodeMemberships converts the engine's flat participant array. Records
// without an email are dropped. selfPersonID marks the local user when the
// engine does not set IsSelf.
func DecodeMemberships(ps []callengine.Participant, selfPersonID string) []CallMembership {
	out := make([]CallMembership, 0, len(ps))
	for _, p := range ps {
		if strings.TrimSpace(p.Email) == "" || p.PersonID == "" {
			continue
		}
		m := CallMembership{
			PersonID:     p.PersonID,
			Email:        p.Email,
			DisplayName:  p.DisplayName,
			IsInitiator:  p.IsInitiator,
			IsSelf:       p.IsSelf || (selfPersonID != "" && p.PersonID == selfPersonID),
			State:        ParseMembershipState(p.State),
			SendingAudio: p.SendingAudio,
			SendingVideo: p.SendingVideo,
			SendingShare: p.SendingShare,
		}
		for _, d := range p.Devices {
			m.Devices = append(m.Devices, Device{Type: d.Type, State: ParseMembershipState(d.State), URL: d.URL})
		}
		out = append(out, m)
	}
	return out
}

func countJoined(ms []CallMembership) int {
	n := 0
	for _, m := range ms {
		if m.State == MemberJoined {
			n++
		}
	}
	return n
}

// reconcile diffs next against the call's memberships and applies it.
// It returns false when a self-join by another device discarded the call.
func (m *machine) reconcile(c *Call, next []CallMembership, fx *effects) bool {
	working := make([]CallMembership, len(c.Memberships))
	copy(working, c.Memberships)
	index := make(map[string]int, len(working))
	for i, w := range working {
		index[w.PersonID] = i
	}

	for _, nm := range next {
		i, found := index[nm.PersonID]
		if !found {
			working = append(working, nm)
			i = len(working) - 1
			index[nm.PersonID] = i
		}
		prev := working[i]
		working[i] = nm
		c.Memberships = working

		if !found || prev.State != nm.State {
			if !m.transition(c, nm, fx) {
				return false
			}
			continue
		}

		if prev.SendingAudio != nm.SendingAudio {
			m.memberFlag(c, nm, MembershipSendingAudioChanged, fx)
		}
		if prev.SendingVideo != nm.SendingVideo {
			m.memberFlag(c, nm, MembershipSendingVideoChanged, fx)
		}
		if prev.SendingShare != nm.SendingShare {
			m.memberFlag(c, nm, MembershipSendingShareChanged, fx)
		}
	}

	c.Memberships = next
	c.JoinedCount = countJoined(next)
	m.recomputeAux(c, fx)
	return true
}

// transition handles a member whose state is new or changed.
func (m *machine) transition(c *Call, nm CallMembership, fx *effects) bool {
	switch nm.State {
	case MemberJoined:
		if !m.acceptJoin(c, nm, fx) {
			return false
		}
		c.JoinedCount++
		m.memberEvent(c, nm, MembershipJoined, fx)
		if c.JoinedCount >= 3 {
			m.recomputeAux(c, fx)
		}
	case MemberDeclined:
		m.memberEvent(c, nm, MembershipDeclined, fx)
	case MemberLeft:
		c.JoinedCount = countJoined(c.Memberships)
		m.memberEvent(c, nm, MembershipLeft, fx)
		if c.JoinedCount >= 2 {
			m.recomputeAux(c, fx)
		}
	}
	return true
}

// acceptJoin tells a genuine join from another device of the same account
// joining. Rejecting discards the call.
func (m *machine) acceptJoin(c *Call, nm CallMembership, fx *effects) bool {
	switch {
	case c.OneToOne && c.Direction == DirectionOutgoing && !nm.IsSelf:
		c.SignalingConnected = true
		m.tryConnect(c, fx)
	case nm.IsSelf:
		if !nm.joinedOn(m.device.DeviceURL) {
			m.log.Info().
				Str("call_id", string(c.ID)).
				Str("person_id", nm.PersonID).
				Msg("call joined on another device")
			m.terminate(c, DisconnectReason{Kind: DisconnectOtherConnected}, fx)
			return false
		}
		c.SignalingConnected = true
		m.tryConnect(c, fx)
	}
	return true
}

func (m *machine) memberEvent(c *Call, nm CallMembership, kind MembershipEventKind, fx *effects) {
	fx.emit(&Event{
		Kind:       EventMembershipChanged,
		Call:       c.Snapshot(),
		Membership: &MembershipEvent{Kind: kind, Membership: nm.clone()},
	})
}

// memberFlag emits a flag change; in a one-to-one call the remote member's
// flags also drive the call's remote media flags.
func (m *machine) memberFlag(c *Call, nm CallMembership, kind MembershipEventKind, fx *effects) {
	m.memberEvent(c, nm, kind, fx)
	if !c.OneToOne || nm.IsSelf {
		return
	}
	switch kind {
	case MembershipSendingAudioChanged:
		c.Remote.SendingAudio = nm.SendingAudio
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingAudio, Track: callengine.TrackRemoteVideo, On: nm.SendingAudio}, fx)
	case MembershipSendingVideoChanged:
		c.Remote.SendingVideo = nm.SendingVideo
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingVideo, Track: callengine.TrackRemoteVideo, On: nm.SendingVideo}, fx)
	case MembershipSendingShareChanged:
		c.Remote.SendingShare = nm.SendingShare
		m.mediaEvent(c, MediaEvent{Kind: MediaRemoteSendingShare, Track: callengine.TrackRemoteShare, On: nm.SendingShare}, fx)
	}
}
