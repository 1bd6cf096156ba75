package http

import (
	"errors"
	"time"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/proto"
	"github.com/vovakirdan/wirecall/internal/store"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func flagsToProto(f core.MediaFlags) proto.MediaFlags {
	return proto.MediaFlags{
		SendingAudio:   f.SendingAudio,
		SendingVideo:   f.SendingVideo,
		SendingShare:   f.SendingShare,
		ReceivingAudio: f.ReceivingAudio,
		ReceivingVideo: f.ReceivingVideo,
		ReceivingShare: f.ReceivingShare,
	}
}

func membershipToProto(m core.CallMembership) proto.Membership {
	return proto.Membership{
		PersonID:     m.PersonID,
		Email:        m.Email,
		DisplayName:  m.DisplayName,
		State:        m.State.String(),
		IsSelf:       m.IsSelf,
		IsInitiator:  m.IsInitiator,
		SendingAudio: m.SendingAudio,
		SendingVideo: m.SendingVideo,
		SendingShare: m.SendingShare,
	}
}

func auxToProto(s core.AuxVideoStream) proto.AuxStream {
	return proto.AuxStream{
		Track:        string(s.Track),
		View:         string(s.View),
		PersonID:     s.PersonID,
		SendingVideo: s.SendingVideo,
		InUse:        s.InUse,
		Width:        s.Width,
		Height:       s.Height,
	}
}

func callToProto(c *core.Call) proto.Call {
	if c == nil {
		return proto.Call{}
	}
	out := proto.Call{
		ID:                 string(c.ID),
		Direction:          c.Direction.String(),
		Status:             c.Status.String(),
		Address:            c.Address,
		OneToOne:           c.OneToOne,
		SignalingConnected: c.SignalingConnected,
		MediaConnected:     c.MediaConnected,
		JoinedCount:        c.JoinedCount,
		Local:              flagsToProto(c.Local),
		Remote:             flagsToProto(c.Remote),
		CreatedAt:          unixOrZero(c.CreatedAt),
		ConnectedAt:        unixOrZero(c.ConnectedAt),
		EndedAt:            unixOrZero(c.EndedAt),
	}
	if !c.Pending.IsNone() {
		out.Pending = c.Pending.Kind.String()
	}
	if c.ReleaseReason != nil {
		out.ReleaseReason = c.ReleaseReason.String()
	}
	for _, m := range c.Memberships {
		out.Memberships = append(out.Memberships, membershipToProto(m))
	}
	for _, s := range c.AuxStreams {
		out.AuxStreams = append(out.AuxStreams, auxToProto(s))
	}
	return out
}

func callErrorToProto(err *core.CallError) proto.Error {
	return proto.Error{Code: err.Code, Msg: err.Message}
}

func recordToProto(r *store.CallRecord) proto.CallRecord {
	out := proto.CallRecord{
		ID:         r.ID,
		Direction:  r.Direction,
		Address:    r.Address,
		OneToOne:   r.OneToOne,
		Reason:     r.Reason,
		ReasonCode: r.ReasonCode,
		CreatedAt:  r.CreatedAt.Format(timeLayout),
		EndedAt:    r.EndedAt.Format(timeLayout),
	}
	if r.ConnectedAt != nil {
		out.ConnectedAt = r.ConnectedAt.Format(timeLayout)
	}
	return out
}

func mediaOption(video, share bool, local, remote string) *callengine.MediaOption {
	return &callengine.MediaOption{
		Video:      video,
		Share:      share,
		LocalView:  callengine.ViewHandle(local),
		RemoteView: callengine.ViewHandle(remote),
	}
}

func eventOutbound(kind core.EventKind, data any) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: kind.String(),
		Data:  data,
	}
}

func disconnectedOutbound(call *core.Call, reason core.DisconnectReason) proto.Outbound {
	data := proto.EventDisconnected{
		Call:   callToProto(call),
		Reason: reason.Kind.String(),
		Code:   reason.Code,
	}
	var ce *core.CallError
	if errors.As(reason.Err(), &ce) {
		perr := callErrorToProto(ce)
		data.Error = &perr
	}
	return eventOutbound(core.EventDisconnected, data)
}

func membershipOutbound(call *core.Call, ev core.MembershipEvent) proto.Outbound {
	return eventOutbound(core.EventMembershipChanged, proto.EventMembership{
		Call:       callToProto(call),
		Kind:       ev.Kind.String(),
		Membership: membershipToProto(ev.Membership),
	})
}

func mediaOutbound(call *core.Call, ev core.MediaEvent) proto.Outbound {
	data := proto.EventMedia{
		Call:   callToProto(call),
		Kind:   ev.Kind.String(),
		Track:  string(ev.Track),
		On:     ev.On,
		Width:  ev.Width,
		Height: ev.Height,
		Reason: ev.Reason,
	}
	if ev.Stream != nil {
		s := auxToProto(*ev.Stream)
		data.Stream = &s
	}
	return eventOutbound(core.EventMediaChanged, data)
}

func activationDeclinedOutbound(err *core.CallError) proto.Outbound {
	data := proto.EventActivationDeclined{Error: callErrorToProto(err)}
	if err.Call != nil {
		c := callToProto(err.Call)
		data.Call = &c
	}
	return eventOutbound(core.EventVideoActivationDeclined, data)
}
