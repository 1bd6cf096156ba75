package core

import (
	"context"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// auxRequest asks the loop to open or close an aux stream of a call. It is
// stamped with the call id so requests for a call that ended are dropped.
type auxRequest struct {
	call callengine.CallID
	open bool
	view callengine.ViewHandle
}

// availableAux is min(joined-2, engine tracks) clamped at zero.
func availableAux(joined, engineTracks int) int {
	n := min(joined-2, engineTracks)
	if n < 0 {
		return 0
	}
	return n
}

// recomputeAux publishes availability changes as callbacks to the application.
func (m *machine) recomputeAux(c *Call, fx *effects) {
	next := availableAux(c.JoinedCount, c.auxTracks)
	delta := next - c.auxAvailable
	if delta == 0 {
		return
	}
	c.auxAvailable = next
	m.log.Debug().
		Str("call_id", string(c.ID)).
		Int("available", next).
		Int("delta", delta).
		Msg("aux availability changed")

	kind := EventAuxStreamAvailable
	if delta < 0 {
		kind = EventAuxStreamUnavailable
		delta = -delta
	}
	for range delta {
		fx.emit(&Event{Kind: kind, Call: c.Snapshot()})
	}
}

// handleAuxRequest applies an open/close request coming back from a handler.
func (m *machine) handleAuxRequest(r auxRequest) effects {
	var fx effects
	c := m.calls[r.call]
	if c == nil {
		m.log.Debug().Str("call_id", string(r.call)).Msg("drop aux request for ended call")
		return fx
	}
	if r.open {
		m.openAux(c, r.view, &fx)
	} else {
		m.closeAux(c, r.view, &fx)
	}
	return fx
}

// AuxCeilingReason is the MediaAuxStreamOpened reason of an open request
// dropped at the aux stream ceiling.
const AuxCeilingReason = "ceiling"

// auxInFlight counts the subscriptions the engine may still hold: open
// streams, confirmed closes awaiting the engine and unconfirmed placeholders
// closed before their subscribe was answered.
func (c *Call) auxInFlight() int {
	return len(c.AuxStreams) + len(c.closing) + c.auxOrphans
}

// openAux adds a placeholder and subscribes one more aux track. A request
// over the ceiling is answered with a failed open so the view can be reused.
func (m *machine) openAux(c *Call, view callengine.ViewHandle, fx *effects) bool {
	if view != "" {
		for _, s := range c.AuxStreams {
			if s.View == view {
				m.log.Debug().
					Str("call_id", string(c.ID)).
					Str("view", string(view)).
					Msg("aux view already open")
				return false
			}
		}
	}
	if c.auxInFlight() >= MaxAuxStreams {
		m.log.Warn().
			Str("call_id", string(c.ID)).
			Str("view", string(view)).
			Int("in_flight", c.auxInFlight()).
			Msg("aux stream ceiling reached")
		m.mediaEvent(c, MediaEvent{Kind: MediaAuxStreamOpened, Stream: &AuxVideoStream{View: view}, Reason: AuxCeilingReason}, fx)
		return false
	}
	c.AuxStreams = append(c.AuxStreams, AuxVideoStream{View: view})
	id := c.ID
	fx.issue("subscribe_aux_track", id, func(ctx context.Context, e callengine.Engine) error {
		return e.SubscribeAuxTrack(ctx, id)
	})
	return true
}

// closeAux removes the stream rendering into view, or the most recently
// opened one when view is empty.
func (m *machine) closeAux(c *Call, view callengine.ViewHandle, fx *effects) bool {
	idx := -1
	if view == "" {
		idx = len(c.AuxStreams) - 1
	} else {
		for i, s := range c.AuxStreams {
			if s.View == view {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false
	}
	s := c.AuxStreams[idx]
	c.AuxStreams = append(c.AuxStreams[:idx], c.AuxStreams[idx+1:]...)
	if s.Track == "" {
		// The subscribe is still in flight; its confirmation becomes an orphan.
		c.auxOrphans++
		return true
	}
	c.closing = append(c.closing, s)
	m.unsubscribe(c.ID, s.Track, fx)
	return true
}

func (m *machine) unsubscribe(id callengine.CallID, track callengine.TrackID, fx *effects) {
	fx.issue("unsubscribe_aux_track", id, func(ctx context.Context, e callengine.Engine) error {
		return e.UnsubscribeAuxTrack(ctx, id, track)
	})
}

// auxOpened binds a confirmed track to the oldest unbound placeholder.
func (m *machine) auxOpened(c *Call, n callengine.Notification, fx *effects) {
	if n.Track.IsPrimary() {
		m.log.Debug().
			Str("call_id", string(c.ID)).
			Str("track", string(n.Track)).
			Msg("ignore aux confirmation for primary track")
		return
	}
	idx := -1
	for i, s := range c.AuxStreams {
		if s.Track == "" {
			idx = i
			break
		}
	}
	if idx < 0 {
		if c.auxOrphans > 0 {
			c.auxOrphans--
		}
		if n.Reason == "" && n.Track != "" {
			m.log.Debug().
				Str("call_id", string(c.ID)).
				Str("track", string(n.Track)).
				Msg("unsubscribe orphan aux track")
			m.unsubscribe(c.ID, n.Track, fx)
		}
		return
	}
	if n.Reason != "" {
		s := c.AuxStreams[idx]
		c.AuxStreams = append(c.AuxStreams[:idx], c.AuxStreams[idx+1:]...)
		m.log.Warn().
			Str("call_id", string(c.ID)).
			Str("reason", n.Reason).
			Msg("aux stream failed to open")
		m.mediaEvent(c, MediaEvent{Kind: MediaAuxStreamOpened, Stream: &s, Reason: n.Reason}, fx)
		return
	}
	c.AuxStreams[idx].Track = n.Track
	s := c.AuxStreams[idx]
	m.mediaEvent(c, MediaEvent{Kind: MediaAuxStreamOpened, Track: n.Track, On: true, Stream: &s}, fx)
}

// auxClosed unbinds a track closed by the engine, either confirming a local
// close or closing on its own.
func (m *machine) auxClosed(c *Call, n callengine.Notification, fx *effects) {
	for i, s := range c.closing {
		if s.Track == n.Track {
			c.closing = append(c.closing[:i], c.closing[i+1:]...)
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxStreamClosed, Track: n.Track, Stream: &s}, fx)
			return
		}
	}
	for i, s := range c.AuxStreams {
		if s.Track == n.Track {
			c.AuxStreams = append(c.AuxStreams[:i], c.AuxStreams[i+1:]...)
			m.mediaEvent(c, MediaEvent{Kind: MediaAuxStreamClosed, Track: n.Track, Stream: &s}, fx)
			return
		}
	}
}
