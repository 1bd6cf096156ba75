package http

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/proto"
)

// Bridge is the core.Handler of the HTTP layer. It fans call events out to
// websocket clients and answers aux stream callbacks from a pool of views.
type Bridge struct {
	log    *zerolog.Logger
	buffer int

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	// free views wait to be handed out; inUse keeps handout order.
	free  []callengine.ViewHandle
	inUse []callengine.ViewHandle
}

var _ core.Handler = (*Bridge)(nil)

type wsClient struct {
	id     string
	events chan proto.Outbound
}

// NewBridge creates a bridge handing out views and queueing up to buffer
// events per client.
func NewBridge(views []string, buffer int, logger *zerolog.Logger) *Bridge {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bridge{
		log:     logger,
		buffer:  buffer,
		clients: make(map[*wsClient]struct{}),
	}
	for _, v := range views {
		b.OfferView(callengine.ViewHandle(v))
	}
	return b
}

func (b *Bridge) subscribe() *wsClient {
	c := &wsClient{id: uuid.NewString(), events: make(chan proto.Outbound, b.buffer)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *Bridge) unsubscribe(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.events)
	}
}

// ClientCount returns the number of connected websocket clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Bridge) broadcast(out proto.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.events <- out:
		default:
			b.log.Warn().Str("client_id", c.id).Str("event", out.Event).Msg("client queue full, dropping event")
		}
	}
}

// OfferView adds a render target to the pool used for aux streams.
func (b *Bridge) OfferView(view callengine.ViewHandle) {
	if view == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.Contains(b.free, view) || slices.Contains(b.inUse, view) {
		return
	}
	b.free = append(b.free, view)
}

// FreeViews returns the views not currently handed out.
func (b *Bridge) FreeViews() []callengine.ViewHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.free)
}

func (b *Bridge) takeView() callengine.ViewHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.free) == 0 {
		return ""
	}
	v := b.free[0]
	b.free = b.free[1:]
	b.inUse = append(b.inUse, v)
	return v
}

// lastView releases and returns the most recently handed out view.
func (b *Bridge) lastView() callengine.ViewHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inUse) == 0 {
		return ""
	}
	v := b.inUse[len(b.inUse)-1]
	b.inUse = b.inUse[:len(b.inUse)-1]
	b.free = append(b.free, v)
	return v
}

func (b *Bridge) releaseView(view callengine.ViewHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.inUse, view); i >= 0 {
		b.inUse = slices.Delete(b.inUse, i, i+1)
		b.free = append(b.free, view)
	}
}

func (b *Bridge) releaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.free = append(b.free, b.inUse...)
	b.inUse = nil
}

func (b *Bridge) OnIncomingCall(call *core.Call) {
	b.broadcast(eventOutbound(core.EventIncomingCall, proto.EventCall{Call: callToProto(call)}))
}

func (b *Bridge) OnRinging(call *core.Call) {
	b.broadcast(eventOutbound(core.EventRinging, proto.EventCall{Call: callToProto(call)}))
}

func (b *Bridge) OnConnected(call *core.Call) {
	b.broadcast(eventOutbound(core.EventConnected, proto.EventCall{Call: callToProto(call)}))
}

func (b *Bridge) OnDisconnected(call *core.Call, reason core.DisconnectReason) {
	b.releaseAll()
	b.broadcast(disconnectedOutbound(call, reason))
}

func (b *Bridge) OnCallMembershipChanged(call *core.Call, ev core.MembershipEvent) {
	b.broadcast(membershipOutbound(call, ev))
}

func (b *Bridge) OnMediaChanged(call *core.Call, ev core.MediaEvent) {
	if ev.Stream != nil {
		switch {
		case ev.Kind == core.MediaAuxStreamClosed,
			ev.Kind == core.MediaAuxStreamOpened && !ev.On:
			b.releaseView(ev.Stream.View)
		}
	}
	b.broadcast(mediaOutbound(call, ev))
}

func (b *Bridge) OnAuxStreamAvailable(call *core.Call) callengine.ViewHandle {
	view := b.takeView()
	b.broadcast(eventOutbound(core.EventAuxStreamAvailable, proto.EventAux{Call: callToProto(call), View: string(view)}))
	return view
}

func (b *Bridge) OnAuxStreamUnavailable(call *core.Call) callengine.ViewHandle {
	view := b.lastView()
	b.broadcast(eventOutbound(core.EventAuxStreamUnavailable, proto.EventAux{Call: callToProto(call), View: string(view)}))
	return view
}

func (b *Bridge) OnVideoActivationRequested(call *core.Call) {
	b.broadcast(eventOutbound(core.EventVideoActivationRequested, proto.EventCall{Call: callToProto(call)}))
}

func (b *Bridge) OnVideoActivationDeclined(err *core.CallError) {
	b.broadcast(activationDeclinedOutbound(err))
}
