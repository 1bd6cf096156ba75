package core

import "github.com/vovakirdan/wirecall/internal/callengine"

// Handler receives call callbacks. All methods run on a single dispatcher
// goroutine in the order the events happened, so they may call back into
// the Phone.
type Handler interface {
	OnIncomingCall(call *Call)
	OnRinging(call *Call)
	OnConnected(call *Call)
	OnDisconnected(call *Call, reason DisconnectReason)
	OnCallMembershipChanged(call *Call, ev MembershipEvent)
	OnMediaChanged(call *Call, ev MediaEvent)

	// OnAuxStreamAvailable returns the view to open one more aux stream in,
	// or an empty handle to leave the slot unused.
	OnAuxStreamAvailable(call *Call) callengine.ViewHandle
	// OnAuxStreamUnavailable returns the view of the aux stream to close, or
	// an empty handle to close the most recently opened one.
	OnAuxStreamUnavailable(call *Call) callengine.ViewHandle

	OnVideoActivationRequested(call *Call)
	OnVideoActivationDeclined(err *CallError)
}

// NopHandler ignores every callback. Embed it to implement only some of them.
type NopHandler struct{}

func (NopHandler) OnIncomingCall(*Call) {}
func (NopHandler) OnRinging(*Call) {}
func (NopHandler) OnConnected(*Call) {}
func (NopHandler) OnDisconnected(*Call, DisconnectReason) {}
func (NopHandler) OnCallMembershipChanged(*Call, MembershipEvent) {}
func (NopHandler) OnMediaChanged(*Call, MediaEvent) {}
func (NopHandler) OnAuxStreamAvailable(*Call) callengine.ViewHandle { return "" }
func (NopHandler) OnAuxStreamUnavailable(*Call) callengine.ViewHandle { return "" }
func (NopHandler) OnVideoActivationRequested(*Call) {}
func (NopHandler) OnVideoActivationDeclined(*CallError) {}

// MultiHandler fans every callback out to its handlers in order. For the aux
// callbacks the first non-empty handle wins, the remaining handlers are
// still called.
type MultiHandler []Handler

func (hs MultiHandler) OnIncomingCall(call *Call) {
	for _, h := range hs {
		h.OnIncomingCall(call)
	}
}

func (hs MultiHandler) OnRinging(call *Call) {
	for _, h := range hs {
		h.OnRinging(call)
	}
}

func (hs MultiHandler) OnConnected(call *Call) {
	for _, h := range hs {
		h.OnConnected(call)
	}
}

func (hs MultiHandler) OnDisconnected(call *Call, reason DisconnectReason) {
	for _, h := range hs {
		h.OnDisconnected(call, reason)
	}
}

func (hs MultiHandler) OnCallMembershipChanged(call *Call, ev MembershipEvent) {
	for _, h := range hs {
		h.OnCallMembershipChanged(call, ev)
	}
}

func (hs MultiHandler) OnMediaChanged(call *Call, ev MediaEvent) {
	for _, h := range hs {
		h.OnMediaChanged(call, ev)
	}
}

func (hs MultiHandler) OnAuxStreamAvailable(call *Call) callengine.ViewHandle {
	var view callengine.ViewHandle
	for _, h := range hs {
		if v := h.OnAuxStreamAvailable(call); view == "" {
			view = v
		}
	}
	return view
}

func (hs MultiHandler) OnAuxStreamUnavailable(call *Call) callengine.ViewHandle {
	var view callengine.ViewHandle
	for _, h := range hs {
		if v := h.OnAuxStreamUnavailable(call); view == "" {
			view = v
		}
	}
	return view
}

func (hs MultiHandler) OnVideoActivationRequested(call *Call) {
	for _, h := range hs {
		h.OnVideoActivationRequested(call)
	}
}

func (hs MultiHandler) OnVideoActivationDeclined(err *CallError) {
	for _, h := range hs {
		h.OnVideoActivationDeclined(err)
	}
}

var (
	_ Handler = NopHandler{}
	_ Handler = MultiHandler(nil)
)
