package core

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

// dispatcher delivers events to the Handler on its own goroutine. push never
// blocks, so the Phone loop is never held up by a slow handler.
type dispatcher struct {
	handler Handler
	log     *zerolog.Logger

	mu     sync.Mutex
	queue  deque.Deque[*Event]
	signal chan struct{}

	// aux receives the open/close requests produced by the aux callbacks.
	aux chan<- auxRequest
}

func newDispatcher(handler Handler, logger *zerolog.Logger, aux chan<- auxRequest) *dispatcher {
	if handler == nil {
		handler = NopHandler{}
	}
	return &dispatcher{
		handler: handler,
		log:     logger,
		signal:  make(chan struct{}, 1),
		aux:     aux,
	}
}

func (d *dispatcher) push(ev *Event) {
	d.mu.Lock()
	d.queue.PushBack(ev)
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) next() (*Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue.Len() == 0 {
		return nil, false
	}
	return d.queue.PopFront(), true
}

// run delivers events until ctx is done.
func (d *dispatcher) run(ctx context.Context) {
	for {
		ev, ok := d.next()
		if !ok {
			select {
			case <-d.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		d.deliver(ctx, ev)
	}
}

func (d *dispatcher) deliver(ctx context.Context, ev *Event) {
	h := d.handler
	switch ev.Kind {
	case EventIncomingCall:
		h.OnIncomingCall(ev.Call)
	case EventRinging:
		h.OnRinging(ev.Call)
	case EventConnected:
		h.OnConnected(ev.Call)
	case EventDisconnected:
		h.OnDisconnected(ev.Call, ev.Reason)
	case EventMembershipChanged:
		h.OnCallMembershipChanged(ev.Call, *ev.Membership)
	case EventMediaChanged:
		h.OnMediaChanged(ev.Call, *ev.Media)
	case EventAuxStreamAvailable:
		if view := h.OnAuxStreamAvailable(ev.Call); view != "" {
			d.request(ctx, auxRequest{call: ev.Call.ID, open: true, view: view})
		}
	case EventAuxStreamUnavailable:
		view := h.OnAuxStreamUnavailable(ev.Call)
		d.request(ctx, auxRequest{call: ev.Call.ID, view: view})
	case EventVideoActivationRequested:
		h.OnVideoActivationRequested(ev.Call)
	case EventVideoActivationDeclined:
		h.OnVideoActivationDeclined(ev.Error)
	default:
		d.log.Warn().Str("kind", ev.Kind.String()).Msg("unknown event kind")
	}
}

func (d *dispatcher) request(ctx context.Context, r auxRequest) {
	select {
	case d.aux <- r:
	case <-ctx.Done():
		d.log.Debug().
			Str("call_id", string(r.call)).
			Str("view", string(r.view)).
			Msg("drop aux request on shutdown")
	}
}
