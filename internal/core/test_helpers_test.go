package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/callengine/loopback"
)

var selfDevice = callengine.DeviceInfo{
	DeviceURL: "loopback://devices/self",
	PersonID:  "me",
}

var zeroTime time.Time

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustMedia(t *testing.T, ch <-chan *Event, kind MediaEventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventMediaChanged && ev.Media.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected media event %v not received", kind)
	return nil
}

// waitCommands polls the engine until it recorded n commands with the given name.
func waitCommands(t *testing.T, eng *loopback.Engine, name string, n int) []loopback.Command {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cmds := eng.CommandsNamed(name); len(cmds) >= n {
			return cmds
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d %s commands, got %d", n, name, len(eng.CommandsNamed(name)))
	return nil
}

// recorder is a Handler that forwards every callback as an Event. Aux
// availability callbacks hand out the queued views in order.
type recorder struct {
	events chan *Event

	mu    sync.Mutex
	views []callengine.ViewHandle
	// onConnected runs inside OnConnected, on the dispatcher goroutine.
	onConnected func(call *Call)
}

func newRecorder(views ...callengine.ViewHandle) *recorder {
	return &recorder{events: make(chan *Event, 256), views: views}
}

func (r *recorder) OnIncomingCall(call *Call) {
	r.events <- &Event{Kind: EventIncomingCall, Call: call}
}

func (r *recorder) OnRinging(call *Call) {
	r.events <- &Event{Kind: EventRinging, Call: call}
}

func (r *recorder) OnConnected(call *Call) {
	r.mu.Lock()
	hook := r.onConnected
	r.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	r.events <- &Event{Kind: EventConnected, Call: call}
}

func (r *recorder) OnDisconnected(call *Call, reason DisconnectReason) {
	r.events <- &Event{Kind: EventDisconnected, Call: call, Reason: reason}
}

func (r *recorder) OnCallMembershipChanged(call *Call, ev MembershipEvent) {
	r.events <- &Event{Kind: EventMembershipChanged, Call: call, Membership: &ev}
}

func (r *recorder) OnMediaChanged(call *Call, ev MediaEvent) {
	r.events <- &Event{Kind: EventMediaChanged, Call: call, Media: &ev}
}

func (r *recorder) OnAuxStreamAvailable(call *Call) callengine.ViewHandle {
	r.events <- &Event{Kind: EventAuxStreamAvailable, Call: call}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return ""
	}
	v := r.views[0]
	r.views = r.views[1:]
	return v
}

func (r *recorder) OnAuxStreamUnavailable(call *Call) callengine.ViewHandle {
	r.events <- &Event{Kind: EventAuxStreamUnavailable, Call: call}
	return ""
}

func (r *recorder) OnVideoActivationRequested(call *Call) {
	r.events <- &Event{Kind: EventVideoActivationRequested, Call: call}
}

func (r *recorder) OnVideoActivationDeclined(err *CallError) {
	r.events <- &Event{Kind: EventVideoActivationDeclined, Call: err.Call, Error: err}
}

// startPhone runs a registered phone on a loopback engine.
func startPhone(t *testing.T, rec *recorder, engOpts []loopback.Option, opts ...Option) (context.Context, *Phone, *loopback.Engine) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	eng := loopback.New(append([]loopback.Option{loopback.WithDevice(selfDevice)}, engOpts...)...)
	t.Cleanup(eng.Close)

	p := NewPhone(eng, rec, nil, opts...)
	go p.Run(ctx)

	if _, err := p.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	return ctx, p, eng
}

func newTestMachine() *machine {
	nop := zerolog.Nop()
	m := newMachine(&nop)
	m.register(selfDevice)
	return m
}

func participant(id, state string, devices ...callengine.Device) callengine.Participant {
	return callengine.Participant{
		PersonID: id,
		Email:    id + "@example.com",
		State:    state,
		Devices:  devices,
	}
}

func self(state string, devices ...callengine.Device) callengine.Participant {
	p := participant(selfDevice.PersonID, state, devices...)
	p.IsSelf = true
	return p
}

func thisDevice(state string) callengine.Device {
	return callengine.Device{Type: "desktop", State: state, URL: selfDevice.DeviceURL}
}

func snapshot(id callengine.CallID, oneToOne bool, ps ...callengine.Participant) callengine.Notification {
	if ps == nil {
		ps = []callengine.Participant{}
	}
	return callengine.Notification{
		Kind:         callengine.NotifyParticipantsChanged,
		CallID:       id,
		OneToOne:     oneToOne,
		Participants: ps,
	}
}

func eventKinds(fx effects) []EventKind {
	out := make([]EventKind, 0, len(fx.events))
	for _, ev := range fx.events {
		out = append(out, ev.Kind)
	}
	return out
}

func membershipKinds(fx effects) []MembershipEventKind {
	var out []MembershipEventKind
	for _, ev := range fx.events {
		if ev.Kind == EventMembershipChanged {
			out = append(out, ev.Membership.Kind)
		}
	}
	return out
}

func commandNames(fx effects) []string {
	out := make([]string, 0, len(fx.commands))
	for _, c := range fx.commands {
		out = append(out, c.name)
	}
	return out
}

func countKind(fx effects, kind EventKind) int {
	n := 0
	for _, ev := range fx.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
