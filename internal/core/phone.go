package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// request is an application command executed inside the Phone loop.
type request struct {
	fn    func(fx *effects) (*Call, error)
	reply chan reply
}

type reply struct {
	call *Call
	err  error
}

// Option configures a Phone.
type Option func(*Phone)

// WithVideoActivated starts the phone with the video license already activated.
func WithVideoActivated(activated bool) Option {
	return func(p *Phone) { p.m.license.activated = activated }
}

// WithClock overrides the time source used for call timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Phone) { p.m.now = now }
}

// WithCallIDs overrides the generator of outgoing call ids.
func WithCallIDs(next func() callengine.CallID) Option {
	return func(p *Phone) { p.m.newID = next }
}

// Phone owns the single active call. Run must be running for any command to
// complete; it is the only goroutine that touches call state.
type Phone struct {
	engine     callengine.Engine
	log        *zerolog.Logger
	m          *machine
	dispatcher *dispatcher

	requests chan *request
	aux      chan auxRequest
	done     chan struct{}
}

// NewPhone creates a phone on top of engine. handler may be nil.
func NewPhone(engine callengine.Engine, handler Handler, logger *zerolog.Logger, opts ...Option) *Phone {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	aux := make(chan auxRequest)
	p := &Phone{
		engine:     engine,
		log:        logger,
		m:          newMachine(logger),
		dispatcher: newDispatcher(handler, logger, aux),
		requests:   make(chan *request),
		aux:        aux,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes commands and engine notifications until ctx is done.
func (p *Phone) Run(ctx context.Context) {
	defer close(p.done)
	go p.dispatcher.run(ctx)

	notifications := p.engine.Notifications()
	p.log.Info().Msg("phone started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("phone stopped")
			return
		case req := <-p.requests:
			var fx effects
			call, err := req.fn(&fx)
			p.apply(ctx, fx)
			req.reply <- reply{call: call, err: err}
		case n, ok := <-notifications:
			if !ok {
				p.log.Warn().Msg("engine notification stream closed")
				notifications = nil
				continue
			}
			p.apply(ctx, p.m.handle(n))
		case r := <-p.aux:
			p.apply(ctx, p.m.handleAuxRequest(r))
		}
	}
}

// apply hands events to the dispatcher and issues engine commands. Command
// failures are logged; their outcome is expected as notifications.
func (p *Phone) apply(ctx context.Context, fx effects) {
	for _, ev := range fx.events {
		p.dispatcher.push(ev)
	}
	for _, cmd := range fx.commands {
		follow, err := cmd.run(ctx, p.engine)
		if err != nil {
			p.log.Error().
				Err(fmt.Errorf("engine %s: %w", cmd.name, err)).
				Str("call_id", string(cmd.call)).
				Msg("engine command failed")
			continue
		}
		if follow != nil {
			p.apply(ctx, p.m.handle(*follow))
		}
	}
}

func (p *Phone) do(ctx context.Context, fn func(fx *effects) (*Call, error)) (*Call, error) {
	req := &request{fn: fn, reply: make(chan reply, 1)}
	select {
	case p.requests <- req:
	case <-p.done:
		return nil, ErrPhoneStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.call, r.err
	case <-p.done:
		return nil, ErrPhoneStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register connects the local session to the engine.
func (p *Phone) Register(ctx context.Context) (callengine.DeviceInfo, error) {
	info, err := p.engine.Register(ctx)
	if err != nil {
		return callengine.DeviceInfo{}, fmt.Errorf("register: %w", err)
	}
	_, err = p.do(ctx, func(*effects) (*Call, error) {
		p.m.register(info)
		return nil, nil
	})
	if err != nil {
		return callengine.DeviceInfo{}, err
	}
	p.log.Info().Str("device_url", info.DeviceURL).Str("person_id", info.PersonID).Msg("phone registered")
	return info, nil
}

// Deregister disconnects the local session. Dial fails with Unregistered afterwards.
func (p *Phone) Deregister(ctx context.Context) error {
	if _, err := p.do(ctx, func(*effects) (*Call, error) {
		p.m.deregister()
		return nil, nil
	}); err != nil {
		return err
	}
	if err := p.engine.Deregister(ctx); err != nil {
		return fmt.Errorf("deregister: %w", err)
	}
	p.log.Info().Msg("phone deregistered")
	return nil
}

// Dial places an outgoing call. The returned call is a snapshot; progress is
// reported through the Handler.
func (p *Phone) Dial(ctx context.Context, address string, media *callengine.MediaOption) (*Call, error) {
	return p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.dial(address, media, fx)
	})
}

// Answer joins the incoming call.
func (p *Phone) Answer(ctx context.Context, media *callengine.MediaOption) (*Call, error) {
	return p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.answer(media, fx)
	})
}

// Reject declines the incoming call.
func (p *Phone) Reject(ctx context.Context) (*Call, error) {
	return p.do(ctx, p.m.reject)
}

// Hangup ends or cancels the active call.
func (p *Phone) Hangup(ctx context.Context) (*Call, error) {
	return p.do(ctx, p.m.hangup)
}

// SendDTMF sends DTMF digits on the connected call.
func (p *Phone) SendDTMF(ctx context.Context, digits string) error {
	_, err := p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.sendDTMF(digits, fx)
	})
	return err
}

// ResolveVideoActivation answers a video activation request. Accepting
// activates the license for the process and issues the parked command.
func (p *Phone) ResolveVideoActivation(ctx context.Context, accept bool) (*Call, error) {
	return p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.resolveActivation(accept, fx)
	})
}

// UpdateMediaOption changes the media option of the active call. Video
// requires the license to be activated already.
func (p *Phone) UpdateMediaOption(ctx context.Context, media *callengine.MediaOption) (*Call, error) {
	return p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.updateMediaOption(media, fx)
	})
}

func (p *Phone) toggle(ctx context.Context, t mediaToggle, on bool) error {
	_, err := p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.setMedia(t, on, fx)
	})
	return err
}

// SetSendingAudio unmutes or mutes the local microphone.
func (p *Phone) SetSendingAudio(ctx context.Context, on bool) error {
	return p.toggle(ctx, toggleSendingAudio, on)
}

// SetSendingVideo unmutes or mutes the local camera.
func (p *Phone) SetSendingVideo(ctx context.Context, on bool) error {
	return p.toggle(ctx, toggleSendingVideo, on)
}

func (p *Phone) SetReceivingAudio(ctx context.Context, on bool) error {
	return p.toggle(ctx, toggleReceivingAudio, on)
}

func (p *Phone) SetReceivingVideo(ctx context.Context, on bool) error {
	return p.toggle(ctx, toggleReceivingVideo, on)
}

func (p *Phone) SetReceivingShare(ctx context.Context, on bool) error {
	return p.toggle(ctx, toggleReceivingShare, on)
}

// SubscribeAuxVideo opens an aux stream rendering into view.
func (p *Phone) SubscribeAuxVideo(ctx context.Context, view callengine.ViewHandle) error {
	_, err := p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.subscribeAux(view, fx)
	})
	return err
}

// UnsubscribeAuxVideo closes the aux stream rendering into view, or the most
// recently opened one when view is empty.
func (p *Phone) UnsubscribeAuxVideo(ctx context.Context, view callengine.ViewHandle) error {
	_, err := p.do(ctx, func(fx *effects) (*Call, error) {
		return p.m.unsubscribeAux(view, fx)
	})
	return err
}

// Current returns a snapshot of the active call, or nil.
func (p *Phone) Current(ctx context.Context) (*Call, error) {
	return p.do(ctx, func(*effects) (*Call, error) {
		return p.m.active().Snapshot(), nil
	})
}

// IsUsed reports whether a call is in use.
func (p *Phone) IsUsed(ctx context.Context) (bool, error) {
	c, err := p.Current(ctx)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}
