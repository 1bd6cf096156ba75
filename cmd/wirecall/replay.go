package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/callengine/loopback"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/log"
)

// replayScript drives a phone on the loopback engine.
//
//	video_activated: false
//	views: [aux-1, aux-2]
//	steps:
//	  - action: dial
//	    address: bob@example.com
//	  - notify: {kind: call_connected, call_id: call-1}
type replayScript struct {
	VideoActivated bool         `yaml:"video_activated"`
	Views          []string     `yaml:"views"`
	Steps          []replayStep `yaml:"steps"`
}

type replayStep struct {
	Action  string `yaml:"action"`
	Address string `yaml:"address"`
	Video   bool   `yaml:"video"`
	Digits  string `yaml:"digits"`
	Accept  bool   `yaml:"accept"`
	View    string `yaml:"view"`

	Notify *callengine.Notification `yaml:"notify"`
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Feed a scripted call to a phone and print its events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			var script replayScript
			if err := yaml.Unmarshal(raw, &script); err != nil {
				return fmt.Errorf("parse script: %w", err)
			}

			level := root.logLevel
			if level == "" {
				level = "disabled"
			}
			logger := log.NewWithFormat(level, root.logFormat, cmd.ErrOrStderr())
			return runReplay(cmd.Context(), script, cmd.OutOrStdout(), logger, settle)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 50*time.Millisecond, "quiet period that ends each step")
	return cmd
}

func runReplay(ctx context.Context, script replayScript, out io.Writer, logger *zerolog.Logger, settle time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := loopback.New(loopback.WithAutoConfirm())
	defer engine.Close()

	printer := newEventPrinter(out, script.Views)
	var seq int
	phone := core.NewPhone(engine, printer, logger,
		core.WithVideoActivated(script.VideoActivated),
		core.WithCallIDs(func() callengine.CallID {
			seq++
			return callengine.CallID("call-" + strconv.Itoa(seq))
		}),
	)
	go phone.Run(ctx)

	if _, err := phone.Register(ctx); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	for i, step := range script.Steps {
		if err := runStep(ctx, phone, engine, step); err != nil {
			printer.printStepError(i, step.Action, err)
		}
		if err := settleReplay(ctx, phone, engine, printer, settle); err != nil {
			return err
		}
	}
	return nil
}

func runStep(ctx context.Context, phone *core.Phone, engine *loopback.Engine, step replayStep) error {
	if step.Notify != nil {
		engine.Inject(*step.Notify)
		return nil
	}

	media := callengine.AudioOnly()
	if step.Video {
		media = callengine.AudioVideo("", "")
	}

	var err error
	switch step.Action {
	case "dial":
		_, err = phone.Dial(ctx, step.Address, media)
	case "answer":
		_, err = phone.Answer(ctx, media)
	case "reject":
		_, err = phone.Reject(ctx)
	case "hangup":
		_, err = phone.Hangup(ctx)
	case "dtmf":
		err = phone.SendDTMF(ctx, step.Digits)
	case "activation":
		_, err = phone.ResolveVideoActivation(ctx, step.Accept)
	case "aux_open":
		err = phone.SubscribeAuxVideo(ctx, callengine.ViewHandle(step.View))
	case "aux_close":
		err = phone.UnsubscribeAuxVideo(ctx, callengine.ViewHandle(step.View))
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}
	return err
}

// settleReplay waits until the engine queue is drained, the phone has
// handled it, and no event was printed for one quiet period.
func settleReplay(ctx context.Context, phone *core.Phone, engine *loopback.Engine, printer *eventPrinter, quiet time.Duration) error {
	for {
		for !engine.Idle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
		if _, err := phone.Current(ctx); err != nil {
			return err
		}
		before := printer.count()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(quiet):
		}
		if engine.Idle() && printer.count() == before {
			return nil
		}
	}
}

// eventPrinter writes every phone event as one JSON line. Aux streams are
// opened in the views it was given, first come first served.
type eventPrinter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	written int
	free    deque.Deque[callengine.ViewHandle]
	inUse   []callengine.ViewHandle
}

var _ core.Handler = (*eventPrinter)(nil)

type printedEvent struct {
	Event      string                 `json:"event"`
	Call       *core.Call             `json:"call,omitempty"`
	Reason     *core.DisconnectReason `json:"reason,omitempty"`
	Membership *core.MembershipEvent  `json:"membership,omitempty"`
	Media      *core.MediaEvent       `json:"media,omitempty"`
	View       string                 `json:"view,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Step       *int                   `json:"step,omitempty"`
}

func newEventPrinter(out io.Writer, views []string) *eventPrinter {
	p := &eventPrinter{enc: json.NewEncoder(out)}
	for _, v := range views {
		p.free.PushBack(callengine.ViewHandle(v))
	}
	return p
}

func (p *eventPrinter) print(ev printedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(ev)
	p.written++
}

func (p *eventPrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

func (p *eventPrinter) printStepError(step int, action string, err error) {
	ev := printedEvent{Event: "step_failed", Error: err.Error(), Step: &step}
	if action != "" {
		ev.Event = action + "_failed"
	}
	var ce *core.CallError
	if errors.As(err, &ce) {
		ev.Code = ce.Code
	}
	p.print(ev)
}

func (p *eventPrinter) OnIncomingCall(call *core.Call) {
	p.print(printedEvent{Event: core.EventIncomingCall.String(), Call: call})
}

func (p *eventPrinter) OnRinging(call *core.Call) {
	p.print(printedEvent{Event: core.EventRinging.String(), Call: call})
}

func (p *eventPrinter) OnConnected(call *core.Call) {
	p.print(printedEvent{Event: core.EventConnected.String(), Call: call})
}

func (p *eventPrinter) OnDisconnected(call *core.Call, reason core.DisconnectReason) {
	p.mu.Lock()
	for _, v := range p.inUse {
		p.free.PushBack(v)
	}
	p.inUse = nil
	p.mu.Unlock()
	p.print(printedEvent{Event: core.EventDisconnected.String(), Call: call, Reason: &reason})
}

func (p *eventPrinter) OnCallMembershipChanged(call *core.Call, ev core.MembershipEvent) {
	p.print(printedEvent{Event: core.EventMembershipChanged.String(), Call: call, Membership: &ev})
}

func (p *eventPrinter) OnMediaChanged(call *core.Call, ev core.MediaEvent) {
	closed := ev.Kind == core.MediaAuxStreamClosed || (ev.Kind == core.MediaAuxStreamOpened && !ev.On)
	if closed && ev.Stream != nil {
		p.mu.Lock()
		if i := slices.Index(p.inUse, ev.Stream.View); i >= 0 {
			p.inUse = slices.Delete(p.inUse, i, i+1)
			p.free.PushBack(ev.Stream.View)
		}
		p.mu.Unlock()
	}
	p.print(printedEvent{Event: core.EventMediaChanged.String(), Call: call, Media: &ev})
}

func (p *eventPrinter) OnAuxStreamAvailable(call *core.Call) callengine.ViewHandle {
	p.mu.Lock()
	var view callengine.ViewHandle
	if p.free.Len() > 0 {
		view = p.free.PopFront()
		p.inUse = append(p.inUse, view)
	}
	p.mu.Unlock()
	p.print(printedEvent{Event: core.EventAuxStreamAvailable.String(), Call: call, View: string(view)})
	return view
}

func (p *eventPrinter) OnAuxStreamUnavailable(call *core.Call) callengine.ViewHandle {
	p.mu.Lock()
	var view callengine.ViewHandle
	if n := len(p.inUse); n > 0 {
		view = p.inUse[n-1]
		p.inUse = p.inUse[:n-1]
		p.free.PushBack(view)
	}
	p.mu.Unlock()
	p.print(printedEvent{Event: core.EventAuxStreamUnavailable.String(), Call: call, View: string(view)})
	return view
}

func (p *eventPrinter) OnVideoActivationRequested(call *core.Call) {
	p.print(printedEvent{Event: core.EventVideoActivationRequested.String(), Call: call})
}

func (p *eventPrinter) OnVideoActivationDeclined(err *core.CallError) {
	p.print(printedEvent{Event: core.EventVideoActivationDeclined.String(), Call: err.Call, Error: err.Message, Code: err.Code})
}
