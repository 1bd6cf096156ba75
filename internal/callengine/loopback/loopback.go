// Package loopback provides an in-memory callengine.Engine.
// It records every command it receives and delivers injected notifications
// in order. With auto-confirm enabled it also answers the commands a real
// engine would confirm asynchronously (dial, aux subscribe, mutes).
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// Command names recorded by the engine.
const (
	CmdRegister       = "register"
	CmdDeregister     = "deregister"
	CmdDial           = "dial"
	CmdJoin           = "join"
	CmdDecline        = "decline"
	CmdEnd            = "end"
	CmdSetMediaOption = "set_media_option"
	CmdMuteLocalAudio = "mute_local_audio"
	CmdMuteLocalVideo = "mute_local_video"
	CmdMuteRemote     = "mute_remote"
	CmdSubscribeAux   = "subscribe_aux"
	CmdUnsubscribeAux = "unsubscribe_aux"
	CmdSendDTMF       = "send_dtmf"
)

// Command is one recorded engine command.
type Command struct {
	Name    string
	CallID  callengine.CallID
	Address string
	Track   callengine.TrackID
	Kind    callengine.MediaKind
	Muted   bool
	Digits  string
	Media   callengine.MediaOption
}

// Option configures an Engine.
type Option func(*Engine)

// WithDevice fixes the identity returned by Register.
func WithDevice(info callengine.DeviceInfo) Option {
	return func(e *Engine) { e.device = info }
}

// WithAutoConfirm makes the engine confirm commands with the notifications a real engine would send.
func WithAutoConfirm() Option {
	return func(e *Engine) { e.autoConfirm = true }
}

// Engine is an in-memory engine.
type Engine struct {
	mu           sync.Mutex
	commands     []Command
	participants map[callengine.CallID][]callengine.Participant
	auxCount     map[callengine.CallID]int
	failures     map[string]error
	device       callengine.DeviceInfo
	autoConfirm  bool
	nextTrack    int
	inflight     bool

	queue  deque.Deque[callengine.Notification]
	signal chan struct{}
	out    chan callengine.Notification
	done   chan struct{}
	once   sync.Once
}

// New creates an engine and starts its delivery goroutine. Call Close to stop it.
func New(opts ...Option) *Engine {
	e := &Engine{
		participants: make(map[callengine.CallID][]callengine.Participant),
		auxCount:     make(map[callengine.CallID]int),
		failures:     make(map[string]error),
		device: callengine.DeviceInfo{
			DeviceURL: "loopback://devices/" + uuid.New().String(),
			PersonID:  uuid.New().String(),
		},
		signal: make(chan struct{}, 1),
		out:    make(chan callengine.Notification),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.pump()
	return e
}

// Close stops notification delivery.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.done) })
}

// Device returns the identity Register hands out.
func (e *Engine) Device() callengine.DeviceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

// Inject queues a notification for delivery. It never blocks.
func (e *Engine) Inject(n callengine.Notification) {
	e.mu.Lock()
	e.queue.PushBack(n)
	e.mu.Unlock()
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// SetParticipants sets the snapshot returned by Participants.
func (e *Engine) SetParticipants(id callengine.CallID, ps []callengine.Participant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.participants[id] = ps
}

// SetAuxTrackCount sets the value returned by AuxTrackCount.
func (e *Engine) SetAuxTrackCount(id callengine.CallID, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auxCount[id] = n
}

// FailOn makes the named command return err.
func (e *Engine) FailOn(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[name] = err
}

// Commands returns a copy of every recorded command.
func (e *Engine) Commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Command, len(e.commands))
	copy(out, e.commands)
	return out
}

// CommandsNamed returns the recorded commands with the given name.
func (e *Engine) CommandsNamed(name string) []Command {
	var out []Command
	for _, c := range e.Commands() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Notifications implements callengine.Engine.
func (e *Engine) Notifications() <-chan callengine.Notification {
	return e.out
}

func (e *Engine) pump() {
	for {
		e.mu.Lock()
		if e.queue.Len() == 0 {
			e.mu.Unlock()
			select {
			case <-e.signal:
				continue
			case <-e.done:
				return
			}
		}
		n := e.queue.PopFront()
		e.inflight = true
		e.mu.Unlock()

		select {
		case e.out <- n:
		case <-e.done:
			return
		}
		e.mu.Lock()
		e.inflight = false
		e.mu.Unlock()
	}
}

// Idle reports whether every injected notification has been handed to the receiver.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len() == 0 && !e.inflight
}

func (e *Engine) record(cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failures[cmd.Name]; ok {
		return fmt.Errorf("loopback %s: %w", cmd.Name, err)
	}
	e.commands = append(e.commands, cmd)
	return nil
}

func (e *Engine) confirm(n callengine.Notification) {
	if e.autoConfirm {
		e.Inject(n)
	}
}

// Register implements callengine.Engine.
func (e *Engine) Register(_ context.Context) (callengine.DeviceInfo, error) {
	if err := e.record(Command{Name: CmdRegister}); err != nil {
		return callengine.DeviceInfo{}, err
	}
	return e.Device(), nil
}

// Deregister implements callengine.Engine.
func (e *Engine) Deregister(_ context.Context) error {
	return e.record(Command{Name: CmdDeregister})
}

// Dial implements callengine.Engine.
func (e *Engine) Dial(_ context.Context, id callengine.CallID, address string, media callengine.MediaOption) error {
	if err := e.record(Command{Name: CmdDial, CallID: id, Address: address, Media: media}); err != nil {
		return err
	}
	e.confirm(callengine.Notification{Kind: callengine.NotifyCallStarted, CallID: id})
	return nil
}

// Join implements callengine.Engine.
func (e *Engine) Join(_ context.Context, id callengine.CallID, media callengine.MediaOption) error {
	return e.record(Command{Name: CmdJoin, CallID: id, Media: media})
}

// Decline implements callengine.Engine.
func (e *Engine) Decline(_ context.Context, id callengine.CallID) error {
	return e.record(Command{Name: CmdDecline, CallID: id})
}

// End implements callengine.Engine.
func (e *Engine) End(_ context.Context, id callengine.CallID) error {
	return e.record(Command{Name: CmdEnd, CallID: id})
}

// SetMediaOption implements callengine.Engine.
func (e *Engine) SetMediaOption(_ context.Context, id callengine.CallID, media callengine.MediaOption) error {
	return e.record(Command{Name: CmdSetMediaOption, CallID: id, Media: media})
}

// MuteLocalAudio implements callengine.Engine.
func (e *Engine) MuteLocalAudio(_ context.Context, id callengine.CallID, muted bool) error {
	if err := e.record(Command{Name: CmdMuteLocalAudio, CallID: id, Muted: muted}); err != nil {
		return err
	}
	e.confirm(callengine.Notification{Kind: callengine.NotifyMuteLocalAudioDone, CallID: id, Flag: muted})
	return nil
}

// MuteLocalVideo implements callengine.Engine.
func (e *Engine) MuteLocalVideo(_ context.Context, id callengine.CallID, muted bool) error {
	if err := e.record(Command{Name: CmdMuteLocalVideo, CallID: id, Muted: muted}); err != nil {
		return err
	}
	e.confirm(callengine.Notification{Kind: callengine.NotifyMuteLocalVideoDone, CallID: id, Flag: muted})
	return nil
}

// MuteRemote implements callengine.Engine.
func (e *Engine) MuteRemote(_ context.Context, id callengine.CallID, track callengine.TrackID, kind callengine.MediaKind, muted bool) error {
	if err := e.record(Command{Name: CmdMuteRemote, CallID: id, Track: track, Kind: kind, Muted: muted}); err != nil {
		return err
	}
	var done callengine.NotificationKind
	switch kind {
	case callengine.MediaAudio:
		done = callengine.NotifyMuteRemoteAudioDone
	case callengine.MediaVideo:
		done = callengine.NotifyMuteRemoteVideoDone
	default:
		done = callengine.NotifyMuteRemoteShareDone
	}
	e.confirm(callengine.Notification{Kind: done, CallID: id, Track: track, Flag: muted})
	return nil
}

// SubscribeAuxTrack implements callengine.Engine.
func (e *Engine) SubscribeAuxTrack(_ context.Context, id callengine.CallID) error {
	if err := e.record(Command{Name: CmdSubscribeAux, CallID: id}); err != nil {
		return err
	}
	if e.autoConfirm {
		e.mu.Lock()
		e.nextTrack++
		track := callengine.TrackID(fmt.Sprintf("aux-%d", e.nextTrack))
		e.mu.Unlock()
		e.Inject(callengine.Notification{Kind: callengine.NotifyAuxTrackOpened, CallID: id, Track: track})
	}
	return nil
}

// UnsubscribeAuxTrack implements callengine.Engine.
func (e *Engine) UnsubscribeAuxTrack(_ context.Context, id callengine.CallID, track callengine.TrackID) error {
	if err := e.record(Command{Name: CmdUnsubscribeAux, CallID: id, Track: track}); err != nil {
		return err
	}
	e.confirm(callengine.Notification{Kind: callengine.NotifyAuxTrackClosed, CallID: id, Track: track})
	return nil
}

// SendDTMF implements callengine.Engine.
func (e *Engine) SendDTMF(_ context.Context, id callengine.CallID, digits string) error {
	return e.record(Command{Name: CmdSendDTMF, CallID: id, Digits: digits})
}

// Participants implements callengine.Engine.
func (e *Engine) Participants(_ context.Context, id callengine.CallID) ([]callengine.Participant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps := e.participants[id]
	out := make([]callengine.Participant, len(ps))
	copy(out, ps)
	return out, nil
}

// AuxTrackCount implements callengine.Engine.
func (e *Engine) AuxTrackCount(_ context.Context, id callengine.CallID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auxCount[id], nil
}

var _ callengine.Engine = (*Engine)(nil)
