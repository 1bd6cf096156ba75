package core

import (
	"context"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// PendingKind tells which command is parked behind the video license.
type PendingKind int

const (
	// PendingNone means nothing is parked.
	PendingNone PendingKind = iota
	// PendingDial parks an outgoing dial.
	PendingDial
	// PendingAnswer parks the answer of an incoming call.
	PendingAnswer
)

func (k PendingKind) String() string {
	switch k {
	case PendingDial:
		return "dial"
	case PendingAnswer:
		return "answer"
	default:
		return "none"
	}
}

// PendingAction is the command a call would have issued had video been licensed.
type PendingAction struct {
	Kind    PendingKind            `json:"kind"`
	Address string                 `json:"address,omitempty"`
	Media   callengine.MediaOption `json:"media"`
}

// DialWith parks a dial to address.
func DialWith(address string, media callengine.MediaOption) PendingAction {
	return PendingAction{Kind: PendingDial, Address: address, Media: media}
}

// AnswerWith parks an answer.
func AnswerWith(media callengine.MediaOption) PendingAction {
	return PendingAction{Kind: PendingAnswer, Media: media}
}

// IsNone reports whether no action is parked.
func (a PendingAction) IsNone() bool {
	return a.Kind == PendingNone
}

// licenseGate is the process-wide video codec activation flag.
type licenseGate struct {
	activated bool
}

// admit reports whether media may be used right away.
func (g *licenseGate) admit(media callengine.MediaOption) bool {
	return g.activated || !media.HasVideo()
}

// park stores action on the call and asks the application for activation.
func (m *machine) park(c *Call, action PendingAction, fx *effects) {
	c.Pending = action
	m.log.Info().
		Str("call_id", string(c.ID)).
		Str("pending", action.Kind.String()).
		Msg("video activation requested")
	fx.emit(&Event{Kind: EventVideoActivationRequested, Call: c.Snapshot()})
}

// resolveActivation resumes or discards the parked action of the active call.
func (m *machine) resolveActivation(accept bool, fx *effects) (*Call, error) {
	c := m.active()
	if c == nil || c.Pending.IsNone() {
		return nil, callError(ErrCodeIllegalStatus, "no video activation pending", c)
	}
	action := c.Pending
	c.Pending = PendingAction{}

	if accept {
		m.license.activated = true
		switch action.Kind {
		case PendingDial:
			m.issueDial(c, action.Address, action.Media, fx)
		case PendingAnswer:
			m.issueJoin(c, action.Media, fx)
		}
		return c.Snapshot(), nil
	}

	m.log.Info().
		Str("call_id", string(c.ID)).
		Str("pending", action.Kind.String()).
		Msg("video activation declined")
	if action.Kind == PendingAnswer {
		c.localEnded = true
		id := c.ID
		fx.issue("decline", id, func(ctx context.Context, e callengine.Engine) error {
			return e.Decline(ctx, id)
		})
	}
	err := callError(ErrCodeRequireVideoCapability, "video capability was not activated", c)
	fx.emit(&Event{Kind: EventVideoActivationDeclined, Call: c.Snapshot(), Error: err})
	m.discard(c)
	return c.Snapshot(), nil
}
