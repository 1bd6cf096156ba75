package core

import (
	"fmt"

	"github.com/vovakirdan/wirecall/internal/callengine"
)

// DisconnectKind is the variant of a DisconnectReason.
type DisconnectKind int

const (
	// DisconnectLocalLeft: the local user left a connected call.
	DisconnectLocalLeft DisconnectKind = iota
	// DisconnectLocalDecline: the local user declined an incoming call.
	DisconnectLocalDecline
	// DisconnectLocalCancel: the local user cancelled an outgoing call before it connected.
	DisconnectLocalCancel
	// DisconnectRemoteLeft: the remote party left a connected call.
	DisconnectRemoteLeft
	// DisconnectRemoteDecline: the remote party declined an outgoing call.
	DisconnectRemoteDecline
	// DisconnectRemoteCancel: the caller cancelled an incoming call before it was answered.
	DisconnectRemoteCancel
	// DisconnectOtherConnected: another device of the same account joined the call.
	DisconnectOtherConnected
	// DisconnectOtherDeclined: another device of the same account declined the call.
	DisconnectOtherDeclined
	// DisconnectError: the engine reported a reason that could not be classified.
	DisconnectError
)

var disconnectKindNames = [...]string{
	DisconnectLocalLeft:      "local_left",
	DisconnectLocalDecline:   "local_decline",
	DisconnectLocalCancel:    "local_cancel",
	DisconnectRemoteLeft:     "remote_left",
	DisconnectRemoteDecline:  "remote_decline",
	DisconnectRemoteCancel:   "remote_cancel",
	DisconnectOtherConnected: "other_connected",
	DisconnectOtherDeclined:  "other_declined",
	DisconnectError:          "error",
}

func (k DisconnectKind) String() string {
	if k < 0 || int(k) >= len(disconnectKindNames) {
		return "unknown"
	}
	return disconnectKindNames[k]
}

// DisconnectReason explains why a call ended. Code carries the raw engine
// reason for DisconnectError.
type DisconnectReason struct {
	Kind DisconnectKind `json:"kind"`
	Code string         `json:"code,omitempty"`
}

func (r DisconnectReason) String() string {
	if r.Kind == DisconnectError {
		return fmt.Sprintf("error(%s)", r.Code)
	}
	return r.Kind.String()
}

// Err returns the ServiceFailed error for DisconnectError reasons and nil otherwise.
func (r DisconnectReason) Err() error {
	if r.Kind != DisconnectError {
		return nil
	}
	return callError(ErrCodeServiceFailed, "service failed: "+r.Code, nil)
}

// ActivationDeclinedReason is the release reason recorded for a call that was
// discarded because video activation was declined. No engine termination
// follows, so handlers close the call from OnVideoActivationDeclined.
func ActivationDeclinedReason(call *Call) DisconnectReason {
	if call != nil && call.Direction == DirectionIncoming {
		return DisconnectReason{Kind: DisconnectLocalDecline}
	}
	return DisconnectReason{Kind: DisconnectLocalCancel}
}

// Classify maps a raw engine termination reason to a DisconnectReason.
// localEnded is set when the local user rejected or ended the call.
func Classify(raw string, dir Direction, status CallStatus, localEnded bool) DisconnectReason {
	connected := status >= StatusConnected
	switch raw {
	case callengine.ReasonCancelledByLocalUser:
		return DisconnectReason{Kind: DisconnectLocalCancel}
	case callengine.ReasonEndedByLocalUser:
		switch {
		case connected:
			return DisconnectReason{Kind: DisconnectLocalLeft}
		case dir == DirectionIncoming:
			return DisconnectReason{Kind: DisconnectLocalDecline}
		default:
			return DisconnectReason{Kind: DisconnectLocalCancel}
		}
	case callengine.ReasonDeclinedByRemoteUser:
		return DisconnectReason{Kind: DisconnectRemoteDecline}
	case callengine.ReasonEndedByRemoteUser:
		switch {
		case connected:
			return DisconnectReason{Kind: DisconnectRemoteLeft}
		case dir == DirectionOutgoing:
			return DisconnectReason{Kind: DisconnectRemoteDecline}
		case localEnded:
			return DisconnectReason{Kind: DisconnectLocalDecline}
		default:
			return DisconnectReason{Kind: DisconnectOtherDeclined}
		}
	case callengine.ReasonEndedByLocus:
		if dir == DirectionIncoming && !connected {
			return DisconnectReason{Kind: DisconnectRemoteCancel}
		}
	}
	return DisconnectReason{Kind: DisconnectError, Code: raw}
}

// terminatedReason picks the raw reason for a CallTerminated that carried none.
func terminatedReason(c *Call) string {
	switch {
	case c.localEnded:
		return callengine.ReasonEndedByLocalUser
	case c.Direction == DirectionIncoming && c.Status < StatusConnected:
		return callengine.ReasonEndedByLocus
	default:
		return callengine.ReasonEndedByRemoteUser
	}
}
