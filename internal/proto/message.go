package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello = "hello"
	InboundTypeAux   = "aux_view"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
	OutboundTypeReady = "ready"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// AuxViewData offers a render target for the next available aux stream.
type AuxViewData struct {
	View string `json:"view"`
}

// Ready confirms the client is subscribed to call events.
type Ready struct {
	ClientID string `json:"client_id"`
	Protocol int    `json:"protocol"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ==== HTTP requests ====

// DialRequest places an outgoing call.
type DialRequest struct {
	Address    string `json:"address" binding:"required"`
	Video      bool   `json:"video"`
	Share      bool   `json:"share"`
	LocalView  string `json:"local_view,omitempty"`
	RemoteView string `json:"remote_view,omitempty"`
}

// AnswerRequest answers the incoming call.
type AnswerRequest struct {
	Video      bool   `json:"video"`
	LocalView  string `json:"local_view,omitempty"`
	RemoteView string `json:"remote_view,omitempty"`
}

// DTMFRequest sends tones on the connected call.
type DTMFRequest struct {
	Digits string `json:"digits"`
}

// MediaOptionRequest replaces the media option of the active call.
type MediaOptionRequest struct {
	Video      bool   `json:"video"`
	Share      bool   `json:"share"`
	LocalView  string `json:"local_view,omitempty"`
	RemoteView string `json:"remote_view,omitempty"`
}

// ActivationRequest resolves a pending video license prompt.
type ActivationRequest struct {
	Accept bool `json:"accept"`
}

// AuxRequest opens or closes an aux stream rendered into View.
type AuxRequest struct {
	View string `json:"view"`
}

// MediaRequest toggles local and receive media. Nil fields are left alone.
type MediaRequest struct {
	Audio        *bool `json:"audio,omitempty"`
	Video        *bool `json:"video,omitempty"`
	ReceiveAudio *bool `json:"receive_audio,omitempty"`
	ReceiveVideo *bool `json:"receive_video,omitempty"`
	ReceiveShare *bool `json:"receive_share,omitempty"`
}

// ==== Payloads ====

// Device is the registered engine identity.
type Device struct {
	DeviceURL string `json:"device_url"`
	PersonID  string `json:"person_id"`
}

// MediaFlags mirrors the engine-confirmed media state.
type MediaFlags struct {
	SendingAudio   bool `json:"sending_audio"`
	SendingVideo   bool `json:"sending_video"`
	SendingShare   bool `json:"sending_share"`
	ReceivingAudio bool `json:"receiving_audio"`
	ReceivingVideo bool `json:"receiving_video"`
	ReceivingShare bool `json:"receiving_share"`
}

// Membership is one participant of a call.
type Membership struct {
	PersonID     string `json:"person_id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	State        string `json:"state"`
	IsSelf       bool   `json:"is_self,omitempty"`
	IsInitiator  bool   `json:"is_initiator,omitempty"`
	SendingAudio bool   `json:"sending_audio"`
	SendingVideo bool   `json:"sending_video"`
	SendingShare bool   `json:"sending_share"`
}

// AuxStream is one opened auxiliary video stream.
type AuxStream struct {
	Track        string `json:"track,omitempty"`
	View         string `json:"view,omitempty"`
	PersonID     string `json:"person_id,omitempty"`
	SendingVideo bool   `json:"sending_video"`
	InUse        bool   `json:"in_use"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// Call is a snapshot of the active call.
type Call struct {
	ID                 string       `json:"id"`
	Direction          string       `json:"direction"`
	Status             string       `json:"status"`
	Address            string       `json:"address,omitempty"`
	OneToOne           bool         `json:"one_to_one"`
	SignalingConnected bool         `json:"signaling_connected"`
	MediaConnected     bool         `json:"media_connected"`
	JoinedCount        int          `json:"joined_count"`
	Pending            string       `json:"pending,omitempty"`
	ReleaseReason      string       `json:"release_reason,omitempty"`
	Local              MediaFlags   `json:"local"`
	Remote             MediaFlags   `json:"remote"`
	Memberships        []Membership `json:"memberships,omitempty"`
	AuxStreams         []AuxStream  `json:"aux_streams,omitempty"`
	CreatedAt          int64        `json:"created_at"`
	ConnectedAt        int64        `json:"connected_at,omitempty"`
	EndedAt            int64        `json:"ended_at,omitempty"`
}

// EventCall carries the call for lifecycle events.
type EventCall struct {
	Call Call `json:"call"`
}

// EventDisconnected reports the release reason. Error is set for
// unclassified engine terminations.
type EventDisconnected struct {
	Call   Call   `json:"call"`
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// EventMembership carries one membership change.
type EventMembership struct {
	Call       Call       `json:"call"`
	Kind       string     `json:"kind"`
	Membership Membership `json:"membership"`
}

// EventMedia carries one confirmed media change.
type EventMedia struct {
	Call   Call       `json:"call"`
	Kind   string     `json:"kind"`
	Track  string     `json:"track,omitempty"`
	On     bool       `json:"on"`
	Width  int        `json:"width,omitempty"`
	Height int        `json:"height,omitempty"`
	Stream *AuxStream `json:"stream,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// EventActivationDeclined reports a dropped dial or answer.
type EventActivationDeclined struct {
	Call  *Call `json:"call,omitempty"`
	Error Error `json:"error"`
}

// EventAux reports aux stream availability and the view the bridge answered with.
type EventAux struct {
	Call Call   `json:"call"`
	View string `json:"view,omitempty"`
}

// CallRecord is one entry of the call history.
type CallRecord struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Address     string `json:"address,omitempty"`
	OneToOne    bool   `json:"one_to_one"`
	Reason      string `json:"reason"`
	ReasonCode  string `json:"reason_code,omitempty"`
	CreatedAt   string `json:"created_at"`
	ConnectedAt string `json:"connected_at,omitempty"`
	EndedAt     string `json:"ended_at"`
}
