// Package api defines the wire API between controllers, extensions, and the relay.
//
// Each message is a JSON-encoded packet of the following structure:
//
//	t - (required) one of the predefined unique packet types;
//	p - (optional) packet payload with arbitrary data.
//
// The packets differentiate by their predefined types with which it is
// possible to unwrap the payload into distinct request/response structures.
//
// Example:
//
//	{"t":21,"p":{"sessionId":"ab...89","from":"p1","type":"keydown","key":"w","ts":1700000000000}}
package api

import (
	"github.com/goccy/go-json"
)

type PT uint8

// Packet codes:
//
//	x   - liveness
//	1x  - join handshake
//	2x  - input fan-out
//	3x  - session membership notifications
const (
	Ping                  PT = 1
	Pong                  PT = 2
	Join                  PT = 10
	JoinAck               PT = 11
	JoinError             PT = 12
	Input                 PT = 20
	SessionInput          PT = 21
	ExtensionConnected    PT = 30
	ExtensionDisconnected PT = 31
	ControllerJoined      PT = 32
	ControllerLeft        PT = 33
	SessionReady          PT = 34
)

func (p PT) String() string {
	switch p {
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Join:
		return "Join"
	case JoinAck:
		return "JoinAck"
	case JoinError:
		return "JoinError"
	case Input:
		return "Input"
	case SessionInput:
		return "SessionInput"
	case ExtensionConnected:
		return "ExtensionConnected"
	case ExtensionDisconnected:
		return "ExtensionDisconnected"
	case ControllerJoined:
		return "ControllerJoined"
	case ControllerLeft:
		return "ControllerLeft"
	case SessionReady:
		return "SessionReady"
	default:
		return "Unknown"
	}
}

type In struct {
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	T       PT  `json:"t"`
	Payload any `json:"p,omitempty"`
}

// Connection roles.
const (
	RoleExtension  = "extension"
	RoleController = "controller"
)

type JoinRequest struct {
	SessionId string `json:"sessionId"`
	Role      string `json:"role"`
	Player    string `json:"player,omitempty"`
}

type JoinAckResponse struct {
	Role             string `json:"role"`
	SessionId        string `json:"sessionId"`
	Assigned         string `json:"assigned,omitempty"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	IsReady          *bool  `json:"isReady,omitempty"`
}

type JoinErrorResponse struct {
	Error string `json:"error"`
}

// InputRequest carries one raw input sample from a controller.
// The From field of the fan-out event is always derived server-side,
// any client-supplied origin is discarded.
type InputRequest struct {
	SessionId string   `json:"sessionId"`
	Type      string   `json:"type"`
	Key       string   `json:"key,omitempty"`
	Code      string   `json:"code,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

// InputEvent is the fan-out form of InputRequest with server-set
// origin slot and timestamp. Absent optional fields stay absent.
type InputEvent struct {
	SessionId string   `json:"sessionId"`
	From      string   `json:"from"`
	Type      string   `json:"type"`
	Key       string   `json:"key,omitempty"`
	Code      string   `json:"code,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Ts        int64    `json:"ts"`
}

type ExtensionConnectedNotice struct {
	SessionId string `json:"sessionId"`
}

type ExtensionDisconnectedNotice struct {
	SessionId string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type ControllerJoinedNotice struct {
	SessionId        string `json:"sessionId"`
	Player           string `json:"player"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	IsReady          bool   `json:"isReady"`
}

type ControllerLeftNotice = ControllerJoinedNotice

type SessionReadyNotice struct {
	SessionId        string `json:"sessionId"`
	ConnectedPlayers int    `json:"connectedPlayers"`
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
