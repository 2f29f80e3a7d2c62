package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolError reports a malformed or unexpected message shape.
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Raw) == 0 {
		return "protocol: " + e.Reason
	}
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120]
	}
	return fmt.Sprintf("protocol: %s: %q", e.Reason, raw)
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}

// malformed copies raw, since transports may reuse their read buffers.
func malformed(reason string, raw []byte) *ProtocolError {
	return &ProtocolError{Reason: reason, Raw: append([]byte(nil), raw...)}
}

type envelope struct {
	Type  string `json:"type"`
	ReqID int64  `json:"reqId"`
}

// EncodeEvent serializes ev as a single JSON object with a "type" tag.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, &ProtocolError{Reason: "nil event"}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return withType(string(ev.Type()), b), nil
}

// EncodeCommand serializes c as a single JSON object with a "type" tag.
func EncodeCommand(c Command) ([]byte, error) {
	if c == nil {
		return nil, &ProtocolError{Reason: "nil command"}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return withType(string(c.Type()), b), nil
}

// withType splices a "type" member into the front of a marshaled object.
// t is always one of the package constants, so it needs no escaping.
func withType(t string, obj []byte) []byte {
	head := `{"type":"` + t + `"`
	if len(obj) <= 2 {
		return []byte(head + "}")
	}
	out := make([]byte, 0, len(head)+len(obj))
	out = append(out, head...)
	out = append(out, ',')
	return append(out, obj[1:]...)
}

// DecodeEvent parses one engine message. Every failure is a *ProtocolError.
func DecodeEvent(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, malformed("invalid json: "+err.Error(), b)
	}
	var (
		ev  Event
		err error
	)
	switch EventType(env.Type) {
	case TypeReady:
		var v Ready
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeProgress:
		var v Progress
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeLog:
		var v Log
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeHeartbeat:
		var v Heartbeat
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeClassified:
		var v Classified
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeResult:
		var v Result
		err = json.Unmarshal(b, &v)
		ev = v
	case TypeError:
		var v Error
		err = json.Unmarshal(b, &v)
		ev = v
	case "":
		return nil, malformed("missing type", b)
	default:
		return nil, malformed("unknown event type "+env.Type, b)
	}
	if err != nil {
		return nil, malformed("invalid "+env.Type+" event: "+err.Error(), b)
	}
	if env.ReqID < 0 {
		return nil, malformed("negative reqId", b)
	}
	switch ev.(type) {
	case Classified, Result, Heartbeat:
		if ev.RequestID() == 0 {
			return nil, malformed(env.Type+" event without reqId", b)
		}
	}
	return ev, nil
}

// DecodeCommand parses one dispatcher message. Every failure is a *ProtocolError.
func DecodeCommand(b []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, malformed("invalid json: "+err.Error(), b)
	}
	switch CommandType(env.Type) {
	case CmdWarmup:
		return Warmup{}, nil
	case CmdClassify, CmdAnswer:
		var body struct {
			ReqID   int64   `json:"reqId"`
			Payload Payload `json:"payload"`
		}
		if err := json.Unmarshal(b, &body); err != nil {
			return nil, malformed("invalid "+env.Type+" command: "+err.Error(), b)
		}
		if body.ReqID <= 0 {
			return nil, malformed(env.Type+" command without reqId", b)
		}
		return NewRequest(CommandType(env.Type), body.ReqID, body.Payload), nil
	case "":
		return nil, malformed("missing type", b)
	default:
		return nil, malformed("unknown command type "+env.Type, b)
	}
}
