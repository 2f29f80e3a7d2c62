package protocol

// EventType tags a message sent from the engine to the dispatcher.
type EventType string

const (
	TypeReady      EventType = "ready"
	TypeProgress   EventType = "progress"
	TypeLog        EventType = "log"
	TypeHeartbeat  EventType = "heartbeat"
	TypeClassified EventType = "classified"
	TypeResult     EventType = "result"
	TypeError      EventType = "error"
)

// Event is the closed set of engine -> dispatcher messages. Only the types in
// this package implement it.
//
// RequestID returns 0 for untagged events (engine lifecycle noise, readiness,
// startup failures). Request ids start at 1.
type Event interface {
	Type() EventType
	RequestID() int64
	isEvent()
}

// Ready is the process-wide readiness signal emitted after a successful warmup.
type Ready struct {
	ModelID    string `json:"modelId"`
	Backend    string `json:"backend,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
}

// Progress reports either model-loading phases (untagged) or generation
// progress for an in-flight answer (tagged).
type Progress struct {
	ReqID  int64  `json:"reqId,omitempty"`
	Status string `json:"status"`
	// load fields
	Name   string `json:"name,omitempty"`
	File   string `json:"file,omitempty"`
	Loaded int64  `json:"loaded,omitempty"`
	Total  int64  `json:"total,omitempty"`
	// generation fields
	Tokens  int     `json:"tokens,omitempty"`
	Max     int     `json:"max,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Secs    float64 `json:"secs,omitempty"`
}

// Log carries engine diagnostics. Extra is free-form and only meant for humans.
type Log struct {
	ReqID int64          `json:"reqId,omitempty"`
	Msg   string         `json:"msg"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Heartbeat is a pure liveness signal for a request that is not producing
// progress yet, e.g. while it waits for the generation slot.
type Heartbeat struct {
	ReqID  int64  `json:"reqId"`
	Reason string `json:"reason,omitempty"`
}

// Classified terminates a classify request.
type Classified struct {
	ReqID    int64  `json:"reqId"`
	Category string `json:"category"`
}

// Result terminates an answer request.
type Result struct {
	ReqID  int64  `json:"reqId"`
	Answer string `json:"answer"`
}

// Error terminates a request (ReqID > 0) or reports a startup failure (ReqID == 0).
type Error struct {
	ReqID   int64  `json:"reqId,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes carried by Error.Code.
const (
	CodeBusy     = "busy"
	CodeStartup  = "startup"
	CodeInternal = "internal"
)

func (Ready) Type() EventType      { return TypeReady }
func (Progress) Type() EventType   { return TypeProgress }
func (Log) Type() EventType        { return TypeLog }
func (Heartbeat) Type() EventType  { return TypeHeartbeat }
func (Classified) Type() EventType { return TypeClassified }
func (Result) Type() EventType     { return TypeResult }
func (Error) Type() EventType      { return TypeError }

func (Ready) RequestID() int64        { return 0 }
func (e Progress) RequestID() int64   { return e.ReqID }
func (e Log) RequestID() int64        { return e.ReqID }
func (e Heartbeat) RequestID() int64  { return e.ReqID }
func (e Classified) RequestID() int64 { return e.ReqID }
func (e Result) RequestID() int64     { return e.ReqID }
func (e Error) RequestID() int64      { return e.ReqID }

func (Ready) isEvent()      {}
func (Progress) isEvent()   {}
func (Log) isEvent()        {}
func (Heartbeat) isEvent()  {}
func (Classified) isEvent() {}
func (Result) isEvent()     {}
func (Error) isEvent()      {}

// IsTerminal reports whether ev ends the lifecycle of the request it is tagged with.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Classified, Result:
		return true
	case Error:
		return ev.RequestID() > 0
	}
	return false
}

// Renews reports whether ev is a liveness signal for its request, i.e. a
// tagged heartbeat, progress or log event.
func Renews(ev Event) bool {
	if ev.RequestID() <= 0 {
		return false
	}
	switch ev.(type) {
	case Heartbeat, Progress, Log:
		return true
	}
	return false
}
