package protocol

// CommandType tags a message sent from the dispatcher to the engine.
type CommandType string

const (
	CmdWarmup   CommandType = "warmup"
	CmdClassify CommandType = "classify"
	CmdAnswer   CommandType = "answer"
)

// Command is the closed set of dispatcher -> engine messages.
type Command interface {
	Type() CommandType
	RequestID() int64
	isCommand()
}

// GenOpts are caller-tunable generation options for answers.
type GenOpts struct {
	MaxNewTokens int `json:"maxNewTokens,omitempty"`
}

// Payload is the body of a classify/answer request. Category is only used by
// answers in the two-stage flow.
type Payload struct {
	Question string   `json:"question"`
	Category string   `json:"category,omitempty"`
	GenOpts  *GenOpts `json:"genOpts,omitempty"`
}

// Warmup asks the engine to load its generation pipeline.
type Warmup struct{}

// Classify asks for the category of Payload.Question.
type Classify struct {
	ReqID   int64   `json:"reqId"`
	Payload Payload `json:"payload"`
}

// Answer asks for an answer to Payload.Question.
type Answer struct {
	ReqID   int64   `json:"reqId"`
	Payload Payload `json:"payload"`
}

func (Warmup) Type() CommandType   { return CmdWarmup }
func (Classify) Type() CommandType { return CmdClassify }
func (Answer) Type() CommandType   { return CmdAnswer }

func (Warmup) RequestID() int64     { return 0 }
func (c Classify) RequestID() int64 { return c.ReqID }
func (c Answer) RequestID() int64   { return c.ReqID }

func (Warmup) isCommand()   {}
func (Classify) isCommand() {}
func (Answer) isCommand()   {}

// NewRequest builds the command for a request kind. It returns nil for
// CmdWarmup or unknown kinds.
func NewRequest(kind CommandType, reqID int64, p Payload) Command {
	switch kind {
	case CmdClassify:
		return Classify{ReqID: reqID, Payload: p}
	case CmdAnswer:
		return Answer{ReqID: reqID, Payload: p}
	}
	return nil
}
