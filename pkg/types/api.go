package types

// ClassifyRequest is the body of POST /v1/classify.
type ClassifyRequest struct {
	// Required question text.
	// example: ¿Qué es el ADN?
	Question string `json:"question" example:"¿Qué es el ADN?"`
	// Optional per-request timeout in milliseconds. Values below the server
	// minimum are raised to it.
	// example: 60000
	TimeoutMS int64 `json:"timeout_ms,omitempty" example:"60000"`
}

// ClassifyResponse is returned by POST /v1/classify.
type ClassifyResponse struct {
	// Category label from the configured taxonomy.
	// example: biologia
	Category string `json:"category" example:"biologia"`
}

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	// Required question text.
	// example: ¿Qué es el ADN?
	Question string `json:"question" example:"¿Qué es el ADN?"`
	// Optional category injected into the answer instruction.
	// example: biologia
	Category string `json:"category,omitempty" example:"biologia"`
	// Optional generation budget; clamped to the server ceiling.
	// example: 96
	MaxNewTokens int `json:"max_new_tokens,omitempty" example:"96"`
	// Optional per-request timeout in milliseconds.
	// example: 180000
	TimeoutMS int64 `json:"timeout_ms,omitempty" example:"180000"`
}

// AnswerResponse is returned by POST /v1/answer.
type AnswerResponse struct {
	// example: El ADN es la molécula que contiene la información genética.
	Answer string `json:"answer" example:"El ADN es la molécula que contiene la información genética."`
}

// AskRequest is the body of POST /v1/ask (classify, then answer).
type AskRequest struct {
	// example: ¿Qué es el ADN?
	Question     string `json:"question" example:"¿Qué es el ADN?"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty" example:"96"`
	TimeoutMS    int64  `json:"timeout_ms,omitempty" example:"180000"`
}

// AskResponse carries both stages of an ask.
type AskResponse struct {
	// example: biologia
	Category string `json:"category" example:"biologia"`
	// example: El ADN es la molécula que contiene la información genética.
	Answer string `json:"answer" example:"El ADN es la molécula que contiene la información genética."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Whether the engine has signaled readiness.
	// example: true
	Ready bool `json:"ready" example:"true"`
	// Dispatcher startup state: idle, starting, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Identifier of the loaded model.
	// example: qwen2.5-0.5b-instruct-q4_k_m.gguf
	ModelID string `json:"model_id,omitempty" example:"qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// Generation backend: llama or openai.
	// example: llama
	Backend string `json:"backend,omitempty" example:"llama"`
	// Engine instance identifier, new on every engine start.
	// example: 1b4e28ba-2fa1-11d2-883f-0016d3cca427
	InstanceID string `json:"instance_id,omitempty" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	// Number of requests awaiting a terminal event.
	// example: 1
	Pending int `json:"pending" example:"1"`
	// Total number of engine launches.
	// example: 1
	Starts uint64 `json:"starts" example:"1"`
	// Last startup failure or channel loss, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
