package types

// Model is a model file discovered under the models directory.
type Model struct {
	// Stable identifier: the file name including extension.
	// example: qwen2.5-0.5b-instruct-q4_k_m.gguf
	ID string `json:"id" example:"qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/qwen2.5-0.5b-instruct-q4_k_m.gguf
	Path string `json:"path" example:"/home/user/models/qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// File size in bytes.
	// example: 491400032
	Size int64 `json:"size" example:"491400032"`
}
