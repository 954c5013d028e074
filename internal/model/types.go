// Package model discovers pretrained model bundles on disk and runs them as
// subprocesses speaking JSON over stdin and stdout.
package model

// Kind identifies what a model bundle predicts.
type Kind string

const (
	KindMentalHealth Kind = "mental_health"
	KindTextEmotion  Kind = "text_emotion"
	KindVoiceEmotion Kind = "voice_emotion"
)

// Manifest describes a model bundle. It is read from model.json.
type Manifest struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Labels      []string `json:"labels"`
	// MaxTokens bounds the tokenizer input length for text models.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Device reports where the model runs, e.g. "cpu" or "cuda".
	Device string `json:"device,omitempty"`
}

// Request is sent to a bundle on stdin.
type Request struct {
	Kind       Kind   `json:"kind"`
	Text       string `json:"text,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
}

// Response is read from a bundle's stdout.
type Response struct {
	Success       bool               `json:"success"`
	Error         string             `json:"error,omitempty"`
	Label         string             `json:"label,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Bundle is a discovered model with its manifest and location.
type Bundle struct {
	Manifest   Manifest
	Path       string
	Executable string
}
