// Package classifier exposes the text and voice classifiers backed by model
// bundles.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/moodlens/internal/model"
)

var (
	// ErrEmptyInput is returned for blank text or empty audio.
	ErrEmptyInput = errors.New("empty input")
	// ErrNoPrediction is returned when a model answers without a usable
	// distribution or label.
	ErrNoPrediction = errors.New("model returned no prediction")
)

// Default tokenizer limits per text model kind.
const (
	MentalHealthMaxTokens = 128
	TextEmotionMaxTokens  = 64
)

// Prediction is a classifier result. Probabilities sum to one when the model
// reports a distribution.
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// TextClassifier labels a piece of text.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (*Prediction, error)
}

// VoiceClassifier labels an audio clip. format is the file extension
// without the dot, e.g. "wav" or "mp3".
type VoiceClassifier interface {
	Classify(ctx context.Context, audio []byte, format string) (*Prediction, error)
}

type runner struct {
	bundle *model.Bundle
	exec   *model.Executor
}

func newRunner(manager *model.Manager, exec *model.Executor, kind model.Kind) (runner, error) {
	b, err := manager.ByKind(kind)
	if err != nil {
		return runner{}, fmt.Errorf("%s: %w", kind, err)
	}
	return runner{bundle: b, exec: exec}, nil
}

func (r runner) run(ctx context.Context, req *model.Request) (*Prediction, error) {
	resp, err := r.exec.Execute(ctx, r.bundle, req)
	if err != nil {
		return nil, err
	}
	return toPrediction(resp, r.bundle.Manifest.Labels)
}

// Device reports where the bundle runs.
func (r runner) Device() string {
	if r.bundle.Manifest.Device == "" {
		return "cpu"
	}
	return r.bundle.Manifest.Device
}

// toPrediction normalizes the reported distribution and fills the label and
// confidence from its argmax when the model leaves them out.
func toPrediction(resp *model.Response, labels []string) (*Prediction, error) {
	order := labels
	if len(order) == 0 {
		order = make([]string, 0, len(resp.Probabilities))
		for k := range resp.Probabilities {
			order = append(order, k)
		}
		sort.Strings(order)
	}

	p := &Prediction{
		Label:         resp.Label,
		Confidence:    resp.Confidence,
		Probabilities: map[string]float64{},
	}

	if len(resp.Probabilities) > 0 {
		vec := make([]float64, len(order))
		for i, label := range order {
			vec[i] = resp.Probabilities[label]
		}

		if sum := floats.Sum(vec); sum > 0 {
			floats.Scale(1/sum, vec)
			best := floats.MaxIdx(vec)
			for i, label := range order {
				p.Probabilities[label] = vec[i]
			}
			if p.Label == "" {
				p.Label = order[best]
			}
			if p.Confidence == 0 {
				p.Confidence = p.Probabilities[p.Label]
			}
		}
	}

	if p.Label == "" {
		return nil, ErrNoPrediction
	}
	return p, nil
}

// TextModel classifies text with a mental-health or text-emotion bundle.
type TextModel struct {
	runner
	kind      model.Kind
	maxTokens int
}

// NewTextModel binds the bundle serving kind.
func NewTextModel(manager *model.Manager, exec *model.Executor, kind model.Kind) (*TextModel, error) {
	r, err := newRunner(manager, exec, kind)
	if err != nil {
		return nil, err
	}

	maxTokens := r.bundle.Manifest.MaxTokens
	if maxTokens == 0 {
		maxTokens = TextEmotionMaxTokens
		if kind == model.KindMentalHealth {
			maxTokens = MentalHealthMaxTokens
		}
	}

	return &TextModel{runner: r, kind: kind, maxTokens: maxTokens}, nil
}

// Classify runs the model over text.
func (m *TextModel) Classify(ctx context.Context, text string) (*Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return m.run(ctx, &model.Request{
		Kind:      m.kind,
		Text:      text,
		MaxTokens: m.maxTokens,
	})
}

// VoiceModel classifies speech clips.
type VoiceModel struct {
	runner
}

// NewVoiceModel binds the voice emotion bundle.
func NewVoiceModel(manager *model.Manager, exec *model.Executor) (*VoiceModel, error) {
	r, err := newRunner(manager, exec, model.KindVoiceEmotion)
	if err != nil {
		return nil, err
	}
	return &VoiceModel{runner: r}, nil
}

// Classify normalizes WAV input to mono 22050 Hz five second clips before
// handing it to the model. Other formats are passed through with their
// format name for the model to convert.
func (m *VoiceModel) Classify(ctx context.Context, audio []byte, format string) (*Prediction, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyInput
	}

	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "wav" {
		normalized, err := NormalizeWAV(audio)
		if err != nil {
			return nil, err
		}
		audio = normalized
	}

	return m.run(ctx, &model.Request{
		Kind:       model.KindVoiceEmotion,
		Audio:      audio,
		Format:     format,
		SampleRate: SampleRate,
	})
}
