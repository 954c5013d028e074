package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/logging"
	"github.com/ayusman/moodlens/internal/store"
)

// voiceFailure is the body returned when an audio upload cannot be
// classified. It is sent with status 200.
const voiceFailure = "Failed to process audio file"

// PredictionHandler serves the text and voice classifier endpoints.
type PredictionHandler struct {
	mentalHealth classifier.TextClassifier
	textEmotion  classifier.TextClassifier
	voice        classifier.VoiceClassifier
	store        *store.Store
	logger       logrus.FieldLogger
	maxUpload    int64
}

// PredictionConfig wires a PredictionHandler. Nil classifiers answer 503.
type PredictionConfig struct {
	MentalHealth   classifier.TextClassifier
	TextEmotion    classifier.TextClassifier
	Voice          classifier.VoiceClassifier
	Store          *store.Store
	Logger         logrus.FieldLogger
	MaxUploadBytes int64
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(cfg PredictionConfig) *PredictionHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	return &PredictionHandler{
		mentalHealth: cfg.MentalHealth,
		textEmotion:  cfg.TextEmotion,
		voice:        cfg.Voice,
		store:        cfg.Store,
		logger:       cfg.Logger,
		maxUpload:    cfg.MaxUploadBytes,
	}
}

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type textEmotionResponse struct {
	Text             string             `json:"text"`
	PredictedEmotion string             `json:"predicted_emotion"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
}

type voiceResponse struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// MentalHealth handles POST /predict-mental-health.
func (h *PredictionHandler) MentalHealth(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r, h.mentalHealth)
	if !ok {
		return
	}

	p, err := h.mentalHealth.Classify(r.Context(), text)
	if err != nil {
		h.logger.WithError(err).Error("mental health prediction failed")
		if errors.Is(err, classifier.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	row := map[string]interface{}{
		"statement":        text,
		"predicted_status": p.Label,
	}
	for label, prob := range p.Probabilities {
		row["probability_"+label] = prob
	}

	h.record(store.KindMentalHealth, text, p)
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": []map[string]interface{}{row}})
}

// TextEmotion handles POST /predict-emotion-text-new.
func (h *PredictionHandler) TextEmotion(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r, h.textEmotion)
	if !ok {
		return
	}

	p, err := h.textEmotion.Classify(r.Context(), text)
	if err != nil {
		h.logger.WithError(err).Error("text emotion prediction failed")
		if errors.Is(err, classifier.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.record(store.KindTextEmotion, text, p)
	writeJSON(w, http.StatusOK, textEmotionResponse{
		Text:             text,
		PredictedEmotion: p.Label,
		Confidence:       p.Confidence,
		AllProbabilities: p.Probabilities,
	})
}

// Voice handles POST /predict-emotion-voice/ with a multipart "file" field.
func (h *PredictionHandler) Voice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "voice model unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	p, err := h.voice.Classify(r.Context(), data, format)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"filename": header.Filename,
			"format":   format,
		}).WithError(err).Warn("voice prediction failed")
		writeJSON(w, http.StatusOK, errorResponse{Error: voiceFailure})
		return
	}

	h.record(store.KindVoiceEmotion, header.Filename, p)
	writeJSON(w, http.StatusOK, voiceResponse{Emotion: p.Label, Confidence: p.Confidence})
}

// readText checks method and availability, then decodes the body.
func (h *PredictionHandler) readText(w http.ResponseWriter, r *http.Request, c classifier.TextClassifier) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "model unavailable")
		return "", false
	}

	var req textRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return "", false
	}
	return req.Text, true
}

func (h *PredictionHandler) record(kind store.PredictionKind, input string, p *classifier.Prediction) {
	if h.store == nil {
		return
	}
	err := h.store.Predictions().Create(&store.Prediction{
		Kind:          kind,
		Input:         input,
		Label:         p.Label,
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
	})
	if err != nil {
		h.logger.WithError(err).WithField("kind", kind).Error("failed to record prediction")
	}
}
