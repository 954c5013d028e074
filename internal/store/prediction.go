package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PredictionKind identifies which classifier produced a prediction.
type PredictionKind string

const (
	// KindMentalHealth is the text mental-health status classifier.
	KindMentalHealth PredictionKind = "mental_health"
	// KindTextEmotion is the text emotion classifier.
	KindTextEmotion PredictionKind = "text_emotion"
	// KindVoiceEmotion is the speech emotion classifier.
	KindVoiceEmotion PredictionKind = "voice_emotion"
)

// Valid reports whether k is a known prediction kind.
func (k PredictionKind) Valid() bool {
	switch k {
	case KindMentalHealth, KindTextEmotion, KindVoiceEmotion:
		return true
	}
	return false
}

// Prediction is a recorded classifier result.
type Prediction struct {
	ID            string             `json:"id"`
	Kind          PredictionKind     `json:"kind"`
	Input         string             `json:"input"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// PredictionRepository provides access to recorded predictions.
type PredictionRepository struct {
	db *sql.DB
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// Create inserts a prediction, assigning an ID and timestamp when unset.
func (r *PredictionRepository) Create(p *Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	probs := p.Probabilities
	if probs == nil {
		probs = map[string]float64{}
	}
	data, err := json.Marshal(probs)
	if err != nil {
		return fmt.Errorf("failed to encode probabilities: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO predictions (id, kind, input, label, confidence, probabilities, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), p.Input, p.Label, p.Confidence, string(data), p.CreatedAt,
	)
	return err
}

// List returns predictions newest first, optionally filtered by kind.
// An empty kind matches all kinds; a limit <= 0 returns every row.
func (r *PredictionRepository) List(kind PredictionKind, limit int) ([]*Prediction, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT id, kind, input, label, confidence, probabilities, created_at FROM predictions`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := []*Prediction{}
	for rows.Next() {
		p := &Prediction{}
		var kindStr, probs string
		if err := rows.Scan(&p.ID, &kindStr, &p.Input, &p.Label, &p.Confidence, &probs, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Kind = PredictionKind(kindStr)
		if err := json.Unmarshal([]byte(probs), &p.Probabilities); err != nil {
			return nil, fmt.Errorf("failed to decode probabilities for prediction %s: %w", p.ID, err)
		}
		predictions = append(predictions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return predictions, nil
}

// Count returns the number of predictions of the given kind.
func (r *PredictionRepository) Count(kind PredictionKind) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM predictions WHERE kind = ?`, string(kind)).Scan(&n)
	return n, err
}
