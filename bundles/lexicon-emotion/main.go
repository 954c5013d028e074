// Command lexicon-emotion is a dependency-free text emotion bundle. It scores
// text against a small word lexicon and speaks the model bundle protocol:
// one JSON request on stdin, one JSON response on stdout.
//
// Build it next to its manifest:
//
//	go build -o bundles/lexicon-emotion/lexicon-emotion ./bundles/lexicon-emotion
package main

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/moodlens/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// labels are reported in this order.
var labels = []string{"anger", "fear", "joy", "neutral", "sadness", "surprise"}

var lexicon = map[string]string{
	"angry": "anger", "furious": "anger", "hate": "anger", "annoyed": "anger", "mad": "anger", "rage": "anger",
	"afraid": "fear", "scared": "fear", "anxious": "fear", "worried": "fear", "terrified": "fear", "nervous": "fear",
	"happy": "joy", "glad": "joy", "great": "joy", "love": "joy", "excited": "joy", "wonderful": "joy", "sunny": "joy",
	"sad": "sadness", "unhappy": "sadness", "lonely": "sadness", "cry": "sadness", "miserable": "sadness", "lost": "sadness",
	"wow": "surprise", "unexpected": "surprise", "shocked": "surprise", "amazed": "surprise", "suddenly": "surprise",
}

// negators flip the next emotional word to neutral.
var negators = map[string]bool{"not": true, "no": true, "never": true, "don't": true, "isn't": true}

func main() {
	var req model.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(model.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	switch req.Kind {
	case model.KindTextEmotion, model.KindMentalHealth:
	default:
		writeResponse(model.Response{Error: fmt.Sprintf("unsupported kind: %s", req.Kind)})
		return
	}

	writeResponse(model.Response{
		Success:       true,
		Probabilities: score(req.Text, req.MaxTokens),
	})
}

// score returns add-one smoothed label frequencies over at most maxTokens
// words. Text with no lexicon hits leans neutral.
func score(text string, maxTokens int) map[string]float64 {
	counts := make(map[string]float64, len(labels))
	for _, l := range labels {
		counts[l] = 1
	}

	words := tokenize(text)
	if maxTokens > 0 && len(words) > maxTokens {
		words = words[:maxTokens]
	}

	hits := 0
	negate := false
	for _, w := range words {
		if negators[w] {
			negate = true
			continue
		}
		if label, ok := lexicon[w]; ok {
			if negate {
				label = "neutral"
			}
			counts[label] += 2
			hits++
		}
		negate = false
	}
	if hits == 0 {
		counts["neutral"] += 2
	}

	var total float64
	for _, c := range counts {
		total += c
	}
	probs := make(map[string]float64, len(counts))
	for l, c := range counts {
		probs[l] = c / total
	}
	return probs
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func writeResponse(resp model.Response) {
	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode response: %v\n", err)
		os.Exit(1)
	}
}
