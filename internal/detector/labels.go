package detector

// emotionLabels is indexed by detector class id.
var emotionLabels = []string{
	"anger",
	"content",
	"disgust",
	"fear",
	"happy",
	"neutral",
	"sad",
	"surprise",
}

// EmotionLabels returns a copy of the emotion label set in class index order.
func EmotionLabels() []string {
	out := make([]string, len(emotionLabels))
	copy(out, emotionLabels)
	return out
}

// LabelFor returns the label for classID within labels, and false when the
// index falls outside the set.
func LabelFor(labels []string, classID int) (string, bool) {
	if classID < 0 || classID >= len(labels) {
		return "", false
	}
	return labels[classID], true
}
