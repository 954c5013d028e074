package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// anchorCount returns the number of YOLOv8 prediction cells for a square
// input of the given size (strides 8, 16 and 32).
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := size / stride
		n += side * side
	}
	return n
}

// decodeYOLO converts a YOLOv8 output tensor laid out as [1, 4+classes, anchors]
// into candidate detections in frame pixel coordinates. Candidates scoring
// below threshold are dropped. Class ids outside labels yield an empty Label.
func decodeYOLO(out []float32, classes, anchors int, scaleX, scaleY float64, threshold float64, labels []string) []Detection {
	if len(out) < (4+classes)*anchors {
		return nil
	}

	var dets []Detection
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			score := out[(4+c)*anchors+i]
			if best < 0 || score > bestScore {
				best, bestScore = c, score
			}
		}
		if float64(bestScore) < threshold {
			continue
		}

		cx := float64(out[i])
		cy := float64(out[anchors+i])
		w := float64(out[2*anchors+i])
		h := float64(out[3*anchors+i])

		x1 := int((cx - w/2) * scaleX)
		y1 := int((cy - h/2) * scaleY)
		x2 := int((cx + w/2) * scaleX)
		y2 := int((cy + h/2) * scaleY)

		label, _ := LabelFor(labels, best)
		dets = append(dets, Detection{
			ClassID:    best,
			Label:      label,
			Confidence: float64(bestScore),
			Box:        image.Rect(x1, y1, x2, y2),
		})
	}
	return dets
}

// suppress runs per-class non-maximum suppression over candidates: boxes of
// different classes never suppress each other. The result is ordered by
// descending confidence, matching what the detector reports.
func suppress(cands []Detection, nmsThreshold float64) []Detection {
	if len(cands) == 0 {
		return []Detection{}
	}

	// Shift each class into its own coordinate band so one NMS pass never
	// compares boxes across classes.
	band := 1
	for _, d := range cands {
		band = max(band, d.Box.Max.X+1, d.Box.Max.Y+1)
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, d := range cands {
		off := d.ClassID * band
		boxes[i] = d.Box.Add(image.Pt(off, off))
		scores[i] = float32(d.Confidence)
	}

	keep := gocv.NMSBoxes(boxes, scores, 0, float32(nmsThreshold))

	result := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		result = append(result, cands[idx])
	}
	return result
}
