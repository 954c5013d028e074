package annotate

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/detector"
)

func TestScaledSize(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		percent int
		wantW   int
		wantH   int
	}{
		{"640x480 at 80", 640, 480, 80, 512, 384},
		{"512x384 at 80", 512, 384, 80, 409, 307},
		{"409x307 at 80", 409, 307, 80, 327, 245},
		{"odd at 50", 3, 1, 50, 1, 0},
		{"full size", 100, 50, 100, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ScaledSize(tt.w, tt.h, tt.percent)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, w, h)
			}
		})
	}
}

func TestShrink_InvalidPercent(t *testing.T) {
	for _, p := range []int{0, -10, 101} {
		if err := Shrink(nil, p); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("percent %d: expected ErrInvalidScale, got %v", p, err)
		}
	}
}

func TestShrink_Compounds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv test in short mode")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// three consecutive shrinks, one per qualifying detection
	want := [][2]int{{512, 384}, {409, 307}, {327, 245}}
	for i, dims := range want {
		if err := Shrink(&frame, 80); err != nil {
			t.Fatalf("shrink %d: %v", i, err)
		}
		if frame.Cols() != dims[0] || frame.Rows() != dims[1] {
			t.Errorf("after shrink %d: expected %dx%d, got %dx%d", i+1, dims[0], dims[1], frame.Cols(), frame.Rows())
		}
	}
}

func TestDraw_MarksFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv test in short mode")
	}

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	d := detector.Detection{Label: "happy", Confidence: 0.9, Box: image.Rect(50, 60, 150, 200)}
	New().Draw(&frame, d)

	// top-left corner of the box is green in BGR order
	px := frame.GetVecbAt(60, 50)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("expected green pixel at box corner, got %v", px)
	}

	// frame size is unchanged by drawing
	if frame.Cols() != 320 || frame.Rows() != 240 {
		t.Errorf("drawing should not resize frame, got %dx%d", frame.Cols(), frame.Rows())
	}
}
