// Package encode turns frames into JPEG bytes and multipart stream chunks.
package encode

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

const (
	// Boundary separates parts of the MJPEG stream.
	Boundary = "frame"
	// ContentType is the response content type for the stream.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	// DefaultQuality matches the OpenCV default for .jpg.
	DefaultQuality = 95
)

// ErrEmptyFrame is returned when asked to encode an empty Mat.
var ErrEmptyFrame = errors.New("empty frame")

var (
	chunkHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	chunkTrailer = []byte("\r\n")
)

// Encoder produces JPEG images at a fixed quality.
type Encoder struct {
	Quality int
}

// New returns an Encoder. Quality outside [1,100] uses DefaultQuality.
func New(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{Quality: quality}
}

// Encode compresses frame to JPEG.
func (e *Encoder) Encode(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close
	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Wrap frames jpeg as one multipart chunk:
// "--frame\r\nContent-Type: image/jpeg\r\n\r\n" + jpeg + "\r\n".
func Wrap(jpeg []byte) []byte {
	chunk := make([]byte, 0, len(chunkHeader)+len(jpeg)+len(chunkTrailer))
	chunk = append(chunk, chunkHeader...)
	chunk = append(chunk, jpeg...)
	chunk = append(chunk, chunkTrailer...)
	return chunk
}

// Chunk encodes frame and wraps it in one step.
func (e *Encoder) Chunk(frame *gocv.Mat) ([]byte, error) {
	jpeg, err := e.Encode(frame)
	if err != nil {
		return nil, err
	}
	return Wrap(jpeg), nil
}
