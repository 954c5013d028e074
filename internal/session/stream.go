package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ayusman/moodlens/internal/annotate"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/detector"
)

// ErrFrameRead marks a stream that ended because the device stopped
// producing frames.
var ErrFrameRead = errors.New("frame read failed")

// Stream is a lazy, non-restartable sequence of encoded multipart chunks.
// It owns its camera; every terminal result releases it. A Stream is driven
// by a single goroutine.
type Stream struct {
	c      *Controller
	cam    capture.Camera
	frames int
	once   sync.Once
	err    error
}

// Next runs one loop iteration and returns the next chunk. It returns io.EOF
// once stop has been requested, an error wrapping ErrFrameRead when the
// device fails, ctx.Err() on cancellation, or the detector's error. After a
// terminal result every later call returns the same error.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	if s.c.stopRequested() {
		return nil, s.finish(io.EOF)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.finish(err)
	}

	frame, err := s.cam.ReadFrame()
	if err != nil {
		return nil, s.finish(fmt.Errorf("%w: %v", ErrFrameRead, err))
	}
	defer frame.Close()

	dets, err := s.c.detector.Detect(frame)
	if err != nil {
		return nil, s.finish(fmt.Errorf("detect: %w", err))
	}

	qualifying := make([]detector.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= s.c.config.Threshold && d.Known() {
			qualifying = append(qualifying, d)
		}
	}

	sessionID, snap := s.c.record(qualifying)

	// Each qualifying detection is drawn and then shrinks the frame, so the
	// shrink compounds and later boxes keep their original coordinates.
	for _, d := range qualifying {
		s.c.annot.Draw(frame, d)
		if err := annotate.Shrink(frame, s.c.config.ScalePercent); err != nil {
			return nil, s.finish(err)
		}
	}

	chunk, err := s.c.encoder.Chunk(frame)
	if err != nil {
		return nil, s.finish(err)
	}

	s.frames++
	if s.c.observer != nil {
		s.c.observer(FrameEvent{
			SessionID:  sessionID,
			Frame:      s.frames,
			Detections: qualifying,
			Counts:     snap.Counts,
			Total:      snap.Total,
			Timestamp:  time.Now(),
		})
	}

	return chunk, nil
}

// Frames returns how many chunks the stream has produced.
func (s *Stream) Frames() int {
	return s.frames
}

// Close ends the stream and releases the camera. Safe to call repeatedly
// and after a terminal Next.
func (s *Stream) Close() error {
	if s.err == nil {
		s.finish(io.EOF)
	}
	return nil
}

func (s *Stream) finish(err error) error {
	s.once.Do(func() {
		s.err = err
		if cerr := s.cam.Close(); cerr != nil {
			s.c.logger.WithError(cerr).Warn("failed to release capture device")
		}
		s.c.release()

		entry := s.c.logger.WithField("frames", s.frames)
		switch {
		case errors.Is(err, io.EOF):
			entry.Info("stream ended")
		case errors.Is(err, ErrFrameRead), errors.Is(err, context.Canceled):
			entry.WithError(err).Info("stream ended")
		default:
			entry.WithError(err).Error("stream failed")
		}
	})
	return s.err
}
