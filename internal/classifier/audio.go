package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/interp"
)

// Voice model input shape.
const (
	SampleRate = 22050
	Duration   = 5
	MaxSamples = SampleRate * Duration
)

// ErrInvalidAudio is returned when the upload cannot be decoded.
var ErrInvalidAudio = errors.New("invalid audio")

// NormalizeWAV decodes a WAV clip, mixes it down to mono, resamples it to
// SampleRate, pads or truncates it to MaxSamples and re-encodes it as
// 16-bit PCM WAV.
func NormalizeWAV(data []byte) ([]byte, error) {
	samples, rate, err := decodeMono(data)
	if err != nil {
		return nil, err
	}

	samples = fitLength(resample(samples, rate, SampleRate), MaxSamples)

	return encodePCM16(samples, SampleRate)
}

// decodeMono returns samples in [-1, 1] averaged across channels.
func decodeMono(data []byte) ([]float64, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a PCM WAV file", ErrInvalidAudio)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, 0, fmt.Errorf("%w: missing format", ErrInvalidAudio)
	}

	channels := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	scale := math.Pow(2, float64(depth-1))

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("%w: no samples", ErrInvalidAudio)
	}

	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		mono[i] = sum / float64(channels) / scale
	}

	return mono, buf.Format.SampleRate, nil
}

// resample converts samples from rate `from` to `to` with linear
// interpolation. Only the first MaxSamples output samples are computed.
func resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) < 2 {
		return samples
	}

	n := int(float64(len(samples)) * float64(to) / float64(from))
	if n > MaxSamples {
		n = MaxSamples
	}

	step := float64(from) / float64(to)

	// input past the last needed output sample is never read
	if need := int(float64(n)*step) + 2; need < len(samples) {
		samples = samples[:need]
	}

	xs := make([]float64, len(samples))
	for i := range xs {
		xs[i] = float64(i)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, samples); err != nil {
		return samples
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = pl.Predict(float64(i) * step)
	}
	return out
}

// fitLength zero-pads or truncates samples to exactly n.
func fitLength(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}

func encodePCM16(samples []float64, rate int) ([]byte, error) {
	ints := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		ints[i] = int(s * 32767)
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	return out.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch the header sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(w.pos) + offset
	case io.SeekEnd:
		pos = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(pos)
	return pos, nil
}
