// Package audio holds the sample-level plumbing shared by capture, streaming
// and the dataset: PCM conversion, loudness, WAV encoding, the recorder and
// the utterance segmenter.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrOddPCM is returned when a PCM16 payload has a dangling byte.
var ErrOddPCM = errors.New("pcm16 payload has odd length")

// Chunk is a slice of interleaved float32 samples in [-1, 1].
type Chunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration is the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	return FramesDuration(len(c.Samples)/max(c.Channels, 1), c.SampleRate)
}

// FramesDuration converts a frame count to a duration.
func FramesDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

// PCM16ToFloat32 decodes little-endian signed 16-bit samples, scaling by 1/32768.
func PCM16ToFloat32(p []byte) ([]float32, error) {
	if len(p)%2 != 0 {
		return nil, ErrOddPCM
	}
	out := make([]float32, len(p)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(p[2*i:]))) / 32768.0
	}
	return out, nil
}

// Float32ToPCM16 is the inverse of PCM16ToFloat32, clipping to the int16 range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RMS returns the root-mean-square amplitude, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Concat joins sample slices into one newly allocated slice.
func Concat(parts [][]float32) []float32 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
