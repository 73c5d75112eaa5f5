package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	bitDepth     = 16
	wavFormatPCM = 1
)

// WAVInfo describes a WAV file header.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Probe reads the header of a WAV stream. Duration counts only the frames in
// the data chunk; the header and any extra chunks are not audio.
func Probe(r io.ReadSeeker) (*WAVInfo, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("find wav data chunk: %w", err)
	}

	info := &WAVInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if frameSize := info.Channels * info.BitDepth / 8; frameSize > 0 {
		info.Duration = FramesDuration(d.PCMSize/frameSize, info.SampleRate)
	}
	return info, nil
}

// ProbeFile is Probe for a file on disk.
func ProbeFile(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()
	return Probe(f)
}

// EncodeWAV writes samples as 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(toInt16(s))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// WAVBytes encodes samples into an in-memory WAV file.
func WAVBytes(samples []float32, sampleRate, channels int) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := EncodeWAV(ws, samples, sampleRate, channels); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.Reader())
}

// SaveRecording writes samples to path as a WAV file.
func SaveRecording(path string, samples []float32, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	if err := EncodeWAV(f, samples, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeWAV reads a whole WAV stream into float32 samples.
func DecodeWAV(r io.ReadSeeker) ([]float32, *WAVInfo, error) {
	info, err := Probe(r)
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("rewind wav: %w", err)
	}
	d := wav.NewDecoder(r)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("decode wav: %w", err)
	}
	scale := float32(int64(1) << (buf.SourceBitDepth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out, info, nil
}

// ApplyGain scales the samples of a WAV payload by gain and re-encodes it.
// A gain of 1 returns the input unchanged.
func ApplyGain(data []byte, gain float64) ([]byte, error) {
	if gain == 1 {
		return data, nil
	}
	samples, info, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for i, s := range samples {
		samples[i] = float32(float64(s) * gain)
	}
	return WAVBytes(samples, info.SampleRate, info.Channels)
}
