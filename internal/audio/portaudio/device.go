// Package portaudio adapts a PortAudio input stream to audio.Device.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/nikhilbhutani/voicepro/internal/audio"
)

// DeviceInfo describes an input-capable device.
type DeviceInfo struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

// Init must be called once before any other function; Terminate releases PortAudio.
func Init() error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	return nil
}

func Terminate() error { return pa.Terminate() }

// Devices lists the devices with at least one input channel.
func Devices() ([]DeviceInfo, error) {
	all, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var out []DeviceInfo
	for i, d := range all {
		if d.MaxInputChannels > 0 {
			out = append(out, DeviceInfo{
				Index:             i,
				Name:              d.Name,
				MaxInputChannels:  d.MaxInputChannels,
				DefaultSampleRate: d.DefaultSampleRate,
			})
		}
	}
	return out, nil
}

// Input records from one PortAudio device, or the default input when Index is negative.
type Input struct {
	Index int

	mu     sync.Mutex
	stream *pa.Stream
}

var _ audio.Device = (*Input)(nil)

func NewInput(index int) *Input { return &Input{Index: index} }

func (in *Input) Open(cfg audio.StreamConfig, deliver func([]float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream != nil {
		return fmt.Errorf("input stream already open")
	}

	callback := func(buf []float32) { deliver(buf) }
	frames := cfg.ChunkFrames()

	var (
		stream *pa.Stream
		err    error
	)
	if in.Index < 0 {
		stream, err = pa.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, callback)
	} else {
		devices, derr := pa.Devices()
		if derr != nil {
			return fmt.Errorf("list devices: %w", derr)
		}
		if in.Index >= len(devices) {
			return fmt.Errorf("device %d out of range (%d devices)", in.Index, len(devices))
		}
		params := pa.LowLatencyParameters(devices[in.Index], nil)
		params.Input.Channels = cfg.Channels
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = frames
		stream, err = pa.OpenStream(params, callback)
	}
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	in.stream = stream
	return nil
}

func (in *Input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return fmt.Errorf("input stream not open")
	}
	return in.stream.Start()
}

func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	return in.stream.Stop()
}

func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	err := in.stream.Close()
	in.stream = nil
	return err
}
