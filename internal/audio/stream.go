// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"trap/internal/resample"
)

// StreamConfig selects the devices of a Stream.
type StreamConfig struct {
	InputDevice     int // config.MinDeviceID selects the system default
	OutputDevice    int
	FramesPerBuffer int
	LowLatency      bool
	ADCBits         int
	DACBits         int
}

// Stream is a TickSource backed by a mono PortAudio duplex stream opened at
// the tick rate. Each frame of the callback is one tick: the input frame is
// what the ADC reads, and the last DAC value is what the output frame plays.
//
// Performance Critical:
//   - The callback runs the engine tick once per frame
//   - Uses pre-allocated adapters only
//   - No dynamic allocations in the hot path
type Stream struct {
	cfg    StreamConfig
	input  *portaudio.DeviceInfo
	output *portaudio.DeviceInfo

	adc *FrameADC
	dac *FrameDAC

	mu     sync.Mutex
	stream *portaudio.Stream
	tick   func()
}

// NewStream resolves the configured devices. PortAudio must be initialized.
func NewStream(cfg StreamConfig) (*Stream, error) {
	in, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("input device: %w", err)
	}
	out, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, fmt.Errorf("output device: %w", err)
	}
	return &Stream{
		cfg:    cfg,
		input:  in,
		output: out,
		adc:    &FrameADC{bits: cfg.ADCBits},
		dac:    NewFrameDAC(cfg.DACBits),
	}, nil
}

// ADC returns the adapter the engine must read from.
func (s *Stream) ADC() resample.ADC { return s.adc }

// DAC returns the adapter the engine must write to.
func (s *Stream) DAC() resample.DAC { return s.dac }

// Devices returns the names of the resolved input and output devices.
func (s *Stream) Devices() (input, output string) { return s.input.Name, s.output.Name }

func (s *Stream) Attach(tick func(), rate int) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return ErrSourceAttached
	}

	inLatency, outLatency := s.input.DefaultHighInputLatency, s.output.DefaultHighOutputLatency
	if s.cfg.LowLatency {
		inLatency, outLatency = s.input.DefaultLowInputLatency, s.output.DefaultLowOutputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   s.input,
			Channels: 1,
			Latency:  inLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   s.output,
			Channels: 1,
			Latency:  outLatency,
		},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      float64(rate),
	}

	s.tick = tick
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return fmt.Errorf("failed to open stream at %d Hz: %w", rate, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *Stream) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// Latency returns the input latency of the open stream, or 0.
func (s *Stream) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return 0
	}
	return s.stream.Info().InputLatency
}

// process is the PortAudio callback.
func (s *Stream) process(in, out []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for i := range in {
		s.adc.Set(in[i])
		s.tick()
		out[i] = s.dac.PCM()
	}
}

// FrameADC holds the current input frame in converter range.
type FrameADC struct {
	bits  int
	value uint16
}

// Set stores a signed 16-bit frame.
func (a *FrameADC) Set(frame int16) { a.value = ToUnsigned(int(frame), 16, a.bits) }

func (a *FrameADC) ReadSample() uint16 { return a.value }

// FrameDAC holds the last value written by the engine. It starts at
// midscale, which plays as silence.
type FrameDAC struct {
	bits  int
	value uint16
}

func NewFrameDAC(bits int) *FrameDAC {
	return &FrameDAC{bits: bits, value: 1 << (bits - 1)}
}

func (d *FrameDAC) WriteSample(v uint16) { d.value = v }

// PCM returns the held value as a signed 16-bit frame.
func (d *FrameDAC) PCM() int16 { return int16(ToSigned(d.value, d.bits, 16)) }
