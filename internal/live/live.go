// Package live wires the core processor to a real-time duplex audio stream
// via PortAudio: captured microphone frames and a caller-supplied far-end
// reference are fed into the processor frame by frame, and the
// echo-cancelled result is handed back to the caller.
package live

import (
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"

	"fdafaec/internal/fdaf"
)

// Config describes the duplex stream to open. InputDevice and OutputDevice
// select a device index into portaudio.Devices(); -1 selects the system
// default.
type Config struct {
	SampleRate   float64
	FrameSize    int
	InputDevice  int
	OutputDevice int
}

// FarEndSource fills frame with the next block of far-end reference samples
// about to be played to the loudspeaker.
type FarEndSource func(frame []float64)

// OutputSink receives one echo-cancelled frame, aligned with the far-end
// frame that produced it.
type OutputSink func(cancelled []float64)

// Stream drives a *fdaf.Processor from a full-duplex PortAudio stream.
// Capture and playback happen in PortAudio's own audio thread; Process is
// never called concurrently with itself, preserving the core's
// single-caller contract.
type Stream struct {
	proc   *fdaf.Processor
	stream *portaudio.Stream

	farSrc  FarEndSource
	sink    OutputSink
	onError func(error)

	farBuf []float64
	micBuf []float64
	outBuf []float64
}

// NewStream opens (but does not start) a duplex stream sized to proc's
// frame size. onError is called, from the audio thread, whenever the
// processor fails or produces a non-finite sample — the live-mode
// equivalent of the core's "caller-visible failure, not silently carried"
// divergence policy.
func NewStream(proc *fdaf.Processor, cfg Config, farSrc FarEndSource, sink OutputSink, onError func(error)) (*Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("live: failed to initialize portaudio: %w", err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("live: failed to enumerate audio devices: %w", err)
	}

	inDev, err := resolveDevice(devices, cfg.InputDevice, portaudio.DefaultInputDevice)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("live: failed to resolve input device: %w", err)
	}
	outDev, err := resolveDevice(devices, cfg.OutputDevice, portaudio.DefaultOutputDevice)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("live: failed to resolve output device: %w", err)
	}

	s := &Stream{
		proc:    proc,
		farSrc:  farSrc,
		sink:    sink,
		onError: onError,
		farBuf:  make([]float64, proc.FrameSize()),
		micBuf:  make([]float64, proc.FrameSize()),
		outBuf:  make([]float64, proc.FrameSize()),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: 1,
			Latency:  inDev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: 1,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FrameSize,
	}

	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("live: failed to open duplex stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// process is the PortAudio duplex callback: in holds the just-captured mic
// frame, out is filled with the far-end reference about to be played.
func (s *Stream) process(in, out []float32) {
	for i, v := range in {
		s.micBuf[i] = float64(v)
	}

	s.farSrc(s.farBuf)

	if err := s.proc.Process(s.outBuf, s.farBuf, s.micBuf); err != nil {
		if s.onError != nil {
			s.onError(fmt.Errorf("live: process: %w", err))
		}
	} else {
		for _, v := range s.outBuf {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				if s.onError != nil {
					s.onError(fmt.Errorf("live: non-finite output sample"))
				}
				break
			}
		}
		s.sink(s.outBuf)
	}

	for i, v := range s.farBuf {
		out[i] = float32(v)
	}
}

// Start begins capture and playback.
func (s *Stream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("live: failed to start stream: %w", err)
	}
	return nil
}

// Stop halts capture and playback without closing the underlying device.
func (s *Stream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("live: failed to stop stream: %w", err)
	}
	return nil
}

// Close releases the underlying PortAudio stream and shuts down the
// PortAudio library initialized in NewStream.
func (s *Stream) Close() error {
	err := s.stream.Close()
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}
	if err != nil {
		return fmt.Errorf("live: failed to close stream: %w", err)
	}
	return nil
}
