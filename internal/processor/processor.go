// Package processor sequences the core fdaf.Processor against a mode: file
// mode reads/writes WAV or A-law files, demo mode runs a built-in synthetic
// scenario, and live mode drives a PortAudio duplex stream.
package processor

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"fdafaec/internal/alaw"
	"fdafaec/internal/fdaf"
	"fdafaec/internal/live"
	"fdafaec/internal/report"
	"fdafaec/internal/roomsim"
	"fdafaec/internal/siggen"
	"fdafaec/internal/wavio"
	"fdafaec/pkg/types"
)

// Processor sequences file/demo/live orchestration around one configured
// core fdaf.Processor.
type Processor struct {
	cfg *types.Config
}

// New returns a Processor for the given resolved configuration.
func New(cfg *types.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run dispatches to the mode selected in the configuration.
func (p *Processor) Run() error {
	switch p.cfg.Mode {
	case types.ModeFile:
		return p.runFile()
	case types.ModeDemo:
		return p.runDemo()
	case types.ModeLive:
		return p.runLive()
	case types.ModeTestAlaw:
		return p.runTestAlaw()
	default:
		return fmt.Errorf("processor: unknown mode %v", p.cfg.Mode)
	}
}

func (p *Processor) newCore() (*fdaf.Processor, error) {
	proc, err := fdaf.New(p.cfg.FFTSize, p.cfg.StepSize,
		fdaf.WithSmoothing(p.cfg.Smoothing),
		fdaf.WithEpsilon(p.cfg.Epsilon),
	)
	if err != nil {
		return nil, fmt.Errorf("processor: failed to construct core processor: %w", err)
	}
	return proc, nil
}

// runFile reads the configured mic/far-end files, cancels echo frame by
// frame, and writes the result to the configured output file.
func (p *Processor) runFile() error {
	proc, err := p.newCore()
	if err != nil {
		return err
	}

	var mic, far []float64
	var sampleRate int

	switch p.cfg.Format {
	case types.FormatALaw:
		mic, far, sampleRate, err = readALawPair(p.cfg)
	default:
		mic, far, sampleRate, err = readWAVPair(p.cfg)
	}
	if err != nil {
		return err
	}

	m := proc.FrameSize()
	n := len(mic)
	if len(far) > n {
		n = len(far)
	}
	mic = zeroPadTo(mic, n)
	far = zeroPadTo(far, n)
	frames := (n + m - 1) / m
	mic = zeroPadTo(mic, frames*m)
	far = zeroPadTo(far, frames*m)

	out := make([]float64, frames*m)
	frameOut := make([]float64, m)

	fmt.Printf("Processing audio frames (N=%d, size: %d samples, %.1fms)...\n",
		proc.N(), m, float64(m)/float64(sampleRate)*1000)

	framesPerInterval := framesPerProgressInterval(p.cfg, sampleRate, m)

	for f := 0; f < frames; f++ {
		start := f * m
		if err := proc.Process(frameOut, far[start:start+m], mic[start:start+m]); err != nil {
			return fmt.Errorf("processor: error processing frame %d: %w", f, err)
		}
		copy(out[start:start+m], frameOut)

		if framesPerInterval > 0 && (f+1)%framesPerInterval == 0 {
			duration := float64((f+1)*m) / float64(sampleRate)
			fmt.Printf("Processed %.1f seconds (%d frames)\n", duration, f+1)
		}
	}

	switch p.cfg.Format {
	case types.FormatALaw:
		err = writeALaw(p.cfg.OutputFile, out)
	default:
		err = wavio.WriteFile(p.cfg.OutputFile, out, sampleRate)
	}
	if err != nil {
		return err
	}

	duration := float64(frames*m) / float64(sampleRate)
	fmt.Printf("Total processed: %.1f seconds (%d frames)\n", duration, frames)
	return nil
}

func readWAVPair(cfg *types.Config) (mic, far []float64, sampleRate int, err error) {
	mic, micInfo, err := wavio.ReadFile(cfg.MicFile)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("processor: failed to read mic file: %w", err)
	}
	far, _, err = wavio.ReadFile(cfg.FarEndFile)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("processor: failed to read far-end file: %w", err)
	}
	return mic, far, micInfo.SampleRate, nil
}

func readALawPair(cfg *types.Config) (mic, far []float64, sampleRate int, err error) {
	micBytes, err := readAllBytes(cfg.MicFile)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("processor: failed to read mic file: %w", err)
	}
	farBytes, err := readAllBytes(cfg.FarEndFile)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("processor: failed to read far-end file: %w", err)
	}

	mic = make([]float64, len(micBytes))
	alaw.DecodeBuffer(mic, micBytes)
	far = make([]float64, len(farBytes))
	alaw.DecodeBuffer(far, farBytes)

	return mic, far, cfg.SampleRate, nil
}

func writeALaw(path string, samples []float64) error {
	data := make([]byte, len(samples))
	alaw.EncodeBuffer(data, samples)
	return writeAllBytes(path, data)
}

func zeroPadTo(s []float64, n int) []float64 {
	if len(s) >= n {
		return s
	}
	padded := make([]float64, n)
	copy(padded, s)
	return padded
}

func framesPerProgressInterval(cfg *types.Config, sampleRate, frameSize int) int {
	if cfg.ProgressSec <= 0 {
		return 0
	}
	n := int(float64(sampleRate)/float64(frameSize)*cfg.ProgressSec + 0.5)
	if n <= 0 {
		n = 1
	}
	return n
}

// runTestAlaw round-trips the configured mic file through the A-law codec
// (decode to float64, then re-encode) without involving the core processor
// at all, to exercise the codec independently of echo cancellation. The
// round-tripped bytes are written to the output file and a mismatch count
// is printed, matching the teacher's "-test-alaw" self-test mode.
func (p *Processor) runTestAlaw() error {
	original, err := readAllBytes(p.cfg.MicFile)
	if err != nil {
		return err
	}

	samples := make([]float64, len(original))
	alaw.DecodeBuffer(samples, original)
	roundTripped := make([]byte, len(samples))
	alaw.EncodeBuffer(roundTripped, samples)

	mismatches := 0
	for i := range original {
		if original[i] != roundTripped[i] {
			mismatches++
		}
	}
	fmt.Printf("A-law round-trip: %d/%d bytes mismatched\n", mismatches, len(original))

	if p.cfg.OutputFile != "" {
		if err := writeAllBytes(p.cfg.OutputFile, roundTripped); err != nil {
			return err
		}
	}
	return nil
}

// runDemo synthesizes two built-in scenarios — a pure delayed echo and a
// FIR-room double-talk mix — and prints before/after RMS reduction reports
// plus a windowed RMS convergence trace for each.
func (p *Processor) runDemo() error {
	const (
		toneHz        = 440
		nearToneHz    = 880
		amplitude     = 0.6
		nearAmplitude = 0.4
		delay         = 128
		atten         = 0.7
		convergenceMs = 100
	)
	// RIR taps from the original simulation's generated-signal scenario: a
	// direct path plus three spaced, decaying reflections.
	rir := []float64{0.6, 0, 0, -0.15, 0, 0.08, 0, 0.03}
	const tapSpacing = 20

	sampleRate := p.cfg.SampleRate
	total := sampleRate * 2
	windowSamples := sampleRate * convergenceMs / 1000

	runScenario := func(label string, far, mic []float64) error {
		proc, err := p.newCore()
		if err != nil {
			return err
		}
		m := proc.FrameSize()
		out := make([]float64, 0, len(mic))
		frameOut := make([]float64, m)
		for start := 0; start+m <= len(far) && start+m <= len(mic); start += m {
			if err := proc.Process(frameOut, far[start:start+m], mic[start:start+m]); err != nil {
				return fmt.Errorf("processor: demo processing error: %w", err)
			}
			out = append(out, frameOut...)
		}
		report.PrintSegment(label, mic[:len(out)], out)
		report.PrintConvergence(label, out, windowSamples)
		return nil
	}

	far := siggen.Sine(total, toneHz, amplitude, sampleRate, 0)

	singleTalkEcho := roomsim.DelayAndAttenuate(far, delay, atten)
	singleTalkMic := roomsim.Mix(singleTalkEcho, make([]float64, total))
	if err := runScenario("Single-Talk (Delayed Echo)", far, singleTalkMic); err != nil {
		return err
	}

	doubleTalkEcho := roomsim.FIR(far, rir, tapSpacing)
	doubleTalkNear := make([]float64, total)
	siggen.SineFrom(doubleTalkNear, total/2, nearToneHz, nearAmplitude, sampleRate)
	doubleTalkMic := roomsim.Mix(doubleTalkEcho, doubleTalkNear)
	return runScenario("Double-Talk (FIR Room Echo)", far, doubleTalkMic)
}

// runLive opens a duplex PortAudio stream and drives the core processor
// from live microphone capture, writing the cancelled output to the
// configured output file. If a far-end reference file is given, it is
// looped as the played-back signal; otherwise ten seconds of low-level
// white noise is looped.
func (p *Processor) runLive() error {
	proc, err := p.newCore()
	if err != nil {
		return err
	}

	var farSamples []float64
	if p.cfg.FarEndFile != "" {
		farSamples, _, err = wavio.ReadFile(p.cfg.FarEndFile)
		if err != nil {
			return fmt.Errorf("processor: failed to read far-end file: %w", err)
		}
	} else {
		rng := rand.New(rand.NewSource(1))
		farSamples = siggen.WhiteNoise(p.cfg.SampleRate*10, 0.2, rng)
	}
	if len(farSamples) == 0 {
		return fmt.Errorf("processor: far-end reference is empty")
	}

	var pos int
	farSrc := func(frame []float64) {
		for i := range frame {
			frame[i] = farSamples[pos]
			pos++
			if pos >= len(farSamples) {
				pos = 0
			}
		}
	}

	var out []float64
	sink := func(cancelled []float64) {
		out = append(out, cancelled...)
	}

	var streamErr error
	onError := func(err error) {
		if streamErr == nil {
			streamErr = err
		}
	}

	cfg := live.Config{
		SampleRate:   float64(p.cfg.SampleRate),
		FrameSize:    proc.FrameSize(),
		InputDevice:  p.cfg.InputDevice,
		OutputDevice: p.cfg.OutputDevice,
	}

	stream, err := live.NewStream(proc, cfg, farSrc, sink, onError)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	fmt.Println("Live acoustic echo cancellation running. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if streamErr != nil {
		return streamErr
	}
	if p.cfg.OutputFile != "" {
		return wavio.WriteFile(p.cfg.OutputFile, out, p.cfg.SampleRate)
	}
	return nil
}
