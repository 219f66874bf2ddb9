// Package wavio reads and writes mono 16-bit PCM WAV files as float64
// samples in [-1, 1], the primary file transport for the AEC tool.
package wavio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// Info describes a decoded WAV file's format.
type Info struct {
	SampleRate int
	NumChans   int
}

// ReadFile decodes a mono WAV file at path into float64 samples in [-1, 1].
// If the file has more than one channel, only the first channel is kept.
func ReadFile(path string) ([]float64, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("wavio: failed to open %q: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a WAV stream into float64 samples in [-1, 1].
func Read(r io.Reader) ([]float64, Info, error) {
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Info{}, fmt.Errorf("wavio: failed to decode PCM buffer: %w", err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		NumChans:   int(dec.NumChans),
	}

	samples := pcmBufferToFloat(buf, info.NumChans)
	return samples, info, nil
}

// pcmBufferToFloat converts an audio.IntBuffer's first channel to float64
// samples in [-1, 1], scaled by the buffer's reported bit depth.
func pcmBufferToFloat(buf *audio.IntBuffer, numChans int) []float64 {
	if numChans < 1 {
		numChans = 1
	}
	full := buf.SourceBitDepth
	if full <= 0 {
		full = bitDepth
	}
	maxVal := float64(int(1) << uint(full-1))

	n := len(buf.Data) / numChans
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(buf.Data[i*numChans]) / maxVal
	}
	return out
}

// WriteFile encodes mono float64 samples in [-1, 1] to a 16-bit PCM WAV file
// at the given sample rate.
func WriteFile(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: failed to create %q: %w", path, err)
	}
	defer f.Close()
	if err := Write(f, samples, sampleRate); err != nil {
		return err
	}
	return nil
}

// Write encodes mono float64 samples in [-1, 1] to a 16-bit PCM WAV stream.
func Write(w io.WriteSeeker, samples []float64, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, 1)

	intData := make([]int, len(samples))
	const maxVal = 32767.0
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		intData[i] = int(s * maxVal)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           intData,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: failed to write PCM buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: failed to finalize WAV encoder: %w", err)
	}
	return nil
}
