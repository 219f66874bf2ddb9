package fdaf

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// fftEngine is the processor's planner-backed FFT component: forward and
// inverse length-N complex DFTs, transformed in place.
//
// It wraps algofft's plan instead of hand-rolling a transform, the same way
// the pack's block-convolution code (e.g. the streaming overlap-save
// convolver) keeps a single *algofft.Plan[complex128] per instance and reuses
// it across frames. algofft's Inverse is already normalized by N — nothing
// here divides a second time.
type fftEngine struct {
	n    int
	plan *algofft.Plan[complex128]
}

func newFFTEngine(n int) (*fftEngine, error) {
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("fdaf: failed to create FFT plan for N=%d: %w", n, err)
	}
	return &fftEngine{n: n, plan: plan}, nil
}

// forward applies the length-N forward DFT to buf in place.
func (e *fftEngine) forward(buf []complex128) error {
	return e.plan.Forward(buf, buf)
}

// inverse applies the length-N inverse DFT to buf in place. The result is
// already normalized by N.
func (e *fftEngine) inverse(buf []complex128) error {
	return e.plan.Inverse(buf, buf)
}
