// Package report computes RMS-over-window metrics and prints before/after
// echo-reduction summaries, the same periodic console reporting idiom the
// file-processing mode uses for progress output.
package report

import (
	"fmt"
	"math"
)

// RMS returns the root-mean-square of signal, or 0 for an empty slice.
func RMS(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range signal {
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(signal)))
}

// SlidingRMS computes RMS over consecutive, non-overlapping windows of
// windowSamples length (e.g. a 100ms window at the stream's sample rate).
// A trailing partial window, if any, is included using its own shorter
// length.
func SlidingRMS(signal []float64, windowSamples int) []float64 {
	if windowSamples < 1 {
		windowSamples = 1
	}
	var out []float64
	for start := 0; start < len(signal); start += windowSamples {
		end := start + windowSamples
		if end > len(signal) {
			end = len(signal)
		}
		out = append(out, RMS(signal[start:end]))
	}
	return out
}

// ReductionDB returns the echo reduction in dB of after relative to before:
// 20*log10(RMS(before)/RMS(after)). Returns +Inf if after is silent and
// before is not, and 0 if before is silent.
func ReductionDB(before, after []float64) float64 {
	beforeRMS := RMS(before)
	afterRMS := RMS(after)
	if beforeRMS == 0 {
		return 0
	}
	if afterRMS == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(beforeRMS/afterRMS)
}

// PrintSegment prints a labeled before/after RMS comparison, matching the
// original simulation's single-talk/double-talk analysis output.
func PrintSegment(label string, before, after []float64) {
	fmt.Printf("\n[%s]\n", label)
	fmt.Printf(" - Before AEC: %.6f\n", RMS(before))
	fmt.Printf(" - After AEC:  %.6f\n", RMS(after))
	fmt.Printf(" - Reduction:  %.2f dB\n", ReductionDB(before, after))
}

// PrintConvergence prints the cancelled output's RMS trend across
// consecutive fixed-duration windows (e.g. a 100ms window at the stream's
// sample rate, the convergence law's measurement granularity), reporting
// only the first and last window so a long run doesn't flood the console.
func PrintConvergence(label string, after []float64, windowSamples int) {
	windows := SlidingRMS(after, windowSamples)
	if len(windows) == 0 {
		return
	}
	fmt.Printf(" - %s: %d windows of %d samples, RMS %.6f -> %.6f\n",
		label, len(windows), windowSamples, windows[0], windows[len(windows)-1])
}
