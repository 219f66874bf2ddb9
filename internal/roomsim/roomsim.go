// Package roomsim synthesizes a microphone signal from a far-end reference
// by simulating an acoustic echo path, either a short FIR room impulse
// response with spaced reflections or a pure delay-and-attenuation model.
package roomsim

// FIR convolves far with the impulse response rir, where tap j is delayed
// by j*tapSpacing samples, producing an echo signal the same length as far.
// This matches a room impulse response with a handful of discrete
// reflections rather than a single specular echo.
func FIR(far []float64, rir []float64, tapSpacing int) []float64 {
	echo := make([]float64, len(far))
	for i := range far {
		for j, coeff := range rir {
			delay := j * tapSpacing
			if i >= delay {
				echo[i] += far[i-delay] * coeff
			}
		}
	}
	return echo
}

// DelayAndAttenuate produces a pure single-reflection echo: echo[i] =
// attenuation * far[i-delaySamples] for i >= delaySamples, else 0.
func DelayAndAttenuate(far []float64, delaySamples int, attenuation float64) []float64 {
	echo := make([]float64, len(far))
	for i := delaySamples; i < len(far); i++ {
		echo[i] = attenuation * far[i-delaySamples]
	}
	return echo
}

// Mix sums echo and nearEnd sample-by-sample, clamping the result to
// [-1, 1] to model a saturating microphone capture.
func Mix(echo, nearEnd []float64) []float64 {
	n := len(echo)
	if len(nearEnd) < n {
		n = len(nearEnd)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := echo[i] + nearEnd[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}
