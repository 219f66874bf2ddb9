// Package fdaf implements a frequency-domain adaptive filter (FDAF) acoustic
// echo canceller: overlap-save block convolution driving a normalized
// least-mean-squares (NLMS) weight update against a smoothed power-spectral
// density estimate of the reference signal.
//
// A Processor is constructed once for a chosen FFT size N (a power of two;
// frames are N/2 samples) and a step size, then driven one frame at a time
// by Process. All state — filter weights, far-end history, PSD estimate, and
// the transform scratch buffers — is owned exclusively by the Processor and
// preallocated at construction; the hot path performs no heap allocation.
package fdaf

const (
	// defaultSmoothing is the PSD exponential-smoothing factor alpha.
	defaultSmoothing = 0.98
	// defaultEpsilon regularizes the NLMS denominator against a PSD bin
	// driven to (or seeded near) zero.
	defaultEpsilon = 1e-10
)

// Processor is a single-stream FDAF/NLMS acoustic echo canceller. It is not
// safe for concurrent use: Process calls for one Processor must be
// serialized, though a Processor may be handed off between goroutines
// between calls.
type Processor struct {
	n       int // FFT size, power of two
	m       int // frame size, n/2
	mu      float64
	alpha   float64
	epsilon float64

	fft *fftEngine

	w     []complex128 // filter weights, frequency domain, length n
	xhist []float64    // sliding far-end history, length n
	xbuf  []complex128 // reference transform scratch, length n
	ebuf  []complex128 // echo-estimate / error transform scratch, length n
	ytime []float64    // time-domain echo estimate, length n
	psd   []float64    // smoothed reference power per bin, length n
}

// Option configures optional Processor parameters beyond the required FFT
// size and step size.
type Option func(*Processor)

// WithSmoothing overrides the PSD smoothing factor alpha (default 0.98).
// Must be in (0, 1).
func WithSmoothing(alpha float64) Option {
	return func(p *Processor) { p.alpha = alpha }
}

// WithEpsilon overrides the NLMS regularization epsilon (default 1e-10).
func WithEpsilon(epsilon float64) Option {
	return func(p *Processor) { p.epsilon = epsilon }
}

// New creates a Processor for FFT size n (frame size n/2) and NLMS step size
// mu. n must be a power of two and at least 2, so the frame size is at least
// one sample. Returns ErrInvalidConfiguration otherwise; no Processor is
// allocated on failure.
func New(n int, mu float64, opts ...Option) (*Processor, error) {
	if !isPowerOfTwo(n) || n < 2 {
		return nil, ErrInvalidConfiguration
	}
	m := n / 2
	if m < 1 {
		return nil, ErrInvalidConfiguration
	}

	fft, err := newFFTEngine(n)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		n:       n,
		m:       m,
		mu:      mu,
		alpha:   defaultSmoothing,
		epsilon: defaultEpsilon,
		fft:     fft,
		w:       make([]complex128, n),
		xhist:   make([]float64, n),
		xbuf:    make([]complex128, n),
		ebuf:    make([]complex128, n),
		ytime:   make([]float64, n),
		psd:     make([]float64, n),
	}
	for i := range p.psd {
		p.psd[i] = 1.0
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// N returns the processor's FFT size.
func (p *Processor) N() int { return p.n }

// FrameSize returns the expected length of out, far, and mic in Process
// (N/2).
func (p *Processor) FrameSize() int { return p.m }

// Process cancels echo from one frame. far and mic must each have exactly
// FrameSize() samples; out is written in place with the same length. Returns
// ErrInvalidFrameSize, without mutating any processor state, if a length
// mismatches.
//
// The nine steps below execute in this fixed order: history shift,
// reference transform, PSD update, echo estimation, inverse transform,
// overlap-save extraction, error computation, error transform, and finally
// the NLMS weight update. Echo estimation always uses the weights from the
// previous frame — adaptation is the last step of a frame — so the current
// frame's microphone signal never contributes to its own echo estimate.
func (p *Processor) Process(out, far, mic []float64) error {
	if len(far) != p.m || len(mic) != p.m || len(out) != p.m {
		return ErrInvalidFrameSize
	}

	m, n := p.m, p.n

	// 1. History shift: xhist becomes [previous frame, current frame].
	copy(p.xhist[:m], p.xhist[m:])
	copy(p.xhist[m:], far)

	// 2. Reference transform: X_f = FFT(xhist).
	for i := 0; i < n; i++ {
		p.xbuf[i] = complex(p.xhist[i], 0)
	}
	if err := p.fft.forward(p.xbuf); err != nil {
		return err
	}

	// 3. PSD update from the current reference block, before it is used
	// as this frame's NLMS denominator.
	for k := 0; k < n; k++ {
		mag := p.xbuf[k]
		power := real(mag)*real(mag) + imag(mag)*imag(mag)
		p.psd[k] = p.alpha*p.psd[k] + (1-p.alpha)*power
	}

	// 4. Echo estimate in the frequency domain: Y_f = W ⊙ X_f. Reuses ebuf
	// as scratch since the error spectrum isn't needed until step 8.
	for k := 0; k < n; k++ {
		p.ebuf[k] = p.w[k] * p.xbuf[k]
	}

	// 5. Inverse transform; algofft normalizes, so no extra division by N.
	if err := p.fft.inverse(p.ebuf); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		p.ytime[i] = real(p.ebuf[i])
	}

	// 6-7. Overlap-save: the valid echo estimate is ytime[m:n]; error is
	// mic minus that estimate.
	for i := 0; i < m; i++ {
		out[i] = mic[i] - p.ytime[m+i]
	}

	// 8. Error transform, front-zero-padded. This is what makes the
	// frequency-domain gradient match the true overlap-save linear-
	// convolution gradient instead of a circularly-biased one.
	for i := 0; i < m; i++ {
		p.ebuf[i] = 0
	}
	for i := 0; i < m; i++ {
		p.ebuf[m+i] = complex(out[i], 0)
	}
	if err := p.fft.forward(p.ebuf); err != nil {
		return err
	}

	// 9. NLMS weight update: W += mu * conj(X_f) * E_f / (PSD + epsilon).
	for k := 0; k < n; k++ {
		grad := cmplxConj(p.xbuf[k]) * p.ebuf[k]
		denom := complex(p.psd[k]+p.epsilon, 0)
		p.w[k] += complex(p.mu, 0) * (grad / denom)
	}

	return nil
}

func cmplxConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}
