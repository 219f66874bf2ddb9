package fdaf

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew_ConstructionGuards(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"power of two 2", 2, false},
		{"power of two 4", 4, false},
		{"power of two 8", 8, false},
		{"power of two 512", 512, false},
		{"power of two 2048", 2048, false},
		{"non power of two 511", 511, true},
		{"zero", 0, true},
		{"one", 1, true},
		{"negative", -8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.n, 0.5)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.n, p.N())
			assert.Equal(t, tt.n/2, p.FrameSize())
		})
	}
}

func TestProcess_FrameSizeGuard(t *testing.T) {
	p, err := New(512, 0.5)
	require.NoError(t, err)

	far := make([]float64, 128) // wrong: should be 256
	mic := make([]float64, 256)
	out := make([]float64, 256)

	err = p.Process(out, far, mic)
	assert.ErrorIs(t, err, ErrInvalidFrameSize)

	// State must be unchanged: PSD still at its 1.0 seed.
	for _, v := range p.psd {
		assert.Equal(t, 1.0, v)
	}
	for _, v := range p.w {
		assert.Equal(t, complex(0, 0), v)
	}
}

func TestProcess_ColdStartIdentity(t *testing.T) {
	p, err := New(512, 0.5)
	require.NoError(t, err)

	m := p.FrameSize()
	far := make([]float64, m)
	mic := make([]float64, m)
	for i := range mic {
		mic[i] = 0.1
	}
	out := make([]float64, m)

	require.NoError(t, p.Process(out, far, mic))

	for i, v := range out {
		assert.Equalf(t, 0.1, v, "out[%d]", i)
	}
	// far is silent, so X_f is zero in every bin and the PSD update (step 3)
	// smooths toward zero power: psd[k] = alpha*1.0 + (1-alpha)*0 = alpha.
	for _, v := range p.psd {
		assert.Equal(t, defaultSmoothing, v)
	}
	for _, v := range p.w {
		assert.Equal(t, complex(0, 0), v)
	}
}

func TestProcess_ZeroStepSize(t *testing.T) {
	p, err := New(512, 0)
	require.NoError(t, err)

	m := p.FrameSize()
	out := make([]float64, m)

	for frame := 0; frame < 8; frame++ {
		far := make([]float64, m)
		mic := make([]float64, m)
		for i := range far {
			far[i] = math.Sin(float64(frame*m+i) * 0.1)
			mic[i] = far[i] * 0.3
		}
		require.NoError(t, p.Process(out, far, mic))
		assert.Equal(t, mic, out)
	}

	for _, v := range p.w {
		assert.Equal(t, complex(0, 0), v)
	}
}

func TestProcess_SilentFarEnd(t *testing.T) {
	p, err := New(256, 0.3)
	require.NoError(t, err)

	m := p.FrameSize()
	out := make([]float64, m)
	far := make([]float64, m)

	for frame := 0; frame < 16; frame++ {
		mic := make([]float64, m)
		for i := range mic {
			mic[i] = math.Sin(float64(frame*m+i)*0.05) * 0.4
		}
		require.NoError(t, p.Process(out, far, mic))
		assert.Equal(t, mic, out)
	}

	for _, v := range p.w {
		assert.Equal(t, complex(0, 0), v)
	}
}

func TestProcess_ZeroInputStability(t *testing.T) {
	p, err := New(1024, 0.5)
	require.NoError(t, err)

	m := p.FrameSize()
	far := make([]float64, m)
	mic := make([]float64, m)
	out := make([]float64, m)

	const frames = 31 // ~1s at 16kHz with 512-sample frames
	for f := 0; f < frames; f++ {
		require.NoError(t, p.Process(out, far, mic))
		for _, v := range out {
			assert.Equal(t, 0.0, v)
		}
	}

	want := math.Pow(defaultSmoothing, float64(frames))
	for k, v := range p.psd {
		assert.InDeltaf(t, want, v, 1e-9, "psd[%d]", k)
		assert.Greater(t, v, 0.0)
	}
}

func TestProcess_SilentMicRMSBounded(t *testing.T) {
	p, err := New(512, 0.2)
	require.NoError(t, err)

	m := p.FrameSize()
	out := make([]float64, m)
	var sumSq float64
	var count int

	for frame := 0; frame < 40; frame++ {
		far := make([]float64, m)
		mic := make([]float64, m)
		for i := range far {
			far[i] = math.Sin(float64(frame*m+i)*0.07) * 0.5
		}
		require.NoError(t, p.Process(out, far, mic))
		for _, v := range out {
			require.True(t, !math.IsNaN(v) && !math.IsInf(v, 0))
			sumSq += v * v
			count++
		}
	}

	rms := math.Sqrt(sumSq / float64(count))
	assert.Less(t, rms, 5.0)
}

func TestProcess_Convergence_PureDelayedEcho(t *testing.T) {
	const (
		n         = 1024
		m         = n / 2
		sampleHz  = 16000
		toneHz    = 440
		amplitude = 0.6
		delay     = 128
		atten     = 0.7
	)

	p, err := New(n, 0.5)
	require.NoError(t, err)

	totalSamples := sampleHz * 2
	far := make([]float64, totalSamples)
	mic := make([]float64, totalSamples)
	for i := range far {
		far[i] = amplitude * math.Sin(2*math.Pi*toneHz*float64(i)/sampleHz)
	}
	for i := delay; i < totalSamples; i++ {
		mic[i] = atten * far[i-delay]
	}

	out := make([]float64, m)
	var earlyMicSq, earlyOutSq float64
	var earlyCount int
	halfSecSamples := sampleHz / 2

	for offset := 0; offset+m <= totalSamples; offset += m {
		require.NoError(t, p.Process(out, far[offset:offset+m], mic[offset:offset+m]))
		if offset < halfSecSamples {
			for i, v := range out {
				earlyOutSq += v * v
				earlyMicSq += mic[offset+i] * mic[offset+i]
				earlyCount++
			}
		}
	}

	micRMS := math.Sqrt(earlyMicSq / float64(earlyCount))
	outRMS := math.Sqrt(earlyOutSq / float64(earlyCount))
	require.Greater(t, micRMS, 0.0)
	reductionDB := 20 * math.Log10(micRMS/outRMS)
	assert.Greaterf(t, reductionDB, 10.0, "expected >=10dB reduction, got %.2fdB (micRMS=%.4f outRMS=%.4f)", reductionDB, micRMS, outRMS)
}

func TestProcess_DoubleTalkPreservation(t *testing.T) {
	const (
		n          = 1024
		m          = n / 2
		sampleHz   = 16000
		farToneHz  = 440
		nearToneHz = 880
		farAmp     = 0.6
		nearAmp    = 0.4
		delay      = 128
		atten      = 0.7
		talkStart  = sampleHz / 2
	)

	p, err := New(n, 0.5)
	require.NoError(t, err)

	totalSamples := sampleHz * 2
	far := make([]float64, totalSamples)
	mic := make([]float64, totalSamples)
	for i := range far {
		far[i] = farAmp * math.Sin(2*math.Pi*farToneHz*float64(i)/sampleHz)
	}
	for i := delay; i < totalSamples; i++ {
		mic[i] = atten * far[i-delay]
	}
	for i := talkStart; i < totalSamples; i++ {
		mic[i] += nearAmp * math.Sin(2*math.Pi*nearToneHz*float64(i)/sampleHz)
	}

	out := make([]float64, m)
	var beforeMicSq, beforeOutSq, afterMicSq, afterOutSq float64
	var beforeCount, afterCount int

	for offset := 0; offset+m <= totalSamples; offset += m {
		require.NoError(t, p.Process(out, far[offset:offset+m], mic[offset:offset+m]))
		for i, v := range out {
			idx := offset + i
			if idx < talkStart {
				beforeOutSq += v * v
				beforeMicSq += mic[idx] * mic[idx]
				beforeCount++
			} else {
				afterOutSq += v * v
				afterMicSq += mic[idx] * mic[idx]
				afterCount++
			}
		}
	}

	beforeMicRMS := math.Sqrt(beforeMicSq / float64(beforeCount))
	beforeOutRMS := math.Sqrt(beforeOutSq / float64(beforeCount))
	assert.Less(t, beforeOutRMS, beforeMicRMS/2)

	afterMicRMS := math.Sqrt(afterMicSq / float64(afterCount))
	afterOutRMS := math.Sqrt(afterOutSq / float64(afterCount))
	assert.Less(t, afterOutRMS, afterMicRMS)
	assert.Greater(t, afterOutRMS, 0.05)
}

// TestProcess_PropertyInvariants checks the universal invariants from the
// testable-properties law set across randomly drawn power-of-two N and
// frame contents: buffer lengths stay fixed, every PSD bin stays strictly
// positive, and output stays finite for a small step size.
func TestProcess_PropertyInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		exp := rapid.IntRange(1, 9).Draw(t, "exp")
		n := 1 << exp
		p, err := New(n, 0.05)
		require.NoError(t, err)

		m := p.FrameSize()
		frames := rapid.IntRange(1, 6).Draw(t, "frames")
		out := make([]float64, m)

		for f := 0; f < frames; f++ {
			far := make([]float64, m)
			mic := make([]float64, m)
			for i := 0; i < m; i++ {
				far[i] = rapid.Float64Range(-1, 1).Draw(t, "far")
				mic[i] = rapid.Float64Range(-1, 1).Draw(t, "mic")
			}
			require.NoError(t, p.Process(out, far, mic))

			assert.Len(t, p.w, n)
			assert.Len(t, p.xhist, n)
			assert.Len(t, p.psd, n)

			for _, v := range p.psd {
				assert.Greater(t, v, 0.0)
			}
			for _, v := range out {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		}
	})
}

func TestProcess_NonPowerOfTwoRejection(t *testing.T) {
	_, err := New(511, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}
