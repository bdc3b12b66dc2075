// Package spectrum computes visualization frames from rendered audio blocks.
package spectrum

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

const (
	// WindowSize is the FFT length taken from the start of each block.
	WindowSize = 512
	// UsableBins is the Nyquist-limited half of the FFT output.
	UsableBins = WindowSize / 2
	// OutputBins is the number of values per published frame.
	OutputBins = 64

	groupSize = UsableBins / OutputBins

	// DefaultDBMax is the default ceiling of the dB normalization.
	DefaultDBMax = 90
	dbFloor      = 60
	minMagnitude = 1e-7
	linearScale  = 25
)

type Mode int32

const (
	ModeDB Mode = iota
	ModeLinear
)

func (m Mode) String() string {
	switch m {
	case ModeDB:
		return "db"
	case ModeLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseMode maps "db" and "linear" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "db", "dB", "DB":
		return ModeDB, true
	case "linear":
		return ModeLinear, true
	default:
		return ModeDB, false
	}
}

// Frame is one analysis result. Frames are never modified after publication.
type Frame struct {
	Magnitudes [OutputBins]float32
	Phases     [OutputBins]float32
}

// Analyzer runs a windowed FFT over the first WindowSize samples of channel 0
// of every block. Process is meant to be called from the audio thread: all
// scratch memory is allocated up front and the only allocation per call is
// the published Frame.
type Analyzer struct {
	mode  atomic.Int32
	dbMax atomic.Uint32 // float32 bits

	out *Mailbox[Frame]

	window  []float32
	bitPerm []int
	tmp1    []float32
	tmp2    []float32
	tmpC    []complex128
	mag     []float32
	phase   []float32
}

func NewAnalyzer(out *Mailbox[Frame]) *Analyzer {
	a := &Analyzer{
		out:     out,
		window:  make([]float32, WindowSize),
		bitPerm: make([]int, WindowSize),
		tmp1:    make([]float32, WindowSize),
		tmp2:    make([]float32, WindowSize),
		tmpC:    make([]complex128, WindowSize),
		mag:     make([]float32, UsableBins),
		phase:   make([]float32, UsableBins),
	}
	a.dbMax.Store(math.Float32bits(DefaultDBMax))
	n := WindowSize
	for i := range n {
		// Hann window
		a.window[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1))))
		a.bitPerm[i] = i
	}
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a.bitPerm[i], a.bitPerm[j] = a.bitPerm[j], a.bitPerm[i]
		}
	}
	return a
}

func (a *Analyzer) SetMode(m Mode) { a.mode.Store(int32(m)) }
func (a *Analyzer) Mode() Mode     { return Mode(a.mode.Load()) }

// SetDBMax sets the dB normalization ceiling. Non-positive values are ignored.
func (a *Analyzer) SetDBMax(v float64) {
	if v > 0 {
		a.dbMax.Store(math.Float32bits(float32(v)))
	}
}

func (a *Analyzer) DBMax() float64 {
	return float64(math.Float32frombits(a.dbMax.Load()))
}

// Process analyzes one interleaved block with the given channel count and
// publishes the frame. Blocks with fewer than WindowSize frames are skipped.
func (a *Analyzer) Process(block []float32, channels int) {
	if channels <= 0 || len(block)/channels < WindowSize {
		return
	}
	if f := a.analyze(block, channels); f != nil {
		a.out.Store(f)
	}
}

func (a *Analyzer) analyze(block []float32, channels int) *Frame {
	for i := range WindowSize {
		a.tmp1[i] = finite(block[i*channels])
	}
	vek32.Mul_Inplace(a.tmp1, a.window)
	vek32.Gather_Into(a.tmp2, a.tmp1, a.bitPerm)
	c := a.tmpC
	for i := range c {
		c[i] = complex(float64(a.tmp2[i]), 0)
	}
	fft(c)

	for i := range UsableBins {
		a.mag[i] = float32(cmplx.Abs(c[i]))
		a.phase[i] = float32(cmplx.Phase(c[i]))
	}

	f := &Frame{}
	for k := range OutputBins {
		lo, hi := k*groupSize, (k+1)*groupSize
		f.Magnitudes[k] = vek32.Mean(a.mag[lo:hi])
		p := vek32.Mean(a.phase[lo:hi])
		if p <= -math.Pi {
			p = math.Pi
		}
		f.Phases[k] = p
	}

	mags := f.Magnitudes[:]
	switch a.Mode() {
	case ModeLinear:
		vek32.DivNumber_Inplace(mags, linearScale)
	default:
		for i, v := range mags {
			mags[i] = max(v, minMagnitude)
		}
		vek32.Log10_Inplace(mags)
		vek32.MulNumber_Inplace(mags, 20)
		dbMax := math.Float32frombits(a.dbMax.Load())
		for i, v := range mags {
			mags[i] = min(max((v+dbFloor)/dbMax, 0), 1)
		}
	}
	return f
}

// fft is an iterative radix-2 transform over input that has already been
// bit-reversal permuted.
func fft(c []complex128) {
	n := len(c)
	for size := 2; size <= n; size <<= 1 {
		ang := -2 * math.Pi / float64(size)
		wlen := complex(math.Cos(ang), math.Sin(ang))
		for i := 0; i < n; i += size {
			w := complex(1, 0)
			for j := 0; j < size/2; j++ {
				u := c[i+j]
				v := c[i+j+size/2] * w
				c[i+j] = u + v
				c[i+j+size/2] = u - v
				w *= wlen
			}
		}
	}
}

func finite(v float32) float32 {
	if v != v || v > 1e9 || v < -1e9 {
		return 0
	}
	return v
}
