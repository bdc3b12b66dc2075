package effects

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

const (
	// Bands is the number of peaking filters in the equalizer.
	Bands = 12
	// MaxGainDB bounds every band gain and the global gain to ±MaxGainDB.
	MaxGainDB = 24.0

	bandQ = 1.41 // roughly one octave per band
)

// BandFrequencies are the centre frequencies of the equalizer bands in Hz.
var BandFrequencies = [Bands]float64{32, 64, 125, 250, 500, 1000, 2000, 4000, 6000, 8000, 12000, 16000}

var ErrBandOutOfRange = errors.New("equalizer band out of range")

// EQState is a snapshot of the equalizer settings in dB.
type EQState struct {
	Bands  [Bands]float64
	Global float64
}

// biquad holds coefficients normalized by a0.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

type eqCoeffs struct {
	bands  [Bands]biquad
	active [Bands]bool
	global float64 // linear
}

// ParametricEQ is a bank of peaking biquads followed by a global gain stage.
// Settings are changed from the control goroutine: coefficients are computed
// there and published with a single pointer swap, so Process only ever loads
// a finished coefficient set.
type ParametricEQ struct {
	sampleRate int

	mu     sync.Mutex // serializes setters
	state  EQState
	coeffs atomic.Pointer[eqCoeffs]

	// filter memory, audio thread only: [band][channel]{s1, s2}
	z [Bands][2][2]float64
}

// NewParametricEQ creates a flat equalizer.
func NewParametricEQ(sampleRate int) *ParametricEQ {
	eq := &ParametricEQ{sampleRate: sampleRate}
	eq.publish()
	return eq
}

// SetBandGain sets band (0-11) to gainDB, clamped to ±MaxGainDB.
func (eq *ParametricEQ) SetBandGain(band int, gainDB float64) error {
	if band < 0 || band >= Bands {
		return ErrBandOutOfRange
	}
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.state.Bands[band] = clamp(gainDB, -MaxGainDB, MaxGainDB)
	eq.publish()
	return nil
}

// SetGlobalGain sets the output gain stage, clamped to ±MaxGainDB.
func (eq *ParametricEQ) SetGlobalGain(gainDB float64) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.state.Global = clamp(gainDB, -MaxGainDB, MaxGainDB)
	eq.publish()
}

// SetState applies a whole preset at once.
func (eq *ParametricEQ) SetState(s EQState) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for i, g := range s.Bands {
		eq.state.Bands[i] = clamp(g, -MaxGainDB, MaxGainDB)
	}
	eq.state.Global = clamp(s.Global, -MaxGainDB, MaxGainDB)
	eq.publish()
}

func (eq *ParametricEQ) State() EQState {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.state
}

// publish must be called with mu held.
func (eq *ParametricEQ) publish() {
	c := &eqCoeffs{global: math.Pow(10, eq.state.Global/20)}
	for i, g := range eq.state.Bands {
		if g == 0 {
			continue
		}
		c.bands[i] = peaking(BandFrequencies[i], g, float64(eq.sampleRate))
		c.active[i] = true
	}
	eq.coeffs.Store(c)
}

// peaking returns RBJ peaking-EQ coefficients.
func peaking(freq, gainDB, sampleRate float64) biquad {
	freq = math.Min(freq, 0.45*sampleRate)
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * bandQ)
	cosw := math.Cos(w0)
	a0 := 1 + alpha/a
	return biquad{
		b0: (1 + alpha*a) / a0,
		b1: -2 * cosw / a0,
		b2: (1 - alpha*a) / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha/a) / a0,
	}
}

func (eq *ParametricEQ) Process(buf []float32) {
	c := eq.coeffs.Load()
	for b, on := range c.active {
		if !on {
			eq.z[b] = [2][2]float64{}
		}
	}
	for i := 0; i+1 < len(buf); i += 2 {
		for ch := 0; ch < 2; ch++ {
			x := float64(buf[i+ch])
			for b := range c.bands {
				if !c.active[b] {
					continue
				}
				f := &c.bands[b]
				z := &eq.z[b][ch]
				y := f.b0*x + z[0]
				z[0] = f.b1*x - f.a1*y + z[1]
				z[1] = f.b2*x - f.a2*y
				x = y
			}
			buf[i+ch] = float32(x * c.global)
		}
	}
}

func (eq *ParametricEQ) Reset() {
	eq.z = [Bands][2][2]float64{}
}
