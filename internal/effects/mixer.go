package effects

import (
	"math"
	"sync/atomic"
)

// Mixer is the output stage: master volume followed by a hard clip to
// [-1, 1]. The volume is stored as float32 bits for lock-free reads.
type Mixer struct {
	volume atomic.Uint32
}

func NewMixer() *Mixer {
	m := &Mixer{}
	m.volume.Store(math.Float32bits(1))
	return m
}

// SetVolume sets the master volume, clamped to [0, 1].
func (m *Mixer) SetVolume(v float64) {
	m.volume.Store(math.Float32bits(float32(clamp(v, 0, 1))))
}

func (m *Mixer) Volume() float64 {
	return float64(math.Float32frombits(m.volume.Load()))
}

func (m *Mixer) Process(buf []float32) {
	v := math.Float32frombits(m.volume.Load())
	for i, s := range buf {
		s *= v
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf[i] = s
	}
}

func (m *Mixer) Reset() {}
