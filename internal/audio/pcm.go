package audio

import "time"

// Info describes a decoded track.
type Info struct {
	TotalFrames  int64
	SampleRate   int
	ChannelCount int
}

// Duration returns the length of the track in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.TotalFrames) / float64(i.SampleRate)
}

// PCM is a fully decoded track held in memory as interleaved stereo float32.
// It is immutable once built, so the render callback may read it without
// synchronization.
type PCM struct {
	Samples    []float32
	SampleRate int
}

func (p *PCM) Info() Info {
	return Info{
		TotalFrames:  p.Frames(),
		SampleRate:   p.SampleRate,
		ChannelCount: Channels,
	}
}

// Frames returns the number of stereo frames.
func (p *PCM) Frames() int64 {
	return int64(len(p.Samples) / Channels)
}

// CopyFrames copies frames starting at frame into dst and returns the number
// of frames copied. dst is interleaved stereo.
func (p *PCM) CopyFrames(dst []float32, frame int64) int {
	if frame < 0 || frame >= p.Frames() {
		return 0
	}
	n := copy(dst, p.Samples[frame*Channels:])
	return n / Channels
}

// FrameDuration converts a frame count at sampleRate to a time.Duration.
func FrameDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
