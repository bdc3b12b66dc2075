package echoplayer

import (
	"encoding/binary"
	"math"
	"time"

	intaudio "github.com/echoplayer/echoplayer-go/internal/audio"
	intdecode "github.com/echoplayer/echoplayer-go/internal/decode"
	intspec "github.com/echoplayer/echoplayer-go/internal/spectrum"
)

// TimedFrame is a spectrum frame and the track position of the block it was
// computed from.
type TimedFrame struct {
	At    time.Duration
	Frame SpectrumFrame
}

type AnalyzeOption func(*analyzeConfig)

type analyzeConfig struct {
	sampleRate int
	decoder    Decoder
	mode       SpectrumMode
	dbMax      float64
}

func WithAnalyzeSampleRate(sr int) AnalyzeOption {
	return func(cfg *analyzeConfig) { cfg.sampleRate = sr }
}

func WithAnalyzeDecoder(d Decoder) AnalyzeOption {
	return func(cfg *analyzeConfig) { cfg.decoder = d }
}

func WithAnalyzeMode(m SpectrumMode, dbMax float64) AnalyzeOption {
	return func(cfg *analyzeConfig) {
		cfg.mode = m
		cfg.dbMax = dbMax
	}
}

// AnalyzeFile decodes path and returns the spectrum of every block, as the
// player would publish it, without opening an audio device. A trailing
// partial block is zero padded.
func AnalyzeFile(path string, opts ...AnalyzeOption) ([]TimedFrame, error) {
	cfg := analyzeConfig{sampleRate: 44100, mode: SpectrumDB, dbMax: intspec.DefaultDBMax}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.decoder == nil {
		cfg.decoder = intdecode.New(cfg.sampleRate)
	}
	pcm, err := cfg.decoder.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return AnalyzeSamples(pcm.Samples, pcm.SampleRate, WithAnalyzeMode(cfg.mode, cfg.dbMax)), nil
}

// AnalyzeSamples runs the analyzer over interleaved stereo samples block by
// block.
func AnalyzeSamples(samples []float32, sampleRate int, opts ...AnalyzeOption) []TimedFrame {
	cfg := analyzeConfig{mode: SpectrumDB, dbMax: intspec.DefaultDBMax}
	for _, opt := range opts {
		opt(&cfg)
	}
	box := intspec.NewMailbox[SpectrumFrame]()
	a := intspec.NewAnalyzer(box)
	a.SetMode(cfg.mode)
	a.SetDBMax(cfg.dbMax)

	pcm := &intaudio.PCM{Samples: samples, SampleRate: sampleRate}
	block := make([]float32, intaudio.BlockSamples)
	var out []TimedFrame
	for frame := int64(0); frame < pcm.Frames(); frame += intaudio.BlockFrames {
		n := pcm.CopyFrames(block, frame)
		clear(block[n*intaudio.Channels:])
		a.Process(block, intaudio.Channels)
		if f := box.Load(); f != nil {
			out = append(out, TimedFrame{At: intaudio.FrameDuration(frame, sampleRate), Frame: *f})
		}
	}
	return out
}

// Tone returns seconds of a stereo sine at freq Hz and the given amplitude.
func Tone(freq, amplitude, seconds float64, sampleRate int) []float32 {
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}

// EncodeWAV encodes interleaved float32 samples as a 16-bit PCM WAV file.
// Samples are clipped to [-1, 1].
func EncodeWAV(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(int16(math.Round(v*32767))))
	}
	return out
}
