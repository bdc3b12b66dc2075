package audio

import (
	"encoding/binary"
	"math"
)

const (
	// BlockFrames is the number of frames handed to a SampleSource per call.
	BlockFrames = 1024
	// Channels is the interleaved channel count of every rendered block.
	Channels = 2
	// BlockSamples is the number of interleaved float32 values in one block.
	BlockSamples = BlockFrames * Channels

	bytesPerFrame = Channels * 4
)

// SampleSource renders one block of interleaved stereo float32 samples.
// len(dst) is always BlockSamples. Process runs on the audio thread.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the io.Reader pulled by the output
// driver. The driver asks for arbitrary byte counts; the reader always renders
// whole blocks and serves the remainder of a block on the next Read.
type StreamReader struct {
	source SampleSource
	block  []float32
	pos    int // next unread sample in block
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{
		source: source,
		block:  make([]float32, BlockSamples),
		pos:    BlockSamples,
	}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	samples := (len(p) / bytesPerFrame) * Channels
	if samples == 0 {
		return 0, nil
	}
	n := 0
	for n < samples {
		if r.pos == len(r.block) {
			r.source.Process(r.block)
			r.pos = 0
		}
		c := min(samples-n, len(r.block)-r.pos)
		for i := 0; i < c; i++ {
			binary.LittleEndian.PutUint32(p[(n+i)*4:], math.Float32bits(r.block[r.pos+i]))
		}
		r.pos += c
		n += c
	}
	return n * 4, nil
}

func (r *StreamReader) Close() error { return nil }
