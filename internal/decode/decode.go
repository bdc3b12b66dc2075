// Package decode turns mp3, wav and ogg files into in-memory PCM at a fixed
// output sample rate.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/echoplayer/echoplayer-go/internal/audio"
)

// ErrUnsupported is returned for file extensions no codec handles.
var ErrUnsupported = errors.New("unsupported container")

// Decoder decodes every file to 16-bit stereo at SampleRate and widens it to
// float32. Tracks at other rates are resampled by the codec on the way in.
type Decoder struct {
	SampleRate int
}

func New(sampleRate int) *Decoder {
	return &Decoder{SampleRate: sampleRate}
}

// Supported reports whether ext (with or without the leading dot) has a codec.
func Supported(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3", "wav", "ogg":
		return true
	default:
		return false
	}
}

type stream interface {
	io.Reader
	Length() int64
}

func (d *Decoder) Open(path string) (*audio.PCM, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := bytes.NewReader(raw)

	var s stream
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "mp3":
		s, err = mp3.DecodeWithSampleRate(d.SampleRate, src)
	case "wav":
		s, err = wav.DecodeWithSampleRate(d.SampleRate, src)
	case "ogg":
		s, err = vorbis.DecodeWithSampleRate(d.SampleRate, src)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}

	// 16-bit little-endian stereo: 4 bytes per frame.
	pcm, err := io.ReadAll(s)
	if err != nil {
		return nil, err
	}
	pcm = pcm[:len(pcm)/4*4]
	if len(pcm) == 0 {
		return nil, errors.New("no audio frames")
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return &audio.PCM{Samples: samples, SampleRate: d.SampleRate}, nil
}
