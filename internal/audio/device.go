package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Device is the hardware output: an ebiten audio player pulling blocks from
// a SampleSource through a StreamReader.
type Device struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// OpenDevice starts an output stream at sampleRate. The device is created
// paused; call Play to start pulling blocks.
func OpenDevice(sampleRate int, source SampleSource) (*Device, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	// Keep the driver-side buffer near one block so the render clock stays
	// close to what is audible.
	pl.SetBufferSize(time.Duration(BlockFrames) * time.Second / time.Duration(sampleRate))
	return &Device{
		player: pl,
		reader: reader,
	}, nil
}

func (d *Device) Play()  { d.player.Play() }
func (d *Device) Pause() { d.player.Pause() }
func (d *Device) IsPlaying() bool {
	return d.player.IsPlaying()
}

func (d *Device) Close() error {
	d.player.Pause()
	if err := d.player.Close(); err != nil {
		return err
	}
	return d.reader.Close()
}
