package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/echoplayer/echoplayer-go"
	"github.com/echoplayer/echoplayer-go/internal/spectrum"
	"github.com/echoplayer/echoplayer-go/internal/store"
)

var playCommand = &cli.Command{
	Name:      "play",
	Usage:     "play files, folders or .eplist playlists",
	ArgsUsage: "[paths...]",
	Flags: []cli.Flag{
		&cli.Float64Flag{Name: "seek", Usage: "start position as a fraction of the first track (0..1)"},
		&cli.BoolFlag{Name: "spectrum", Usage: "draw a live spectrum on stderr"},
	},
	Action: func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		p, err := e.newPlayer()
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		p.Subscribe(func(ev echoplayer.Event) {
			switch ev.Kind {
			case echoplayer.EventTrackChanged:
				fmt.Printf("now playing: %s\n", ev.Track.DisplayName)
			case echoplayer.EventError:
				e.log.Error().Err(ev.Err).Msg("playback")
			case echoplayer.EventStateChanged:
				if ev.State == echoplayer.Idle {
					stop()
				}
			}
		})

		start, err := addAndPick(p, c.Args().Slice())
		if err != nil {
			e.log.Warn().Err(err).Msg("some paths were skipped")
		}
		if start == "" {
			err = p.Play()
		} else {
			err = p.OpenFile(start)
		}
		if err != nil {
			return err
		}
		if p.State() == echoplayer.Idle {
			return errors.New("nothing to play")
		}
		if seek := c.Float64("seek"); seek > 0 {
			if err := p.Seek(seek); err != nil {
				return err
			}
		}
		if c.Bool("spectrum") {
			go drawSpectrum(ctx, p)
		}

		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// addAndPick adds paths to the playlist and returns the first track they
// contributed, or the first path itself if it was already listed.
func addAndPick(p *echoplayer.Player, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	known := map[string]bool{}
	for _, t := range p.Playlist() {
		known[t.Path] = true
	}
	_, err := p.AddTracks(paths...)
	for _, t := range p.Playlist() {
		if !known[t.Path] {
			return t.Path, err
		}
	}
	if known[paths[0]] {
		return paths[0], err
	}
	return "", err
}

const bars = " ▁▂▃▄▅▆▇█"

func drawSpectrum(ctx context.Context, p *echoplayer.Player) {
	levels := []rune(bars)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return
		case <-p.SpectrumUpdates():
		}
		f, ok := p.Spectrum()
		if !ok {
			continue
		}
		var sb strings.Builder
		for _, m := range f.Magnitudes {
			i := int(m * float32(len(levels)-1))
			sb.WriteRune(levels[max(0, min(i, len(levels)-1))])
		}
		s := p.Session()
		fmt.Fprintf(os.Stderr, "\r%s %s / %s", sb.String(), clock(s.PositionSeconds), clock(s.DurationSeconds))
	}
}

func clock(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

var analyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "print the dominant spectrum band of every block of a file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "mode", Usage: "normalization: db or linear (default from config)"},
		&cli.Float64Flag{Name: "db-max", Usage: "dB ceiling for db mode (default from config)"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("analyze takes exactly one file", 2)
		}
		e, err := setup(c)
		if err != nil {
			return err
		}
		modeName := e.cfg.SpectrumMode
		if c.IsSet("mode") {
			modeName = c.String("mode")
		}
		mode, ok := spectrum.ParseMode(modeName)
		if !ok {
			return fmt.Errorf("unknown spectrum mode %q", modeName)
		}
		dbMax := e.cfg.SpectrumDBMax
		if c.IsSet("db-max") {
			dbMax = c.Float64("db-max")
		}

		frames, err := echoplayer.AnalyzeFile(c.Args().First(),
			echoplayer.WithAnalyzeSampleRate(e.cfg.SampleRate),
			echoplayer.WithAnalyzeMode(mode, dbMax),
		)
		if err != nil {
			return err
		}
		for _, tf := range frames {
			peak := 0
			for i, m := range tf.Frame.Magnitudes {
				if m > tf.Frame.Magnitudes[peak] {
					peak = i
				}
			}
			fmt.Printf("%10.3fs  bin %2d  %.3f\n", tf.At.Seconds(), peak, tf.Frame.Magnitudes[peak])
		}
		e.log.Info().Int("frames", len(frames)).Stringer("mode", mode).Msg("analyzed")
		return nil
	},
}

var toneCommand = &cli.Command{
	Name:      "tone",
	Usage:     "write a sine test tone as a 16-bit WAV file",
	ArgsUsage: "<out.wav>",
	Flags: []cli.Flag{
		&cli.Float64Flag{Name: "freq", Value: 440, Usage: "frequency in Hz"},
		&cli.Float64Flag{Name: "seconds", Value: 2, Usage: "length"},
		&cli.Float64Flag{Name: "amplitude", Value: 0.5, Usage: "peak amplitude (0..1)"},
		&cli.IntFlag{Name: "rate", Value: 44100, Usage: "sample rate"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("tone takes exactly one output path", 2)
		}
		rate := c.Int("rate")
		samples := echoplayer.Tone(c.Float64("freq"), c.Float64("amplitude"), c.Float64("seconds"), rate)
		return store.WriteFileAtomic(c.Args().First(), echoplayer.EncodeWAV(samples, rate, 2))
	},
}

var playlistCommand = &cli.Command{
	Name:  "playlist",
	Usage: "edit the saved playlist",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			Usage:     "add files, folders or a playlist document",
			ArgsUsage: "<paths...>",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				n, err := p.AddTracks(c.Args().Slice()...)
				fmt.Printf("added %d tracks\n", n)
				return err
			}),
		},
		{
			Name:  "list",
			Usage: "print the playlist",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				for i, t := range p.Playlist() {
					dur := "--:--"
					if d, ok := t.Duration(); ok {
						dur = clock(d)
					}
					fmt.Printf("%3d  %6s  %s\n", i+1, dur, t.DisplayName)
				}
				return nil
			}),
		},
		{
			Name:  "clear",
			Usage: "remove every entry",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				return p.ClearPlaylist()
			}),
		},
		{
			Name:      "move",
			Usage:     "move entries (1-based) before position dest",
			ArgsUsage: "<dest> <index...>",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				args := c.Args().Slice()
				if len(args) < 2 {
					return cli.Exit("move needs a destination and at least one index", 2)
				}
				var nums []int
				for _, a := range args {
					var n int
					if _, err := fmt.Sscanf(a, "%d", &n); err != nil {
						return fmt.Errorf("bad index %q", a)
					}
					nums = append(nums, n-1)
				}
				return p.Reorder(nums[1:], nums[0])
			}),
		},
		{
			Name:      "save",
			Usage:     "write the playlist to a .eplist file",
			ArgsUsage: "<file>",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				return p.SaveToFile(c.Args().First())
			}),
		},
		{
			Name:      "load",
			Usage:     "merge a .eplist file into the playlist",
			ArgsUsage: "<file>",
			Action: withPlayer(func(c *cli.Context, p *echoplayer.Player) error {
				return p.LoadFromFile(c.Args().First())
			}),
		},
	},
}

func withPlayer(fn func(*cli.Context, *echoplayer.Player) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		p, err := e.newPlayer()
		if err != nil {
			return err
		}
		defer p.Close()
		return fn(c, p)
	}
}
