package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/echoplayer/echoplayer-go"
	"github.com/echoplayer/echoplayer-go/internal/config"
	"github.com/echoplayer/echoplayer-go/internal/spectrum"
	"github.com/echoplayer/echoplayer-go/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "echoplayer",
		Usage: "play, analyze and organize local audio files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config.yaml (default: user config dir)"},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
		},
		Commands: []*cli.Command{
			playCommand,
			analyzeCommand,
			toneCommand,
			playlistCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs: settings, a logger and the session store.
type env struct {
	cfg   config.Config
	log   zerolog.Logger
	store store.Store
}

func setup(c *cli.Context) (*env, error) {
	path := c.String("config")
	if path == "" {
		p, err := config.DefaultPath()
		if err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	dir := cfg.StoreDir
	if dir == "" {
		if dir, err = store.DefaultDir(); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("store", dir).Int("rate", cfg.SampleRate).Msg("configured")
	return &env{cfg: cfg, log: log, store: store.NewDir(dir)}, nil
}

func (e *env) newPlayer(opts ...echoplayer.PlayerOption) (*echoplayer.Player, error) {
	mode, _ := spectrum.ParseMode(e.cfg.SpectrumMode)
	base := []echoplayer.PlayerOption{
		echoplayer.WithLogger(e.log),
		echoplayer.WithStore(e.store),
		echoplayer.WithPollInterval(e.cfg.PollInterval),
		echoplayer.WithSpectrumMode(mode),
		echoplayer.WithSpectrumDBMax(e.cfg.SpectrumDBMax),
	}
	p, err := echoplayer.NewPlayer(e.cfg.SampleRate, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	var eq echoplayer.EqualizerState
	copy(eq.Bands[:], e.cfg.Equalizer.Bands)
	eq.Global = e.cfg.Equalizer.Global
	p.SetEqualizer(eq)
	p.SetVolume(e.cfg.Volume)
	if err := p.RestorePlaylist(); err != nil {
		e.log.Warn().Err(err).Msg("last session playlist not restored")
	}
	return p, nil
}
