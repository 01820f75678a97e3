package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"ognbase/internal/config"
	"ognbase/internal/logging"
	"ognbase/internal/radio"
	"ognbase/internal/web"
)

type options struct {
	configPath string
	replayPath string
	logLevel   string
	summary    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("ognbase", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "./ognbase.yaml", "Path to YAML config")
	fs.StringVar(&o.replayPath, "replay", "", "Play a recorded frame log through the decode pipeline instead of the radio")
	fs.StringVar(&o.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	fs.StringVar(&o.summary, "log-summary", "", "Print a summary of a recorded frame log and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

// applyOverrides folds command line options into a loaded config.
func applyOverrides(cfg *config.Config, o options) error {
	if o.replayPath != "" {
		cfg.Replay.Enable = true
		cfg.Replay.Path = o.replayPath
		if cfg.Replay.Speed <= 0 {
			cfg.Replay.Speed = 1
		}
		cfg.Record.Enable = false
	}
	if o.logLevel != "" {
		lvl, err := log.ParseLevel(o.logLevel)
		if err != nil {
			return err
		}
		cfg.Log.Level = o.logLevel
		cfg.Log.LevelValue = lvl
	}
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal("bad arguments", "err", err)
	}

	if opts.summary != "" {
		if err := printLogSummary(os.Stdout, opts.summary); err != nil {
			log.Fatal("log summary failed", "err", err)
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal("config load failed", "path", opts.configPath, "err", err)
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		log.Fatal("bad arguments", "err", err)
	}

	logs := web.NewLogBuffer(2000)
	lg, err := logging.New(cfg.Log, io.MultiWriter(os.Stderr, logs))
	if err != nil {
		log.Fatal("logger init failed", "err", err)
	}
	defer lg.Close()
	logger := lg.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := newStation(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, radio.ErrRadioAbsent) {
			logger.Error("no radio module found; check wiring and radio.chip", "spi", cfg.Radio.SPIDevice, "err", err)
		} else {
			logger.Error("station init failed", "err", err)
		}
		_ = lg.Close()
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("ognbase starting", "mode", st.mode(), "protocol", cfg.Radio.Protocol, "band", cfg.Radio.Band)
	if err := st.Run(ctx, logs); err != nil {
		logger.Error("station stopped", "err", err)
		st.Close()
		_ = lg.Close()
		os.Exit(1)
	}
	logger.Info("ognbase stopping")
}
