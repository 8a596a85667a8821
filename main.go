// Program dumpmon watches an attached Android device for completed audio dump
// files and pulls them to local storage. Two independent detection paths — a
// real-time logcat listener and a periodic poll of the device-side queue
// file — feed a shared task queue drained by a pool of pull workers with
// bounded retry. The process runs until interrupted and prints a final
// statistics summary on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Yang-QZ/mtk-log-llm-inspector/adb"
	"github.com/Yang-QZ/mtk-log-llm-inspector/config"
	"github.com/Yang-QZ/mtk-log-llm-inspector/logcat"
	"github.com/Yang-QZ/mtk-log-llm-inspector/manifest"
	"github.com/Yang-QZ/mtk-log-llm-inspector/monitor"
)

// Version will be set at build time.
var Version = "dev"

const logTimeFormat = "2006-01-02 15:04:05"

func main() {
	configPath := pflag.StringP("config", "c", "config.json", "path to JSON configuration file")
	outputPath := pflag.StringP("output", "o", "", "override local save path")
	pflag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if *outputPath != "" {
		cfg.LocalSavePath = *outputPath
	}

	closeLog := setupLogging(cfg)
	defer closeLog()
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("config override not loaded, using defaults")
	}

	session := uuid.NewString()
	log.Info().Str("unit", "monitor").Str("version", Version).Str("session", session).Msg("audio dump monitor starting")

	var man *manifest.Store
	if cfg.ManifestDB != "" {
		var err error
		man, err = manifest.Open(cfg.ManifestDB, session)
		if err != nil {
			log.Warn().Err(err).Msg("pull manifest disabled")
		} else {
			defer man.Close()
		}
	}

	bridge := adb.NewBridge(cfg.ADBPath)
	var listener monitor.FileSource
	if cfg.UseLogcat {
		listener = logcat.NewListener(bridge)
	}

	mon := monitor.New(cfg, bridge, listener, man)
	if err := mon.Start(context.Background()); err != nil {
		if errors.Is(err, monitor.ErrNoDevice) {
			fmt.Fprintln(os.Stderr, "Error: no adb device connected. Please check device connection.")
		}
		log.Error().Err(err).Msg("monitor failed to start")
		os.Exit(1)
	}

	saveDir := cfg.LocalSavePath
	if abs, err := filepath.Abs(saveDir); err == nil {
		saveDir = abs
	}
	log.Info().Str("unit", "monitor").Str("dir", saveDir).Msg("monitor running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("unit", "monitor").Str("signal", sig.String()).Msg("shutting down")

	mon.Stop()
}

// setupLogging wires the global zerolog logger to stderr plus the configured
// append-only log file. Console output is colorized only on a real terminal;
// the file always receives plain text. Returns a close func for the file
// handle.
func setupLogging(cfg config.Config) func() {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: logTimeFormat,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}}

	var logFile *os.File
	var openErr error
	if cfg.LogFile != "" {
		logFile, openErr = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if openErr == nil {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        logFile,
				TimeFormat: logTimeFormat,
				NoColor:    true,
			})
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	if openErr != nil {
		log.Warn().Err(openErr).Str("path", cfg.LogFile).Msg("log file not writable, console only")
	}

	return func() {
		if logFile != nil {
			logFile.Close()
		}
	}
}
