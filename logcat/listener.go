// Package logcat implements the real-time detection path: a long-running
// stream of the device's log output filtered to the dump channel, from which
// newly announced dump filenames are extracted. The backup detection path
// (polling the remote queue file) lives in the monitor package.
package logcat

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Yang-QZ/mtk-log-llm-inspector/adb"
)

// DumpChannel is the logcat tag the device-side dump manager announces
// completed files on.
const DumpChannel = "AudioDumpManager"

// reconnectBackoff is how long the listener waits after a stream ends or
// fails before starting a new one.
const reconnectBackoff = 5 * time.Second

// dumpReadyRE matches the marker line emitted when a dump file is complete:
// the keyword, whitespace, then a bare filename token.
var dumpReadyRE = regexp.MustCompile(`AUDIO_DUMP_READY:\s+(\S+)`)

// ExtractFilename returns the filename announced by a dump-ready log line,
// or ok=false when the line carries no marker.
func ExtractFilename(line string) (string, bool) {
	m := dumpReadyRE.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LineStream is the slice of adb.Stream the listener needs; tests substitute
// a scripted stream.
type LineStream interface {
	Lines() <-chan string
	Terminate()
}

// StreamFunc opens a new log stream. The production implementation wraps
// Bridge.Stream with the logcat arguments.
type StreamFunc func(ctx context.Context) (LineStream, error)

// Listener streams device log output and emits each newly announced dump
// filename on Files(). It reconnects with a fixed backoff after any stream
// failure and terminates only when its context is cancelled.
type Listener struct {
	open    StreamFunc
	out     chan string
	backoff time.Duration
}

// NewListener creates a listener backed by `adb logcat -s <channel>:I -v raw`.
func NewListener(bridge *adb.Bridge) *Listener {
	open := func(ctx context.Context) (LineStream, error) {
		return bridge.Stream(ctx, "logcat", "-s", DumpChannel+":I", "-v", "raw")
	}
	return newListener(open, reconnectBackoff)
}

func newListener(open StreamFunc, backoff time.Duration) *Listener {
	return &Listener{
		open:    open,
		out:     make(chan string, 16),
		backoff: backoff,
	}
}

// Files returns the channel of detected dump filenames.
func (l *Listener) Files() <-chan string {
	return l.out
}

// Run blocks until ctx is cancelled, maintaining one live log stream and
// reconnecting after stream termination or transport errors. Transient
// failures never end the loop.
func (l *Listener) Run(ctx context.Context) {
	log.Info().Str("unit", "listener").Msg("logcat listener started")
	defer log.Info().Str("unit", "listener").Msg("logcat listener stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		stream, err := l.open(ctx)
		if err != nil {
			log.Warn().Str("unit", "listener").Err(err).Msg("logcat stream failed to start")
			if !sleepCtx(ctx, l.backoff) {
				return
			}
			continue
		}
		l.consume(ctx, stream)
		stream.Terminate()
		if !sleepCtx(ctx, l.backoff) {
			return
		}
		log.Info().Str("unit", "listener").Msg("reconnecting logcat stream")
	}
}

// consume forwards every marker filename from the stream until the stream
// closes or ctx is cancelled.
func (l *Listener) consume(ctx context.Context, stream LineStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-stream.Lines():
			if !ok {
				return
			}
			name, matched := ExtractFilename(line)
			if !matched {
				continue
			}
			log.Debug().Str("unit", "listener").Str("file", name).Msg("dump-ready marker seen")
			select {
			case l.out <- name:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
