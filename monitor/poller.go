package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// pollLoop is the backup detection path: it periodically reads the remote
// queue marker file and offers any listed filenames. A failed or empty read
// is logged and skipped; only context cancellation ends the loop.
func (m *Monitor) pollLoop(ctx context.Context) {
	log.Info().Str("unit", "poller").Msg("queue poller started")
	defer log.Info().Str("unit", "poller").Msg("queue poller stopped")

	interval := time.Duration(m.cfg.PollIntervalSeconds) * time.Second
	for {
		m.pollOnce(ctx)
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context) {
	out, err := m.transport.ReadFile(ctx, m.adbTimeout(), m.cfg.DeviceQueueFile)
	if err != nil {
		// Routine while no dumps are pending: the queue file may simply not
		// exist yet.
		log.Debug().Str("unit", "poller").Err(err).Msg("queue file read failed")
		return
	}
	for _, name := range ParseQueueList(out) {
		m.offer("poller", name)
	}
}

// ParseQueueList splits the remote queue file contents into filenames: one
// per line, trimmed, with blank and whitespace-only lines dropped. Order is
// preserved.
func ParseQueueList(contents string) []string {
	var names []string
	for _, line := range strings.Split(contents, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
