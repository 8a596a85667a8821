package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// reportLoop logs the statistics summary on a fixed interval until shutdown.
func (m *Monitor) reportLoop(ctx context.Context) {
	log.Info().Str("unit", "reporter").Msg("stats reporter started")
	defer log.Info().Str("unit", "reporter").Msg("stats reporter stopped")

	interval := time.Duration(m.cfg.StatsIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Str("unit", "reporter").Msg(m.stats.Summary())
		}
	}
}
