package monitor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Yang-QZ/mtk-log-llm-inspector/manifest"
)

// workerLoop drains the task queue until ctx is cancelled. The bounded Pop
// keeps the shutdown check prompt without busy-waiting.
func (m *Monitor) workerLoop(ctx context.Context, id int) {
	unit := fmt.Sprintf("worker-%d", id)
	log.Info().Str("unit", unit).Msg("pull worker started")
	defer log.Info().Str("unit", unit).Msg("pull worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		name, ok := m.tasks.Pop(m.popTimeout)
		if !ok {
			continue
		}
		if m.pullAndDelete(name) {
			log.Info().Str("unit", unit).Str("file", name).Msg("pulled")
		} else {
			log.Warn().Str("unit", unit).Str("file", name).Msg("pull failed")
		}
	}
}

// pullAndDelete retrieves one dump file with bounded retry, then best-effort
// removes the remote copy and its queue-file entry. Exactly one statistics
// update (success or failure) is recorded per task.
//
// Transport calls deliberately do not carry the worker's run context: an
// in-flight pull finishes its current attempt sequence even during shutdown
// (each attempt is still bounded by the command timeout), so the counters
// stay consistent with the number of dequeued tasks.
func (m *Monitor) pullAndDelete(name string) bool {
	started := time.Now()
	remotePath := path.Join(m.cfg.DeviceDumpPath, name)
	localPath := filepath.Join(m.cfg.LocalSavePath, name)
	timeout := m.adbTimeout()
	retryDelay := time.Duration(m.cfg.RetryDelaySeconds) * time.Second

	if err := os.MkdirAll(m.cfg.LocalSavePath, 0o755); err != nil {
		log.Error().Str("file", name).Err(err).Msg("cannot create local save directory")
		m.stats.AddFailure()
		m.manifest.Record(manifest.Record{
			Filename: name, Attempts: 0, OK: false,
			StartedAt: started, FinishedAt: time.Now(),
		})
		return false
	}

	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		err := m.transport.Pull(context.Background(), timeout, remotePath, localPath)
		if err == nil {
			var size int64
			if info, statErr := os.Stat(localPath); statErr == nil {
				size = info.Size()
			}
			if err := m.transport.RemoveWithQueueEntry(context.Background(), timeout, remotePath, name, m.cfg.DeviceQueueFile); err != nil {
				// The file is already safe locally; cleanup is best-effort.
				log.Warn().Str("file", name).Err(err).Msg("remote cleanup failed after pull")
			}
			m.stats.AddSuccess(size)
			m.manifest.Record(manifest.Record{
				Filename: name, Bytes: size, Attempts: attempt, OK: true,
				StartedAt: started, FinishedAt: time.Now(),
			})
			return true
		}

		log.Warn().Str("file", name).Int("attempt", attempt).Int("max_retries", m.cfg.MaxRetries).Err(err).Msg("pull attempt failed")
		if attempt < m.cfg.MaxRetries {
			time.Sleep(retryDelay)
		}
	}

	m.stats.AddFailure()
	m.manifest.Record(manifest.Record{
		Filename: name, Attempts: m.cfg.MaxRetries, OK: false,
		StartedAt: started, FinishedAt: time.Now(),
	})
	return false
}
