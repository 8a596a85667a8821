// Package monitor owns the dump acquisition lifecycle: it verifies device
// reachability, starts the detection producers, the pull worker pool, and the
// stats reporter as independent goroutines, and coordinates their graceful
// shutdown. All shared state (dedup set, task queue, statistics) lives here.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Yang-QZ/mtk-log-llm-inspector/config"
	"github.com/Yang-QZ/mtk-log-llm-inspector/dedup"
	"github.com/Yang-QZ/mtk-log-llm-inspector/manifest"
	"github.com/Yang-QZ/mtk-log-llm-inspector/queue"
	"github.com/Yang-QZ/mtk-log-llm-inspector/stats"
)

// State tracks the monitor lifecycle.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrNoDevice is returned by Start when the reachability check finds no
	// attached, ready device. No units are started in that case.
	ErrNoDevice = errors.New("monitor: no adb device attached")

	// ErrAlreadyRunning is returned by Start after a successful Start.
	ErrAlreadyRunning = errors.New("monitor: already running")
)

// Transport is the slice of the device bridge the monitor depends on. The
// adb.Bridge satisfies it; tests substitute fakes.
type Transport interface {
	HasDevice(ctx context.Context, timeout time.Duration) (bool, error)
	ReadFile(ctx context.Context, timeout time.Duration, remotePath string) (string, error)
	Pull(ctx context.Context, timeout time.Duration, remotePath, localPath string) error
	RemoveWithQueueEntry(ctx context.Context, timeout time.Duration, remotePath, filename, queueFile string) error
}

// FileSource is a producer of detected dump filenames; the logcat listener
// implements it. Run must block until its context is cancelled.
type FileSource interface {
	Files() <-chan string
	Run(ctx context.Context)
}

const (
	defaultPopTimeout  = time.Second
	defaultJoinTimeout = 5 * time.Second
)

// Monitor coordinates the producers, the worker pool, and the reporter.
type Monitor struct {
	cfg       config.Config
	transport Transport
	listener  FileSource // nil when the logcat path is disabled
	stats     *stats.Collector
	seen      *dedup.Set
	tasks     *queue.Queue
	manifest  *manifest.Store // nil-safe: nil means disabled

	popTimeout  time.Duration
	joinTimeout time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a monitor. listener may be nil to disable the logcat detection
// path; man may be nil to disable the pull manifest.
func New(cfg config.Config, transport Transport, listener FileSource, man *manifest.Store) *Monitor {
	if cfg.PullWorkers < 1 {
		cfg.PullWorkers = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Monitor{
		cfg:         cfg,
		transport:   transport,
		listener:    listener,
		stats:       stats.NewCollector(),
		seen:        dedup.NewSet(),
		tasks:       queue.New(),
		manifest:    man,
		popTimeout:  defaultPopTimeout,
		joinTimeout: defaultJoinTimeout,
	}
}

// Stats exposes the collector for the final summary and for tests.
func (m *Monitor) Stats() *stats.Collector {
	return m.stats
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start verifies device reachability and launches every unit. On any error
// the monitor stays Idle with zero goroutines running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return ErrAlreadyRunning
	}

	ok, err := m.transport.HasDevice(ctx, m.adbTimeout())
	if err != nil {
		return fmt.Errorf("monitor: device check: %w", err)
	}
	if !ok {
		return ErrNoDevice
	}
	log.Info().Str("unit", "monitor").Msg("device connected")

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = Running

	units := 0
	spawn := func(fn func(context.Context)) {
		m.wg.Add(1)
		units++
		go func() {
			defer m.wg.Done()
			fn(runCtx)
		}()
	}

	if m.listener != nil {
		spawn(m.listener.Run)
		spawn(m.pumpListener)
	}
	spawn(m.pollLoop)
	for i := 0; i < m.cfg.PullWorkers; i++ {
		id := i
		spawn(func(ctx context.Context) { m.workerLoop(ctx, id) })
	}
	spawn(m.reportLoop)

	log.Info().Str("unit", "monitor").Int("units", units).Msg("monitor started")
	return nil
}

// Stop cancels every unit, waits for them with a bounded join, and always
// emits the final statistics summary.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return
	}
	m.state = Stopping
	cancel := m.cancel
	m.mu.Unlock()

	log.Info().Str("unit", "monitor").Msg("stopping monitor")
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.joinTimeout):
		log.Warn().Str("unit", "monitor").Msg("some units did not exit before the join deadline")
	}

	log.Info().Str("unit", "monitor").Msg("final " + m.stats.Summary())

	m.mu.Lock()
	m.state = Stopped
	m.mu.Unlock()
}

// offer is the single entry point for both producers: the dedup insert and
// the queue push form one producer-local critical section, so a filename is
// enqueued at most once no matter which path detects it first.
func (m *Monitor) offer(source, name string) {
	if !m.seen.Add(name) {
		return
	}
	m.tasks.Push(name)
	log.Info().Str("unit", source).Str("file", name).Msg("queued dump file")
}

// pumpListener moves filenames from the logcat listener into the shared
// dedup/queue pair.
func (m *Monitor) pumpListener(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-m.listener.Files():
			if !ok {
				return
			}
			m.offer("listener", name)
		}
	}
}

func (m *Monitor) adbTimeout() time.Duration {
	return time.Duration(m.cfg.ADBTimeoutSeconds) * time.Second
}

// sleepCtx waits for d, returning false when ctx is cancelled first.
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
