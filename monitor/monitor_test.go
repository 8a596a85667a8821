package monitor

import (
	"context"
	"errors"
	"os"
	"path"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Yang-QZ/mtk-log-llm-inspector/config"
)

// fakeTransport is a scriptable Transport. failures holds the number of pull
// attempts that must fail before a pull of that filename succeeds.
type fakeTransport struct {
	mu         sync.Mutex
	device     bool
	deviceErr  error
	queueData  string
	readErr    error
	failures   map[string]int
	pullCalls  map[string]int
	cleanups   map[string]int
	cleanupErr error
	pullSize   int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		device:    true,
		failures:  make(map[string]int),
		pullCalls: make(map[string]int),
		cleanups:  make(map[string]int),
		pullSize:  1024,
	}
}

func (f *fakeTransport) HasDevice(ctx context.Context, timeout time.Duration) (bool, error) {
	return f.device, f.deviceErr
}

func (f *fakeTransport) ReadFile(ctx context.Context, timeout time.Duration, remotePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueData, f.readErr
}

func (f *fakeTransport) Pull(ctx context.Context, timeout time.Duration, remotePath, localPath string) error {
	name := path.Base(remotePath)
	f.mu.Lock()
	f.pullCalls[name]++
	if f.failures[name] > 0 {
		f.failures[name]--
		f.mu.Unlock()
		return errors.New("pull: transport failure")
	}
	size := f.pullSize
	f.mu.Unlock()
	return os.WriteFile(localPath, make([]byte, size), 0o644)
}

func (f *fakeTransport) RemoveWithQueueEntry(ctx context.Context, timeout time.Duration, remotePath, filename, queueFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups[filename]++
	return f.cleanupErr
}

func (f *fakeTransport) pullCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pullCalls[name]
}

func (f *fakeTransport) cleanupCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups[name]
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LocalSavePath = t.TempDir()
	cfg.UseLogcat = false
	cfg.PollIntervalSeconds = 1
	cfg.StatsIntervalSeconds = 60
	cfg.ADBTimeoutSeconds = 1
	cfg.RetryDelaySeconds = 0
	cfg.PullWorkers = 2
	cfg.MaxRetries = 3
	return cfg
}

func newTestMonitor(t *testing.T, cfg config.Config, tr Transport, src FileSource) *Monitor {
	t.Helper()
	m := New(cfg, tr, src, nil)
	m.popTimeout = 10 * time.Millisecond
	m.joinTimeout = 2 * time.Second
	return m
}

func TestParseQueueList(t *testing.T) {
	got := ParseQueueList("a.wav\n\nb.wav\n  \n")
	want := []string{"a.wav", "b.wav"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseQueueList = %v, want %v", got, want)
	}
	if out := ParseQueueList(""); out != nil {
		t.Fatalf("empty contents should yield no names, got %v", out)
	}
}

func TestStartRefusedWithoutDevice(t *testing.T) {
	tr := newFakeTransport()
	tr.device = false
	m := newTestMonitor(t, testConfig(t), tr, nil)

	err := m.Start(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Start = %v, want ErrNoDevice", err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v after refused start, want idle", m.State())
	}
}

func TestStartTwiceRefused(t *testing.T) {
	tr := newFakeTransport()
	m := newTestMonitor(t, testConfig(t), tr, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer m.Stop()
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	m := newTestMonitor(t, testConfig(t), newFakeTransport(), nil)
	m.Stop()
	if m.State() != Idle {
		t.Fatalf("state = %v, want idle", m.State())
	}
}

func TestPullSucceedsOnRetry(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["dump.wav"] = 1
	m := newTestMonitor(t, testConfig(t), tr, nil)

	if !m.pullAndDelete("dump.wav") {
		t.Fatal("pullAndDelete should succeed on the second attempt")
	}
	if got := tr.pullCount("dump.wav"); got != 2 {
		t.Errorf("pull attempts = %d, want 2", got)
	}
	if got := tr.cleanupCount("dump.wav"); got != 1 {
		t.Errorf("cleanup calls = %d, want 1", got)
	}
	s := m.Stats().Snapshot()
	if s.FilesPulled != 1 || s.FilesFailed != 0 {
		t.Errorf("stats = %+v, want one success", s)
	}
	if s.BytesTransferred != 1024 {
		t.Errorf("bytes = %d, want 1024", s.BytesTransferred)
	}
}

func TestPullExhaustsRetries(t *testing.T) {
	tr := newFakeTransport()
	tr.failures["broken.wav"] = 1 << 30
	m := newTestMonitor(t, testConfig(t), tr, nil)

	if m.pullAndDelete("broken.wav") {
		t.Fatal("pullAndDelete should fail when every attempt fails")
	}
	if got := tr.pullCount("broken.wav"); got != 3 {
		t.Errorf("pull attempts = %d, want max_retries = 3", got)
	}
	if got := tr.cleanupCount("broken.wav"); got != 0 {
		t.Errorf("cleanup calls = %d, want 0 on failure", got)
	}
	s := m.Stats().Snapshot()
	if s.FilesPulled != 0 || s.FilesFailed != 1 {
		t.Errorf("stats = %+v, want exactly one failure", s)
	}
}

func TestCleanupFailureDoesNotFailTask(t *testing.T) {
	tr := newFakeTransport()
	tr.cleanupErr = errors.New("sed: no such file")
	m := newTestMonitor(t, testConfig(t), tr, nil)

	if !m.pullAndDelete("dump.wav") {
		t.Fatal("cleanup failure must not fail an already-retrieved file")
	}
	s := m.Stats().Snapshot()
	if s.FilesPulled != 1 || s.FilesFailed != 0 {
		t.Errorf("stats = %+v, want one success", s)
	}
}

func TestOfferEnqueuesEachNameOnce(t *testing.T) {
	m := newTestMonitor(t, testConfig(t), newFakeTransport(), nil)
	m.offer("poller", "a.wav")
	m.offer("listener", "a.wav")
	m.offer("poller", "b.wav")
	if got := m.tasks.Len(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
}

// fakeSource feeds scripted filenames through the FileSource interface.
type fakeSource struct {
	names chan string
}

func newFakeSource(names ...string) *fakeSource {
	f := &fakeSource{names: make(chan string, len(names))}
	for _, n := range names {
		f.names <- n
	}
	return f
}

func (f *fakeSource) Files() <-chan string { return f.names }

func (f *fakeSource) Run(ctx context.Context) { <-ctx.Done() }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunPullsEverythingOnce(t *testing.T) {
	tr := newFakeTransport()
	tr.queueData = "a.wav\n\nb.wav\n  \n"
	// The listener announces b.wav too; the dedup set must collapse it.
	src := newFakeSource("b.wav", "c.wav")

	m := newTestMonitor(t, testConfig(t), tr, src)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return m.Stats().Snapshot().FilesPulled == 3
	})
	m.Stop()

	if m.State() != Stopped {
		t.Fatalf("state = %v after Stop, want stopped", m.State())
	}
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		if got := tr.pullCount(name); got != 1 {
			t.Errorf("%s pulled %d times, want 1", name, got)
		}
	}
	s := m.Stats().Snapshot()
	if s.FilesPulled+s.FilesFailed != 3 {
		t.Errorf("pulled+failed = %d, want 3 (one terminal outcome per dequeued task)", s.FilesPulled+s.FilesFailed)
	}
	if s.BytesTransferred != 3*1024 {
		t.Errorf("bytes = %d, want %d", s.BytesTransferred, 3*1024)
	}
}

func TestRunCountsTerminalFailures(t *testing.T) {
	tr := newFakeTransport()
	tr.queueData = "good.wav\nbad.wav\n"
	tr.failures["bad.wav"] = 1 << 30

	m := newTestMonitor(t, testConfig(t), tr, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		s := m.Stats().Snapshot()
		return s.FilesPulled == 1 && s.FilesFailed == 1
	})
	m.Stop()

	if got := tr.pullCount("bad.wav"); got != 3 {
		t.Errorf("bad.wav attempts = %d, want 3", got)
	}
	// A failed file stays in the dedup set so the poller cannot re-queue it.
	if !m.seen.Contains("bad.wav") {
		t.Error("failed file must remain marked as processed")
	}
}
