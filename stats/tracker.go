// Package stats tracks pull counters for periodic console output and the
// final shutdown summary. All mutation goes through AddSuccess/AddFailure so
// callers can never race on the raw counters.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Collector accumulates transfer statistics for the life of the process.
// Counters are monotonically non-decreasing.
type Collector struct {
	mu               sync.Mutex
	filesPulled      int64
	filesFailed      int64
	bytesTransferred int64
	start            time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FilesPulled      int64
	FilesFailed      int64
	BytesTransferred int64
	Elapsed          time.Duration
}

// NewCollector creates a collector whose elapsed time starts now.
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// AddSuccess records one pulled file and the bytes it transferred.
func (c *Collector) AddSuccess(bytes int64) {
	c.mu.Lock()
	c.filesPulled++
	c.bytesTransferred += bytes
	c.mu.Unlock()
}

// AddFailure records one file whose pull attempts all exhausted.
func (c *Collector) AddFailure() {
	c.mu.Lock()
	c.filesFailed++
	c.mu.Unlock()
}

// Snapshot returns a consistent copy of the counters and the elapsed runtime.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		FilesPulled:      c.filesPulled,
		FilesFailed:      c.filesFailed,
		BytesTransferred: c.bytesTransferred,
		Elapsed:          time.Since(c.start),
	}
}

// Summary formats the current counters for console and log output.
func (c *Collector) Summary() string {
	return c.Snapshot().Summary()
}

// Summary renders the snapshot as the multi-line block reported by the stats
// reporter and printed once more on shutdown.
func (s Snapshot) Summary() string {
	speed := "N/A"
	if secs := s.Elapsed.Seconds(); secs > 0 {
		speed = FormatSize(float64(s.BytesTransferred)/secs) + "/s"
	}
	return fmt.Sprintf(
		"Statistics Summary:\n"+
			"  Runtime: %s\n"+
			"  Files Pulled: %s\n"+
			"  Files Failed: %s\n"+
			"  Total Transferred: %s\n"+
			"  Average Speed: %s",
		FormatElapsed(s.Elapsed),
		humanize.Comma(s.FilesPulled),
		humanize.Comma(s.FilesFailed),
		FormatSize(float64(s.BytesTransferred)),
		speed,
	)
}

// FormatSize renders a byte quantity with binary-prefixed units, dividing by
// 1024 at each step: "0.00 B", "1.50 KB", "1.00 GB".
func FormatSize(size float64) string {
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f TB", size)
}

// FormatElapsed renders a duration as hh:mm:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
