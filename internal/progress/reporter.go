package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the number of voxel bytes the copy will write, overlap
	// included.
	TotalSize int64

	// TotalShards is the number of output shards.
	TotalShards int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source and Destination name the two volumes (for display).
	Source      string
	Destination string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	completedBytes  atomic.Int64
	completedShards atomic.Int32
	failedShards    atomic.Int32
	inProgress      atomic.Int32
	startTime       time.Time
	lastUpdate      time.Time
	lastBytes       int64
	stopCh          chan struct{}
	doneCh          chan struct{}
	started         bool
	stopped         bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic updates.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[volsplit] Copying: %s -> %s\n", r.opts.Source, r.opts.Destination)
	fmt.Fprintf(r.opts.Output, "[volsplit] Total size: %s | Shards: %d | Workers: %d\n",
		FormatBytes(r.opts.TotalSize),
		r.opts.TotalShards,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop prints the final status and waits for the update loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// ShardStarted marks a shard as in progress.
func (r *Reporter) ShardStarted() {
	r.inProgress.Add(1)
}

// BytesWritten records voxel bytes written to an output shard.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// ShardCompleted marks an in-progress shard as completed.
func (r *Reporter) ShardCompleted() {
	r.completedShards.Add(1)
	r.inProgress.Add(-1)
}

// ShardFailed removes a shard from in-progress.
func (r *Reporter) ShardFailed() {
	r.failedShards.Add(1)
	r.inProgress.Add(-1)
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()
	completedShards := int(r.completedShards.Load())
	inProgress := int(r.inProgress.Load())

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	var percent float64
	var eta string
	if r.opts.TotalSize > 0 {
		percent = float64(completed) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - completed)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		} else {
			eta = "calculating..."
		}
	}

	pending := max(r.opts.TotalShards-completedShards-inProgress-int(r.failedShards.Load()), 0)

	fmt.Fprintf(r.opts.Output, "\r[volsplit] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(completed),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[volsplit] Shards: %d completed | %d in-progress | %d pending    \033[A",
		completedShards,
		inProgress,
		pending,
	)
}

func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	status := "Complete!"
	if failed := r.failedShards.Load(); failed > 0 {
		status = fmt.Sprintf("%d shards failed", failed)
	}

	fmt.Fprintf(r.opts.Output, "\r[volsplit] Progress: %s / %s | %s    \n",
		FormatBytes(completed),
		FormatBytes(r.opts.TotalSize),
		status,
	)
	fmt.Fprintf(r.opts.Output, "[volsplit] Shards: %d completed | %d failed    \n",
		r.completedShards.Load(),
		r.failedShards.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[volsplit] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// FormatBytes formats a byte count with binary units, e.g. "1.5 KiB".
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a byte size such as "256MiB" or "1GB".
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte string %q: %w", s, err)
	}
	return int64(n), nil
}
