package ffmpeg

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats holds a resource-usage sample for a running engine
// subprocess.
type ProcessStats struct {
	PID            int       `json:"pid"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ProcessMonitor samples CPU and memory usage of one subprocess on a
// ticker while it runs.
type ProcessMonitor struct {
	pid      int
	interval time.Duration

	mu      sync.RWMutex
	stats   ProcessStats
	running bool
	done    chan struct{}
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	return &ProcessMonitor{
		pid:      pid,
		interval: 2 * time.Second,
		stats:    ProcessStats{PID: pid, StartedAt: time.Now()},
	}
}

// SetInterval changes the sampling interval. Must be called before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	if d > 0 {
		pm.interval = d
	}
}

// Start begins sampling in a background goroutine.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.running {
		return
	}
	pm.running = true
	pm.done = make(chan struct{})
	go pm.loop()
}

// Stop ends sampling.
func (pm *ProcessMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pm.running {
		return
	}
	pm.running = false
	close(pm.done)
}

// Stats returns the most recent sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) loop() {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	proc, err := process.NewProcess(int32(pm.pid))
	if err != nil {
		return
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return
	}
	var rss uint64
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rss = mem.RSS
	}

	pm.mu.Lock()
	pm.stats.CPUPercent = cpu
	pm.stats.MemoryRSSBytes = rss
	pm.stats.LastUpdated = time.Now()
	pm.mu.Unlock()
}
