package stats

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// RuntimeStats is everything a collection run produced.
type RuntimeStats struct {
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	TotalElapsed time.Duration `json:"total_elapsed_ns"`
	ElapsedHuman string        `json:"total_elapsed"`
	Samples      []SamplePoint `json:"samples"`
	Summary      Summary       `json:"summary"`
}

// SamplePoint is one snapshot of process and runtime state.
type SamplePoint struct {
	Timestamp      time.Time `json:"timestamp"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`

	HeapAlloc       uint64 `json:"heap_alloc"`
	HeapInuse       uint64 `json:"heap_inuse"`
	Sys             uint64 `json:"sys"`
	NumGC           uint32 `json:"num_gc"`
	ProcessRSSBytes uint64 `json:"process_rss_bytes"`

	CPUPercent   float64   `json:"cpu_percent"`
	SystemCPU    []float64 `json:"system_cpu_percent"`
	NumGoroutine int       `json:"num_goroutine"`
}

type Summary struct {
	PeakHeapAlloc    uint64  `json:"peak_heap_alloc"`
	PeakSys          uint64  `json:"peak_sys"`
	PeakProcessRSS   uint64  `json:"peak_process_rss"`
	PeakCPUPercent   float64 `json:"peak_cpu_percent"`
	AvgCPUPercent    float64 `json:"avg_cpu_percent"`
	PeakGoroutines   int     `json:"peak_goroutines"`
	TotalGCCycles    uint32  `json:"total_gc_cycles"`
	SampleCount      int     `json:"sample_count"`
	SampleIntervalMs int64   `json:"sample_interval_ms"`
}

// Collector samples runtime and process statistics on an interval, used by
// the warm command to report what a full cache warm costs.
type Collector struct {
	mu        sync.Mutex
	stats     RuntimeStats
	startTime time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
	interval  time.Duration
	proc      *process.Process
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}

	return &Collector{
		stats: RuntimeStats{
			Samples: make([]SamplePoint, 0, 1000),
		},
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		proc:     proc,
	}, nil
}

func (c *Collector) Start() {
	c.startTime = time.Now()
	c.stats.StartTime = c.startTime

	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()

	for {
		select {
		case <-c.stopChan:
			// final sample
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	elapsed := time.Since(c.startTime)

	point := SamplePoint{
		Timestamp:      time.Now(),
		ElapsedSeconds: elapsed.Seconds(),
		HeapAlloc:      memStats.HeapAlloc,
		HeapInuse:      memStats.HeapInuse,
		Sys:            memStats.Sys,
		NumGC:          memStats.NumGC,
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		point.ProcessRSSBytes = memInfo.RSS
	}
	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		point.CPUPercent = cpuPercent
	}
	if systemCPU, err := cpu.Percent(0, true); err == nil {
		point.SystemCPU = systemCPU
	}

	c.mu.Lock()
	c.stats.Samples = append(c.stats.Samples, point)
	c.mu.Unlock()
}

// Stop ends collection and returns the finished stats.
func (c *Collector) Stop() RuntimeStats {
	close(c.stopChan)
	<-c.doneChan

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.EndTime = time.Now()
	c.stats.TotalElapsed = c.stats.EndTime.Sub(c.stats.StartTime)
	c.stats.ElapsedHuman = c.stats.TotalElapsed.String()

	c.calculateSummary()

	return c.stats
}

func (c *Collector) calculateSummary() {
	if len(c.stats.Samples) == 0 {
		return
	}

	var totalCPU float64

	for _, s := range c.stats.Samples {
		if s.HeapAlloc > c.stats.Summary.PeakHeapAlloc {
			c.stats.Summary.PeakHeapAlloc = s.HeapAlloc
		}
		if s.Sys > c.stats.Summary.PeakSys {
			c.stats.Summary.PeakSys = s.Sys
		}
		if s.ProcessRSSBytes > c.stats.Summary.PeakProcessRSS {
			c.stats.Summary.PeakProcessRSS = s.ProcessRSSBytes
		}
		if s.CPUPercent > c.stats.Summary.PeakCPUPercent {
			c.stats.Summary.PeakCPUPercent = s.CPUPercent
		}
		if s.NumGoroutine > c.stats.Summary.PeakGoroutines {
			c.stats.Summary.PeakGoroutines = s.NumGoroutine
		}
		if s.NumGC > c.stats.Summary.TotalGCCycles {
			c.stats.Summary.TotalGCCycles = s.NumGC
		}
		totalCPU += s.CPUPercent
	}

	c.stats.Summary.SampleCount = len(c.stats.Samples)
	c.stats.Summary.SampleIntervalMs = c.interval.Milliseconds()
	if c.stats.Summary.SampleCount > 0 {
		c.stats.Summary.AvgCPUPercent = totalCPU / float64(c.stats.Summary.SampleCount)
	}
}

// SaveToFile writes a plain text report of the run.
func (stats *RuntimeStats) SaveToFile(filename string) error {
	var sb strings.Builder

	sb.WriteString("WARM RUN STATISTICS\n")
	sb.WriteString("===================\n\n")

	sb.WriteString(fmt.Sprintf("Start:     %s\n", stats.StartTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("End:       %s\n", stats.EndTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", stats.ElapsedHuman))
	sb.WriteString(fmt.Sprintf("Samples:   %d (every %d ms)\n\n", stats.Summary.SampleCount, stats.Summary.SampleIntervalMs))

	sb.WriteString(fmt.Sprintf("Peak heap alloc:   %s\n", humanize.IBytes(stats.Summary.PeakHeapAlloc)))
	sb.WriteString(fmt.Sprintf("Peak sys memory:   %s\n", humanize.IBytes(stats.Summary.PeakSys)))
	sb.WriteString(fmt.Sprintf("Peak process RSS:  %s\n", humanize.IBytes(stats.Summary.PeakProcessRSS)))
	sb.WriteString(fmt.Sprintf("Peak CPU:          %.2f%%\n", stats.Summary.PeakCPUPercent))
	sb.WriteString(fmt.Sprintf("Average CPU:       %.2f%%\n", stats.Summary.AvgCPUPercent))
	sb.WriteString(fmt.Sprintf("Peak goroutines:   %d\n", stats.Summary.PeakGoroutines))
	sb.WriteString(fmt.Sprintf("GC cycles:         %d\n\n", stats.Summary.TotalGCCycles))

	sb.WriteString("SAMPLES\n")
	sb.WriteString(fmt.Sprintf("%-12s %-12s %-12s %-12s %-8s %-10s\n",
		"Elapsed(s)", "Heap", "RSS", "Sys", "CPU %", "Goroutines"))

	// cap the table at 100 rows, evenly spread
	const maxSamples = 100
	samplesToOutput := stats.Samples
	if len(stats.Samples) > maxSamples {
		samplesToOutput = make([]SamplePoint, 0, maxSamples)
		step := float64(len(stats.Samples)-1) / float64(maxSamples-1)
		for i := 0; i < maxSamples; i++ {
			idx := int(float64(i) * step)
			samplesToOutput = append(samplesToOutput, stats.Samples[idx])
		}
	}

	for _, sample := range samplesToOutput {
		sb.WriteString(fmt.Sprintf("%-12.1f %-12s %-12s %-12s %-8.1f %-10d\n",
			sample.ElapsedSeconds,
			humanize.IBytes(sample.HeapAlloc),
			humanize.IBytes(sample.ProcessRSSBytes),
			humanize.IBytes(sample.Sys),
			sample.CPUPercent,
			sample.NumGoroutine))
	}

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}

	return nil
}
