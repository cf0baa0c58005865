package benchmark

import (
	"sync"
	"time"
)

// ResourceSample is one point of the resource time series.
type ResourceSample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
}

// ResourceSampler samples CPU and memory of one observed process on its own
// goroutine at a fixed interval. It only reads from the process; the sample
// buffer is its sole state.
//
// CPU accounting APIs report a near-zero artifact on their first call (no
// prior measurement window), so the sampler issues one priming read before
// the loop starts and never retains it. Memory has no such artifact and is
// kept from the first sample on.
type ResourceSampler struct {
	source   ProcessMetrics
	interval time.Duration

	mu      sync.Mutex
	samples []ResourceSample

	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewResourceSampler returns a sampler reading from source every interval.
func NewResourceSampler(source ProcessMetrics, interval time.Duration) *ResourceSampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &ResourceSampler{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the sampling loop. Starting twice is a no-op.
func (s *ResourceSampler) Start() {
	if s.started {
		return
	}
	s.started = true

	// Priming read, discarded.
	s.source.CPUPercent()

	go s.loop()
}

func (s *ResourceSampler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *ResourceSampler) sample() {
	cpu, cpuErr := s.source.CPUPercent()
	mem, memErr := s.source.MemoryRSSMB()
	if cpuErr != nil || memErr != nil {
		// Transient read failure; the next tick tries again.
		return
	}

	s.mu.Lock()
	s.samples = append(s.samples, ResourceSample{
		Timestamp:  time.Now(),
		CPUPercent: cpu,
		MemoryMB:   mem,
	})
	s.mu.Unlock()
}

// Stop terminates the loop and returns the mean CPU and mean memory across
// all retained samples, 0.0 each when nothing was retained. It blocks no
// longer than one sampling interval. Safe to call more than once.
func (s *ResourceSampler) Stop() (cpuPercent, memoryMB float64) {
	if !s.started {
		return 0, 0
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.averages()
}

// Samples returns a copy of the retained series, canceled runs included.
func (s *ResourceSampler) Samples() []ResourceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResourceSample, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *ResourceSampler) averages() (cpuPercent, memoryMB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0, 0
	}
	for _, sample := range s.samples {
		cpuPercent += sample.CPUPercent
		memoryMB += sample.MemoryMB
	}
	n := float64(len(s.samples))
	return cpuPercent / n, memoryMB / n
}
