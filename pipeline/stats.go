package pipeline

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// statsWindow is how many recent samples latency summaries cover.
const statsWindow = 256

// Latency summarizes recent durations.
type Latency struct {
	Count int
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

// StatsSnapshot is a copy of the orchestrator's counters.
type StatsSnapshot struct {
	Cycles          int
	Completed       int
	Failed          map[ErrorClass]int
	DroppedTriggers int
	DroppedBoxes    int
	Cycle           Latency
	Inference       Latency
}

type window struct {
	samples []float64
	next    int
}

func (w *window) add(d time.Duration) {
	if len(w.samples) < statsWindow {
		w.samples = append(w.samples, float64(d))
		return
	}
	w.samples[w.next] = float64(d)
	w.next = (w.next + 1) % statsWindow
}

func (w *window) summarize() Latency {
	if len(w.samples) == 0 {
		return Latency{}
	}
	data := stats.Float64Data(w.samples)
	percentile := func(p float64) time.Duration {
		v, err := stats.Percentile(data, p)
		if err != nil {
			v, _ = stats.PercentileNearestRank(data, p)
		}
		return time.Duration(v)
	}
	mean, _ := stats.Mean(data)
	maxV, _ := stats.Max(data)
	return Latency{
		Count: len(w.samples),
		Mean:  time.Duration(mean),
		P50:   percentile(50),
		P95:   percentile(95),
		Max:   time.Duration(maxV),
	}
}

type cycleStats struct {
	mu              sync.Mutex
	cycles          int
	completed       int
	failed          map[ErrorClass]int
	droppedTriggers int
	droppedBoxes    int
	cycle           window
	inference       window
}

func newCycleStats() *cycleStats {
	return &cycleStats{failed: map[ErrorClass]int{}}
}

func (s *cycleStats) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
}

func (s *cycleStats) complete(elapsed, inferElapsed time.Duration, droppedBoxes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.droppedBoxes += droppedBoxes
	s.cycle.add(elapsed)
	s.inference.add(inferElapsed)
}

func (s *cycleStats) fail(class ErrorClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[class]++
}

func (s *cycleStats) dropTrigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.droppedTriggers++
}

func (s *cycleStats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make(map[ErrorClass]int, len(s.failed))
	for k, v := range s.failed {
		failed[k] = v
	}
	return StatsSnapshot{
		Cycles:          s.cycles,
		Completed:       s.completed,
		Failed:          failed,
		DroppedTriggers: s.droppedTriggers,
		DroppedBoxes:    s.droppedBoxes,
		Cycle:           s.cycle.summarize(),
		Inference:       s.inference.summarize(),
	}
}
