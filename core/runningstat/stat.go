// Package runningstat implements Knuth and Welford's method for computing the standard deviation.
package runningstat

import (
	binutils "github.com/jfoster/binary-utilities"
	"github.com/pkg/math"
)

// RunningStat collects statistics and allows computing mean and variance.
// Algorithm comes from https://www.johndcook.com/blog/standard_deviation/ .
// It is not thread-safe.
type RunningStat struct {
	i    uint64
	n    uint64
	mask uint64
	m1   float64
	m2   float64
}

// New creates a RunningStat.
// sampleInterval: how often to collect sample, will be adjusted to nearest power of two and truncated between 1 and 2^30.
func New(sampleInterval int) (s *RunningStat) {
	s = &RunningStat{}
	s.Init(sampleInterval)
	return s
}

// Init initializes the instance and clears existing data.
func (s *RunningStat) Init(sampleInterval int) {
	interval := math.MinInt64(math.MaxInt64(binutils.NearPowerOfTwo(int64(sampleInterval)), 1), 1<<30)
	*s = RunningStat{mask: uint64(interval) - 1}
}

// Push adds an input.
// It returns true if the input was collected as a sample.
func (s *RunningStat) Push(x float64) bool {
	s.i++
	if s.i&s.mask != 0 {
		return false
	}
	s.n++
	if s.n == 1 {
		s.m1, s.m2 = x, 0
		return true
	}
	delta := x - s.m1
	s.m1 += delta / float64(s.n)
	s.m2 += delta * (x - s.m1)
	return true
}

// Read returns current counters as Snapshot.
func (s *RunningStat) Read() Snapshot {
	return newSnapshot(s.i, s.n, s.m1, s.m2, false, 0, 0)
}

// IntStat is a RunningStat that also tracks minimum and maximum of unsigned integer samples.
type IntStat struct {
	s   RunningStat
	min uint64
	max uint64
}

// NewInt creates an IntStat.
func NewInt(sampleInterval int) (s *IntStat) {
	s = &IntStat{}
	s.Init(sampleInterval)
	return s
}

// Init initializes the instance and clears existing data.
func (s *IntStat) Init(sampleInterval int) {
	s.s.Init(sampleInterval)
	s.min, s.max = ^uint64(0), 0
}

// Push adds an input.
func (s *IntStat) Push(x uint64) {
	if !s.s.Push(float64(x)) {
		return
	}
	if x < s.min {
		s.min = x
	}
	if x > s.max {
		s.max = x
	}
}

// Read returns current counters as Snapshot.
func (s *IntStat) Read() Snapshot {
	return newSnapshot(s.s.i, s.s.n, s.s.m1, s.s.m2, s.s.n > 0, s.min, s.max)
}
