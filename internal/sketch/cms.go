// Package sketch implements a Count-Min Sketch: a fixed-memory, thread-safe
// frequency counter used by the governor to bound the memory spent tracking
// duplicate-trace accounting regardless of stream length.
package sketch

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// CountMinSketch is a d x w grid of atomic counters. increment touches one
// cell per row; estimate reads the minimum across rows. Never undercounts;
// overcounts by at most (e/w)*N with probability 1-1/e^d.
type CountMinSketch struct {
	depth int
	width int
	cells []atomic.Uint64 // depth*width, row-major
	seeds []uint64
}

// DefaultDepth and DefaultWidth give epsilon ~= e/2048 (~0.00133) and
// delta ~= 1/e^5 (~0.0067), the source's undocumented tuning made explicit.
const (
	DefaultDepth = 5
	DefaultWidth = 2048
)

// New constructs a sketch with d rows and w counters per row. Both must be
// positive; non-positive values fall back to the package defaults.
func New(depth, width int) *CountMinSketch {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if width <= 0 {
		width = DefaultWidth
	}
	s := &CountMinSketch{
		depth: depth,
		width: width,
		cells: make([]atomic.Uint64, depth*width),
		seeds: make([]uint64, depth),
	}
	for i := range s.seeds {
		// Distinct, fixed seeds per row so the d hash functions are independent
		// in practice without needing d separate hash families.
		s.seeds[i] = 0x9E3779B97F4A7C15 * uint64(i+1)
	}
	return s
}

// ErrorBound returns the (epsilon, delta) this sketch's dimensions imply:
// epsilon = e/w, delta = 1/e^d.
func (s *CountMinSketch) ErrorBound() (epsilon, delta float64) {
	return math.E / float64(s.width), math.Pow(math.E, -float64(s.depth))
}

func (s *CountMinSketch) rowIndex(row int, key [16]byte) int {
	var buf [24]byte
	copy(buf[:16], key[:])
	binary.LittleEndian.PutUint64(buf[16:], s.seeds[row])
	h := xxhash.Sum64(buf[:])
	return int(h % uint64(s.width))
}

// Increment updates all d cells for key and returns the post-increment
// estimate (the new minimum across rows).
func (s *CountMinSketch) Increment(key [16]byte) uint64 {
	min := uint64(math.MaxUint64)
	for row := 0; row < s.depth; row++ {
		idx := row*s.width + s.rowIndex(row, key)
		v := s.cells[idx].Add(1)
		if v < min {
			min = v
		}
	}
	return min
}

// Estimate returns the current frequency estimate for key without mutating
// the sketch.
func (s *CountMinSketch) Estimate(key [16]byte) uint64 {
	min := uint64(math.MaxUint64)
	for row := 0; row < s.depth; row++ {
		idx := row*s.width + s.rowIndex(row, key)
		v := s.cells[idx].Load()
		if v < min {
			min = v
		}
	}
	return min
}
