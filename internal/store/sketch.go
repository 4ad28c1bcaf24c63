package store

import "github.com/cespare/xxhash/v2"

// cmSketch is a 4-bit-counter count-min sketch used by the TinyLFU admission
// policy to estimate recent access frequency. One sketch is owned per shard,
// since SizeBoundedStore partitions both budget and admission state per
// shard.
type cmSketch struct {
	row    []byte // each byte packs two 4-bit counters
	mask   uint64
	inserts uint32
	resetAt uint32
}

// newCmSketch builds a sketch sized to the next power of two >= numCounters.
func newCmSketch(numCounters uint64, resetAt uint32) *cmSketch {
	if numCounters == 0 {
		numCounters = 16
	}
	numCounters = next2Power(numCounters)
	return &cmSketch{
		row:     make([]byte, numCounters/2),
		mask:    numCounters - 1,
		resetAt: resetAt,
	}
}

func (s *cmSketch) hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Increment bumps key's counter, aging (halving) the whole sketch every
// resetAt inserts to keep frequency estimates tracking recency.
func (s *cmSketch) Increment(key []byte) {
	s.increment(s.hash(key))
	s.inserts++
	if s.resetAt > 0 && s.inserts >= s.resetAt {
		s.reset()
		s.inserts = 0
	}
}

func (s *cmSketch) increment(h uint64) {
	n := h & s.mask
	i := n / 2
	shift := (n & 1) * 4
	v := (s.row[i] >> shift) & 0x0f
	if v < 15 {
		s.row[i] += 1 << shift
	}
}

// Estimate returns key's approximate recent access frequency.
func (s *cmSketch) Estimate(key []byte) uint8 {
	h := s.hash(key)
	n := h & s.mask
	i := n / 2
	shift := (n & 1) * 4
	return (s.row[i] >> shift) & 0x0f
}

func (s *cmSketch) reset() {
	for i := range s.row {
		s.row[i] = (s.row[i] >> 1) & 0x77
	}
}

func next2Power(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}
