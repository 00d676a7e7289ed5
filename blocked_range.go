package forkjoin

import (
	"iter"
	"math"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// maxBlocks bounds the block count so the uint32 claim counter cannot wrap
// back to block 0 while units keep calling Advance past the end.
const maxBlocks = math.MaxInt32

// BlockedRange is the half-open interval [begin, end) split into blocks of
// blockSize elements. The last block may be shorter.
type BlockedRange[Int constraints.Integer] struct {
	begin     Int
	end       Int
	blockSize Int
}

// NewBlockedRange creates a range. A blockSize below 1 is treated as 1 and an
// end before begin yields an empty range. The block size grows if needed so
// the block count stays within maxBlocks.
func NewBlockedRange[Int constraints.Integer](begin, end, blockSize Int) BlockedRange[Int] {
	if blockSize < 1 {
		blockSize = 1
	}
	if end < begin {
		end = begin
	}
	n := span(begin, end)
	if minSize := ceilDiv(n, maxBlocks); minSize > uint64(blockSize) {
		blockSize = Int(minSize)
	}
	return BlockedRange[Int]{begin: begin, end: end, blockSize: blockSize}
}

// Begin returns the first element of the range.
func (r BlockedRange[Int]) Begin() Int { return r.begin }

// End returns one past the last element of the range.
func (r BlockedRange[Int]) End() Int { return r.end }

// BlockSize returns the number of elements per block.
func (r BlockedRange[Int]) BlockSize() Int { return r.blockSize }

// Len returns the number of elements in the range. It is a uint64 because the
// length of a full signed range does not fit in its own type.
func (r BlockedRange[Int]) Len() uint64 { return span(r.begin, r.end) }

// Blocks returns the number of blocks, ceil(Len / BlockSize).
func (r BlockedRange[Int]) Blocks() uint32 {
	return uint32(ceilDiv(r.Len(), max(uint64(r.blockSize), 1)))
}

// span returns end-begin for begin <= end. Conversion to uint64 sign-extends,
// so the modular difference is exact for every integer type.
func span[Int constraints.Integer](begin, end Int) uint64 {
	return uint64(end) - uint64(begin)
}

func ceilDiv(n, d uint64) uint64 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

// Values yields every element of the range in order.
func (r BlockedRange[Int]) Values() iter.Seq[Int] {
	return func(yield func(Int) bool) {
		for v := r.begin; v < r.end; v++ {
			if !yield(v) {
				return
			}
		}
	}
}

// AtomicLoadBalance claims blocks of a BlockedRange from a counter shared by
// every unit working on the range. Each call to Advance claims the next
// unclaimed block, so fast units simply claim more blocks than slow ones.
//
//	var next atomic.Uint32
//	lb := NewAtomicLoadBalance(&next, r)
//	for lb.Advance() {
//		process(lb.Begin, lb.End)
//	}
type AtomicLoadBalance[Int constraints.Integer] struct {
	// Begin and End bound the block claimed by the last successful Advance.
	Begin, End Int

	next   *atomic.Uint32
	r      BlockedRange[Int]
	blocks uint32
}

// NewAtomicLoadBalance returns a claimer for r. Every claimer of the same range
// must share counter, which starts at zero.
func NewAtomicLoadBalance[Int constraints.Integer](counter *atomic.Uint32, r BlockedRange[Int]) *AtomicLoadBalance[Int] {
	return &AtomicLoadBalance[Int]{next: counter, r: r, blocks: r.Blocks()}
}

// Advance claims the next block and reports whether there was one.
func (lb *AtomicLoadBalance[Int]) Advance() bool {
	block := lb.next.Add(1) - 1
	if block >= lb.blocks {
		return false
	}

	size := uint64(lb.r.blockSize)
	offset := uint64(block) * size
	lb.Begin = lb.r.begin + Int(offset)
	if lb.r.Len()-offset < size {
		lb.End = lb.r.end
	} else {
		lb.End = lb.Begin + lb.r.blockSize
	}
	return true
}
