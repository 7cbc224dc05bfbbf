package tlsf

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Visitor is called once per block of a pool, in address order, by
// WalkPool. ptr is the block's payload address, size its payload size,
// and used reports whether the block is currently allocated.
type Visitor func(ptr unsafe.Pointer, size uintptr, used bool)

// WalkPool invokes visitor for every block of p in address order,
// stopping at the pool's sentinel (§6.1's optional walk_pool). It
// performs no I/O itself; visitor does whatever reporting the caller
// wants.
func WalkPool(p *Pool, visitor Visitor) {
	block := p.first
	for !blockIsLast(block) {
		visitor(blockToPtr(block), blockSize(block), !blockIsFree(block))
		block = blockNext(block)
	}
}

// BlockSize returns the payload size of the block ptr points into
// (§6.1's optional block_size).
func BlockSize(ptr unsafe.Pointer) uintptr {
	return blockSize(blockFromPtr(ptr))
}

// DebugLogPool walks p, emitting one structured log entry per block to
// logger. Grounded on TLSFBlockMetadata.DebugLogAllAllocations in the
// pack's closest real-world analog (vkngwrapper/arsenal's TLSF block
// metadata allocator) — a *zap.Logger parameter, never a package-level
// logger, keeping the core free of ambient logging state.
func (c *Control) DebugLogPool(p *Pool, logger *zap.Logger) {
	WalkPool(p, func(ptr unsafe.Pointer, size uintptr, used bool) {
		logger.Debug("tlsf block",
			zap.Uintptr("offset", uintptr(ptr)-uintptr(unsafe.Pointer(&p.mem[0]))),
			zap.Uint64("size", uint64(size)),
			zap.Bool("used", used),
		)
	})
}

// CheckInvariants re-derives the structural invariants of §3 from the
// live control structure and pools attached to c, returning the first
// violation found: no two adjacent free blocks, prevFree bits matching
// the predecessor, every free block filed at its mapped list, block sizes
// aligned and in range, a used sentinel, and bitmaps agreeing with the
// list heads. It does not compare prevPhysBlock back-pointers against the
// physical layout, and does not check that used blocks are absent from
// the free lists. It performs no mutation and is safe to call between
// any two public operations; callers typically gate it behind a debug
// build flag, the way the original's tlsf_assert macros are elided in
// release (§7).
func (c *Control) CheckInvariants() error {
	for pi := range c.pools {
		if err := c.checkPoolInvariants(&c.pools[pi]); err != nil {
			return errors.Wrapf(err, "pool %d", pi)
		}
	}
	return c.checkBitmapInvariants()
}

func (c *Control) checkPoolInvariants(p *Pool) error {
	block := p.first
	prevFree := false
	for {
		if blockIsFree(block) && prevFree {
			return errors.Newf("adjacent free blocks at %p and its predecessor", blockToPtr(block))
		}
		if blockIsPrevFree(block) != prevFree {
			return errors.Newf("block at %p has prevFree=%v but predecessor free=%v", blockToPtr(block), blockIsPrevFree(block), prevFree)
		}
		if blockIsFree(block) {
			fl, sl := mappingInsert(blockSize(block))
			if !c.freeListContains(block, fl, sl) {
				return errors.Newf("free block at %p is not filed at its mapped (fl=%d, sl=%d)", blockToPtr(block), fl, sl)
			}
		}
		if blockIsLast(block) {
			if blockIsFree(block) {
				return errors.Newf("pool sentinel at %p is marked free", blockToPtr(block))
			}
			break
		}
		sz := blockSize(block)
		if sz%alignSize != 0 || (sz != 0 && (sz < blockSizeMin || sz > blockSizeMax)) {
			return errors.Newf("block at %p has out-of-range size %d", blockToPtr(block), sz)
		}
		prevFree = blockIsFree(block)
		block = blockNext(block)
	}
	return nil
}

func (c *Control) freeListContains(target *blockHeader, fl, sl int) bool {
	for b := c.blocks[fl][sl]; b != &c.blockNull; b = b.nextFree {
		if b == target {
			return true
		}
	}
	return false
}

func (c *Control) checkBitmapInvariants() error {
	for fl := 0; fl < flIndexCount; fl++ {
		flBitSet := c.flBitmap&(1<<uint(fl)) != 0
		slNonEmpty := c.slBitmap[fl] != 0
		if flBitSet != slNonEmpty {
			return errors.Newf("flBitmap bit %d is %v but slBitmap[%d] non-empty is %v", fl, flBitSet, fl, slNonEmpty)
		}
		for sl := 0; sl < slIndexCount; sl++ {
			slBitSet := c.slBitmap[fl]&(1<<uint(sl)) != 0
			headPopulated := c.blocks[fl][sl] != &c.blockNull
			if slBitSet != headPopulated {
				return errors.Newf("slBitmap[%d] bit %d is %v but list head populated is %v", fl, sl, slBitSet, headPopulated)
			}
		}
	}
	return nil
}
