package tlsf

import "unsafe"

// blockHeaderFullSize is sizeof(block_header_t) in the original: all four
// words, including the back-pointer slot that overlays the previous
// block's payload. blockCanSplit is measured against this full size,
// which equals blockSizeMin + wordSize: a split spends one word on the
// remainder's size field, so the remainder is left with at least
// blockSizeMin bytes of payload. See DESIGN.md for the threshold decision.
var blockHeaderFullSize = uintptr(unsafe.Sizeof(blockHeader{}))

// blockCanSplit reports whether b has room to carve off a block of the
// given payload size and still leave a valid free header behind (§4.5).
//
//go:inline
func blockCanSplit(b *blockHeader, size uintptr) bool {
	return blockSize(b) >= blockHeaderFullSize+size
}

// blockSplit carves b into a front block of exactly size bytes of
// payload and a trailing free remainder, returning the remainder. The
// remainder's header starts one word before where a full-overhead block
// would, because its back-pointer slot overlays the front block's final
// word (§4.5).
func blockSplit(b *blockHeader, size uintptr) *blockHeader {
	remaining := offsetToBlock(blockToPtr(b), int(size-wordSize))
	remainSize := blockSize(b) - (size + wordSize)

	setBlockSize(remaining, remainSize)
	setBlockSize(b, size)
	blockMarkAsFree(remaining)

	return remaining
}

// blockAbsorb merges block into prev, which must be its immediate
// physical predecessor. Flags on prev are left untouched.
func blockAbsorb(prev, block *blockHeader) *blockHeader {
	setBlockSize(prev, blockSize(prev)+blockSize(block)+wordSize)
	blockLinkNext(prev)
	return prev
}

// blockMergePrev merges a just-freed block with its physical predecessor
// if that predecessor is free (§4.5).
func (c *Control) blockMergePrev(b *blockHeader) *blockHeader {
	if blockIsPrevFree(b) {
		prev := blockPrev(b)
		c.blockRemoveBySize(prev)
		b = blockAbsorb(prev, b)
	}
	return b
}

// blockMergeNext merges a just-freed block with its physical successor if
// that successor is free (§4.5).
func (c *Control) blockMergeNext(b *blockHeader) *blockHeader {
	next := blockNext(b)
	if blockIsFree(next) {
		c.blockRemoveBySize(next)
		b = blockAbsorb(b, next)
	}
	return b
}

// blockTrimFree splits a free block down to size and returns the excess
// to the pool, if there's enough excess to form a valid free block
// (§4.5).
func (c *Control) blockTrimFree(b *blockHeader, size uintptr) {
	if !blockCanSplit(b, size) {
		return
	}
	remaining := blockSplit(b, size)
	blockLinkNext(b)
	blockSetPrevFree(remaining)
	c.blockInsert(remaining)
}

// blockTrimUsed splits a used block down to size, coalescing the excess
// with its physical successor before returning it to the pool (§4.5).
func (c *Control) blockTrimUsed(b *blockHeader, size uintptr) {
	if !blockCanSplit(b, size) {
		return
	}
	remaining := blockSplit(b, size)
	blockSetPrevUsed(remaining)
	remaining = c.blockMergeNext(remaining)
	c.blockInsert(remaining)
}

// blockTrimFreeLeading splits off a leading head of gap-wordSize bytes,
// re-inserts the head, and returns the tail — used only to shave the
// leading alignment gap off a block located for memalign (§4.5).
func (c *Control) blockTrimFreeLeading(b *blockHeader, gap uintptr) *blockHeader {
	remaining := b
	if blockCanSplit(b, gap) {
		remaining = blockSplit(b, gap-wordSize)
		blockSetPrevFree(remaining)
		blockLinkNext(b)
		c.blockInsert(b)
	}
	return remaining
}

// blockPrepareUsed trims a located free block down to size, marks it
// used, and returns its payload pointer, or nil if b is nil (exhaustion).
func (c *Control) blockPrepareUsed(b *blockHeader, size uintptr) unsafe.Pointer {
	if b == nil {
		return nil
	}
	c.blockTrimFree(b, size)
	blockMarkAsUsed(b)
	return blockToPtr(b)
}

// AddPool admits a caller-supplied, 4-byte-aligned region as a pool: one
// big free block spanning it, followed by a zero-size used sentinel
// (§3, §4.8). It never touches pools already attached to c.
func (c *Control) AddPool(mem []byte) (*Pool, error) {
	if len(mem) == 0 {
		return nil, ErrPoolSize
	}
	base := unsafe.Pointer(&mem[0])
	if uintptr(base)%alignSize != 0 {
		return nil, ErrMisaligned
	}

	poolOverhead := 2 * wordSize
	if uintptr(len(mem)) < poolOverhead {
		return nil, ErrPoolSize
	}
	poolBytes := alignDown(uintptr(len(mem))-poolOverhead, alignSize)
	if poolBytes < blockSizeMin || poolBytes > blockSizeMax {
		return nil, ErrPoolSize
	}

	// Offset the block's header so its back-pointer slot falls just
	// before the caller's buffer; it is never read because prevFree is
	// cleared below (§4.8, §9's pool-geometry design note).
	block := offsetToBlock(base, -int(wordSize))
	setBlockSize(block, poolBytes)
	blockSetFree(block)
	blockSetPrevUsed(block)
	c.blockInsert(block)

	sentinel := blockLinkNext(block)
	setBlockSize(sentinel, 0)
	blockSetUsed(sentinel)
	blockSetPrevFree(sentinel)

	p := Pool{mem: mem, first: block}
	c.pools = append(c.pools, p)
	return &c.pools[len(c.pools)-1], nil
}

// Malloc returns a pointer to a payload of at least size bytes, aligned
// to 4 bytes, or nil if no pool attached to c has room (§4.7).
func (c *Control) Malloc(size uintptr) unsafe.Pointer {
	adjust := adjustRequestSize(size, alignSize)
	block := c.blockLocateFree(adjust)
	return c.blockPrepareUsed(block, adjust)
}

// Memalign returns a pointer to a payload of at least size bytes, aligned
// to align (a power of two), or nil on exhaustion (§4.7). For align <=
// alignSize this is equivalent to Malloc.
func (c *Control) Memalign(align, size uintptr) unsafe.Pointer {
	adjust := adjustRequestSize(size, alignSize)

	// Request enough slack that, however the alignment gap lands, either
	// it's zero, or it's big enough to hold a full free block header on
	// its own so it can be trimmed off and returned to the pool. The
	// previous physical block is in use at that point (we haven't
	// carved anything yet), so its prevPhysBlock field isn't available
	// to absorb a too-small gap.
	const gapMinimum = uintptr(unsafe.Sizeof(blockHeader{}))
	sizeWithGap := adjustRequestSize(adjust+align+gapMinimum, align)

	requestSize := adjust
	if align > alignSize {
		requestSize = sizeWithGap
	}

	block := c.blockLocateFree(requestSize)
	if block != nil {
		ptr := blockToPtr(block)
		aligned := alignPtr(ptr, align)
		gap := uintptr(aligned) - uintptr(ptr)

		if gap != 0 && gap < gapMinimum {
			gapRemain := gapMinimum - gap
			offset := gapRemain
			if align > offset {
				offset = align
			}
			nextAligned := unsafe.Add(aligned, offset)
			aligned = alignPtr(nextAligned, align)
			gap = uintptr(aligned) - uintptr(ptr)
		}

		if gap != 0 {
			block = c.blockTrimFreeLeading(block, gap)
		}
	}

	return c.blockPrepareUsed(block, adjust)
}

// Free returns ptr's block to its pool's free lists, coalescing with
// either physical neighbor that is itself free (§4.5, §4.7). A nil ptr is
// a no-op.
func (c *Control) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	block := blockFromPtr(ptr)
	blockMarkAsFree(block)
	block = c.blockMergePrev(block)
	block = c.blockMergeNext(block)
	c.blockInsert(block)
}

// Realloc resizes the allocation at ptr to size bytes, per the edge cases
// and growth strategy of §4.7: ptr == nil behaves as Malloc, size == 0
// behaves as Free, an in-place shrink trims in place, an in-place grow
// absorbs a free physical successor when it's large enough, and
// otherwise a fresh block is allocated, the overlap is copied, and the
// original is freed. On failure the original allocation is left intact.
func (c *Control) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if ptr != nil && size == 0 {
		c.Free(ptr)
		return nil
	}
	if ptr == nil {
		return c.Malloc(size)
	}

	block := blockFromPtr(ptr)
	next := blockNext(block)

	cursize := blockSize(block)
	combined := cursize + blockSize(next) + wordSize
	adjust := adjustRequestSize(size, alignSize)

	if adjust > cursize && (!blockIsFree(next) || adjust > combined) {
		p := c.Malloc(size)
		if p != nil {
			minsize := cursize
			if size < minsize {
				minsize = size
			}
			copyBytes(p, ptr, minsize)
			c.Free(ptr)
		}
		return p
	}

	if adjust > cursize {
		// The physical successor is free and, combined with this block,
		// large enough. Absorb it unconditionally, then trim back down —
		// mirrors the original's two-step merge-then-trim rather than
		// precomputing the exact split (see SPEC_FULL.md).
		block = c.blockMergeNext(block)
		blockMarkAsUsed(block)
	}

	c.blockTrimUsed(block, adjust)
	return ptr
}

// copyBytes copies n bytes from src to dst via a byte-slice view over the
// raw pointers. The pool's backing storage is already a []byte (AddPool's
// argument) so there is no unsafe-copy library in the pack better suited
// to this than reflect-free unsafe.Slice + copy.
func copyBytes(dst, src unsafe.Pointer, n uintptr) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}
