package tlsf

import "unsafe"

// A block's size word carries two flag bits in addition to its magnitude
// (§3): bit 0 marks the block free, bit 1 marks the *previous* physical
// block free.
const (
	freeBit     uintptr = 1 << 0
	prevFreeBit uintptr = 1 << 1
	sizeMask            = ^(freeBit | prevFreeBit)
)

// wordSize is the header overhead exposed to a used block: one machine
// word holding the size field (§3's "Header overhead exposed to a used
// block is one word").
const wordSize = unsafe.Sizeof(uintptr(0))

// blockHeader is the in-band per-block record. Its layout mirrors the
// spec's description exactly: prevPhysBlock is addressable as this
// struct's first field but physically lives inside the *preceding* free
// block's payload (it is only ever read when that neighbor's prevFree bit
// says it's safe to); nextFree/prevFreeLink occupy the first two words of
// this block's own payload and are only meaningful while the block is
// free. Every blockHeader value is a typed view over raw pool bytes,
// never a Go-managed allocation — don't construct one except via
// blockFromPtr/offsetToBlock.
type blockHeader struct {
	prevPhysBlock *blockHeader
	size          uintptr
	nextFree      *blockHeader
	prevFreeLink  *blockHeader
}

// blockStartOffset is the byte offset from a blockHeader's address to the
// payload pointer returned to callers: past prevPhysBlock and size.
const blockStartOffset = 2 * wordSize

// blockSizeMin is the smallest payload a free block can have: enough to
// hold nextFree and prevFreeLink plus the next block's back-pointer slot
// overlay, i.e. sizeof(blockHeader) minus one word.
const blockSizeMin = uintptr(unsafe.Sizeof(blockHeader{})) - wordSize

// blockSizeMax is the largest payload a block may declare (§3).
const blockSizeMax = uintptr(1) << 30

//go:inline
func blockSize(b *blockHeader) uintptr {
	return b.size & sizeMask
}

//go:inline
func setBlockSize(b *blockHeader, size uintptr) {
	b.size = size | (b.size &^ sizeMask)
}

//go:inline
func blockIsLast(b *blockHeader) bool {
	return blockSize(b) == 0
}

//go:inline
func blockIsFree(b *blockHeader) bool {
	return b.size&freeBit != 0
}

//go:inline
func blockSetFree(b *blockHeader) {
	b.size |= freeBit
}

//go:inline
func blockSetUsed(b *blockHeader) {
	b.size &^= freeBit
}

//go:inline
func blockIsPrevFree(b *blockHeader) bool {
	return b.size&prevFreeBit != 0
}

//go:inline
func blockSetPrevFree(b *blockHeader) {
	b.size |= prevFreeBit
}

//go:inline
func blockSetPrevUsed(b *blockHeader) {
	b.size &^= prevFreeBit
}

// blockFromPtr recovers a block's header from the payload pointer handed
// out by malloc/memalign/realloc.
//
//go:inline
func blockFromPtr(ptr unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(uintptr(ptr) - blockStartOffset))
}

// blockToPtr is the inverse of blockFromPtr: the payload address exposed
// to the caller.
//
//go:inline
func blockToPtr(b *blockHeader) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + blockStartOffset)
}

// offsetToBlock returns the block header located delta bytes from ptr.
// delta may be negative — pool admission (§4.8) positions the initial
// block's header one word *before* the caller's buffer.
//
//go:inline
func offsetToBlock(ptr unsafe.Pointer, delta int) *blockHeader {
	return (*blockHeader)(unsafe.Add(ptr, delta))
}

// blockPrev returns the previous physical block. Valid only when
// blockIsPrevFree(b): the back-pointer slot it reads overlays the
// predecessor's payload, which is only reserved while that predecessor is
// free.
//
//go:inline
func blockPrev(b *blockHeader) *blockHeader {
	assertf(blockIsPrevFree(b), "blockPrev called on a block whose predecessor is not free")
	return b.prevPhysBlock
}

// blockNext returns the next physical block; every real block has one
// because every pool ends in a zero-size used sentinel. Calling this on
// the sentinel itself is a bug in the caller, not a condition a correct
// program can reach.
//
//go:inline
func blockNext(b *blockHeader) *blockHeader {
	assertf(!blockIsLast(b), "blockNext called on the pool sentinel")
	return offsetToBlock(blockToPtr(b), int(blockSize(b)-wordSize))
}

// blockLinkNext stamps this block as the back-pointer of its physical
// successor and returns that successor.
//
//go:inline
func blockLinkNext(b *blockHeader) *blockHeader {
	next := blockNext(b)
	next.prevPhysBlock = b
	return next
}

// blockMarkAsFree transitions a used block to free, updating the physical
// successor's prevFree bit and back-pointer in the same step.
//
//go:inline
func blockMarkAsFree(b *blockHeader) {
	next := blockLinkNext(b)
	blockSetPrevFree(next)
	blockSetFree(b)
}

// blockMarkAsUsed is the inverse of blockMarkAsFree.
//
//go:inline
func blockMarkAsUsed(b *blockHeader) {
	next := blockNext(b)
	blockSetPrevUsed(next)
	blockSetUsed(b)
}

// alignUp rounds x up to the nearest multiple of align, a power of two.
//
//go:inline
func alignUp(x, align uintptr) uintptr {
	return (x + align - 1) &^ (align - 1)
}

// alignDown rounds x down to the nearest multiple of align, a power of
// two.
//
//go:inline
func alignDown(x, align uintptr) uintptr {
	return x &^ (align - 1)
}

// alignPtr rounds ptr up to the nearest multiple of align, a power of
// two.
//
//go:inline
func alignPtr(ptr unsafe.Pointer, align uintptr) unsafe.Pointer {
	return unsafe.Pointer(alignUp(uintptr(ptr), align))
}

// adjustRequestSize normalises a caller-supplied size into a valid block
// payload size (§4.6): zero for a zero or too-large request, otherwise
// rounded up to align and floored at blockSizeMin.
//
//go:inline
func adjustRequestSize(size, align uintptr) uintptr {
	if size == 0 || size >= blockSizeMax {
		return 0
	}
	adjusted := alignUp(size, align)
	if adjusted < blockSizeMin {
		return blockSizeMin
	}
	return adjusted
}
