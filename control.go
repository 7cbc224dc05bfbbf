package tlsf

// Control is the top-level allocator handle: free-list heads, the two
// summarising bitmaps, and the cyclic empty-list sentinel (§3). One
// Control may have any number of pools attached via AddPool; it carries
// no synchronization of its own (§5) — see package guard for the
// recommended external-mutex discipline.
type Control struct {
	// blockNull is its own next/prev free link. Empty lists point at it;
	// every freshly inserted block links it as a terminator (§9's "cyclic
	// free-list sentinel" design note).
	blockNull blockHeader

	flBitmap uint32
	slBitmap [flIndexCount]uint32
	blocks   [flIndexCount][slIndexCount]*blockHeader

	// pools records the pools attached to this Control, in admission
	// order, for CheckInvariants only. The allocation protocol
	// itself never consults this slice — cross-pool coalescing never
	// happens regardless (§1 Non-goals).
	pools []Pool
}

// Pool describes one caller-supplied region admitted via AddPool.
type Pool struct {
	mem   []byte
	first *blockHeader
}

// NewControl constructs a fresh, empty Control: every free list points at
// the null sentinel, both bitmaps are zero. Unlike the original C
// tlsf_create, which installs a control_t in caller-provided bytes and
// treats misaligned input as a silent no-op diagnostic, Control is a
// normal Go value — the in-place/alignment concern that §4.7 documents
// for C's `create(mem)` does not apply to a type the runtime allocates
// and manages itself. CreateWithPool below reproduces the C API surface
// for callers porting call sequences from the original.
func NewControl() *Control {
	c := &Control{}
	c.blockNull.nextFree = &c.blockNull
	c.blockNull.prevFreeLink = &c.blockNull
	for fl := 0; fl < flIndexCount; fl++ {
		for sl := 0; sl < slIndexCount; sl++ {
			c.blocks[fl][sl] = &c.blockNull
		}
	}
	return c
}

// CreateWithPool is NewControl followed by AddPool(mem), mirroring
// tlsf_create_with_pool's convenience of carving one caller buffer into
// both the control metadata and its first pool. Go's Control doesn't live
// inside mem the way control_t does, so unlike the original there is no
// sizeof(control_t) to subtract; the whole of mem becomes pool bytes.
func CreateWithPool(mem []byte) (*Control, error) {
	c := NewControl()
	if _, err := c.AddPool(mem); err != nil {
		return nil, err
	}
	return c, nil
}

// insertFreeBlock places b at the head of free list (fl, sl) and marks
// the bitmaps (§4.4 Insert).
//
//go:inline
func (c *Control) insertFreeBlock(b *blockHeader, fl, sl int) {
	head := c.blocks[fl][sl]
	b.nextFree = head
	b.prevFreeLink = &c.blockNull
	head.prevFreeLink = b

	c.blocks[fl][sl] = b
	c.flBitmap |= 1 << uint(fl)
	c.slBitmap[fl] |= 1 << uint(sl)
}

// removeFreeBlock unlinks b from free list (fl, sl), clearing bitmap bits
// when the list (and then the row) becomes empty (§4.4 Remove).
//
//go:inline
func (c *Control) removeFreeBlock(b *blockHeader, fl, sl int) {
	prev := b.prevFreeLink
	next := b.nextFree
	next.prevFreeLink = prev
	prev.nextFree = next

	if c.blocks[fl][sl] == b {
		c.blocks[fl][sl] = next
		if next == &c.blockNull {
			c.slBitmap[fl] &^= 1 << uint(sl)
			if c.slBitmap[fl] == 0 {
				c.flBitmap &^= 1 << uint(fl)
			}
		}
	}
}

// blockInsert files a free block by its actual size (§4.4).
//
//go:inline
func (c *Control) blockInsert(b *blockHeader) {
	fl, sl := mappingInsert(blockSize(b))
	c.insertFreeBlock(b, fl, sl)
}

// blockRemoveBySize removes a free block, recomputing its (fl, sl)
// coordinate from its current size (§4.5's merge/trim paths call this
// rather than tracking coordinates alongside each block).
//
//go:inline
func (c *Control) blockRemoveBySize(b *blockHeader) {
	fl, sl := mappingInsert(blockSize(b))
	c.removeFreeBlock(b, fl, sl)
}

// searchSuitableBlock implements the O(1) search of §4.3: look for a
// non-empty list at or above (fl, sl); failing that, jump to the next
// non-empty fl row and take its lowest sl. Returns nil on exhaustion.
func (c *Control) searchSuitableBlock(fl, sl int) (*blockHeader, int, int) {
	slMap := c.slBitmap[fl] & (^uint32(0) << uint(sl))
	if slMap == 0 {
		flMap := c.flBitmap & (^uint32(0) << uint(fl+1))
		if flMap == 0 {
			return nil, fl, sl
		}
		fl = ffs(flMap)
		slMap = c.slBitmap[fl]
	}
	sl = ffs(slMap)
	return c.blocks[fl][sl], fl, sl
}

// blockLocateFree finds and removes from its free list a block with
// payload >= size, or returns nil on exhaustion (§4.3).
func (c *Control) blockLocateFree(size uintptr) *blockHeader {
	if size == 0 {
		return nil
	}
	fl, sl := mappingSearch(size)
	if fl >= flIndexCount {
		return nil
	}
	b, fl, sl := c.searchSuitableBlock(fl, sl)
	if b == nil {
		return nil
	}
	c.removeFreeBlock(b, fl, sl)
	return b
}
