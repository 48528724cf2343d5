package logfile

import "github.com/gochaorg/logd/internal/block"

// Cursor pins one block's header and absolute offset, supporting
// bidirectional navigation and back-ref-assisted jumps.
type Cursor struct {
	file   *LogFile
	id     uint32
	offset uint64
	head   block.Head
}

// BlockID returns the id of the block the cursor is pinned to.
func (c *Cursor) BlockID() uint32 { return c.id }

// Offset returns the absolute byte offset of the pinned block.
func (c *Cursor) Offset() uint64 { return c.offset }

// Head returns the pinned block's header.
func (c *Cursor) Head() block.Head { return c.head }

// Previous moves the cursor to the immediately preceding block, by
// reading the tail bytes located just before the current block.
func (c *Cursor) Previous() (*Cursor, error) {
	if c.id == 0 {
		return nil, newErr("previous", CodePreviousMissing, nil)
	}
	_, h, err := block.DecodeFromTail(c.file.buf, c.offset)
	if err != nil {
		return nil, wrapUnderlying("previous", err)
	}
	prevOffset := c.offset - h.EncodedSize()
	return &Cursor{file: c.file, id: h.BlockID, offset: prevOffset, head: h}, nil
}

// Next moves the cursor to the immediately following block.
func (c *Cursor) Next() (*Cursor, error) {
	nextOffset := c.offset + c.head.EncodedSize()
	count, err := c.file.Count()
	if err != nil {
		return nil, err
	}
	if c.id+1 >= count {
		return nil, newErr("next", CodeNextMissing, nil)
	}
	h, err := block.ReadHeader(c.file.buf, nextOffset)
	if err != nil {
		return nil, wrapUnderlying("next", err)
	}
	return &Cursor{file: c.file, id: h.BlockID, offset: nextOffset, head: h}, nil
}

// Jump moves the cursor to the block with the given target id, following
// the back-ref skip list for O(log N) hops when moving backward.
func (c *Cursor) Jump(target uint32) (*Cursor, error) {
	if target == c.id {
		return c, nil
	}

	if target > c.id {
		end, err := c.file.PointerToEnd()
		if err != nil {
			return nil, err
		}
		if target > end.id {
			return nil, newErr("jump", CodeJumpForwardNotAllowed, nil)
		}
		return end.Jump(target)
	}

	// target < c.id: scan back-refs for a bracketing pair.
	refs := c.head.BackRefs
	for i := 0; i+1 < len(refs); i++ {
		a, b := refs[i], refs[i+1]
		lo, hi := a, b
		if lo.BlockID > hi.BlockID {
			lo, hi = hi, lo
		}
		if lo.BlockID < target && target <= hi.BlockID {
			next := a
			if b.Offset > a.Offset {
				next = b
			}
			h, err := block.ReadHeader(c.file.buf, next.Offset)
			if err != nil {
				return nil, wrapUnderlying("jump", err)
			}
			nc := &Cursor{file: c.file, id: next.BlockID, offset: next.Offset, head: h}
			return nc.Jump(target)
		}
	}

	if len(refs) > 0 && refs[0].BlockID >= target {
		first := refs[0]
		h, err := block.ReadHeader(c.file.buf, first.Offset)
		if err != nil {
			return nil, wrapUnderlying("jump", err)
		}
		nc := &Cursor{file: c.file, id: first.BlockID, offset: first.Offset, head: h}
		return nc.Jump(target)
	}

	prev, err := c.Previous()
	if err != nil {
		if e, ok := err.(*Error); ok && e.Code == CodePreviousMissing {
			return nil, newErr("jump", CodeJumpOutsideLast, nil)
		}
		return nil, err
	}
	return prev.Jump(target)
}
