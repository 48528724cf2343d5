// Package logfile implements the single-file log: an ordered, gapless
// sequence of blocks in one flat buffer, with append, random-access and
// bidirectional back-ref navigation.
package logfile

import (
	"sync"

	"github.com/gochaorg/logd/internal/block"
	"github.com/gochaorg/logd/internal/buffer"
)

// LogFile owns one flat buffer and the append-time state needed to
// compute the next block's back-ref table without rescanning the file.
type LogFile struct {
	mu sync.Mutex

	buf buffer.Buffer

	count      uint32
	lastID     uint32
	lastOffset uint64
	lastEnd    uint64
	lastRefs   []block.BackRef
	hasBlocks  bool
}

// Open opens buf as a log file, walking every block header from the start
// to recover append-time state (block count and the last block's header).
func Open(buf buffer.Buffer) (*LogFile, error) {
	f := &LogFile{buf: buf}

	size, err := buf.Size()
	if err != nil {
		return nil, wrapUnderlying("open", err)
	}
	if size == 0 {
		return f, nil
	}

	// Walk the chain from the start to recover the block count and the
	// last block's header, which is all Append needs going forward.
	var offset uint64
	var count uint32
	var lastHead block.Head
	for offset < size {
		h, err := block.ReadHeader(buf, offset)
		if err != nil {
			return nil, wrapUnderlying("open", err)
		}
		lastHead = h
		offset += h.EncodedSize()
		count++
	}

	f.count = count
	f.hasBlocks = true
	f.lastID = lastHead.BlockID
	f.lastEnd = offset
	f.lastOffset = offset - lastHead.EncodedSize()
	f.lastRefs = lastHead.BackRefs
	return f, nil
}

// Append writes a new user-payload block with the given options and
// payload, returning its block id.
func (f *LogFile) Append(options map[string]string, payload []byte) (uint32, error) {
	return f.AppendTyped(block.UserDataTypeID, options, payload)
}

// AppendTyped writes a new block tagged with dataTypeID, returning its
// block id. Queue-internal bookkeeping blocks (e.g. the reserved log-id
// marker) use block.SystemDataTypeID instead of Append's default so they
// stay distinguishable from user payload by tag, not just by options.
func (f *LogFile) AppendTyped(dataTypeID uint32, options map[string]string, payload []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var newID uint32
	var refs []block.BackRef
	var writeOffset uint64

	if !f.hasBlocks {
		newID = 0
		refs = nil
		writeOffset = 0
	} else {
		newID = f.lastID + 1
		refs = nextBackRefs(f.lastID, f.lastOffset, f.lastRefs, newID)
		writeOffset = f.lastEnd
	}

	b := block.Block{
		BlockID:    newID,
		DataTypeID: dataTypeID,
		BackRefs:   refs,
		Options:    options,
		Payload:    payload,
	}

	buf, headSize, dataSize, tailSz, err := block.Encode(b)
	if err != nil {
		return 0, wrapUnderlying("append", err)
	}
	if err := f.buf.WriteAt(buf, writeOffset); err != nil {
		return 0, wrapUnderlying("append", err)
	}

	f.count++
	f.hasBlocks = true
	f.lastID = newID
	f.lastOffset = writeOffset
	f.lastEnd = writeOffset + uint64(headSize) + uint64(dataSize) + uint64(tailSz)
	f.lastRefs = refs

	return newID, nil
}

// Count returns the number of blocks in the file.
func (f *LogFile) Count() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

// BytesCount returns the total encoded size of the file in bytes.
func (f *LogFile) BytesCount() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEnd, nil
}

// offsetOf locates the absolute offset of block id by walking forward
// from the start. Random-access reads are O(N) in the worst case; C4's
// queue layer and the back-ref index exist precisely so callers avoid
// calling this for distant ids, using Cursor.Jump instead.
func (f *LogFile) offsetOf(id uint32) (uint64, error) {
	if id >= f.count {
		return 0, newErr("offset_of", CodeNotFound, nil)
	}
	var offset uint64
	for i := uint32(0); i < id; i++ {
		h, err := block.ReadHeader(f.buf, offset)
		if err != nil {
			return 0, wrapUnderlying("offset_of", err)
		}
		offset += h.EncodedSize()
	}
	return offset, nil
}

// ReadBlock reads the full block (options and payload included) with the
// given id.
func (f *LogFile) ReadBlock(id uint32) (block.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset, err := f.offsetOf(id)
	if err != nil {
		return block.Block{}, err
	}
	b, _, err := block.DecodeAt(f.buf, offset)
	if err != nil {
		return block.Block{}, wrapUnderlying("read_block", err)
	}
	return b, nil
}

// ReadHeader reads only the header of the block with the given id.
func (f *LogFile) ReadHeader(id uint32) (block.Head, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset, err := f.offsetOf(id)
	if err != nil {
		return block.Head{}, err
	}
	h, err := block.ReadHeader(f.buf, offset)
	if err != nil {
		return block.Head{}, wrapUnderlying("read_header", err)
	}
	return h, nil
}

// OffsetOf exposes the absolute byte offset of block id, used by queue
// Info() to report record position without loading its payload.
func (f *LogFile) OffsetOf(id uint32) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsetOf(id)
}

// ReadRaw exposes byte-level access into the underlying buffer for
// streaming reads, bypassing block structure entirely.
func (f *LogFile) ReadRaw(offset uint64, buf []byte) (uint64, error) {
	n, err := f.buf.ReadAt(buf, offset)
	if err != nil {
		return n, wrapUnderlying("read_raw", err)
	}
	return n, nil
}

// PointerToEnd returns a cursor pinned at the last block, or CodeEmpty if
// the file has no blocks.
func (f *LogFile) PointerToEnd() (*Cursor, error) {
	f.mu.Lock()
	hasBlocks := f.hasBlocks
	id := f.lastID
	offset := f.lastOffset
	f.mu.Unlock()

	if !hasBlocks {
		return nil, newErr("pointer_to_end", CodeEmpty, nil)
	}
	h, err := f.ReadHeader(id)
	if err != nil {
		return nil, err
	}
	return &Cursor{file: f, id: id, offset: offset, head: h}, nil
}

// Buffer exposes the underlying flat buffer, used by the queue when
// writing the reserved first system block of a new segment.
func (f *LogFile) Buffer() buffer.Buffer { return f.buf }

// Close closes the underlying buffer.
func (f *LogFile) Close() error {
	if err := f.buf.Close(); err != nil {
		return wrapUnderlying("close", err)
	}
	return nil
}
