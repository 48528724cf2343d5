package block

import (
	"encoding/binary"

	"github.com/gochaorg/logd/internal/buffer"
)

// Encode serializes b into its on-disk byte representation, following the
// fixed header / back-refs / options / payload / tail layout.
func Encode(b Block) (buf []byte, headSize, dataSize, tailSz uint32, err error) {
	optBlob, encErr := encodeOptions(b.Options)
	if encErr != nil {
		return nil, 0, 0, 0, encErr
	}

	backRefsBytes := make([]byte, backRefSize*len(b.BackRefs))
	for i, br := range b.BackRefs {
		off := i * backRefSize
		binary.LittleEndian.PutUint32(backRefsBytes[off:off+4], br.BlockID)
		binary.LittleEndian.PutUint64(backRefsBytes[off+4:off+12], br.Offset)
	}

	headSize = uint32(fixedHeaderSize + len(backRefsBytes) + len(optBlob))
	dataSize = uint32(len(b.Payload))
	tailSz = tailSize
	total := uint64(headSize) + uint64(dataSize) + uint64(tailSz)

	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:4], headSize)
	binary.LittleEndian.PutUint32(out[4:8], dataSize)
	binary.LittleEndian.PutUint16(out[8:10], uint16(tailSz))
	binary.LittleEndian.PutUint32(out[10:14], b.BlockID)
	binary.LittleEndian.PutUint32(out[14:18], b.DataTypeID)
	binary.LittleEndian.PutUint32(out[18:22], uint32(len(b.BackRefs)))

	pos := fixedHeaderSize
	copy(out[pos:], backRefsBytes)
	pos += len(backRefsBytes)
	copy(out[pos:], optBlob)
	pos += len(optBlob)
	copy(out[pos:], b.Payload)
	pos += len(b.Payload)

	copy(out[pos:pos+4], tailMarker)
	binary.LittleEndian.PutUint32(out[pos+4:pos+8], uint32(total))

	return out, headSize, dataSize, tailSz, nil
}

// parseFixedHeader parses the 22-byte fixed header prefix of buf.
func parseFixedHeader(buf []byte) (Head, error) {
	if len(buf) < fixedHeaderSize {
		return Head{}, newErr("parse_header", CodeHeaderTooSmall, nil)
	}
	h := Head{
		HeadSize:   binary.LittleEndian.Uint32(buf[0:4]),
		DataSize:   binary.LittleEndian.Uint32(buf[4:8]),
		TailSize:   binary.LittleEndian.Uint16(buf[8:10]),
		BlockID:    binary.LittleEndian.Uint32(buf[10:14]),
		DataTypeID: binary.LittleEndian.Uint32(buf[14:18]),
	}
	if h.HeadSize < fixedHeaderSize {
		return Head{}, newErr("parse_header", CodeHeaderTooSmall, nil)
	}
	backRefCount := binary.LittleEndian.Uint32(buf[18:22])
	h.BackRefs = make([]BackRef, 0, backRefCount)
	return h, nil
}

// parseBackRefsAndOptions parses the back-refs array and options blob
// that follow the fixed header within buf, where buf is exactly the
// region [0:headSize).
func parseBackRefsAndOptions(buf []byte, backRefCount uint32) ([]BackRef, map[string]string, error) {
	pos := fixedHeaderSize
	refsEnd := pos + int(backRefCount)*backRefSize
	if refsEnd > len(buf) {
		return nil, nil, newErr("parse_header", CodeHeaderTooSmall, nil)
	}

	refs := make([]BackRef, backRefCount)
	for i := 0; i < int(backRefCount); i++ {
		off := pos + i*backRefSize
		refs[i] = BackRef{
			BlockID: binary.LittleEndian.Uint32(buf[off : off+4]),
			Offset:  binary.LittleEndian.Uint64(buf[off+4 : off+12]),
		}
	}
	pos = refsEnd

	opts, consumed, err := decodeOptions(buf[pos:])
	if err != nil {
		return nil, nil, err
	}
	if pos+consumed != len(buf) {
		// Trailing or missing bytes relative to head_size: still decodable,
		// but treat excess as part of a forward-compatible header we don't
		// understand rather than an error.
		_ = consumed
	}
	return refs, opts, nil
}

// readExact reads exactly len(p) bytes at off, reporting a failed or short
// read as CodePayloadTruncated.
func readExact(buf buffer.Buffer, p []byte, off uint64) error {
	n, err := buf.ReadAt(p, off)
	if err != nil {
		return newErr("read", CodePayloadTruncated, err)
	}
	if n != uint64(len(p)) {
		return newErr("read", CodePayloadTruncated, nil)
	}
	return nil
}

// decodeHeaderAt parses the header (fixed fields, back-refs, options) of
// the block at absolute offset p, without touching the payload bytes.
func decodeHeaderAt(buf buffer.Buffer, p uint64) (Head, map[string]string, error) {
	size, err := buf.Size()
	if err != nil {
		return Head{}, nil, newErr("decode_header", CodePayloadTruncated, err)
	}
	if p >= size {
		return Head{}, nil, newErr("decode_header", CodePayloadTruncated, nil)
	}

	previewLen := uint64(headerPreviewSize)
	if remain := size - p; remain < previewLen {
		previewLen = remain
	}
	preview := make([]byte, previewLen)
	n, err := buf.ReadAt(preview, p)
	if err != nil {
		return Head{}, nil, newErr("decode_header", CodePayloadTruncated, err)
	}
	preview = preview[:n]

	head, err := parseFixedHeader(preview)
	if err != nil {
		return Head{}, nil, err
	}

	headerBuf := preview
	if uint64(head.HeadSize) > uint64(len(preview)) {
		headerBuf = make([]byte, head.HeadSize)
		if err := readExact(buf, headerBuf, p); err != nil {
			return Head{}, nil, err
		}
	} else {
		headerBuf = preview[:head.HeadSize]
	}

	backRefCount := binary.LittleEndian.Uint32(headerBuf[18:22])
	refs, opts, err := parseBackRefsAndOptions(headerBuf, backRefCount)
	if err != nil {
		return Head{}, nil, err
	}
	head.BackRefs = refs

	return head, opts, nil
}

// DecodeAt decodes the block starting at absolute offset P in buf.
func DecodeAt(buf buffer.Buffer, p uint64) (Block, Head, error) {
	head, opts, err := decodeHeaderAt(buf, p)
	if err != nil {
		return Block{}, Head{}, err
	}

	payload := make([]byte, head.DataSize)
	if head.DataSize > 0 {
		if err := readExact(buf, payload, p+uint64(head.HeadSize)); err != nil {
			return Block{}, Head{}, err
		}
	}

	b := Block{
		BlockID:    head.BlockID,
		DataTypeID: head.DataTypeID,
		BackRefs:   head.BackRefs,
		Options:    opts,
		Payload:    payload,
	}
	return b, head, nil
}

// DecodeFromTail decodes the block whose encoded region ends at absolute
// offset end (i.e. end points just past the block's tail).
func DecodeFromTail(buf buffer.Buffer, end uint64) (Block, Head, error) {
	if end < tailSize {
		return Block{}, Head{}, newErr("decode_from_tail", CodeTailPointerOutOfRange, nil)
	}
	tail := make([]byte, tailSize)
	if err := readExact(buf, tail, end-tailSize); err != nil {
		return Block{}, Head{}, err
	}
	if string(tail[0:4]) != tailMarker {
		return Block{}, Head{}, newErr("decode_from_tail", CodeTailMarkerMismatch, nil)
	}
	total := binary.LittleEndian.Uint32(tail[4:8])
	if uint64(total) > end {
		return Block{}, Head{}, newErr("decode_from_tail", CodeTailPointerOutOfRange, nil)
	}
	start := end - uint64(total)
	return DecodeAt(buf, start)
}

// ReadHeader reads only the header (no payload bytes touched) of the
// block at absolute offset p.
func ReadHeader(buf buffer.Buffer, p uint64) (Head, error) {
	h, _, err := decodeHeaderAt(buf, p)
	return h, err
}
