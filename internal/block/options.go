package block

import (
	"encoding/binary"
	"unicode/utf8"
)

// encodeOptions serializes a key/value map into the options blob layout:
// u64 count, then per-entry u16 key_len | key | u32 value_len | value.
// Map iteration order doesn't matter: a block's Options is defined as a
// set of unique keys, not an ordered list.
func encodeOptions(opts map[string]string) ([]byte, error) {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(len(opts)))

	for k, v := range opts {
		if len(k) > maxKeyLen {
			return nil, newErr("encode_options", CodeSizeLimit, nil)
		}
		if uint64(len(v)) > maxValueLen {
			return nil, newErr("encode_options", CodeSizeLimit, nil)
		}
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return nil, newErr("encode_options", CodeOptionsDecode, nil)
		}

		entry := make([]byte, 2+len(k)+4+len(v))
		binary.LittleEndian.PutUint16(entry[0:2], uint16(len(k)))
		copy(entry[2:2+len(k)], k)
		binary.LittleEndian.PutUint32(entry[2+len(k):2+len(k)+4], uint32(len(v)))
		copy(entry[2+len(k)+4:], v)
		out = append(out, entry...)
	}
	return out, nil
}

// decodeOptions parses the options blob starting at buf[0:]. It returns
// the decoded map and the number of bytes consumed.
func decodeOptions(buf []byte) (map[string]string, int, error) {
	if len(buf) < 8 {
		return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
	}
	count := binary.LittleEndian.Uint64(buf[0:8])
	pos := 8

	opts := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		if pos+2 > len(buf) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}
		keyLen := int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		if pos+keyLen > len(buf) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}
		key := buf[pos : pos+keyLen]
		pos += keyLen
		if !utf8.Valid(key) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}

		if pos+4 > len(buf) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}
		valLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if valLen < 0 || pos+valLen > len(buf) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}
		val := buf[pos : pos+valLen]
		pos += valLen
		if !utf8.Valid(val) {
			return nil, 0, newErr("decode_options", CodeOptionsDecode, nil)
		}

		opts[string(key)] = string(val)
	}

	return opts, pos, nil
}
