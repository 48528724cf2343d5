package logqueue

import (
	"crypto/rand"
	"encoding/hex"
)

// LogId identifies one log file's identity inside a queue. Kept abstract so
// both the options-embedded and a hypothetical filename-embedded encoding
// can implement it; this package always produces and consumes the
// options-embedded concrete type, IdFromOptions.
type LogId interface {
	Value() string
	Previous() (LogId, bool)
}

const (
	keyLogID   = "log_file_id"
	keyLogPrev = "log_file_id_prev"
	keyLogType = "log_file_id_type"
	typeTag    = "IdFromOptions"
)

// IdFromOptions is a LogId carried in a log file's reserved first block's
// options, under the log_file_id / log_file_id_prev / log_file_id_type keys.
type IdFromOptions struct {
	id      string
	prev    string
	hasPrev bool
}

// NewLogId generates a fresh id, optionally chained to a predecessor.
func NewLogId(prev LogId) IdFromOptions {
	id := IdFromOptions{id: genID()}
	if prev != nil {
		id.prev = prev.Value()
		id.hasPrev = true
	}
	return id
}

func (i IdFromOptions) Value() string { return i.id }

func (i IdFromOptions) Previous() (LogId, bool) {
	if !i.hasPrev {
		return nil, false
	}
	return IdFromOptions{id: i.prev}, true
}

// WriteOptions sets this id's keys on a block's options map, which must not
// already carry any of them.
func (i IdFromOptions) WriteOptions(opts map[string]string) error {
	for _, k := range []string{keyLogID, keyLogType, keyLogPrev} {
		if _, exists := opts[k]; exists {
			return newErr("write_id", CodeLogIdParse, nil)
		}
	}
	opts[keyLogType] = typeTag
	opts[keyLogID] = i.id
	if i.hasPrev {
		opts[keyLogPrev] = i.prev
	}
	return nil
}

// readIdFromOptions parses an IdFromOptions out of a system block's options.
func readIdFromOptions(opts map[string]string) (IdFromOptions, error) {
	typ, ok := opts[keyLogType]
	if !ok {
		return IdFromOptions{}, newErr("read_id", CodeLogIdParse, nil)
	}
	if typ != typeTag {
		return IdFromOptions{}, newErr("read_id", CodeLogIdParse, nil)
	}
	id, ok := opts[keyLogID]
	if !ok {
		return IdFromOptions{}, newErr("read_id", CodeLogIdParse, nil)
	}
	prev, hasPrev := opts[keyLogPrev]
	return IdFromOptions{id: id, prev: prev, hasPrev: hasPrev}, nil
}

func genID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("logqueue: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}
