// Package logqueue implements an ordered chain of append-only log files
// (logfile.LogFile), with startup discovery, segment roll-over and
// navigation across segment boundaries.
package logqueue

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gochaorg/logd/internal/block"
	"github.com/gochaorg/logd/internal/buffer"
	"github.com/gochaorg/logd/internal/logfile"
	"github.com/gochaorg/logd/internal/pathtmpl"
)

// RecordId addresses one record by the log file that holds it and its
// block id within that file.
type RecordId struct {
	LogID   string
	BlockID uint32
}

func (r RecordId) String() string {
	return fmt.Sprintf("%s/%d", r.LogID, r.BlockID)
}

// PreparedRecord is a record ready to be appended to the queue's tail.
type PreparedRecord struct {
	Options map[string]string
	Payload []byte
}

type entry struct {
	id   IdFromOptions
	path string
	file *logfile.LogFile
}

// Queue is an ordered chain of log files, head (oldest) to tail (newest).
type Queue struct {
	mu    sync.RWMutex
	files []entry

	root string
	tmpl string
	vars map[string]string
}

// Discover enumerates files under root matching wildcard (optionally
// recursing into subdirectories), opens each as a log file, and assembles
// them into a validated chain.
func Discover(root, wildcard string, recursive bool, tmpl string, vars map[string]string) (*Queue, error) {
	paths, err := candidatePaths(root, wildcard, recursive)
	if err != nil {
		return nil, wrapUnderlying("discover", err)
	}

	var entries []entry
	for _, p := range paths {
		fb, err := buffer.OpenFile(p)
		if err != nil {
			return nil, wrapUnderlying("discover", err)
		}
		lf, err := logfile.Open(fb)
		if err != nil {
			return nil, wrapUnderlying("discover", err)
		}
		count, err := lf.Count()
		if err != nil {
			return nil, wrapUnderlying("discover", err)
		}
		if count == 0 {
			_ = lf.Close()
			continue
		}
		b, err := lf.ReadBlock(0)
		if err != nil {
			return nil, wrapUnderlying("discover", err)
		}
		id, err := readIdFromOptions(b.Options)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{id: id, path: p, file: lf})
	}

	ordered, err := sequenceValidate(entries)
	if err != nil {
		return nil, err
	}

	return &Queue{files: ordered, root: root, tmpl: tmpl, vars: vars}, nil
}

func candidatePaths(root, wildcard string, recursive bool) ([]string, error) {
	var out []string
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ok, err := filepath.Match(wildcard, e.Name())
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
		return out, nil
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(wildcard, filepath.Base(p))
		if err != nil {
			return err
		}
		if ok {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// sequenceValidate implements startup sequence validation: drop zero-block
// files (already done by the caller), require exactly one head (attempting
// orphan-head reconstruction when none is literally present), require
// globally unique ids, and verify the previous chain is continuous.
func sequenceValidate(entries []entry) ([]entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	byID := make(map[string]entry, len(entries))
	for _, e := range entries {
		if _, dup := byID[e.id.Value()]; dup {
			return nil, newErr("discover", CodeDuplicateLogId, nil)
		}
		byID[e.id.Value()] = e
	}

	var heads []entry
	for _, e := range entries {
		if !e.id.hasPrev {
			heads = append(heads, e)
		}
	}

	if len(heads) > 1 {
		return nil, newErr("discover", CodeOpenTwoHeads, nil)
	}

	if len(heads) == 0 {
		// Every file claims a previous; a file whose claimed previous is
		// not among the discovered set is the true head (its predecessor
		// was lost, e.g. rotated away).
		var orphans []entry
		for _, e := range entries {
			if _, ok := byID[e.id.prev]; !ok {
				orphans = append(orphans, e)
			}
		}
		if len(orphans) != 1 {
			return nil, newErr("discover", CodeOpenNoHeads, nil)
		}
		heads = orphans
	}

	// Walk the chain forward from the head, requiring each id to be
	// claimed by exactly one successor.
	successorOf := make(map[string]entry, len(entries))
	for _, e := range entries {
		if !e.id.hasPrev || e.id.Value() == heads[0].id.Value() {
			continue
		}
		if _, dup := successorOf[e.id.prev]; dup {
			return nil, newErr("discover", CodeChainBroken, nil)
		}
		successorOf[e.id.prev] = e
	}

	ordered := make([]entry, 0, len(entries))
	cur := heads[0]
	ordered = append(ordered, cur)
	for len(ordered) < len(entries) {
		next, ok := successorOf[cur.id.Value()]
		if !ok {
			return nil, newErr("discover", CodeChainBroken, nil)
		}
		ordered = append(ordered, next)
		cur = next
	}

	return ordered, nil
}

// Write appends rec to the tail log file, returning its new record id.
func (q *Queue) Write(rec PreparedRecord) (RecordId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.files) == 0 {
		return RecordId{}, newErr("write", CodeLogIdNotFound, nil)
	}
	tail := q.files[len(q.files)-1]
	blockID, err := tail.file.Append(rec.Options, rec.Payload)
	if err != nil {
		return RecordId{}, wrapUnderlying("write", err)
	}
	return RecordId{LogID: tail.id.Value(), BlockID: blockID}, nil
}

// Read locates the log holding id and returns its payload and options.
func (q *Queue) Read(id RecordId) ([]byte, map[string]string, error) {
	f, err := q.findFile(id.LogID)
	if err != nil {
		return nil, nil, err
	}
	b, err := f.ReadBlock(id.BlockID)
	if err != nil {
		return nil, nil, wrapUnderlying("read", err)
	}
	return b.Payload, b.Options, nil
}

// Info returns a record's header and absolute byte offset without loading
// its payload.
func (q *Queue) Info(id RecordId) (block.Head, uint64, error) {
	f, err := q.findFile(id.LogID)
	if err != nil {
		return block.Head{}, 0, err
	}
	h, err := f.ReadHeader(id.BlockID)
	if err != nil {
		return block.Head{}, 0, wrapUnderlying("info", err)
	}
	off, err := f.OffsetOf(id.BlockID)
	if err != nil {
		return block.Head{}, 0, wrapUnderlying("info", err)
	}
	return h, off, nil
}

// ReadRaw exposes byte-level access into one log file, bypassing block
// structure entirely.
func (q *Queue) ReadRaw(logID string, offset uint64, buf []byte) (uint64, error) {
	f, err := q.findFile(logID)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadRaw(offset, buf)
	if err != nil {
		return n, wrapUnderlying("read_raw", err)
	}
	return n, nil
}

// Switch rolls the queue onto a freshly created log file, making it the
// new tail. Concurrent writes are serialized against it via the same lock.
func (q *Queue) Switch() (LogId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var prevID LogId
	if len(q.files) > 0 {
		prevID = q.files[len(q.files)-1].id
	}
	newID := NewLogId(prevID)

	path, err := pathtmpl.Expand(q.tmpl, q.vars, time.Now())
	if err != nil {
		return nil, wrapUnderlying("switch", err)
	}

	fb, err := buffer.OpenFile(path)
	if err != nil {
		return nil, wrapUnderlying("switch", err)
	}

	// Hold an advisory exclusive lock on the new segment for the
	// remainder of the roll, so another process sharing this root
	// directory can't observe the file between creation and the
	// reserved first block landing in it.
	if err := fb.Lock(); err != nil {
		return nil, wrapUnderlying("switch", err)
	}
	defer fb.Unlock()

	lf, err := logfile.Open(fb)
	if err != nil {
		return nil, wrapUnderlying("switch", err)
	}

	opts := map[string]string{}
	if err := newID.WriteOptions(opts); err != nil {
		return nil, err
	}
	if _, err := lf.AppendTyped(block.SystemDataTypeID, opts, nil); err != nil {
		return nil, wrapUnderlying("switch", err)
	}

	q.files = append(q.files, entry{id: newID, path: path, file: lf})
	return newID, nil
}

// Next returns the record immediately following id, crossing a segment
// boundary when id is the last record of its file. The bool result is
// false when id is the queue's last record.
func (q *Queue) Next(id RecordId) (RecordId, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	idx, f, err := q.indexAndFile(id.LogID)
	if err != nil {
		return RecordId{}, false, err
	}
	count, err := f.Count()
	if err != nil {
		return RecordId{}, false, wrapUnderlying("next", err)
	}
	if id.BlockID+1 < count {
		return RecordId{LogID: id.LogID, BlockID: id.BlockID + 1}, true, nil
	}
	if idx+1 >= len(q.files) {
		return RecordId{}, false, nil
	}
	succ := q.files[idx+1]
	return RecordId{LogID: succ.id.Value(), BlockID: 0}, true, nil
}

// Previous is the symmetric counterpart of Next.
func (q *Queue) Previous(id RecordId) (RecordId, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	idx, _, err := q.indexAndFile(id.LogID)
	if err != nil {
		return RecordId{}, false, err
	}
	if id.BlockID > 0 {
		return RecordId{LogID: id.LogID, BlockID: id.BlockID - 1}, true, nil
	}
	if idx == 0 {
		return RecordId{}, false, nil
	}
	pred := q.files[idx-1]
	count, err := pred.file.Count()
	if err != nil {
		return RecordId{}, false, wrapUnderlying("previous", err)
	}
	return RecordId{LogID: pred.id.Value(), BlockID: count - 1}, true, nil
}

// LastRecord returns the queue's most recent record.
func (q *Queue) LastRecord() (RecordId, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.files) == 0 {
		return RecordId{}, false, nil
	}
	tail := q.files[len(q.files)-1]
	count, err := tail.file.Count()
	if err != nil {
		return RecordId{}, false, wrapUnderlying("last_record", err)
	}
	if count == 0 {
		return RecordId{}, false, nil
	}
	return RecordId{LogID: tail.id.Value(), BlockID: count - 1}, true, nil
}

// Logs lists the queue's log files in head-to-tail order.
func (q *Queue) Logs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]string, len(q.files))
	for i, e := range q.files {
		out[i] = e.id.Value()
	}
	return out
}

// FileInfo describes one log file in the queue for diagnostic listing.
type FileInfo struct {
	LogID     string
	Path      string
	ItemCount uint32
	ByteCount uint64
}

// FilesInfo lists every log file in the queue, head-to-tail, with their
// item and byte counts.
func (q *Queue) FilesInfo() ([]FileInfo, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]FileInfo, 0, len(q.files))
	for _, e := range q.files {
		count, err := e.file.Count()
		if err != nil {
			return nil, wrapUnderlying("files_info", err)
		}
		bytes, err := e.file.BytesCount()
		if err != nil {
			return nil, wrapUnderlying("files_info", err)
		}
		out = append(out, FileInfo{
			LogID:     e.id.Value(),
			Path:      e.path,
			ItemCount: count,
			ByteCount: bytes,
		})
	}
	return out, nil
}

// Close closes every underlying log file, for orderly shutdown.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for _, e := range q.files {
		if err := e.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return wrapUnderlying("close", firstErr)
	}
	return nil
}

func (q *Queue) findFile(logID string) (*logfile.LogFile, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.files {
		if e.id.Value() == logID {
			return e.file, nil
		}
	}
	return nil, newErr("find_file", CodeLogIdNotFound, nil)
}

func (q *Queue) indexAndFile(logID string) (int, *logfile.LogFile, error) {
	for i, e := range q.files {
		if e.id.Value() == logID {
			return i, e.file, nil
		}
	}
	return 0, nil, newErr("find_file", CodeLogIdNotFound, nil)
}
