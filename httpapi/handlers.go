package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gochaorg/logd/logqueue"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, s.build)
}

type logListEntry struct {
	LogID     string `json:"log_id"`
	Path      string `json:"path"`
	ItemCount uint32 `json:"item_count"`
	ByteCount uint64 `json:"byte_count"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return badRequestf("method %s not allowed on /logs", r.Method)
	}
	infos, err := s.queue.FilesInfo()
	if err != nil {
		return err
	}
	out := make([]logListEntry, len(infos))
	for i, fi := range infos {
		out[i] = logListEntry{LogID: fi.LogID, Path: fi.Path, ItemCount: fi.ItemCount, ByteCount: fi.ByteCount}
	}
	return writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return badRequestf("method %s not allowed on /logs/tail", r.Method)
	}
	id, ok, err := s.queue.LastRecord()
	if err != nil {
		return err
	}
	if !ok {
		return writeJSON(w, http.StatusOK, map[string]any{"empty": true})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"log_id": id.LogID, "block_id": id.BlockID})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return badRequestf("method %s not allowed on /logs/switch", r.Method)
	}
	start := time.Now()
	newID, err := s.queue.Switch()
	if s.metrics != nil {
		s.metrics.RecordSwitch(uint64(time.Since(start).Nanoseconds()), err == nil)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"log_id": newID.Value()})
}

// handleLogRoutes dispatches the /logs/{log_id}/... family: {block_id}/raw
// (GET/PUT) and headers (GET).
func (s *Server) handleLogRoutes(w http.ResponseWriter, r *http.Request) error {
	rest := strings.TrimPrefix(r.URL.Path, "/logs/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[1] == "headers":
		return s.handleHeaders(w, r, parts[0])
	case len(parts) == 3 && parts[2] == "raw":
		blockID, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return badRequestf("invalid block id %q: %v", parts[1], err)
		}
		id := logqueue.RecordId{LogID: parts[0], BlockID: uint32(blockID)}
		switch r.Method {
		case http.MethodGet:
			return s.handleRawGet(w, r, id)
		case http.MethodPut:
			return s.handleRawPut(w, r, id)
		default:
			return badRequestf("method %s not allowed on raw record", r.Method)
		}
	default:
		return badRequestf("unrecognized path %q", r.URL.Path)
	}
}

func (s *Server) handleRawGet(w http.ResponseWriter, r *http.Request, id logqueue.RecordId) error {
	payload, options, err := s.queue.Read(id)
	if err != nil {
		return err
	}
	for k, v := range options {
		w.Header().Set("X-Option-"+k, v)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(payload)
	return err
}

func (s *Server) handleRawPut(w http.ResponseWriter, r *http.Request, id logqueue.RecordId) error {
	tail, ok, err := s.queue.LastRecord()
	if err != nil {
		return err
	}
	if ok && tail != id {
		return badRequestf("record id %s does not match current tail %s", id, tail)
	}
	if !ok && (id.LogID != "" || id.BlockID != 0) {
		return badRequestf("queue is empty; write the first record via %s", logqueue.RecordId{})
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequestf("reading request body: %v", err)
	}

	options := map[string]string{}
	for k, v := range r.Header {
		if strings.HasPrefix(k, "X-Option-") {
			options[strings.TrimPrefix(k, "X-Option-")] = strings.Join(v, ",")
		}
	}

	start := time.Now()
	newID, err := s.queue.Write(logqueue.PreparedRecord{Options: options, Payload: payload})
	if s.metrics != nil {
		s.metrics.RecordWrite(uint64(len(payload)), uint64(time.Since(start).Nanoseconds()), err == nil)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"log_id": newID.LogID, "block_id": newID.BlockID})
}

type headerEntry struct {
	LogID       string            `json:"log_id"`
	BlockID     uint32            `json:"block_id"`
	DataSize    uint32            `json:"data_size"`
	Offset      uint64            `json:"offset"`
	Options     map[string]string `json:"options,omitempty"`
	PreviewUTF8 string            `json:"preview_utf8,omitempty"`
}

// lastRecordOf resolves the last record of the named log file, so
// handleHeaders can start its backward walk there instead of at the
// queue's overall tail (which may be a different, later segment).
func (s *Server) lastRecordOf(logID string) (logqueue.RecordId, bool, error) {
	infos, err := s.queue.FilesInfo()
	if err != nil {
		return logqueue.RecordId{}, false, err
	}
	for _, fi := range infos {
		if fi.LogID != logID {
			continue
		}
		if fi.ItemCount == 0 {
			return logqueue.RecordId{}, false, nil
		}
		return logqueue.RecordId{LogID: logID, BlockID: fi.ItemCount - 1}, true, nil
	}
	return logqueue.RecordId{}, false, badRequestf("unknown log id %q", logID)
}

func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request, logID string) error {
	if r.Method != http.MethodGet {
		return badRequestf("method %s not allowed on headers", r.Method)
	}

	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return badRequestf("invalid n %q", raw)
		}
		n = parsed
	}
	preview := r.URL.Query().Get("preview") == "utf8"

	id, ok, err := s.lastRecordOf(logID)
	if err != nil {
		return err
	}

	// Walk backward via Previous so the listing crosses segment
	// boundaries into earlier log files rather than stopping at logID's
	// own head, matching "last N headers" across the full chain.
	var out []headerEntry
	for ok && len(out) < n {
		head, offset, err := s.queue.Info(id)
		if err != nil {
			return err
		}
		entry := headerEntry{
			LogID:    id.LogID,
			BlockID:  id.BlockID,
			DataSize: head.DataSize,
			Offset:   offset,
		}
		if preview {
			payload, options, err := s.queue.Read(id)
			if err != nil {
				return err
			}
			entry.Options = options
			entry.PreviewUTF8 = utf8Preview(payload, 256)
		}
		out = append(out, entry)

		id, ok, err = s.queue.Previous(id)
		if err != nil {
			return err
		}
	}

	return writeJSON(w, http.StatusOK, out)
}

func utf8Preview(payload []byte, maxBytes int) string {
	if len(payload) > maxBytes {
		payload = payload[:maxBytes]
	}
	if !utf8.Valid(payload) {
		return ""
	}
	return string(payload)
}

type electionStatus struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Epoch  uint32 `json:"epoch"`
	Leader string `json:"leader,omitempty"`
}

func (s *Server) handleElectionStatus(w http.ResponseWriter, r *http.Request) error {
	if s.node == nil {
		return writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
	}
	status := electionStatus{
		ID:    s.node.ID(),
		Role:  s.node.Role().String(),
		Epoch: s.node.Epoch(),
	}
	if leader, ok := s.node.Leader(); ok {
		status.Leader = leader
	}
	return writeJSON(w, http.StatusOK, status)
}

type pingRPCRequest struct {
	LeaderID string `json:"leader_id"`
	Epoch    uint32 `json:"epoch"`
	Rid      uint64 `json:"rid"`
}

// handleElectionRPCPing is the peer-to-peer transport for election.Peer's
// Ping RPC: the cluster's leader calls this on every follower node.
func (s *Server) handleElectionRPCPing(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return badRequestf("method %s not allowed on election ping RPC", r.Method)
	}
	if s.node == nil {
		return badRequestf("election engine is disabled")
	}
	var req pingRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequestf("decoding ping request: %v", err)
	}
	resp := s.node.HandlePing(req.LeaderID, req.Epoch, req.Rid)
	return writeJSON(w, http.StatusOK, resp)
}

type nominateRPCRequest struct {
	CandidateID string `json:"candidate_id"`
	Epoch       uint32 `json:"epoch"`
}

// handleElectionRPCNominate is the peer-to-peer transport for
// election.Peer's Nominate RPC: a candidate calls this on every peer to
// request a vote.
func (s *Server) handleElectionRPCNominate(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return badRequestf("method %s not allowed on election nominate RPC", r.Method)
	}
	if s.node == nil {
		return badRequestf("election engine is disabled")
	}
	var req nominateRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequestf("decoding nominate request: %v", err)
	}
	resp, err := s.node.HandleNominate(req.CandidateID, req.Epoch)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleElectionNominate(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return badRequestf("method %s not allowed on /election/nominate", r.Method)
	}
	if s.node == nil {
		return badRequestf("election engine is disabled")
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	s.node.TriggerNomination(ctx)
	return s.handleElectionStatus(w, r)
}
