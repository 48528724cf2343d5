package election

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPPeer is a Peer backed by another node's httpapi RPC endpoints
// (/election/rpc/ping, /election/rpc/nominate), the network transport a
// real multi-process cluster uses to exchange Ping/Nominate calls.
type HTTPPeer struct {
	id      string
	baseURL string
	client  *http.Client
}

// NewHTTPPeer builds a Peer that calls baseURL (e.g. "http://10.0.0.2:8080")
// over HTTP. id is the peer's own node id, used only for Peer.ID().
func NewHTTPPeer(id, baseURL string, client *http.Client) *HTTPPeer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPeer{id: id, baseURL: baseURL, client: client}
}

func (p *HTTPPeer) ID() string { return p.id }

func (p *HTTPPeer) Ping(ctx context.Context, leaderID string, epoch uint32, rid uint64) (PingResponse, error) {
	var resp PingResponse
	err := p.rpc(ctx, "/election/rpc/ping", map[string]any{
		"leader_id": leaderID,
		"epoch":     epoch,
		"rid":       rid,
	}, &resp)
	return resp, err
}

func (p *HTTPPeer) Nominate(ctx context.Context, candidateID string, epoch uint32) (NominateResponse, error) {
	var resp NominateResponse
	err := p.rpc(ctx, "/election/rpc/nominate", map[string]any{
		"candidate_id": candidateID,
		"epoch":        epoch,
	}, &resp)
	return resp, err
}

func (p *HTTPPeer) rpc(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("election: encoding request to %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("election: building request to %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("election: calling %s%s: %w", p.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return decodeConflict(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("election: %s%s returned status %d", p.baseURL, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("election: decoding response from %s: %w", path, err)
	}
	return nil
}

// decodeConflict turns a 409 body (the plain-text Error() of an
// EpochNotMatch or AlreadyVoted) into a plain error carrying that text;
// the original error type is not reconstructed. The caller
// only needs the non-nil error to abstain the vote; the plain-text body
// isn't worth a richer wire format for this internal peer-to-peer path.
func decodeConflict(body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 256))
	return fmt.Errorf("election: peer rejected request: %s", string(msg))
}
