package election

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// rpcServer fakes the two httpapi RPC routes this adapter calls, without
// importing the httpapi package (which imports election - keeping this
// test two-way-free of a wiring cycle).
func rpcServer(t *testing.T, node *Node) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/election/rpc/ping", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LeaderID string `json:"leader_id"`
			Epoch    uint32 `json:"epoch"`
			Rid      uint64 `json:"rid"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := node.HandlePing(req.LeaderID, req.Epoch, req.Rid)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/election/rpc/nominate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CandidateID string `json:"candidate_id"`
			Epoch       uint32 `json:"epoch"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp, err := node.HandleNominate(req.CandidateID, req.Epoch)
		if err != nil {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(err.Error()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPeerPingRoundTrips(t *testing.T) {
	follower := NewNode("follower", DefaultConfig(), nil, NewSeededRand(1))
	srv := rpcServer(t, follower)

	peer := NewHTTPPeer("follower", srv.URL, nil)
	resp, err := peer.Ping(context.Background(), "leader", 1, 7)
	require.NoError(t, err)
	require.True(t, resp.Ok)
	require.Equal(t, uint32(1), resp.Epoch)
	require.Equal(t, "follower", peer.ID())
}

func TestHTTPPeerNominateRoundTrips(t *testing.T) {
	follower := NewNode("follower", DefaultConfig(), nil, NewSeededRand(1))
	srv := rpcServer(t, follower)

	peer := NewHTTPPeer("follower", srv.URL, nil)
	resp, err := peer.Nominate(context.Background(), "candidate", 1)
	require.NoError(t, err)
	require.True(t, resp.Ok)
}

func TestHTTPPeerNominateSurfacesConflict(t *testing.T) {
	follower := NewNode("follower", DefaultConfig(), nil, NewSeededRand(1))
	follower.epoch = 5
	srv := rpcServer(t, follower)

	peer := NewHTTPPeer("follower", srv.URL, nil)
	_, err := peer.Nominate(context.Background(), "candidate-a", 5) // epoch 5 is not newer than 5
	require.Error(t, err)
}
