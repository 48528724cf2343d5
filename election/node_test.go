package election

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// localPeer adapts a *Node into a Peer by routing calls directly to its
// HandlePing/HandleNominate methods, no real network involved.
type localPeer struct {
	node *Node
}

func (p *localPeer) ID() string { return p.node.ID() }

func (p *localPeer) Ping(ctx context.Context, leaderID string, epoch uint32, rid uint64) (PingResponse, error) {
	return p.node.HandlePing(leaderID, epoch, rid), nil
}

func (p *localPeer) Nominate(ctx context.Context, candidateID string, epoch uint32) (NominateResponse, error) {
	return p.node.HandleNominate(candidateID, epoch)
}

func newCluster(t *testing.T, n int, cfg Config) []*Node {
	t.Helper()
	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = NewNode(
			string(rune('A'+i)),
			cfg,
			nil,
			NewSeededRand(int64(1000+i)),
		)
	}
	for i := range nodes {
		peers := make([]Peer, 0, n-1)
		for j := range nodes {
			if j == i {
				continue
			}
			peers = append(peers, &localPeer{node: nodes[j]})
		}
		nodes[i].peers = peers
	}
	return nodes
}

func TestClusterConvergesOnSingleLeader(t *testing.T) {
	cfg := Config{
		PingPeriod:         5 * time.Millisecond,
		HeartbeatTimeout:   10 * time.Millisecond,
		NominateMinDelay:   time.Millisecond,
		NominateMaxDelay:   3 * time.Millisecond,
		RenominateMinDelay: time.Millisecond,
		RenominateMaxDelay: 3 * time.Millisecond,
		VotesMinCount:      3,
	}
	nodes := newCluster(t, 5, cfg)
	ctx := context.Background()

	// Drive elections directly rather than via Tick's heartbeat-timeout
	// gate, so the test doesn't depend on wall-clock scheduling.
	nodes[0].selfNominate(ctx)
	require.Equal(t, Leader, nodes[0].Role())
	require.Equal(t, uint32(1), nodes[0].Epoch())

	leaderCount := 0
	for _, n := range nodes {
		if n.Role() == Leader {
			leaderCount++
		}
	}
	require.Equal(t, 1, leaderCount)

	// Leader pings everyone directly; the followers are not ticked, so
	// what is checked below is only the effect of this ping.
	nodes[0].Tick(ctx)
	for _, n := range nodes[1:] {
		leader, ok := n.Leader()
		require.True(t, ok)
		require.Equal(t, "A", leader)
		require.Equal(t, Follower, n.Role())
	}
}

func TestHandleNominateRejectsStaleEpoch(t *testing.T) {
	cfg := DefaultConfig()
	node := NewNode("A", cfg, nil, NewSeededRand(1))
	node.epoch = 5

	_, err := node.HandleNominate("B", 5)
	require.Error(t, err)
	var mismatch *EpochNotMatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, uint32(6), mismatch.Expect)
	require.Equal(t, uint32(5), mismatch.Actual)
}

func TestHandleNominateSingleVotePerEpoch(t *testing.T) {
	cfg := Config{
		NominateMinDelay: time.Millisecond,
		NominateMaxDelay: 2 * time.Millisecond,
	}
	node := NewNode("A", cfg, nil, NewSeededRand(2))

	resp, err := node.HandleNominate("B", 1)
	require.NoError(t, err)
	require.True(t, resp.Ok)

	_, err = node.HandleNominate("C", 1)
	require.Error(t, err)
	var already *AlreadyVoted
	require.ErrorAs(t, err, &already)
	require.Equal(t, "B", already.Nominant)

	// Re-requesting the same candidate in the same epoch is idempotent.
	resp2, err := node.HandleNominate("B", 1)
	require.NoError(t, err)
	require.True(t, resp2.Ok)
}

func TestHandleNominateGrantsVoteAcrossEpochJump(t *testing.T) {
	cfg := Config{
		NominateMinDelay: time.Millisecond,
		NominateMaxDelay: 2 * time.Millisecond,
	}
	node := NewNode("A", cfg, nil, NewSeededRand(6))
	node.epoch = 1

	// A candidate campaigning at epoch 9 (far ahead of our epoch 1) must
	// still be granted a vote; only epoch <= our current epoch rejects.
	resp, err := node.HandleNominate("B", 9)
	require.NoError(t, err)
	require.True(t, resp.Ok)
	require.Equal(t, uint32(9), resp.Epoch)
}

func TestHandlePingRejectsOlderEpoch(t *testing.T) {
	node := NewNode("A", DefaultConfig(), nil, NewSeededRand(3))
	node.epoch = 10

	resp := node.HandlePing("B", 3, 1)
	require.False(t, resp.Ok)
	require.Equal(t, uint32(10), resp.Epoch)
}

func TestHandlePingAdvancesEpochAndFollowsNewLeader(t *testing.T) {
	node := NewNode("A", DefaultConfig(), nil, NewSeededRand(4))
	node.epoch = 1
	node.role = Leader

	resp := node.HandlePing("B", 2, 7)
	require.True(t, resp.Ok)
	require.Equal(t, uint32(2), resp.Epoch)
	require.Equal(t, Follower, node.Role())

	leader, ok := node.Leader()
	require.True(t, ok)
	require.Equal(t, "B", leader)
}

func TestHandlePingRejectsConflictingLeaderAtSameEpoch(t *testing.T) {
	node := NewNode("A", DefaultConfig(), nil, NewSeededRand(5))
	node.epoch = 3
	leader := "B"
	node.leader = &leader

	resp := node.HandlePing("C", 3, 1)
	require.False(t, resp.Ok)
	require.Equal(t, uint32(3), resp.Epoch)
}

func TestHandlePingLeaderMatchRefreshesRegardlessOfEpoch(t *testing.T) {
	node := NewNode("A", DefaultConfig(), nil, NewSeededRand(7))
	node.epoch = 5
	leader := "B"
	node.leader = &leader
	node.role = Candidate

	// Same leader pinging at a stale epoch still wins: leader-match is
	// checked before the epoch comparison.
	resp := node.HandlePing("B", 3, 1)
	require.True(t, resp.Ok)
	require.Equal(t, uint32(5), resp.Epoch)
	require.Equal(t, Follower, node.Role())
}

func TestHandlePingIgnoresSpoofedSelfAtHigherEpoch(t *testing.T) {
	node := NewNode("A", DefaultConfig(), nil, NewSeededRand(8))
	node.epoch = 2
	node.role = Leader

	resp := node.HandlePing("A", 9, 1)
	require.False(t, resp.Ok)
	require.Equal(t, uint32(2), resp.Epoch)
	require.Equal(t, Leader, node.Role())
	_, ok := node.Leader()
	require.False(t, ok)
}

func TestSelfNominateFailsWithoutQuorum(t *testing.T) {
	cfg := Config{
		NominateMinDelay: time.Millisecond,
		NominateMaxDelay: 2 * time.Millisecond,
		VotesMinCount:    4,
	}
	nodes := newCluster(t, 3, cfg)
	ctx := context.Background()

	nodes[0].selfNominate(ctx)
	require.Equal(t, Candidate, nodes[0].Role())
	require.Equal(t, uint32(0), nodes[0].Epoch())
}

func TestRoleString(t *testing.T) {
	require.Equal(t, "FOLLOWER", Follower.String())
	require.Equal(t, "CANDIDATE", Candidate.String())
	require.Equal(t, "LEADER", Leader.String())
}
