// Package election implements leader election among a set of peers
// without log replication: a pure Raft-style role/epoch/vote state
// machine, generalized down from a full consensus engine.
package election

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gochaorg/logd/internal/logging"
)

// Role is one of Follower, Candidate or Leader.
type Role int32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "FOLLOWER"
	case Candidate:
		return "CANDIDATE"
	case Leader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// Config tunes election timing.
type Config struct {
	PingPeriod       time.Duration
	HeartbeatTimeout time.Duration

	NominateMinDelay, NominateMaxDelay     time.Duration
	RenominateMinDelay, RenominateMaxDelay time.Duration

	VotesMinCount int
}

// DefaultConfig returns sane defaults for a small cluster.
func DefaultConfig() Config {
	return Config{
		PingPeriod:         100 * time.Millisecond,
		HeartbeatTimeout:   400 * time.Millisecond,
		NominateMinDelay:   10 * time.Millisecond,
		NominateMaxDelay:   50 * time.Millisecond,
		RenominateMinDelay: 50 * time.Millisecond,
		RenominateMaxDelay: 500 * time.Millisecond,
		VotesMinCount:      1,
	}
}

// PingResponse is a Peer's answer to a leader's Ping.
type PingResponse struct {
	Ok    bool
	Epoch uint32
}

// NominateResponse is a Peer's answer to a candidate's Nominate.
type NominateResponse struct {
	Ok    bool
	Epoch uint32
}

// Peer is a remote cluster member this node can Ping (as leader) or
// Nominate (as candidate).
type Peer interface {
	ID() string
	Ping(ctx context.Context, leaderID string, epoch uint32, rid uint64) (PingResponse, error)
	Nominate(ctx context.Context, candidateID string, epoch uint32) (NominateResponse, error)
}

// Node is one member of the election cluster.
type Node struct {
	mu sync.Mutex

	id     string
	epoch  uint32
	role   Role
	leader *string

	voteEpoch uint32
	vote      *string
	hasVoted  bool

	lastPingReceived, lastPingSent time.Time

	peers []Peer

	cfg Config
	rng RandSource

	pingSeq atomic.Uint64
	logger  *logging.Logger
}

// NewNode constructs a node in the Follower role at epoch 0.
func NewNode(id string, cfg Config, peers []Peer, rng RandSource) *Node {
	if rng == nil {
		rng = globalRand{}
	}
	return &Node{
		id:     id,
		role:   Follower,
		cfg:    cfg,
		peers:  peers,
		rng:    rng,
		logger: logging.Default(),
	}
}

// ID returns this node's own identity.
func (n *Node) ID() string { return n.id }

// TriggerNomination starts a candidacy immediately, regardless of the
// heartbeat timeout, for an operator-initiated /election/nominate call.
func (n *Node) TriggerNomination(ctx context.Context) {
	n.selfNominate(ctx)
}

type snapshot struct {
	role             Role
	epoch            uint32
	leader           *string
	lastPingReceived time.Time
	lastPingSent     time.Time
	peers            []Peer
}

func (n *Node) snapshot() snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return snapshot{
		role:             n.role,
		epoch:            n.epoch,
		leader:           n.leader,
		lastPingReceived: n.lastPingReceived,
		lastPingSent:     n.lastPingSent,
		peers:            append([]Peer(nil), n.peers...),
	}
}

// Role returns the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Epoch returns the node's current epoch.
func (n *Node) Epoch() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epoch
}

// Leader returns the id of the node currently believed to be leader, if any.
func (n *Node) Leader() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.leader == nil {
		return "", false
	}
	return *n.leader, true
}

// Tick dispatches by role: a Leader broadcasts Ping when due, a Follower
// calls selfNominate past the heartbeat timeout (a Follower that has seen
// no Ping yet starts that timeout on its first tick), a Candidate waits out a
// jittered delay and reverts to Follower to retry on the next tick.
func (n *Node) Tick(ctx context.Context) {
	snap := n.snapshot()
	now := time.Now()

	switch snap.role {
	case Leader:
		if now.Sub(snap.lastPingSent) >= n.cfg.PingPeriod {
			n.broadcastPing(ctx, snap)
		}
	case Follower:
		if snap.lastPingReceived.IsZero() {
			n.mu.Lock()
			if n.lastPingReceived.IsZero() {
				n.lastPingReceived = now
			}
			n.mu.Unlock()
			return
		}
		if now.Sub(snap.lastPingReceived) >= n.cfg.HeartbeatTimeout {
			n.selfNominate(ctx)
		}
	case Candidate:
		delay := n.rng.DurationIn(n.cfg.RenominateMinDelay, n.cfg.RenominateMaxDelay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		n.mu.Lock()
		if n.role == Candidate {
			n.role = Follower
		}
		n.mu.Unlock()
	}
}

func (n *Node) broadcastPing(ctx context.Context, snap snapshot) {
	rid := n.pingSeq.Add(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxEpochSeen := snap.epoch

	for _, p := range snap.peers {
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			resp, err := p.Ping(ctx, n.id, snap.epoch, rid)
			if err != nil {
				return
			}
			if resp.Epoch > snap.epoch {
				mu.Lock()
				if resp.Epoch > maxEpochSeen {
					maxEpochSeen = resp.Epoch
				}
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if maxEpochSeen > n.epoch {
		n.epoch = maxEpochSeen
		n.role = Follower
		n.leader = nil
		return
	}
	if n.role == Leader {
		n.lastPingSent = time.Now()
	}
}

// selfNominate runs one candidacy: request votes for epoch+1 from all
// peers in parallel, and become Leader at that epoch once at least
// VotesMinCount grant.
func (n *Node) selfNominate(ctx context.Context) {
	n.mu.Lock()
	n.role = Candidate
	targetEpoch := n.epoch + 1
	peers := append([]Peer(nil), n.peers...)
	n.mu.Unlock()

	votes := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range peers {
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			resp, err := p.Nominate(ctx, n.id, targetEpoch)
			if err != nil || !resp.Ok {
				return
			}
			mu.Lock()
			votes++
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.epoch >= targetEpoch {
		// Someone else already advanced the epoch while we campaigned.
		return
	}
	if votes >= n.cfg.VotesMinCount {
		n.epoch = targetEpoch
		n.role = Leader
		self := n.id
		n.leader = &self
		n.lastPingSent = time.Time{}
	}
}

// HandlePing processes an incoming Ping from a claimed leader, in three
// priority branches: (1) the claimed leader already matches our current
// leader, so refresh and re-confirm Follower regardless of epoch; (2) the
// claimed leader's epoch is strictly newer, so adopt it as leader and
// clear our vote, unless the claimed leader is us (a spoofed self-ping,
// which only warns); (3) anything else (stale or equal epoch from a
// non-matching leader) is rejected with state left unchanged. rid is the
// leader's per-broadcast sequence number, carried for diagnostic logging.
func (n *Node) HandlePing(leaderID string, epoch uint32, rid uint64) PingResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.leader != nil && *n.leader == leaderID {
		n.role = Follower
		n.lastPingReceived = time.Now()
		return PingResponse{Ok: true, Epoch: n.epoch}
	}

	if epoch > n.epoch {
		if leaderID == n.id {
			n.logger.Warn("election: peer claims to be us", "epoch", epoch, "rid", rid, "peer", leaderID)
			return PingResponse{Ok: false, Epoch: n.epoch}
		}
		n.epoch = epoch
		n.role = Follower
		n.leader = &leaderID
		n.lastPingReceived = time.Now()
		n.vote = nil
		n.hasVoted = false
		return PingResponse{Ok: true, Epoch: n.epoch}
	}

	return PingResponse{Ok: false, Epoch: n.epoch}
}

// HandleNominate processes an incoming vote request from a candidate.
func (n *Node) HandleNominate(candidateID string, epoch uint32) (NominateResponse, error) {
	n.mu.Lock()
	if n.epoch >= epoch {
		expect := n.epoch + 1
		n.mu.Unlock()
		return NominateResponse{}, &EpochNotMatch{Expect: expect, Actual: epoch}
	}
	if n.hasVoted && n.voteEpoch == epoch && (n.vote == nil || *n.vote != candidateID) {
		var nominant string
		if n.vote != nil {
			nominant = *n.vote
		}
		n.mu.Unlock()
		return NominateResponse{}, &AlreadyVoted{Nominant: nominant}
	}
	delay := n.rng.DurationIn(n.cfg.NominateMinDelay, n.cfg.NominateMaxDelay)
	n.mu.Unlock()

	time.Sleep(delay)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.epoch >= epoch {
		return NominateResponse{}, &EpochNotMatch{Expect: n.epoch + 1, Actual: epoch}
	}
	n.voteEpoch = epoch
	candidate := candidateID
	n.vote = &candidate
	n.hasVoted = true
	return NominateResponse{Ok: true, Epoch: epoch}, nil
}
