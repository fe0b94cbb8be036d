package swarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswarm/guardian/internal/agents"
	"github.com/solswarm/guardian/internal/market"
)

// stubPeer is a scriptable plugin for coordinator tests
type stubPeer struct {
	name       string
	confidence float64
	err        error
	panics     bool
	block      bool // block until ctx is done, then return its error
	evaluated  int
}

func (s *stubPeer) Name() string                     { return s.name }
func (s *stubPeer) Role() string                     { return "stub" }
func (s *stubPeer) Capabilities() []string           { return nil }
func (s *stubPeer) Initialize(context.Context) error { return nil }
func (s *stubPeer) Cleanup(context.Context) error    { return nil }

func (s *stubPeer) Evaluate(ctx context.Context, _ *agents.ProposalContext) (*agents.Evaluation, error) {
	s.evaluated++
	if s.panics {
		panic("stub peer exploded")
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &agents.Evaluation{
		Reasoning:  "stub reasoning",
		Conclusion: "stub conclusion",
		Confidence: s.confidence,
	}, nil
}

func (s *stubPeer) Execute(context.Context, *agents.Action) (*agents.ExecutionResult, error) {
	return &agents.ExecutionResult{Status: "executed", Timestamp: time.Now()}, nil
}

func newTestCoordinator(peers ...agents.Plugin) *Coordinator {
	c := NewCoordinator(CoordinatorConfig{}, zerolog.Nop())
	c.Join("test", peers...)
	return c
}

func TestProposeActionConsensusApproved(t *testing.T) {
	c := newTestCoordinator(
		&stubPeer{name: "a", confidence: 0.85},
		&stubPeer{name: "b", confidence: 0.80},
		&stubPeer{name: "c", confidence: 0.60},
	)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)

	assert.True(t, outcome.Consensus)
	// approve mass 1.65 over total mass 2.25
	assert.InDelta(t, 0.7333, outcome.ApprovalRate, 0.001)
	assert.Equal(t, 3, outcome.TotalVotes)
	assert.Equal(t, DecisionApprove, outcome.Decision)
}

func TestProposeActionNoConsensusHolds(t *testing.T) {
	c := newTestCoordinator(
		&stubPeer{name: "a", confidence: 0.50},
		&stubPeer{name: "b", confidence: 0.90},
	)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)

	assert.False(t, outcome.Consensus, "one approve vote cannot reach the two-vote bar")
	assert.InDelta(t, 0.6429, outcome.ApprovalRate, 0.001)
	assert.Equal(t, DecisionHold, outcome.Decision, "a failed vote is a hold, not a reject")
}

func TestProposeActionAllReject(t *testing.T) {
	c := newTestCoordinator(
		&stubPeer{name: "a", confidence: 0.1},
		&stubPeer{name: "b", confidence: 0.2},
	)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)

	assert.False(t, outcome.Consensus)
	assert.Zero(t, outcome.ApprovalRate)
	assert.Equal(t, DecisionReject, outcome.Decision)
}

func TestProposeActionZeroPeers(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{}, zerolog.Nop())
	c.Join("empty")

	outcome, err := c.ProposeAction(context.Background(), "empty", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalAnalysis})
	require.NoError(t, err)

	assert.False(t, outcome.Consensus)
	assert.Equal(t, "insufficient votes", outcome.Reason)
	assert.Zero(t, outcome.TotalVotes)
}

func TestProposeActionUnknownSwarm(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{}, zerolog.Nop())
	_, err := c.ProposeAction(context.Background(), "missing", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalAnalysis})
	assert.Error(t, err)
}

func TestProposeActionInitiatorExcluded(t *testing.T) {
	self := &stubPeer{name: "proposer", confidence: 0.99}
	peer := &stubPeer{name: "peer", confidence: 0.9}
	c := newTestCoordinator(self, peer)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)

	assert.Equal(t, 0, self.evaluated, "the initiator must not vote on its own proposal")
	assert.Equal(t, 1, outcome.TotalVotes)
}

func TestProposeActionForwardsContextToPeers(t *testing.T) {
	var seen *agents.ProposalContext
	peer := &capturePeer{name: "witness", seen: &seen}
	c := newTestCoordinator(peer)

	sol := &market.PriceRecord{Symbol: "SOL", Price: decimal.NewFromInt(100), Confidence: 0.9}
	snapshot := &agents.PortfolioSnapshot{
		TotalValueUSD: decimal.NewFromInt(250),
		Holdings:      []agents.Holding{{Symbol: "SOL", Balance: decimal.NewFromInt(2)}},
	}

	_, err := c.ProposeAction(context.Background(), "test", ProposalRequest{
		Proposer:  "proposer",
		Kind:      agents.ProposalRebalance,
		Params:    map[string]interface{}{agents.ParamRiskScore: 0.4},
		Market:    map[string]*market.PriceRecord{"SOL": sol},
		Portfolio: snapshot,
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	require.NotNil(t, seen.Market)
	assert.Same(t, sol, seen.Market["SOL"])
	assert.Same(t, snapshot, seen.Portfolio)
	assert.False(t, seen.Timestamp.IsZero())
	assert.Equal(t, 0.4, seen.Params[agents.ParamRiskScore])
}

// capturePeer records the context it was asked to evaluate
type capturePeer struct {
	name string
	seen **agents.ProposalContext
}

func (p *capturePeer) Name() string                     { return p.name }
func (p *capturePeer) Role() string                     { return "capture" }
func (p *capturePeer) Capabilities() []string           { return nil }
func (p *capturePeer) Initialize(context.Context) error { return nil }
func (p *capturePeer) Cleanup(context.Context) error    { return nil }

func (p *capturePeer) Evaluate(_ context.Context, pctx *agents.ProposalContext) (*agents.Evaluation, error) {
	*p.seen = pctx
	return &agents.Evaluation{Reasoning: "captured", Confidence: 0.9}, nil
}

func (p *capturePeer) Execute(context.Context, *agents.Action) (*agents.ExecutionResult, error) {
	return &agents.ExecutionResult{Status: "executed", Timestamp: time.Now()}, nil
}

func TestProposeActionPanickingPeer(t *testing.T) {
	c := newTestCoordinator(
		&stubPeer{name: "good", confidence: 0.9},
		&stubPeer{name: "bad", panics: true},
	)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)
	require.Equal(t, 2, outcome.TotalVotes)

	var badVote *Vote
	for i := range outcome.Votes {
		if outcome.Votes[i].AgentID == "bad" {
			badVote = &outcome.Votes[i]
		}
	}
	require.NotNil(t, badVote)
	assert.Equal(t, VoteReject, badVote.Decision)
	assert.Zero(t, badVote.Confidence)
}

func TestProposeActionErroringPeer(t *testing.T) {
	c := newTestCoordinator(
		&stubPeer{name: "broken", err: errors.New("oracle down")},
	)

	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	require.NoError(t, err)
	require.Len(t, outcome.Votes, 1)
	assert.Equal(t, VoteReject, outcome.Votes[0].Decision)
	assert.Contains(t, outcome.Votes[0].Reasoning, "oracle down")
}

func TestProposeActionDeadline(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Timeout: 100 * time.Millisecond}, zerolog.Nop())
	c.Join("test",
		&stubPeer{name: "fast", confidence: 0.9},
		&stubPeer{name: "slow", block: true},
	)

	start := time.Now()
	outcome, err := c.ProposeAction(context.Background(), "test", ProposalRequest{Proposer: "proposer", Kind: agents.ProposalTrade})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second, "round must resolve shortly after its deadline")
	require.Equal(t, 2, outcome.TotalVotes)

	for _, v := range outcome.Votes {
		if v.AgentID == "slow" {
			assert.Equal(t, VoteReject, v.Decision)
			assert.Zero(t, v.Confidence)
		}
	}
}

func TestAggregateDeterministic(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{}, zerolog.Nop())
	votes := []Vote{
		{AgentID: "a", Decision: VoteApprove, Confidence: 0.85},
		{AgentID: "b", Decision: VoteApprove, Confidence: 0.80},
		{AgentID: "c", Decision: VoteAbstain, Confidence: 0.60},
	}

	first := c.aggregate("p", votes)

	reversed := []Vote{votes[2], votes[1], votes[0]}
	second := c.aggregate("p", reversed)

	assert.Equal(t, first.Consensus, second.Consensus)
	assert.Equal(t, first.ApprovalRate, second.ApprovalRate)
	assert.Equal(t, first.Decision, second.Decision)
}

func TestJoinCoalescesDuplicates(t *testing.T) {
	peer := &stubPeer{name: "dup", confidence: 0.9}
	c := NewCoordinator(CoordinatorConfig{}, zerolog.Nop())
	c.Join("test", peer)
	c.Join("test", peer)

	assert.Len(t, c.Peers("test"), 1)
}

func TestLeaveRemovesPeer(t *testing.T) {
	c := newTestCoordinator(&stubPeer{name: "a", confidence: 0.9})
	c.Leave("test", "a")
	assert.Empty(t, c.Peers("test"))
}
