package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/solswarm/guardian/internal/agents"
	"github.com/solswarm/guardian/internal/metrics"
)

// CoordinatorConfig holds the consensus thresholds
type CoordinatorConfig struct {
	MinConfidence   float64       // approval confidence bar, default 0.7
	MinVotes        int           // approve votes needed for consensus, default 2
	Timeout         time.Duration // per-round deadline, default 60s
	HighThreshold   float64       // approval rate for an approve decision, default 0.7
	RejectThreshold float64       // approval rate below which the decision is reject, default 0.3
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.7
	}
	if c.MinVotes == 0 {
		c.MinVotes = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = 0.7
	}
	if c.RejectThreshold == 0 {
		c.RejectThreshold = 0.3
	}
}

// Coordinator owns swarm membership and runs consensus rounds. Peers hold a
// swarm id, not references to each other; the coordinator is the only place
// membership lives.
type Coordinator struct {
	cfg CoordinatorConfig
	log zerolog.Logger

	// mu serializes membership changes against in-flight rounds
	mu     sync.RWMutex
	swarms map[string]map[string]agents.Plugin // swarmID -> agent name -> plugin
}

// NewCoordinator creates a coordinator with the given thresholds
func NewCoordinator(cfg CoordinatorConfig, log zerolog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:    cfg,
		log:    log.With().Str("component", "swarm").Logger(),
		swarms: make(map[string]map[string]agents.Plugin),
	}
}

// Join adds peers to a swarm, creating it on first use. Duplicate names are
// coalesced; membership is an unordered set.
func (c *Coordinator) Join(swarmID string, peers ...agents.Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.swarms[swarmID]
	if !ok {
		set = make(map[string]agents.Plugin)
		c.swarms[swarmID] = set
	}
	for _, p := range peers {
		set[p.Name()] = p
	}
	c.log.Info().Str("swarm_id", swarmID).Int("peers", len(set)).Msg("Swarm membership updated")
}

// Leave removes a peer from a swarm
func (c *Coordinator) Leave(swarmID, agentName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.swarms[swarmID]; ok {
		delete(set, agentName)
	}
}

// Peers returns a snapshot of a swarm's membership
func (c *Coordinator) Peers(swarmID string) []agents.Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.swarms[swarmID]
	out := make([]agents.Plugin, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out
}

// ProposeAction runs one consensus round. The proposer is excluded from the
// electorate; every other peer contributes exactly one vote. Peers that
// error, panic or miss the deadline count as reject with zero confidence.
func (c *Coordinator) ProposeAction(ctx context.Context, swarmID string, req ProposalRequest) (*ProposalOutcome, error) {
	proposal := &Proposal{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		Params:    req.Params,
		Proposer:  req.Proposer,
		Market:    req.Market,
		Portfolio: req.Portfolio,
		Created:   time.Now(),
	}

	c.mu.RLock()
	set, ok := c.swarms[swarmID]
	if !ok {
		c.mu.RUnlock()
		return nil, fmt.Errorf("unknown swarm %q", swarmID)
	}
	electorate := make([]agents.Plugin, 0, len(set))
	for name, p := range set {
		if name == req.Proposer {
			continue
		}
		electorate = append(electorate, p)
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	votes := c.collectVotes(ctx, proposal, electorate)
	outcome := c.aggregate(proposal.ID, votes)

	metrics.ConsensusRounds.WithLabelValues(string(outcome.Decision)).Inc()
	metrics.ApprovalRate.Observe(outcome.ApprovalRate)

	c.log.Info().
		Str("proposal_id", proposal.ID).
		Str("kind", string(req.Kind)).
		Bool("consensus", outcome.Consensus).
		Float64("approval_rate", outcome.ApprovalRate).
		Int("total_votes", outcome.TotalVotes).
		Str("decision", string(outcome.Decision)).
		Msg("Consensus round complete")

	return outcome, nil
}

// collectVotes fans out to the electorate in parallel and gathers votes in
// arrival order. The round deadline bounds the collection; peers that have
// not answered within a short grace window after the deadline are recorded
// as reject with zero confidence.
func (c *Coordinator) collectVotes(ctx context.Context, proposal *Proposal, electorate []agents.Plugin) []Vote {
	results := make(chan Vote, len(electorate))
	for _, peer := range electorate {
		go func(peer agents.Plugin) {
			results <- c.castVote(ctx, proposal, peer)
		}(peer)
	}

	votes := make([]Vote, 0, len(electorate))
	answered := make(map[string]bool, len(electorate))

	collect := func(v Vote) {
		votes = append(votes, v)
		answered[v.AgentID] = true
	}

	expired := false
	for len(votes) < len(electorate) && !expired {
		select {
		case v := <-results:
			collect(v)
		case <-ctx.Done():
			// Grace window for evaluations already unwinding on cancel.
			grace := time.NewTimer(time.Second)
			for len(votes) < len(electorate) {
				select {
				case v := <-results:
					collect(v)
					continue
				case <-grace.C:
				}
				break
			}
			grace.Stop()
			expired = true
		}
	}

	for _, peer := range electorate {
		if !answered[peer.Name()] {
			votes = append(votes, Vote{
				AgentID:    peer.Name(),
				Decision:   VoteReject,
				Confidence: 0,
				Reasoning:  "vote not received before deadline",
			})
		}
	}
	return votes
}

// castVote runs one peer evaluation with panic containment and maps the
// evaluation to a vote.
func (c *Coordinator) castVote(ctx context.Context, proposal *Proposal, peer agents.Plugin) (vote Vote) {
	vote = Vote{AgentID: peer.Name(), Decision: VoteReject, Confidence: 0}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("agent", peer.Name()).Interface("panic", r).Msg("Peer panicked during evaluation")
			vote = Vote{
				AgentID:    peer.Name(),
				Decision:   VoteReject,
				Confidence: 0,
				Reasoning:  fmt.Sprintf("evaluation panicked: %v", r),
			}
		}
	}()

	eval, err := peer.Evaluate(ctx, &agents.ProposalContext{
		ProposalID: proposal.ID,
		Kind:       proposal.Kind,
		Params:     proposal.Params,
		Proposer:   proposal.Proposer,
		Market:     proposal.Market,
		Portfolio:  proposal.Portfolio,
		Timestamp:  proposal.Created,
	})
	if err != nil {
		vote.Reasoning = fmt.Sprintf("evaluation failed: %v", err)
		return vote
	}
	if eval == nil {
		vote.Reasoning = "no evaluation returned"
		return vote
	}

	reasoning := eval.Reasoning
	if reasoning == "" {
		reasoning = eval.Conclusion
	}

	decision := VoteAbstain
	switch {
	case eval.Confidence >= c.cfg.MinConfidence:
		decision = VoteApprove
	case eval.Confidence < 0.4:
		decision = VoteReject
	}

	return Vote{
		AgentID:    peer.Name(),
		Decision:   decision,
		Confidence: eval.Confidence,
		Reasoning:  reasoning,
	}
}

// aggregate reduces a vote multiset to an outcome. The approval rate weights
// approve votes by confidence against the confidence mass of all votes.
func (c *Coordinator) aggregate(proposalID string, votes []Vote) *ProposalOutcome {
	outcome := &ProposalOutcome{
		ProposalID: proposalID,
		TotalVotes: len(votes),
		Votes:      votes,
	}

	var approveCount int
	var approveMass, totalMass float64
	for _, v := range votes {
		totalMass += v.Confidence
		if v.Decision == VoteApprove {
			approveCount++
			approveMass += v.Confidence
		}
	}
	if totalMass > 0 {
		outcome.ApprovalRate = approveMass / totalMass
	}

	if len(votes) < c.cfg.MinVotes {
		outcome.Reason = "insufficient votes"
		outcome.Decision = DecisionHold
		return outcome
	}

	outcome.Consensus = outcome.ApprovalRate >= c.cfg.MinConfidence && approveCount >= c.cfg.MinVotes

	switch {
	case outcome.Consensus && outcome.ApprovalRate >= c.cfg.HighThreshold:
		outcome.Decision = DecisionApprove
	case outcome.ApprovalRate < c.cfg.RejectThreshold:
		outcome.Decision = DecisionReject
	default:
		outcome.Decision = DecisionHold
	}
	return outcome
}
