// Package swarm runs confidence-weighted consensus rounds over a set of
// agent plugins.
package swarm

import (
	"time"

	"github.com/solswarm/guardian/internal/agents"
	"github.com/solswarm/guardian/internal/market"
)

// VoteDecision is a peer's stance on a proposal
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteAbstain VoteDecision = "abstain"
	VoteReject  VoteDecision = "reject"
)

// Decision is the aggregate outcome of a round
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionHold    Decision = "hold"
	DecisionReject  Decision = "reject"
)

// Vote is one peer's answer to a proposal
type Vote struct {
	AgentID    string       `json:"agent_id"`
	Decision   VoteDecision `json:"decision"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
}

// ProposalRequest is what a proposer submits to open a consensus round.
// Market and Portfolio are forwarded verbatim to every voting peer.
type ProposalRequest struct {
	Proposer  string
	Kind      agents.ProposalKind
	Params    map[string]interface{}
	Market    map[string]*market.PriceRecord
	Portfolio *agents.PortfolioSnapshot
}

// Proposal is one action put to the swarm
type Proposal struct {
	ID        string                         `json:"id"`
	Kind      agents.ProposalKind            `json:"kind"`
	Params    map[string]interface{}         `json:"params"`
	Proposer  string                         `json:"proposer"`
	Market    map[string]*market.PriceRecord `json:"market,omitempty"`
	Portfolio *agents.PortfolioSnapshot      `json:"portfolio,omitempty"`
	Created   time.Time                      `json:"created"`
}

// ProposalOutcome is the full result of one consensus round. Votes appear in
// arrival order; the aggregate fields are deterministic given the vote
// multiset.
type ProposalOutcome struct {
	ProposalID   string   `json:"proposal_id"`
	Consensus    bool     `json:"consensus"`
	ApprovalRate float64  `json:"approval_rate"`
	TotalVotes   int      `json:"total_votes"`
	Votes        []Vote   `json:"votes"`
	Decision     Decision `json:"decision"`
	Reason       string   `json:"reason,omitempty"`
}
