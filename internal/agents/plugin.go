// Package agents defines the plugin contract shared by all swarm peers and
// the LLM-backed reasoner that implements it for every role.
package agents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solswarm/guardian/internal/market"
)

// ProposalKind classifies what a proposal asks the swarm to do
type ProposalKind string

const (
	ProposalAnalysis  ProposalKind = "analysis"
	ProposalTrade     ProposalKind = "trade"
	ProposalRebalance ProposalKind = "rebalance"
	ProposalExit      ProposalKind = "exit"
)

// Recognized proposal parameter keys. Params are otherwise opaque to peers.
// Rebalance proposals carry ParamTargetWeights, exit proposals carry
// ParamReasonCode; trades carry symbol, amount and recipient.
const (
	ParamSymbol        = "symbol"
	ParamAmount        = "amount"
	ParamRecipient     = "recipient"
	ParamRiskScore     = "risk_score"
	ParamTargetWeights = "target_weights"
	ParamReasonCode    = "reason_code"
)

// Exit proposal reason codes
const (
	ReasonStopLoss   = "stop_loss"
	ReasonManual     = "manual"
	ReasonVolatility = "volatility"
)

// Holding is one wallet position shared with peers during evaluation
type Holding struct {
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	ValueUSD   decimal.Decimal `json:"value_usd"`
	Allocation decimal.Decimal `json:"allocation"` // percent of total value
}

// PortfolioSnapshot is the proposer's wallet state at proposal time
type PortfolioSnapshot struct {
	TotalValueUSD decimal.Decimal `json:"total_value_usd"`
	Holdings      []Holding       `json:"holdings"`
}

// ProposalContext is what a peer sees when asked to evaluate a proposal.
// Market and Portfolio carry the proposer's view of the world so peers judge
// the same data the proposal was built from.
type ProposalContext struct {
	ProposalID string                         `json:"proposal_id"`
	Kind       ProposalKind                   `json:"kind"`
	Params     map[string]interface{}         `json:"params"`
	Proposer   string                         `json:"proposer"`
	Market     map[string]*market.PriceRecord `json:"market,omitempty"`
	Portfolio  *PortfolioSnapshot             `json:"portfolio,omitempty"`
	Timestamp  time.Time                      `json:"timestamp"`
}

// Evaluation is a peer's structured judgment of a proposal. Extra carries
// role-specific fields (risk_level, action_type, preferred_dex) that are
// opaque to the consensus math.
type Evaluation struct {
	Observation string                 `json:"observation"`
	Reasoning   string                 `json:"reasoning"`
	Conclusion  string                 `json:"conclusion"`
	Confidence  float64                `json:"confidence"` // 0..1
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Action is a side-effectful request handed to a plugin after consensus
type Action struct {
	Kind   ProposalKind           `json:"kind"`
	Params map[string]interface{} `json:"params"`
}

// ExecutionResult reports the outcome of one Execute call
type ExecutionResult struct {
	Status    string                 `json:"status"` // "executed", "skipped", "failed"
	Detail    string                 `json:"detail,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Plugin is the uniform capability surface over a role-specialized reasoner.
// Initialize and Cleanup are idempotent. Evaluate must not mutate plugin
// state beyond logging and caching.
type Plugin interface {
	Name() string
	Role() string
	Capabilities() []string

	Initialize(ctx context.Context) error
	Evaluate(ctx context.Context, pctx *ProposalContext) (*Evaluation, error)
	Execute(ctx context.Context, action *Action) (*ExecutionResult, error)
	Cleanup(ctx context.Context) error
}
