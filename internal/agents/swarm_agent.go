package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solswarm/guardian/internal/config"
	"github.com/solswarm/guardian/internal/llm"
)

// Oracle is the reasoning backend a SwarmAgent consults. *llm.Client
// satisfies it; tests substitute a stub.
type Oracle interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SwarmAgentConfig configures one reasoning peer
type SwarmAgentConfig struct {
	Name    string
	Role    string
	Timeout time.Duration // per-evaluation budget, default 30s
}

// SwarmAgent is an LLM-backed Plugin. Without an oracle it degrades to a
// fixed mid-confidence heuristic so the swarm keeps functioning offline.
type SwarmAgent struct {
	cfg    SwarmAgentConfig
	oracle Oracle
	log    zerolog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewSwarmAgent creates a peer for the given role. oracle may be nil.
func NewSwarmAgent(cfg SwarmAgentConfig, oracle Oracle) *SwarmAgent {
	if cfg.Name == "" {
		cfg.Name = "swarm_" + cfg.Role
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SwarmAgent{
		cfg:    cfg,
		oracle: oracle,
		log:    config.NewAgentLogger(cfg.Name, cfg.Role),
	}
}

// Name implements Plugin
func (a *SwarmAgent) Name() string { return a.cfg.Name }

// Role implements Plugin
func (a *SwarmAgent) Role() string { return a.cfg.Role }

// Capabilities implements Plugin
func (a *SwarmAgent) Capabilities() []string {
	return []string{"swarm_intelligence", "decision_making", "consensus"}
}

// Initialize implements Plugin
func (a *SwarmAgent) Initialize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	a.initialized = true
	a.log.Info().Msg("Agent initialized")
	return nil
}

// Cleanup implements Plugin
func (a *SwarmAgent) Cleanup(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	return nil
}

// Evaluate implements Plugin. Oracle failures and malformed replies degrade
// to low-confidence evaluations instead of errors so the swarm always gets a
// vote out of a live peer.
func (a *SwarmAgent) Evaluate(ctx context.Context, pctx *ProposalContext) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if a.oracle == nil {
		return &Evaluation{
			Observation: fmt.Sprintf("Evaluating as %s", a.cfg.Role),
			Reasoning:   fmt.Sprintf("Basic evaluation without LLM for %s", a.cfg.Role),
			Conclusion:  "Analysis complete with limited capability",
			Confidence:  0.6,
		}, nil
	}

	reply, err := a.oracle.CompleteWithSystem(ctx, RolePrompt(a.cfg.Role), a.formatPrompt(pctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn().Err(err).Str("proposal_id", pctx.ProposalID).Msg("Oracle call failed")
		return &Evaluation{
			Observation: fmt.Sprintf("Error in %s evaluation", a.cfg.Role),
			Reasoning:   fmt.Sprintf("Failed to complete evaluation: %v", err),
			Conclusion:  "Unable to provide recommendation due to error",
			Confidence:  0,
		}, nil
	}

	return a.parseReply(reply), nil
}

// Execute implements Plugin. Peers acknowledge actions; the guardian owns
// on-chain side effects.
func (a *SwarmAgent) Execute(_ context.Context, action *Action) (*ExecutionResult, error) {
	a.log.Info().Str("kind", string(action.Kind)).Msg("Action acknowledged")
	return &ExecutionResult{
		Status:    "executed",
		Detail:    fmt.Sprintf("%s acknowledged %s action", a.cfg.Role, action.Kind),
		Timestamp: time.Now(),
	}, nil
}

func (a *SwarmAgent) formatPrompt(pctx *ProposalContext) string {
	params, _ := json.MarshalIndent(pctx.Params, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, `Proposal to Evaluate:
Type: %s
Parameters: %s
Proposer: %s
Proposed At: %s
`, pctx.Kind, params, pctx.Proposer, pctx.Timestamp.Format(time.RFC3339))

	if len(pctx.Market) > 0 {
		md, _ := json.MarshalIndent(pctx.Market, "", "  ")
		fmt.Fprintf(&b, "\nMarket Data: %s\n", md)
	}
	if pctx.Portfolio != nil {
		pf, _ := json.MarshalIndent(pctx.Portfolio, "", "  ")
		fmt.Fprintf(&b, "\nPortfolio: %s\n", pf)
	}

	b.WriteString(`
Provide your analysis in JSON format with:
- observation: string (what you observe)
- reasoning: string (your analysis)
- conclusion: string (your recommendation)
- confidence: float (0-1)`)
	return b.String()
}

// parseReply converts a model reply into an Evaluation. A reply that cannot
// be decoded yields the fixed low-confidence fallback rather than an error.
func (a *SwarmAgent) parseReply(reply string) *Evaluation {
	var raw map[string]interface{}
	if err := llm.ParseJSONResponse(reply, &raw); err != nil {
		a.log.Debug().Err(err).Msg("Unparseable oracle reply")
		return &Evaluation{
			Observation: fmt.Sprintf("Response from %s", a.cfg.Role),
			Reasoning:   "response parse failed",
			Conclusion:  "Unable to provide structured analysis",
			Confidence:  0.3,
		}
	}

	eval := &Evaluation{
		Observation: stringField(raw, "observation"),
		Reasoning:   stringField(raw, "reasoning"),
		Conclusion:  stringField(raw, "conclusion"),
		Confidence:  0.5,
	}
	if c, ok := raw["confidence"].(float64); ok && c >= 0 && c <= 1 {
		eval.Confidence = c
	}

	for key, value := range raw {
		switch key {
		case "observation", "reasoning", "conclusion", "confidence":
		default:
			if eval.Extra == nil {
				eval.Extra = make(map[string]interface{})
			}
			eval.Extra[key] = value
		}
	}
	return eval
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return "No " + key + " provided"
}
