package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswarm/guardian/internal/market"
)

// stubOracle returns a scripted reply
type stubOracle struct {
	reply string
	err   error
}

func (s *stubOracle) CompleteWithSystem(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func testContext() *ProposalContext {
	return &ProposalContext{
		ProposalID: "p-1",
		Kind:       ProposalTrade,
		Params:     map[string]interface{}{ParamSymbol: "SOL"},
		Proposer:   "guardian",
	}
}

func TestEvaluateWithoutOracle(t *testing.T) {
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, nil)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, eval.Confidence, 1e-9)
	assert.NotEmpty(t, eval.Reasoning)
}

func TestEvaluateParsesStructuredReply(t *testing.T) {
	oracle := &stubOracle{reply: `{"observation":"price is falling","reasoning":"momentum is negative","conclusion":"wait","confidence":0.82,"risk_level":"high"}`}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleRiskManager}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, "price is falling", eval.Observation)
	assert.InDelta(t, 0.82, eval.Confidence, 1e-9)
	assert.Equal(t, "high", eval.Extra["risk_level"])
}

func TestEvaluateParseFailureFallback(t *testing.T) {
	oracle := &stubOracle{reply: "I'm sorry, I can't produce JSON today."}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err, "parse failures must not surface as errors")
	assert.InDelta(t, 0.3, eval.Confidence, 1e-9)
	assert.Equal(t, "response parse failed", eval.Reasoning)
}

func TestEvaluateMarkdownFencedReply(t *testing.T) {
	oracle := &stubOracle{reply: "```json\n{\"observation\":\"ok\",\"reasoning\":\"ok\",\"conclusion\":\"ok\",\"confidence\":0.9}\n```"}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleDecisionMaker}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.InDelta(t, 0.9, eval.Confidence, 1e-9)
}

// recordingOracle keeps the last user prompt it was asked to complete
type recordingOracle struct {
	reply      string
	userPrompt string
}

func (r *recordingOracle) CompleteWithSystem(_ context.Context, _, userPrompt string) (string, error) {
	r.userPrompt = userPrompt
	return r.reply, nil
}

func TestEvaluatePromptCarriesMarketAndPortfolio(t *testing.T) {
	oracle := &recordingOracle{reply: `{"confidence":0.8}`}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, oracle)

	pctx := testContext()
	pctx.Market = map[string]*market.PriceRecord{
		"SOL": {Symbol: "SOL", Price: decimal.NewFromFloat(98.76), Confidence: 0.9},
	}
	pctx.Portfolio = &PortfolioSnapshot{
		TotalValueUSD: decimal.NewFromInt(500),
		Holdings:      []Holding{{Symbol: "SOL", Balance: decimal.NewFromInt(2)}},
	}
	pctx.Timestamp = time.Now()

	_, err := agent.Evaluate(context.Background(), pctx)
	require.NoError(t, err)
	assert.Contains(t, oracle.userPrompt, "Market Data")
	assert.Contains(t, oracle.userPrompt, "98.76")
	assert.Contains(t, oracle.userPrompt, "Portfolio")
	assert.Contains(t, oracle.userPrompt, "500")
	assert.Contains(t, oracle.userPrompt, "Proposed At")
}

func TestEvaluateOracleErrorDegrades(t *testing.T) {
	oracle := &stubOracle{err: errors.New("gateway unreachable")}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.Zero(t, eval.Confidence)
	assert.Contains(t, eval.Reasoning, "gateway unreachable")
}

func TestEvaluateClampsOutOfRangeConfidence(t *testing.T) {
	oracle := &stubOracle{reply: `{"observation":"x","reasoning":"y","conclusion":"z","confidence":3.5}`}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, eval.Confidence, 1e-9, "out-of-range confidence falls back to the midpoint")
}

func TestEvaluateFillsMissingFields(t *testing.T) {
	oracle := &stubOracle{reply: `{"confidence":0.7}`}
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleMarketAnalyzer}, oracle)

	eval, err := agent.Evaluate(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, "No observation provided", eval.Observation)
	assert.Equal(t, "No reasoning provided", eval.Reasoning)
	assert.Equal(t, "No conclusion provided", eval.Conclusion)
}

func TestInitializeIdempotent(t *testing.T) {
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RoleYieldFarmer}, nil)
	require.NoError(t, agent.Initialize(context.Background()))
	require.NoError(t, agent.Initialize(context.Background()))
	require.NoError(t, agent.Cleanup(context.Background()))
	require.NoError(t, agent.Cleanup(context.Background()))
}

func TestExecuteAcknowledges(t *testing.T) {
	agent := NewSwarmAgent(SwarmAgentConfig{Role: RolePortfolioManager}, nil)
	result, err := agent.Execute(context.Background(), &Action{Kind: ProposalRebalance})
	require.NoError(t, err)
	assert.Equal(t, "executed", result.Status)
}

func TestRegistryBuildsEveryRole(t *testing.T) {
	registry := NewRegistry()
	for _, role := range registry.Roles() {
		plugin, err := registry.Build(role, "", 10*time.Second, nil)
		require.NoError(t, err)
		assert.Equal(t, role, plugin.Role())
		assert.Equal(t, "swarm_"+role, plugin.Name())
	}
	assert.Len(t, registry.Roles(), 7)
}

func TestRegistryUnknownRole(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Build("time_traveler", "", 0, nil)
	assert.Error(t, err)
}

func TestRolePromptKnownAndUnknown(t *testing.T) {
	assert.Contains(t, RolePrompt(RoleRiskManager), "Risk Manager")
	assert.Contains(t, RolePrompt("exotic_role"), "exotic_role")
}
