// Package guardian ties the gateway, market aggregator and swarm together
// into the autonomous portfolio loop.
package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solswarm/guardian/internal/agents"
	"github.com/solswarm/guardian/internal/config"
	"github.com/solswarm/guardian/internal/market"
	"github.com/solswarm/guardian/internal/metrics"
	"github.com/solswarm/guardian/internal/solana"
	"github.com/solswarm/guardian/internal/swarm"
)

// SwarmID is the single swarm the guardian proposes to
const SwarmID = "guardian"

// ProposerName is the guardian's identity inside the swarm. It never votes
// on its own proposals.
const ProposerName = "guardian"

// PortfolioAsset is one holding in the snapshot
type PortfolioAsset struct {
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	ValueUSD   decimal.Decimal `json:"value_usd"`
	Allocation decimal.Decimal `json:"allocation"` // percent of total value
}

// Portfolio is a point-in-time view of everything the wallet holds
type Portfolio struct {
	TotalValueUSD decimal.Decimal      `json:"total_value_usd"`
	Assets        []PortfolioAsset     `json:"assets"`
	NetworkStats  *solana.NetworkStats `json:"network_stats,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// CycleReport is the result of one guardian cycle
type CycleReport struct {
	Status    string                 `json:"status"` // "ok", "executed", "simulated", "emergency", "held", "failed"
	Err       error                  `json:"-"`
	Portfolio *Portfolio             `json:"portfolio,omitempty"`
	RiskScore float64                `json:"risk_score"`
	Outcome   *swarm.ProposalOutcome `json:"outcome,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Guardian runs the watch-assess-propose-execute loop
type Guardian struct {
	cfg         config.GuardianConfig
	gateway     *solana.Gateway
	aggregator  *market.Aggregator
	coordinator *swarm.Coordinator
	memory      *Memory
	log         zerolog.Logger
}

// New creates a guardian. The coordinator's swarm must already be populated.
func New(cfg config.GuardianConfig, gateway *solana.Gateway, aggregator *market.Aggregator, coordinator *swarm.Coordinator, memory *Memory, log zerolog.Logger) *Guardian {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 5 * time.Minute
	}
	if cfg.EmergencyDrop <= 0 {
		cfg.EmergencyDrop = 0.15
	}
	if cfg.RiskCeiling <= 0 {
		cfg.RiskCeiling = 0.9
	}
	if len(cfg.WatchSymbols) == 0 {
		cfg.WatchSymbols = []string{"SOL", "USDC", "RAY", "ORCA"}
	}
	return &Guardian{
		cfg:         cfg,
		gateway:     gateway,
		aggregator:  aggregator,
		coordinator: coordinator,
		memory:      memory,
		log:         log.With().Str("component", "guardian").Logger(),
	}
}

// Run executes cycles on the configured interval until ctx is cancelled. The
// first cycle runs immediately.
func (g *Guardian) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		report := g.RunCycle(ctx)
		metrics.GuardianCycles.WithLabelValues(report.Status).Inc()
		if report.Err != nil {
			g.log.Error().Err(report.Err).Str("status", report.Status).Msg("Cycle finished with error")
		} else {
			g.log.Info().Str("status", report.Status).Float64("risk_score", report.RiskScore).Msg("Cycle finished")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full cycle and never panics outward
func (g *Guardian) RunCycle(ctx context.Context) *CycleReport {
	report := &CycleReport{Status: "ok", Timestamp: time.Now()}

	portfolio, err := g.snapshotPortfolio(ctx)
	if err != nil {
		report.Status = "failed"
		report.Err = fmt.Errorf("portfolio snapshot: %w", err)
		return report
	}
	report.Portfolio = portfolio

	overview := g.aggregator.MarketOverview(ctx, g.cfg.WatchSymbols)
	risk := g.assessRisk(portfolio, overview)
	report.RiskScore = risk

	solChange := solChange24h(overview)
	mctx := marketContext(overview)
	snapshot := portfolioSnapshot(portfolio)

	// Emergency conditions pre-empt the normal proposal. A price collapse is
	// a stop loss; a risk ceiling breach without one reads as volatility.
	dropFloor := decimal.NewFromFloat(-g.cfg.EmergencyDrop * 100)
	if solChange.LessThanOrEqual(dropFloor) || risk >= g.cfg.RiskCeiling {
		code := agents.ReasonVolatility
		if solChange.LessThanOrEqual(dropFloor) {
			code = agents.ReasonStopLoss
		}
		g.log.Warn().
			Str("sol_change_24h", solChange.String()).
			Float64("risk_score", risk).
			Str("reason_code", code).
			Msg("Emergency conditions detected")
		return g.emergencyExit(ctx, report, code, risk, mctx, snapshot)
	}

	params := map[string]interface{}{
		agents.ParamTargetWeights: g.targetWeights(risk),
		agents.ParamRiskScore:     risk,
	}

	started := time.Now()
	outcome, err := g.coordinator.ProposeAction(ctx, SwarmID, swarm.ProposalRequest{
		Proposer:  ProposerName,
		Kind:      agents.ProposalRebalance,
		Params:    params,
		Market:    mctx,
		Portfolio: snapshot,
	})
	if err != nil {
		report.Status = "failed"
		report.Err = fmt.Errorf("consensus round: %w", err)
		return report
	}
	report.Outcome = outcome

	if !outcome.Consensus || outcome.Decision != swarm.DecisionApprove {
		report.Status = "held"
		g.recordOutcome(outcome, false, time.Since(started))
		return report
	}

	if g.cfg.Simulation {
		report.Status = "simulated"
		g.log.Info().Str("proposal_id", outcome.ProposalID).Msg("Simulation mode, skipping execution")
		g.recordOutcome(outcome, true, time.Since(started))
		return report
	}

	if err := g.execute(ctx, agents.ProposalRebalance, params); err != nil {
		report.Status = "failed"
		report.Err = err
		g.recordOutcome(outcome, false, time.Since(started))
		return report
	}

	report.Status = "executed"
	g.recordOutcome(outcome, true, time.Since(started))
	return report
}

// snapshotPortfolio reads balances and prices for every watched symbol. A
// missing token balance degrades that slot to zero rather than failing the
// snapshot; a missing SOL balance fails it.
func (g *Guardian) snapshotPortfolio(ctx context.Context) (*Portfolio, error) {
	wallet := g.gateway.Wallet()
	if wallet == nil {
		return nil, solana.ErrNoWallet
	}

	portfolio := &Portfolio{UpdatedAt: time.Now()}

	for _, symbol := range g.cfg.WatchSymbols {
		var balance decimal.Decimal
		var err error

		if symbol == "SOL" {
			balance, err = g.gateway.GetBalance(ctx, wallet.Address())
			if err != nil {
				return nil, fmt.Errorf("sol balance: %w", err)
			}
		} else {
			mint, ok := market.MintAddresses[symbol]
			if !ok {
				g.log.Warn().Str("symbol", symbol).Msg("No known mint, skipping")
				continue
			}
			balance, err = g.gateway.GetTokenBalance(ctx, mint, wallet.Address())
			if err != nil {
				g.log.Warn().Err(err).Str("symbol", symbol).Msg("Token balance unavailable")
				balance = decimal.Zero
			}
		}

		asset := PortfolioAsset{Symbol: symbol, Balance: balance}
		if balance.Sign() > 0 {
			if record, err := g.aggregator.GetTokenPrice(ctx, symbol); err == nil {
				asset.PriceUSD = record.Price
				asset.ValueUSD = balance.Mul(record.Price)
			} else {
				g.log.Warn().Err(err).Str("symbol", symbol).Msg("Price unavailable for holding")
			}
		}
		portfolio.TotalValueUSD = portfolio.TotalValueUSD.Add(asset.ValueUSD)
		portfolio.Assets = append(portfolio.Assets, asset)
	}

	if portfolio.TotalValueUSD.Sign() > 0 {
		hundred := decimal.NewFromInt(100)
		for i := range portfolio.Assets {
			portfolio.Assets[i].Allocation = portfolio.Assets[i].ValueUSD.
				Mul(hundred).DivRound(portfolio.TotalValueUSD, 2)
		}
	}

	if stats, err := g.gateway.GetNetworkStats(ctx); err == nil {
		portfolio.NetworkStats = stats
	} else {
		g.log.Warn().Err(err).Msg("Network stats unavailable")
	}

	return portfolio, nil
}

// assessRisk reduces market and portfolio state to a 0..1 score. The shape
// follows the cycle's needs: drawdowns and stale data raise it, healthy
// stablecoin reserves lower it.
func (g *Guardian) assessRisk(portfolio *Portfolio, overview *market.Overview) float64 {
	risk := 0.5

	change := solChange24h(overview)
	switch {
	case change.LessThan(decimal.NewFromInt(-10)):
		risk += 0.3
	case change.LessThan(decimal.NewFromInt(-5)):
		risk += 0.15
	case change.GreaterThan(decimal.NewFromInt(5)):
		risk -= 0.1
	}

	failed := 0
	for _, entry := range overview.Tokens {
		if entry.Err != nil {
			failed++
		}
	}
	if len(overview.Tokens) > 0 && failed == len(overview.Tokens) {
		risk += 0.2
	} else if failed > 0 {
		risk += 0.1
	}

	// A healthy stablecoin reserve dampens everything else.
	for _, asset := range portfolio.Assets {
		if asset.Symbol == "USDC" && asset.Allocation.GreaterThan(decimal.NewFromInt(20)) {
			risk -= 0.1
		}
	}

	if portfolio.NetworkStats != nil && portfolio.NetworkStats.TPS > 0 && portfolio.NetworkStats.TPS < 500 {
		risk += 0.1
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

// emergencyExit raises an exit proposal. Unless BypassConsensus is set the
// exit still goes through a vote; either way simulation mode suppresses
// on-chain effects.
func (g *Guardian) emergencyExit(ctx context.Context, report *CycleReport, code string, risk float64, mctx map[string]*market.PriceRecord, snapshot *agents.PortfolioSnapshot) *CycleReport {
	report.Status = "emergency"

	params := map[string]interface{}{
		agents.ParamSymbol:     "SOL",
		agents.ParamReasonCode: code,
		agents.ParamRiskScore:  risk,
	}

	started := time.Now()
	if !g.cfg.BypassConsensus {
		outcome, err := g.coordinator.ProposeAction(ctx, SwarmID, swarm.ProposalRequest{
			Proposer:  ProposerName,
			Kind:      agents.ProposalExit,
			Params:    params,
			Market:    mctx,
			Portfolio: snapshot,
		})
		if err != nil {
			report.Err = fmt.Errorf("emergency consensus round: %w", err)
			return report
		}
		report.Outcome = outcome
		if !outcome.Consensus || outcome.Decision != swarm.DecisionApprove {
			g.log.Warn().Str("decision", string(outcome.Decision)).Msg("Emergency exit not approved by swarm")
			g.recordOutcome(outcome, false, time.Since(started))
			return report
		}
		g.recordOutcome(outcome, true, time.Since(started))
	}

	if g.cfg.Simulation {
		g.log.Warn().Msg("Emergency exit simulated, no transactions sent")
		return report
	}

	if err := g.execute(ctx, agents.ProposalExit, params); err != nil {
		report.Err = err
	}
	return report
}

// execute performs the on-chain side of an approved action. Transfers are
// the only direct chain effect today; trade routing goes through external
// venues and is recorded but not submitted.
func (g *Guardian) execute(ctx context.Context, kind agents.ProposalKind, params map[string]interface{}) error {
	recipient, _ := params[agents.ParamRecipient].(string)
	amountStr, _ := params[agents.ParamAmount].(string)

	if recipient == "" || amountStr == "" {
		g.log.Info().Str("kind", string(kind)).Msg("No transferable action in proposal, recording only")
		return nil
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("malformed amount %q: %w", amountStr, err)
	}

	signature, err := g.gateway.Transfer(ctx, recipient, amount)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	g.log.Info().Str("signature", signature).Str("recipient", recipient).Str("amount", amount.String()).Msg("Transfer submitted")
	return nil
}

func (g *Guardian) recordOutcome(outcome *swarm.ProposalOutcome, success bool, elapsed time.Duration) {
	if g.memory == nil || outcome == nil {
		return
	}

	scores := make(map[string]float64, len(outcome.Votes))
	involved := make([]string, 0, len(outcome.Votes))
	for _, v := range outcome.Votes {
		scores[v.AgentID] = v.Confidence
		involved = append(involved, v.AgentID)
	}

	err := g.memory.Record(StrategyOutcome{
		StrategyID:       outcome.ProposalID,
		Timestamp:        time.Now(),
		Success:          success,
		ConfidenceScores: scores,
		ExecutionTime:    elapsed,
		AgentsInvolved:   involved,
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("Failed to record strategy outcome")
	}
}

// targetWeights derives the rebalance target from the risk score. Rising risk
// moves weight out of SOL into the USDC reserve; whatever remains splits
// evenly across the other watched tokens.
func (g *Guardian) targetWeights(risk float64) map[string]float64 {
	weights := map[string]float64{
		"USDC": 0.2 + 0.4*risk,
		"SOL":  0.5 - 0.3*risk,
	}

	var others []string
	for _, symbol := range g.cfg.WatchSymbols {
		if symbol != "SOL" && symbol != "USDC" {
			others = append(others, symbol)
		}
	}
	if len(others) == 0 {
		weights["USDC"] = 1 - weights["SOL"]
		return weights
	}

	rest := (1 - weights["USDC"] - weights["SOL"]) / float64(len(others))
	for _, symbol := range others {
		weights[symbol] = rest
	}
	return weights
}

// marketContext reduces an overview to the records peers evaluate against.
// Failed slots are simply absent.
func marketContext(overview *market.Overview) map[string]*market.PriceRecord {
	out := make(map[string]*market.PriceRecord)
	for _, entry := range overview.Tokens {
		if entry.Record != nil {
			out[entry.Symbol] = entry.Record
		}
	}
	return out
}

func portfolioSnapshot(p *Portfolio) *agents.PortfolioSnapshot {
	snapshot := &agents.PortfolioSnapshot{TotalValueUSD: p.TotalValueUSD}
	for _, asset := range p.Assets {
		snapshot.Holdings = append(snapshot.Holdings, agents.Holding{
			Symbol:     asset.Symbol,
			Balance:    asset.Balance,
			ValueUSD:   asset.ValueUSD,
			Allocation: asset.Allocation,
		})
	}
	return snapshot
}

func solChange24h(overview *market.Overview) decimal.Decimal {
	for _, entry := range overview.Tokens {
		if entry.Symbol == "SOL" && entry.Record != nil {
			return entry.Record.Change24h
		}
	}
	return decimal.Zero
}
