package agents

import "fmt"

// Agent roles known to the registry
const (
	RoleMarketAnalyzer    = "market_analyzer"
	RoleStrategyOptimizer = "strategy_optimizer"
	RoleRiskManager       = "risk_manager"
	RoleArbitrageAgent    = "arbitrage_agent"
	RoleYieldFarmer       = "yield_farmer"
	RolePortfolioManager  = "portfolio_manager"
	RoleDecisionMaker     = "decision_maker"
)

var rolePrompts = map[string]string{
	RoleRiskManager: `As a Risk Manager on Solana, evaluate this proposal focusing on:
1. Position Size Analysis
2. Smart Contract Security Assessment
3. Slippage and MEV Risk
4. Solana Network Conditions

Your primary responsibility is protecting assets and maintaining risk parameters.`,

	RoleMarketAnalyzer: `As a Market Analyzer on Solana, evaluate this proposal focusing on:
1. Token Price Analysis on Solana DEXs
2. Liquidity Conditions on Jupiter/Raydium
3. Volume and Trading Patterns
4. Cross-DEX Arbitrage Opportunities

Your primary responsibility is market analysis and trend identification.`,

	RoleStrategyOptimizer: `As a Strategy Optimizer on Solana, evaluate this proposal focusing on:
1. Transaction Cost Optimization
2. Route Optimization across Solana DEXs
3. Performance Metrics
4. MEV Protection Strategies

Your primary responsibility is optimizing execution and performance.`,

	RoleArbitrageAgent: `As an Arbitrage Agent on Solana, evaluate this proposal focusing on:
1. Cross-DEX Price Divergence
2. Route Profitability after Fees
3. Execution Latency Risk
4. Liquidity Depth on Both Legs

Your primary responsibility is identifying and sizing arbitrage opportunities.`,

	RoleYieldFarmer: `As a Yield Farmer on Solana, evaluate this proposal focusing on:
1. Pool APY and Reward Emissions
2. Impermanent Loss Exposure
3. Protocol TVL and Track Record
4. Exit Liquidity

Your primary responsibility is sustainable yield capture.`,

	RolePortfolioManager: `As a Portfolio Manager on Solana, evaluate this proposal focusing on:
1. Allocation Targets and Drift
2. Concentration Risk
3. Stablecoin Reserve Levels
4. Rebalancing Cost

Your primary responsibility is keeping the portfolio within its mandate.`,

	RoleDecisionMaker: `As a Decision Maker on Solana, evaluate this proposal focusing on:
1. Alignment with Portfolio Strategy
2. Quality of Supporting Analysis
3. Downside if the Proposal is Wrong
4. Urgency of Action

Your primary responsibility is the final go or no-go call.`,
}

// RolePrompt returns the evaluation prompt for a role. Unknown roles get a
// generic prompt rather than an error.
func RolePrompt(role string) string {
	if p, ok := rolePrompts[role]; ok {
		return p
	}
	return fmt.Sprintf("As a %s, evaluate this proposal based on your expertise.", role)
}
