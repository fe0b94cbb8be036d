package agents

import (
	"fmt"
	"sort"
	"time"
)

// Constructor builds a plugin for one role
type Constructor func(name string, timeout time.Duration, oracle Oracle) Plugin

// Registry maps roles to plugin constructors
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with every built-in role
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	for _, role := range []string{
		RoleMarketAnalyzer,
		RoleStrategyOptimizer,
		RoleRiskManager,
		RoleArbitrageAgent,
		RoleYieldFarmer,
		RolePortfolioManager,
		RoleDecisionMaker,
	} {
		role := role
		r.Register(role, func(name string, timeout time.Duration, oracle Oracle) Plugin {
			return NewSwarmAgent(SwarmAgentConfig{Name: name, Role: role, Timeout: timeout}, oracle)
		})
	}
	return r
}

// Register adds or replaces the constructor for a role
func (r *Registry) Register(role string, ctor Constructor) {
	r.constructors[role] = ctor
}

// Build creates a plugin for role, or errors on an unknown role
func (r *Registry) Build(role, name string, timeout time.Duration, oracle Oracle) (Plugin, error) {
	ctor, ok := r.constructors[role]
	if !ok {
		return nil, fmt.Errorf("unknown agent role %q", role)
	}
	if name == "" {
		name = "swarm_" + role
	}
	return ctor(name, timeout, oracle), nil
}

// Roles lists the registered roles in sorted order
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.constructors))
	for role := range r.constructors {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
