package guardian

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyOutcome records how one executed (or simulated) strategy went.
// Outcomes feed future risk assessment and operator review.
type StrategyOutcome struct {
	StrategyID       string             `json:"strategy_id"`
	Timestamp        time.Time          `json:"timestamp"`
	Success          bool               `json:"success"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	ActualProfit     decimal.Decimal    `json:"actual_profit"`
	PredictedProfit  decimal.Decimal    `json:"predicted_profit"`
	ExecutionTime    time.Duration      `json:"execution_time"`
	AgentsInvolved   []string           `json:"agents_involved"`
}

// Memory is a bounded in-process ring of strategy outcomes with an optional
// append-only JSONL log for persistence across restarts.
type Memory struct {
	mu       sync.Mutex
	outcomes []StrategyOutcome
	next     int
	full     bool
	logFile  *os.File
}

// NewMemory creates a memory holding at most size outcomes. When logPath is
// non-empty every recorded outcome is also appended there as one JSON line.
func NewMemory(size int, logPath string) (*Memory, error) {
	if size <= 0 {
		size = 256
	}
	m := &Memory{outcomes: make([]StrategyOutcome, size)}

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open outcome log: %w", err)
		}
		m.logFile = f
	}
	return m, nil
}

// Record stores an outcome, evicting the oldest when full
func (m *Memory) Record(outcome StrategyOutcome) error {
	m.mu.Lock()
	m.outcomes[m.next] = outcome
	m.next = (m.next + 1) % len(m.outcomes)
	if m.next == 0 {
		m.full = true
	}
	logFile := m.logFile
	m.mu.Unlock()

	if logFile != nil {
		line, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		if _, err := logFile.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append outcome log: %w", err)
		}
	}
	return nil
}

// Recent returns up to n outcomes, newest first
func (m *Memory) Recent(n int) []StrategyOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.next
	if m.full {
		size = len(m.outcomes)
	}
	if n > size {
		n = size
	}

	out := make([]StrategyOutcome, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.outcomes)) % len(m.outcomes)
		out = append(out, m.outcomes[idx])
	}
	return out
}

// SuccessRate returns the fraction of recorded outcomes that succeeded, or 0
// when nothing is recorded yet.
func (m *Memory) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.next
	if m.full {
		size = len(m.outcomes)
	}
	if size == 0 {
		return 0
	}

	succeeded := 0
	for i := 0; i < size; i++ {
		if m.outcomes[i].Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(size)
}

// Close releases the outcome log, if any
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	return err
}
