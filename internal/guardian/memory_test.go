package guardian

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(id string, success bool) StrategyOutcome {
	return StrategyOutcome{
		StrategyID:       id,
		Timestamp:        time.Now(),
		Success:          success,
		ConfidenceScores: map[string]float64{"agent": 0.8},
		ExecutionTime:    250 * time.Millisecond,
		AgentsInvolved:   []string{"agent"},
	}
}

func TestMemoryRecordAndRecent(t *testing.T) {
	m, err := NewMemory(8, "")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Record(outcome("first", true)))
	require.NoError(t, m.Record(outcome("second", false)))
	require.NoError(t, m.Record(outcome("third", true)))

	recent := m.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].StrategyID, "newest first")
	assert.Equal(t, "second", recent[1].StrategyID)
}

func TestMemoryRingEviction(t *testing.T) {
	m, err := NewMemory(3, "")
	require.NoError(t, err)
	defer m.Close()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Record(outcome(id, true)))
	}

	recent := m.Recent(10)
	require.Len(t, recent, 3, "ring keeps only the newest entries")
	assert.Equal(t, "d", recent[0].StrategyID)
	assert.Equal(t, "b", recent[2].StrategyID)
}

func TestMemorySuccessRate(t *testing.T) {
	m, err := NewMemory(8, "")
	require.NoError(t, err)
	defer m.Close()

	assert.Zero(t, m.SuccessRate())

	require.NoError(t, m.Record(outcome("a", true)))
	require.NoError(t, m.Record(outcome("b", false)))
	require.NoError(t, m.Record(outcome("c", true)))
	require.NoError(t, m.Record(outcome("d", true)))

	assert.InDelta(t, 0.75, m.SuccessRate(), 1e-9)
}

func TestMemoryAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	m, err := NewMemory(4, path)
	require.NoError(t, err)

	require.NoError(t, m.Record(outcome("logged-1", true)))
	require.NoError(t, m.Record(outcome("logged-2", false)))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var out StrategyOutcome
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &out))
		ids = append(ids, out.StrategyID)
	}
	assert.Equal(t, []string{"logged-1", "logged-2"}, ids)
}
