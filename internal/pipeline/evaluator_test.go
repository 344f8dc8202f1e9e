package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rembrandt-dev/rembrandt/internal/external"
)

func intPtr(n int) *int { return &n }

func TestScoreMetrics_SimplicityOutweighsSpeed(t *testing.T) {
	// Scenario from §8 test 5: A passes tests, 200 lines changed, finishes
	// 10s after spawn. B passes tests, 50 lines changed, finishes 15s after
	// spawn. Deadline 30s. B should win on simplicity despite being slower.
	spawnedAt := time.Unix(0, 0)
	a := &Competitor{
		SessionID:   "a",
		SpawnedAt:   spawnedAt,
		CompletedAt: time.Unix(10, 0),
		Validation:  &ValidationResult{TestsPassed: true, TestCount: intPtr(10), TestFailures: intPtr(0)},
		DiffStats:   &DiffStats{Insertions: 150, Deletions: 50},
	}
	b := &Competitor{
		SessionID:   "b",
		SpawnedAt:   spawnedAt,
		CompletedAt: time.Unix(15, 0),
		Validation:  &ValidationResult{TestsPassed: true, TestCount: intPtr(10), TestFailures: intPtr(0)},
		DiffStats:   &DiffStats{Insertions: 30, Deletions: 20},
	}

	winner, err := scoreMetrics([]*Competitor{a, b}, 30)
	require.NoError(t, err)
	require.Equal(t, "b", winner.SessionID)
}

func TestScoreMetrics_NoPassingCompetitorsIsAnError(t *testing.T) {
	_, err := scoreMetrics(nil, 30)
	require.Error(t, err)
}

func TestScoreMetrics_TiesBrokenByEarliestCompletion(t *testing.T) {
	spawnedAt := time.Unix(0, 0)
	a := &Competitor{SessionID: "a", SpawnedAt: time.Unix(10, 0), CompletedAt: time.Unix(20, 0)}
	b := &Competitor{SessionID: "b", SpawnedAt: spawnedAt, CompletedAt: time.Unix(10, 0)}

	winner, err := scoreMetrics([]*Competitor{a, b}, 30)
	require.NoError(t, err)
	require.Equal(t, "b", winner.SessionID)
}

func TestScoreModel_AcceptsRankingVerbatim(t *testing.T) {
	ev := external.ModelEvaluator{Command: []string{"sh", "-c", `cat > /dev/null; echo '{"ranking":["b","a"]}'`}}
	a := &Competitor{SessionID: "a", Diff: "+foo"}
	b := &Competitor{SessionID: "b", Diff: "+bar"}

	winner, ranking, err := scoreModel(context.Background(), ev, "prompt", []*Competitor{a, b})
	require.NoError(t, err)
	require.Equal(t, "b", winner.SessionID)
	require.Equal(t, []string{"b", "a"}, ranking)
}

func TestScoreModel_UnknownRankedSessionIsAnError(t *testing.T) {
	ev := external.ModelEvaluator{Command: []string{"sh", "-c", `cat > /dev/null; echo '{"ranking":["nope"]}'`}}
	a := &Competitor{SessionID: "a"}

	_, _, err := scoreModel(context.Background(), ev, "prompt", []*Competitor{a})
	require.Error(t, err)
}
