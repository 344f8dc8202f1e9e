package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModelEvaluator_NoCommandIsAnError(t *testing.T) {
	_, err := ModelEvaluator{}.Score(context.Background(), ModelEvaluatorInput{Prompt: "p"})
	require.Error(t, err)
}

func TestModelEvaluator_ParsesRankingFromStdout(t *testing.T) {
	// A stub "scoring program": ignore stdin, emit a fixed ranking.
	script := `cat > /dev/null; echo '{"ranking":["agent-b2","agent-a1"]}'`
	ev := ModelEvaluator{Command: []string{"sh", "-c", script}}

	out, err := ev.Score(context.Background(), ModelEvaluatorInput{
		Prompt: "implement the thing",
		Competitors: []ModelCompetitorIn{
			{SessionID: "agent-a1", Diff: "+foo"},
			{SessionID: "agent-b2", Diff: "+bar"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"agent-b2", "agent-a1"}, out.Ranking)
}

func TestModelEvaluator_NonZeroExitIsAnError(t *testing.T) {
	ev := ModelEvaluator{Command: []string{"sh", "-c", "cat > /dev/null; exit 1"}}
	_, err := ev.Score(context.Background(), ModelEvaluatorInput{Prompt: "p"})
	require.Error(t, err)
}
