package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rembrandt-dev/rembrandt/internal/external"
)

// EvaluatorStrategy is the competition evaluator strategy tag (§4.5.2).
type EvaluatorStrategy string

const (
	EvaluatorMetrics EvaluatorStrategy = "metrics"
	EvaluatorModel   EvaluatorStrategy = "model"
	EvaluatorHuman   EvaluatorStrategy = "human"
)

// scored pairs a completed competitor with its evaluator-strategy score,
// used only by the metrics strategy.
type scored struct {
	competitor *Competitor
	score      float64
}

// scoreMetrics implements §4.5.2's weighted formula:
// 0.5·test_pass_ratio + 0.3·simplicity + 0.2·speed, where
// simplicity = 1 / (1 + lines_changed/100) and
// speed = 1 - (elapsed/deadline), elapsed being the agent's own wall time
// from spawn to completion (CompletedAt - SpawnedAt) — not the shared
// type-check/test subprocess duration every competitor incurs identically.
// Highest score wins; ties broken by earliest completion.
func scoreMetrics(passing []*Competitor, deadline float64) (*Competitor, error) {
	if len(passing) == 0 {
		return nil, fmt.Errorf("metrics evaluator: no passing competitors")
	}

	ranked := make([]scored, 0, len(passing))
	for _, c := range passing {
		testPassRatio := 1.0
		if c.Validation != nil && c.Validation.TestCount != nil && *c.Validation.TestCount > 0 {
			passed := *c.Validation.TestCount
			if c.Validation.TestFailures != nil {
				passed -= *c.Validation.TestFailures
			}
			testPassRatio = float64(passed) / float64(*c.Validation.TestCount)
		}

		linesChanged := 0.0
		if c.DiffStats != nil {
			linesChanged = float64(c.DiffStats.Insertions + c.DiffStats.Deletions)
		}
		simplicity := 1.0 / (1.0 + linesChanged/100.0)

		speed := 1.0
		if deadline > 0 && !c.SpawnedAt.IsZero() && !c.CompletedAt.IsZero() {
			elapsed := c.CompletedAt.Sub(c.SpawnedAt).Seconds()
			speed = 1.0 - (elapsed / deadline)
		}

		score := 0.5*testPassRatio + 0.3*simplicity + 0.2*speed
		ranked = append(ranked, scored{competitor: c, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].competitor.CompletedAt.Before(ranked[j].competitor.CompletedAt)
	})

	return ranked[0].competitor, nil
}

// scoreModel submits the prompt and each passing competitor's diff to an
// external scoring program and accepts its ranking verbatim (§4.5.2
// "Model").
func scoreModel(ctx context.Context, ev external.ModelEvaluator, prompt string, passing []*Competitor) (*Competitor, []string, error) {
	in := external.ModelEvaluatorInput{Prompt: prompt}
	bySession := make(map[string]*Competitor, len(passing))
	for _, c := range passing {
		bySession[c.SessionID] = c
		diff := ""
		if c.Diff != "" {
			diff = c.Diff
		}
		in.Competitors = append(in.Competitors, external.ModelCompetitorIn{SessionID: c.SessionID, Diff: diff})
	}

	out, err := ev.Score(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("model evaluator: %w", err)
	}
	if len(out.Ranking) == 0 {
		return nil, nil, fmt.Errorf("model evaluator: empty ranking")
	}

	winner, ok := bySession[out.Ranking[0]]
	if !ok {
		return nil, nil, fmt.Errorf("model evaluator: ranked unknown session %q", out.Ranking[0])
	}
	return winner, out.Ranking, nil
}
