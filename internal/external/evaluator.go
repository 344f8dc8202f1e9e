package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ModelEvaluatorInput is what the model evaluator strategy submits to the
// external scoring program: the competition prompt and each competitor's
// unified diff (§4.5.2 "Model").
type ModelEvaluatorInput struct {
	Prompt      string              `json:"prompt"`
	Competitors []ModelCompetitorIn `json:"competitors"`
}

type ModelCompetitorIn struct {
	SessionID string `json:"session_id"`
	Diff      string `json:"diff"`
}

// ModelEvaluatorOutput is the scoring program's verbatim ranking, accepted
// as-is (§4.5.2: "accept its returned ranking verbatim").
type ModelEvaluatorOutput struct {
	Ranking []string `json:"ranking"` // session ids, winner first
}

// ModelEvaluator invokes an operator-configured external scoring program,
// feeding it JSON on stdin and reading a JSON ranking back from stdout.
type ModelEvaluator struct {
	Command []string
}

func (m ModelEvaluator) Score(ctx context.Context, in ModelEvaluatorInput) (ModelEvaluatorOutput, error) {
	if len(m.Command) == 0 {
		return ModelEvaluatorOutput{}, fmt.Errorf("model evaluator: no command configured")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return ModelEvaluatorOutput{}, fmt.Errorf("marshal evaluator input: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.Command[0], m.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ModelEvaluatorOutput{}, fmt.Errorf("run model evaluator: %w: %s", err, truncate(stderr.String(), maxCapturedOutput))
	}

	var out ModelEvaluatorOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ModelEvaluatorOutput{}, fmt.Errorf("parse evaluator ranking: %w", err)
	}
	return out, nil
}
