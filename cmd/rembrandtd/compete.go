package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rembrandt-dev/rembrandt/internal/pipeline"
)

var (
	competeAgents    string
	competeEvaluator string
	competeTimeout   time.Duration
	competeBranch    string
	competeCommand   string
)

var competeCmd = &cobra.Command{
	Use:   "compete <prompt>",
	Short: "Run several agents against the same prompt and merge the winner",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompete,
}

func init() {
	competeCmd.Flags().StringVar(&competeAgents, "agents", "", "comma-separated agent labels")
	competeCmd.Flags().StringVar(&competeEvaluator, "evaluator", "metrics", "metrics, model, or human")
	competeCmd.Flags().DurationVar(&competeTimeout, "timeout", 0, "competition deadline (default: the configured competition_deadline)")
	competeCmd.Flags().StringVar(&competeBranch, "base", "", "base branch every competitor forks from (default: main)")
	competeCmd.Flags().StringVar(&competeCommand, "command", "", "command each competitor runs (default: sh)")
	competeCmd.MarkFlagRequired("agents")
}

func runCompete(cmd *cobra.Command, args []string) error {
	labels := strings.Split(competeAgents, ",")
	for i := range labels {
		labels[i] = strings.TrimSpace(labels[i])
	}

	var evaluator pipeline.EvaluatorStrategy
	switch competeEvaluator {
	case "metrics":
		evaluator = pipeline.EvaluatorMetrics
	case "model":
		evaluator = pipeline.EvaluatorModel
	case "human":
		evaluator = pipeline.EvaluatorHuman
	default:
		return fmt.Errorf("unknown evaluator %q (want metrics, model, or human)", competeEvaluator)
	}

	command := []string{"sh"}
	if competeCommand != "" {
		command = strings.Fields(competeCommand)
	}

	reply := &CompeteReply{}
	err := call(cmd, "Compete", CompeteArgs{
		CompetitionID: uuid.New().String(),
		Prompt:        args[0],
		Agents:        labels,
		Command:       command,
		Evaluator:     evaluator,
		Timeout:       competeTimeout,
		BaseBranch:    competeBranch,
	}, reply)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply.CompetitionID)
	return nil
}

var competeStatusCmd = &cobra.Command{
	Use:   "compete-status [id]",
	Short: "Show the state of one or every competition",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCompeteStatus,
}

func runCompeteStatus(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	reply := &CompeteStatusReply{}
	if err := call(cmd, "CompeteStatus", CompeteStatusArgs{CompetitionID: id}, reply); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, comp := range reply.Competitions {
		fmt.Fprintf(out, "%s  %s  prompt=%q\n", comp.ID, comp.State, comp.Prompt)
		for _, c := range comp.Competitors {
			marker := " "
			if c.IsWinner {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s (%s) completed=%v\n", marker, c.SessionID, c.AgentLabel, c.Completed)
		}
		if len(comp.Ranking) > 0 {
			fmt.Fprintf(out, "  ranking: %s\n", strings.Join(comp.Ranking, " > "))
		}
	}
	return nil
}

var competeCancelCmd = &cobra.Command{
	Use:   "compete-cancel <id>",
	Short: "Cancel a running competition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "CompeteCancel", CompetitionIDArgs{CompetitionID: args[0]}, &struct{}{})
	},
}
