package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/internal/domain/report"
	"github.com/okian/intervue/pkg/logger"
)

// scoreInput is the file format of the score command.
type scoreInput struct {
	Interview  string                  `yaml:"interview"`
	CEFR       bool                    `yaml:"cefr"`
	Rubric     []model.RubricParameter `yaml:"rubric"`
	Transcript model.Transcript        `yaml:"transcript"`
}

func newScoreCmd(f *rootFlags) *cobra.Command {
	var (
		input  string
		output string
		bypass bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a transcript against a rubric and print the report as JSON",
		Example: `  intervue score --input attempt.yaml
  intervue score -i attempt.yaml --bypass-llm -o report.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx, f)
			if err != nil {
				return err
			}
			in, err := readScoreInput(input)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				out = file
			}
			return score(ctx, cfg, in, bypass || cfg.Scoring.BypassLLM, out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "YAML file with interview, rubric and transcript")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report here instead of stdout")
	cmd.Flags().BoolVar(&bypass, "bypass-llm", false, "score with the fallback heuristic only")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readScoreInput(path string) (scoreInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoreInput{}, fmt.Errorf("read input: %w", err)
	}
	var in scoreInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return scoreInput{}, fmt.Errorf("parse input %s: %w", path, err)
	}
	return in, nil
}

func score(ctx context.Context, cfg *config.Config, in scoreInput, bypass bool, out io.Writer) error { //nolint:gocritic // hugeParam
	log := logger.Get()
	opts := []report.Option{
		report.WithHeuristic(newHeuristic(cfg.Scoring)),
		report.WithLogger(log.Named("report")),
	}
	if !bypass {
		if llm := newLLM(ctx, cfg.LLM, log); llm != nil {
			opts = append(opts, report.WithCompleter(llm))
		}
	}

	rep, err := report.NewEngine(opts...).Generate(ctx, report.Request{
		AttemptNumber: 1,
		Interview:     in.Interview,
		Transcript:    in.Transcript,
		Rubric:        in.Rubric,
		CEFR:          in.CEFR,
		BypassLLM:     bypass,
	})
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
