package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/config"
	"github.com/harrison/gridpilot/internal/filelock"
	"github.com/harrison/gridpilot/internal/parser"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <requirements-file>",
		Short: "Build a test plan from free-form requirements",
		Long: `Ask the planner to turn free-form requirements into a test plan and print
it as YAML. Nothing is executed. Use "-" to read the requirements from stdin.

The printed plan can be edited and then run with "gridpilot run".

Examples:
  gridpilot plan requirements.txt
  gridpilot plan requirements.txt --url https://example.com --out plan.yaml
  echo "log in and check the dashboard greets the user" | gridpilot plan -`,
		Args: cobra.ExactArgs(1),
		RunE: planCommand,
	}

	cmd.Flags().String("url", "", "Start URL of the application under test")
	cmd.Flags().Int("max-steps", 0, "Upper bound on the number of planned steps (0 = planner decides)")
	cmd.Flags().String("out", "", "Write the plan to this file instead of stdout")
	cmd.Flags().String("model", "", "Model used for planning")

	return cmd
}

func planCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("model") {
		model, _ := cmd.Flags().GetString("model")
		cfg.MergeWithFlags(config.FlagOverrides{Model: &model})
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	requirements, err := readRequirements(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	url, _ := cmd.Flags().GetString("url")
	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	if maxSteps < 0 {
		return fmt.Errorf("--max-steps must be >= 0, got %d", maxSteps)
	}

	plan, err := parser.BuildPlanRequest(commandContext(cmd), agent.PlanRequest{
		Requirements: requirements,
		StartURL:     url,
		MaxSteps:     maxSteps,
	}, newReasoner(cfg))
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}

	var buf bytes.Buffer
	if err := parser.EncodeYAML(&buf, plan); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := filelock.AtomicWrite(out, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plan %q with %d step(s) written to %s\n", plan.Name, len(plan.Steps), out)
	return nil
}

func readRequirements(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read requirements: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("requirements are empty")
	}
	return text, nil
}
