package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/prompt"
)

type promptFlags struct {
	intakeFile string
	intake     model.Intake
	feedback   string
}

func newPromptCmd() *cobra.Command {
	var f promptFlags
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the agent prompt for an intake or a refinement",
		Long: `Render the exact text archdoc sends to the design agent.

The intake comes from flags or from a JSON file (--intake, "-" for stdin)
shaped like the POST /v1/views/{id}/generate body. With --feedback the
refinement prompt for --project-name is rendered instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrompt(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.intakeFile, "intake", "", "JSON intake file, or - for stdin")
	fl.StringVar(&f.intake.ProjectName, "project-name", "", "project name")
	fl.StringVar(&f.intake.Requirements, "requirements", "", "free-text requirements")
	fl.StringVar(&f.intake.TechnicalConstraints, "constraints", "", "technical constraints")
	fl.StringVar(&f.intake.ConcurrentUsers, "concurrent-users", "", "expected concurrent users")
	fl.StringVar(&f.intake.DataVolume, "data-volume", "", "expected data volume")
	fl.StringVar(&f.intake.IntegrationNeeds, "integrations", "", "integration needs")
	fl.StringSliceVar(&f.intake.Compliance, "compliance", nil, "compliance regimes (repeatable or comma-separated)")
	fl.StringSliceVar(&f.intake.ReferenceCompanies, "reference", nil, "reference companies (repeatable or comma-separated)")
	fl.StringVar(&f.feedback, "feedback", "", "render the refinement prompt with this feedback")
	return cmd
}

func runPrompt(cmd *cobra.Command, f promptFlags) error {
	in := f.intake
	if f.intakeFile != "" {
		data, err := readInput(cmd, f.intakeFile)
		if err != nil {
			return err
		}
		var fromFile model.Intake
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("intake: %w", err)
		}
		in = fromFile
	}

	var (
		text string
		err  error
	)
	if f.feedback != "" {
		text, err = prompt.BuildRefine(in.ProjectName, f.feedback)
	} else {
		text, err = prompt.BuildGenerate(in)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

// readInput reads path, or the command's stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		buf, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return buf, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied CLI argument
	if err != nil {
		return nil, err
	}
	return data, nil
}
