// Package prompt turns intake fields into the natural-language prompts sent to
// the design agent. Section headers are stable so the agent can rely on them.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ashita-ai/archdoc/internal/model"
)

// NoneSpecified is rendered in place of any optional field left blank.
const NoneSpecified = "None specified"

var complianceOptions = []string{"PCI-DSS", "GDPR", "SOC2", "ISO27001", "HIPAA", "CCPA"}

var referenceCompanies = []string{
	"Netflix", "Uber", "Amazon", "Google", "Shopify", "Microsoft",
	"Meta", "Twitter", "Airbnb", "Spotify", "LinkedIn", "Stripe",
}

// ValidationError reports an intake field that blocks the agent call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Options returns the selectable compliance frameworks and reference companies.
func Options() model.IntakeOptions {
	return model.IntakeOptions{
		Compliance:         slices.Clone(complianceOptions),
		ReferenceCompanies: slices.Clone(referenceCompanies),
	}
}

// Validate checks the required intake fields and the compliance selections.
func Validate(in model.Intake) error {
	if strings.TrimSpace(in.ProjectName) == "" {
		return &ValidationError{Field: "project_name", Message: "project name is required"}
	}
	if strings.TrimSpace(in.Requirements) == "" {
		return &ValidationError{Field: "requirements", Message: "client requirements are required"}
	}
	for _, c := range in.Compliance {
		if !slices.Contains(complianceOptions, c) {
			return &ValidationError{
				Field:   "compliance",
				Message: fmt.Sprintf("unknown compliance framework %q (allowed: %s)", c, strings.Join(complianceOptions, ", ")),
			}
		}
	}
	return nil
}

// BuildGenerate renders the prompt for a first design of in.
func BuildGenerate(in model.Intake) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", strings.TrimSpace(in.ProjectName))
	fmt.Fprintf(&b, "Client Requirements:\n%s\n\n", strings.TrimSpace(in.Requirements))
	fmt.Fprintf(&b, "Technical Constraints:\n%s\n\n", orNone(in.TechnicalConstraints))
	b.WriteString("Scalability Targets:\n")
	fmt.Fprintf(&b, "- Concurrent Users: %s\n", orNone(in.ConcurrentUsers))
	fmt.Fprintf(&b, "- Data Volume: %s\n\n", orNone(in.DataVolume))
	fmt.Fprintf(&b, "Compliance Requirements:\n%s\n\n", joinOrNone(in.Compliance))
	fmt.Fprintf(&b, "Integration Needs:\n%s\n\n", orNone(in.IntegrationNeeds))
	fmt.Fprintf(&b, "Reference Companies for Patterns: %s\n\n", joinOrNone(in.ReferenceCompanies))
	b.WriteString("Please provide a comprehensive system design document including architecture, " +
		"real-world patterns, trade-offs, security, scalability, fault tolerance, and cost estimation.")
	return b.String(), nil
}

// BuildRefine renders the prompt asking the agent to revise projectName's design.
func BuildRefine(projectName, feedback string) (string, error) {
	if strings.TrimSpace(feedback) == "" {
		return "", &ValidationError{Field: "feedback", Message: "feedback is required"}
	}
	return fmt.Sprintf("Previous Design: %s\n\nFeedback for Refinement:\n%s\n\n"+
		"Please refine the system design based on this feedback while maintaining all previous context.",
		projectName, strings.TrimSpace(feedback)), nil
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return NoneSpecified
	}
	return s
}

func joinOrNone(items []string) string {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return NoneSpecified
	}
	return strings.Join(kept, ", ")
}
