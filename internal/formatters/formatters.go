package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"jobpulse/internal/types"
)

// ValidateFormat validates format against the configured supported formats.
func ValidateFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}
	if slices.Contains(supportedFormats, format) {
		return nil
	}
	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// FormatAnalysis renders a resume analysis result in the requested format.
func FormatAnalysis(output types.AnalyzeResumeOutput, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(output)
	case "text":
		return formatAnalysisText(output), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}

func formatJSON(v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode output: %w", err)
	}
	return string(buf), nil
}

func formatAnalysisText(output types.AnalyzeResumeOutput) string {
	var b strings.Builder

	b.WriteString("=== Profile ===\n")
	fmt.Fprintf(&b, "Summary: %s\n", output.Profile.Summary)
	fmt.Fprintf(&b, "Experience: %d years\n", output.Profile.ExperienceYears)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(output.Profile.Skills, ", "))
	if output.Profile.Education != "" {
		fmt.Fprintf(&b, "Education: %s\n", output.Profile.Education)
	}

	fmt.Fprintf(&b, "\n=== Matches (%d) ===\n", output.TotalMatches)
	for i, m := range output.Matches {
		fmt.Fprintf(&b, "\n%d. %s at %s (similarity %.2f)\n",
			i+1, m.Job.Position, m.Job.Company, m.Similarity)
		if m.Job.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", m.Job.Location)
		}
		fmt.Fprintf(&b, "   Seniority: %s\n", m.Job.Seniority)
		if len(m.Job.Skills) > 0 {
			fmt.Fprintf(&b, "   Required: %s\n", strings.Join(m.Job.Skills, ", "))
		}
		if m.Job.URL != "" {
			fmt.Fprintf(&b, "   URL: %s\n", m.Job.URL)
		}
		if m.Gap != nil {
			if len(m.Gap.Missing) > 0 {
				fmt.Fprintf(&b, "   Missing skills: %s\n", strings.Join(m.Gap.Missing, ", "))
			}
			if len(m.Gap.Matching) > 0 {
				fmt.Fprintf(&b, "   Matching skills: %s\n", strings.Join(m.Gap.Matching, ", "))
			}
			for _, rec := range m.Gap.Recommendations {
				fmt.Fprintf(&b, "   - %s\n", rec)
			}
		}
	}

	fmt.Fprintf(&b, "\nProcessed in %.0f ms\n", output.ProcessingTimeMS)
	return b.String()
}
