package formatters

import (
	"encoding/json"
	"strings"
	"testing"

	"jobpulse/internal/types"
)

func sampleOutput() types.AnalyzeResumeOutput {
	return types.AnalyzeResumeOutput{
		Profile: types.ResumeProfile{
			Skills:          []string{"Go", "Kafka"},
			ExperienceYears: 6,
			Summary:         "Backend engineer.",
		},
		Matches: []types.MatchResult{
			{
				Job: types.EnrichedJob{
					RawJob:    types.RawJob{ID: "J1", Company: "Acme", Position: "Engineer"},
					Skills:    []string{"Go"},
					Seniority: types.SeniorityMid,
				},
				Similarity: 0.91,
				Gap: &types.SkillGap{
					Missing:         []string{"Rust"},
					Matching:        []string{"Go"},
					Recommendations: []string{"Learn Rust"},
				},
			},
		},
		TotalMatches:     1,
		ProcessingTimeMS: 1234,
	}
}

func TestValidateFormat(t *testing.T) {
	supported := []string{"json", "text"}

	if err := ValidateFormat("json", supported); err != nil {
		t.Errorf("json rejected: %v", err)
	}
	if err := ValidateFormat("yaml", supported); err == nil {
		t.Error("yaml accepted")
	}
	if err := ValidateFormat("anything", nil); err != nil {
		t.Errorf("unrestricted config rejected format: %v", err)
	}
}

func TestFormatAnalysisJSON(t *testing.T) {
	out, err := FormatAnalysis(sampleOutput(), "json")
	if err != nil {
		t.Fatal(err)
	}

	var decoded types.AnalyzeResumeOutput
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.TotalMatches != 1 {
		t.Errorf("total_matches = %d", decoded.TotalMatches)
	}
}

func TestFormatAnalysisText(t *testing.T) {
	out, err := FormatAnalysis(sampleOutput(), "text")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"Engineer at Acme", "0.91", "Missing skills: Rust", "Learn Rust"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatAnalysisUnknownFormat(t *testing.T) {
	if _, err := FormatAnalysis(sampleOutput(), "yaml"); err == nil {
		t.Error("unknown format accepted")
	}
}
