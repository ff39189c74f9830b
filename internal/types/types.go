package types

import "time"

// RawJob is a job posting as delivered on the jobs_raw topic. It is
// immutable once received.
type RawJob struct {
	ID          string   `json:"id"`
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	Location    string   `json:"location"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// EnrichedJob is the persistent unit in storage: a raw job plus the
// structured fields and embedding produced by enrichment.
type EnrichedJob struct {
	RawJob
	Skills    []string  `json:"skills"`
	Seniority string    `json:"seniority"`
	Summary   string    `json:"summary"`
	Embedding []float64 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Seniority levels form a closed set; anything else is normalized to Mid.
const (
	SeniorityJunior = "Junior"
	SeniorityMid    = "Mid"
	SenioritySenior = "Senior"
	SeniorityLead   = "Lead"
)

// ValidSeniority reports whether s is one of the closed seniority levels.
func ValidSeniority(s string) bool {
	switch s {
	case SeniorityJunior, SeniorityMid, SenioritySenior, SeniorityLead:
		return true
	}
	return false
}

// ResumeProfile is the structured professional profile extracted from a resume.
type ResumeProfile struct {
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	Summary         string   `json:"summary"`
	KeyStrengths    []string `json:"key_strengths"`
	Education       string   `json:"education"`
	JobTitles       []string `json:"job_titles"`
}

// SkillGap compares a candidate profile against one job's requirements.
type SkillGap struct {
	Missing         []string `json:"missing_skills"`
	Matching        []string `json:"matching_skills"`
	Recommendations []string `json:"recommendations"`
}

// MatchResult is one ranked job for a query vector. Gap is populated only
// for the top matches when gap analysis is requested.
type MatchResult struct {
	Job        EnrichedJob `json:"job"`
	Similarity float64     `json:"similarity"`
	Gap        *SkillGap   `json:"skill_gap,omitempty"`
}

// MatchFilters narrows the candidate set before ranking.
// Seniority is exact-equality; Skills requires an overlap with the job's skills.
type MatchFilters struct {
	Seniority string
	Skills    []string
}

// AnalyzeResumeInput carries the parameters of one resume analysis request.
type AnalyzeResumeInput struct {
	ResumeText    string
	Limit         int
	MinSimilarity float64
	IncludeGap    bool
	GapDepth      int
}

// AnalyzeResumeOutput is the aggregate result of a resume analysis request.
type AnalyzeResumeOutput struct {
	Profile          ResumeProfile `json:"profile"`
	Matches          []MatchResult `json:"matches"`
	TotalMatches     int           `json:"total_matches"`
	ProcessingTimeMS float64       `json:"processing_time_ms"`
}
