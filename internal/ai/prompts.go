package ai

// Default prompt templates. Each is a fmt template; the caller supplies the
// dynamic content in the documented order. Overrides come from configuration
// (inline or file-backed, see internal/config).

// DefaultEnrichJobPrompt takes (position, description).
const DefaultEnrichJobPrompt = `Analyze the following job posting and extract structured information.

Job Title: %s

Job Description:
%s

Please provide a JSON object with the following fields:
1. "skills": A list of technical skills, tools, and technologies mentioned (max 15 items)
2. "seniority": The seniority level - must be one of: "Junior", "Mid", "Senior", or "Lead"
3. "summary": A concise 2-sentence summary of the role and key requirements

Return ONLY valid JSON, no additional text or markdown formatting.`

// DefaultResumeProfilePrompt takes (resume text).
const DefaultResumeProfilePrompt = `Analyze the following resume and extract structured information.

Resume Text:
%s

Please provide a JSON object with the following fields:
1. "skills": A list of technical skills, tools, and technologies (max 20 items)
2. "experience_years": Estimated years of professional experience (integer)
3. "summary": A concise 3-sentence professional summary
4. "key_strengths": Top 5 key strengths or areas of expertise
5. "education": Highest degree and field of study
6. "job_titles": List of previous job titles (max 5)

Return ONLY valid JSON, no additional text or markdown formatting.`

// DefaultSkillGapPrompt takes (candidate skills, candidate summary, jobs block).
// The response must be a JSON array with one object per listed job, in the
// same order as listed.
const DefaultSkillGapPrompt = `Analyze the skill gaps between this candidate and multiple job opportunities.

CANDIDATE PROFILE:
Skills: %s
Summary: %s

JOBS TO ANALYZE:
%s

For EACH job, in the exact order listed, provide a JSON object with:
1. "missing_skills": Top 3 skills the candidate should learn
2. "matching_skills": Skills the candidate already has
3. "recommendations": 2-3 specific recommendations

Return a JSON array with one object per job, in the same order as the jobs above. Return ONLY valid JSON, no additional text.`

// EnrichJobShape is the expected structured response for job enrichment.
var EnrichJobShape = Shape{
	Name: "enrich_job",
	Fields: []Field{
		{Name: "skills", Kind: KindStringList, MaxItems: 15},
		{Name: "seniority", Kind: KindString, Optional: true, Seniority: true},
		{Name: "summary", Kind: KindString, Optional: true},
	},
}

// ResumeProfileShape is the expected structured response for profile
// extraction.
var ResumeProfileShape = Shape{
	Name: "resume_profile",
	Fields: []Field{
		{Name: "skills", Kind: KindStringList, MaxItems: 20},
		{Name: "experience_years", Kind: KindInt, Optional: true},
		{Name: "summary", Kind: KindString},
		{Name: "key_strengths", Kind: KindStringList, Optional: true, MaxItems: 5},
		{Name: "education", Kind: KindString, Optional: true},
		{Name: "job_titles", Kind: KindStringList, Optional: true, MaxItems: 5},
	},
}
